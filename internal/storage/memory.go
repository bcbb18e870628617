package storage

import (
	"context"
	"encoding/json"
	"maps"
	"sync"
)

// MemoryStore keeps collections in process memory. Default backend
// for development and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][]Document)}
}

func (s *MemoryStore) Insert(_ context.Context, collection string, docs []Document) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range docs {
		s.collections[collection] = append(s.collections[collection], maps.Clone(doc))
	}
	return len(docs), nil
}

func (s *MemoryStore) Find(_ context.Context, collection string, filter Filter) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Document{}
	for _, doc := range s.collections[collection] {
		if filter.Matches(doc) {
			out = append(out, maps.Clone(doc))
		}
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, collection string, filter Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.collections[collection][:0]
	deleted := 0
	for _, doc := range s.collections[collection] {
		if filter.Matches(doc) {
			deleted++
			continue
		}
		kept = append(kept, doc)
	}
	s.collections[collection] = kept
	return deleted, nil
}

func (s *MemoryStore) Stats(_ context.Context, collection string) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := Stats{}
	for _, doc := range s.collections[collection] {
		raw, err := json.Marshal(doc)
		if err != nil {
			return Stats{}, err
		}
		stats.Count++
		stats.SizeBytes += int64(len(raw))
	}
	return stats, nil
}
