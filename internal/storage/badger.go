package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// BadgerStore is the embedded backend: documents live under
// doc/<collection>/<key> in a local BadgerDB. Suits single-node
// deployments that want persistence without running a server.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens a persistent store at path, or an in-memory one
// when path is empty.
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func badgerPrefix(collection string) []byte {
	return []byte("doc/" + collection + "/")
}

func (s *BadgerStore) Insert(_ context.Context, collection string, docs []Document) (int, error) {
	err := s.db.Update(func(txn *badger.Txn) error {
		prefix := badgerPrefix(collection)
		for _, doc := range docs {
			raw, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("encode document: %w", err)
			}
			key := append(append([]byte{}, prefix...), uuid.NewString()...)
			if err := txn.Set(key, raw); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", collection, err)
	}
	return len(docs), nil
}

func (s *BadgerStore) Find(ctx context.Context, collection string, filter Filter) ([]Document, error) {
	docs := []Document{}
	err := s.db.View(func(txn *badger.Txn) error {
		return s.iterate(ctx, txn, collection, filter, func(_ []byte, doc Document) error {
			docs = append(docs, doc)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", collection, err)
	}
	return docs, nil
}

func (s *BadgerStore) Delete(ctx context.Context, collection string, filter Filter) (int, error) {
	keys := [][]byte{}
	err := s.db.View(func(txn *badger.Txn) error {
		return s.iterate(ctx, txn, collection, filter, func(key []byte, _ Document) error {
			keys = append(keys, append([]byte{}, key...))
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", collection, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", collection, err)
	}
	return len(keys), nil
}

func (s *BadgerStore) Stats(ctx context.Context, collection string) (Stats, error) {
	stats := Stats{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = badgerPrefix(collection)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			stats.Count++
			stats.SizeBytes += it.Item().ValueSize()
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("stats for %s: %w", collection, err)
	}
	return stats, nil
}

func (s *BadgerStore) iterate(ctx context.Context, txn *badger.Txn, collection string, filter Filter, fn func(key []byte, doc Document) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = badgerPrefix(collection)
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := it.Item()
		err := item.Value(func(raw []byte) error {
			var doc Document
			if err := json.Unmarshal(raw, &doc); err != nil {
				return fmt.Errorf("decode document: %w", err)
			}
			if filter.Matches(doc) {
				return fn(item.Key(), doc)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
