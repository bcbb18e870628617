package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each document as a JSON string under
// ista:doc:<collection>:<key>, with a set per collection indexing its
// keys. Filtering happens client-side after fetch; collections here
// are test-data sized, not analytical.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisFromClient wraps an existing client, used by tests.
func NewRedisFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func indexKey(collection string) string {
	return "ista:idx:" + collection
}

func docKey(collection, id string) string {
	return "ista:doc:" + collection + ":" + id
}

func (s *RedisStore) Insert(ctx context.Context, collection string, docs []Document) (int, error) {
	pipe := s.client.TxPipeline()
	for _, doc := range docs {
		raw, err := json.Marshal(doc)
		if err != nil {
			return 0, fmt.Errorf("encode document: %w", err)
		}
		id := uuid.NewString()
		pipe.Set(ctx, docKey(collection, id), raw, 0)
		pipe.SAdd(ctx, indexKey(collection), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("insert into %s: %w", collection, err)
	}
	return len(docs), nil
}

func (s *RedisStore) Find(ctx context.Context, collection string, filter Filter) ([]Document, error) {
	docs, _, err := s.scan(ctx, collection, filter)
	return docs, err
}

func (s *RedisStore) Delete(ctx context.Context, collection string, filter Filter) (int, error) {
	_, ids, err := s.scan(ctx, collection, filter)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	pipe := s.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, docKey(collection, id))
		pipe.SRem(ctx, indexKey(collection), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("delete from %s: %w", collection, err)
	}
	return len(ids), nil
}

func (s *RedisStore) Stats(ctx context.Context, collection string) (Stats, error) {
	ids, err := s.client.SMembers(ctx, indexKey(collection)).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("stats for %s: %w", collection, err)
	}
	stats := Stats{Count: int64(len(ids))}
	for _, id := range ids {
		size, err := s.client.StrLen(ctx, docKey(collection, id)).Result()
		if err != nil {
			return Stats{}, fmt.Errorf("stats for %s: %w", collection, err)
		}
		stats.SizeBytes += size
	}
	return stats, nil
}

// scan loads the whole collection and applies the filter, returning
// matching documents and their storage keys.
func (s *RedisStore) scan(ctx context.Context, collection string, filter Filter) ([]Document, []string, error) {
	ids, err := s.client.SMembers(ctx, indexKey(collection)).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("scan %s: %w", collection, err)
	}
	docs := []Document{}
	matched := []string{}
	for _, id := range ids {
		raw, err := s.client.Get(ctx, docKey(collection, id)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		var doc Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, nil, fmt.Errorf("decode document in %s: %w", collection, err)
		}
		if filter.Matches(doc) {
			docs = append(docs, doc)
			matched = append(matched, id)
		}
	}
	return docs, matched, nil
}
