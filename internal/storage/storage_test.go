package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeContract exercises the behavior every DocumentStore backend
// must share. The redis backend runs the same contract under the
// integration build tag.
func storeContract(t *testing.T, newStore func(t *testing.T) DocumentStore) {
	ctx := context.Background()

	seed := func(t *testing.T) DocumentStore {
		t.Helper()
		store := newStore(t)
		_, err := store.Insert(ctx, "users", []Document{
			{"name": "ada", RunIDField: "run-1"},
			{"name": "grace", RunIDField: "run-1"},
			{"name": "linus", RunIDField: "run-2"},
		})
		require.NoError(t, err)
		return store
	}

	t.Run("insert returns the persisted count", func(t *testing.T) {
		store := newStore(t)

		n, err := store.Insert(ctx, "users", []Document{{"name": "ada"}})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = store.Insert(ctx, "users", nil)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("find with empty filter returns everything", func(t *testing.T) {
		store := seed(t)

		docs, err := store.Find(ctx, "users", Filter{})
		require.NoError(t, err)
		assert.Len(t, docs, 3)
	})

	t.Run("find filters by field equality", func(t *testing.T) {
		store := seed(t)

		docs, err := store.Find(ctx, "users", Filter{RunIDField: "run-1"})
		require.NoError(t, err)
		assert.Len(t, docs, 2)
	})

	t.Run("unknown collection finds nothing", func(t *testing.T) {
		store := seed(t)

		docs, err := store.Find(ctx, "ghosts", Filter{})
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("delete removes only matching documents", func(t *testing.T) {
		store := seed(t)

		n, err := store.Delete(ctx, "users", Filter{RunIDField: "run-1"})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		remaining, err := store.Find(ctx, "users", Filter{})
		require.NoError(t, err)
		require.Len(t, remaining, 1)
		assert.Equal(t, "linus", remaining[0]["name"])
	})

	t.Run("stats reports count and a positive size", func(t *testing.T) {
		store := seed(t)

		stats, err := store.Stats(ctx, "users")
		require.NoError(t, err)
		assert.EqualValues(t, 3, stats.Count)
		assert.Positive(t, stats.SizeBytes)

		empty, err := store.Stats(ctx, "ghosts")
		require.NoError(t, err)
		assert.Zero(t, empty.Count)
	})

	t.Run("collections are isolated", func(t *testing.T) {
		store := seed(t)
		_, err := store.Insert(ctx, "orders", []Document{{"total": "12"}})
		require.NoError(t, err)

		n, err := store.Delete(ctx, "orders", Filter{})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		docs, err := store.Find(ctx, "users", Filter{})
		require.NoError(t, err)
		assert.Len(t, docs, 3)
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(t *testing.T) DocumentStore {
		return NewMemoryStore()
	})

	t.Run("stored documents are isolated from caller mutation", func(t *testing.T) {
		ctx := context.Background()
		store := NewMemoryStore()
		doc := Document{"name": "ada"}
		_, err := store.Insert(ctx, "users", []Document{doc})
		require.NoError(t, err)

		doc["name"] = "mutated"

		docs, err := store.Find(ctx, "users", Filter{})
		require.NoError(t, err)
		assert.Equal(t, "ada", docs[0]["name"])
	})
}

func TestBadgerStore(t *testing.T) {
	storeContract(t, func(t *testing.T) DocumentStore {
		store, err := OpenBadger("")
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	})

	t.Run("documents survive reopening a persistent store", func(t *testing.T) {
		ctx := context.Background()
		dir := t.TempDir()

		store, err := OpenBadger(dir)
		require.NoError(t, err)
		_, err = store.Insert(ctx, "users", []Document{{"name": "ada"}})
		require.NoError(t, err)
		require.NoError(t, store.Close())

		reopened, err := OpenBadger(dir)
		require.NoError(t, err)
		defer reopened.Close()

		docs, err := reopened.Find(ctx, "users", Filter{})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "ada", docs[0]["name"])
	})
}

func TestFilterMatches(t *testing.T) {
	t.Run("empty filter matches anything", func(t *testing.T) {
		assert.True(t, Filter{}.Matches(Document{"a": 1}))
	})

	t.Run("missing field does not match", func(t *testing.T) {
		assert.False(t, Filter{"b": "x"}.Matches(Document{"a": 1}))
	})

	t.Run("all fields must match", func(t *testing.T) {
		doc := Document{"a": "1", "b": "2"}
		assert.True(t, Filter{"a": "1", "b": "2"}.Matches(doc))
		assert.False(t, Filter{"a": "1", "b": "other"}.Matches(doc))
	})
}
