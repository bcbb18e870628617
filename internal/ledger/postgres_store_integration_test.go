//go:build integration

package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ista/pkg/testutil/containers"
)

func TestPostgresStoreIntegration(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()

	store := NewPostgres(pg.DB)
	require.NoError(t, store.Migrate(ctx))

	reset := func(t *testing.T) {
		t.Helper()
		require.NoError(t, pg.TruncateTables(ctx, "audit_entries"))
	}

	t.Run("round trips entries and preserves chain order", func(t *testing.T) {
		reset(t)
		l, err := New(ctx, store)
		require.NoError(t, err)

		first, err := l.Append(ctx, Draft{
			Actor: "alice", Action: "provision", Resource: "users",
			Outcome: OutcomeCompleted,
			Summary: map[string]any{"users": 50},
		})
		require.NoError(t, err)
		second, err := l.Append(ctx, Draft{Actor: "bob", Action: "cleanup", Resource: "users", Outcome: OutcomeFailed})
		require.NoError(t, err)

		entries, err := l.Query(ctx, Filter{})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, first.Hash, entries[0].Hash)
		assert.Equal(t, second.PrevHash, entries[0].Hash)
		assert.EqualValues(t, 50, entries[0].Summary["users"])
	})

	t.Run("verify recomputes hashes after a restart", func(t *testing.T) {
		reset(t)
		l, err := New(ctx, store)
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			_, err := l.Append(ctx, Draft{Actor: "alice", Action: "provision", Outcome: OutcomeCompleted})
			require.NoError(t, err)
		}

		reopened, err := New(ctx, store)
		require.NoError(t, err)
		result, err := reopened.Verify(ctx)
		require.NoError(t, err)
		assert.True(t, result.Valid)
		assert.Equal(t, 5, result.Entries)
	})

	t.Run("tampering a row in sql breaks verification", func(t *testing.T) {
		reset(t)
		l, err := New(ctx, store)
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			_, err := l.Append(ctx, Draft{Actor: "alice", Action: "provision", Outcome: OutcomeCompleted})
			require.NoError(t, err)
		}

		_, err = pg.DB.ExecContext(ctx, `UPDATE audit_entries SET actor = 'mallory' WHERE seq = 1`)
		require.NoError(t, err)

		result, err := l.Verify(ctx)
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.Equal(t, uint64(1), result.BrokenSeq)
	})

	t.Run("query filters by time range in sql", func(t *testing.T) {
		reset(t)
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		tick := 0
		l, err := New(ctx, store, WithClock(func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Hour)
		}))
		require.NoError(t, err)
		for i := 0; i < 4; i++ {
			_, err := l.Append(ctx, Draft{Actor: "alice", Action: "provision", Outcome: OutcomeCompleted})
			require.NoError(t, err)
		}

		entries, err := l.Query(ctx, Filter{From: base.Add(2 * time.Hour), To: base.Add(3 * time.Hour)})
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})
}
