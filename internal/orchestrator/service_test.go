package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ista/internal/catalog"
	"ista/internal/ledger"
	"ista/internal/policy"
	"ista/internal/storage"
	dErrors "ista/pkg/domain-errors"
)

func floatPtr(v float64) *float64 { return &v }

func usersSpec() *catalog.DatasetSpec {
	return &catalog.DatasetSpec{
		Name:       "users",
		Version:    "v1",
		Collection: "users",
		Volume:     5,
		Fields: []catalog.FieldSpec{
			{Name: "id", Type: catalog.FieldIdentifier},
			{Name: "email", Type: catalog.FieldString, Rule: &catalog.Rule{Pattern: "{word}{digits:3}@example.com"}},
			{Name: "fullName", Type: catalog.FieldString, Rule: &catalog.Rule{Pattern: "{word} {word}"}},
		},
		Masking: []catalog.MaskingDirective{
			{Field: "email", Strategy: catalog.StrategyHash, Salt: "x"},
		},
	}
}

func ordersSpec() *catalog.DatasetSpec {
	return &catalog.DatasetSpec{
		Name:       "orders",
		Version:    "v1",
		Collection: "orders",
		Volume:     10,
		Fields: []catalog.FieldSpec{
			{Name: "id", Type: catalog.FieldIdentifier},
			{Name: "userId", Type: catalog.FieldReference},
			{Name: "total", Type: catalog.FieldFloat, Rule: &catalog.Rule{Min: floatPtr(1), Max: floatPtr(500)}},
		},
		Relationships: []catalog.RelationshipSpec{
			{Field: "userId", Dataset: "users", References: "id"},
		},
	}
}

func testPolicy(t *testing.T) *policy.Engine {
	t.Helper()
	engine, err := policy.New([]policy.Rule{
		{Role: "data-engineer", Action: "provision", Dataset: "*", Effect: policy.EffectAllow},
		{Role: "data-engineer", Action: "cleanup", Dataset: "*", Effect: policy.EffectAllow},
	})
	require.NoError(t, err)
	return engine
}

type fixture struct {
	orch       *Orchestrator
	store      storage.DocumentStore
	auditStore *ledger.MemoryStore
}

func newFixture(t *testing.T, specs []*catalog.DatasetSpec, store storage.DocumentStore, opts ...Option) fixture {
	t.Helper()
	cat, err := catalog.New(specs...)
	require.NoError(t, err)
	auditStore := ledger.NewMemoryStore()
	led, err := ledger.New(context.Background(), auditStore)
	require.NoError(t, err)
	if store == nil {
		store = storage.NewMemoryStore()
	}
	opts = append([]Option{WithDefaultSeed(42)}, opts...)
	return fixture{
		orch:       New(cat, testPolicy(t), led, store, opts...),
		store:      store,
		auditStore: auditStore,
	}
}

func engineerRequest(action Action, datasets ...string) Request {
	refs := make([]DatasetRef, len(datasets))
	for i, name := range datasets {
		refs[i] = DatasetRef{Name: name}
	}
	return Request{
		Action:   action,
		Datasets: refs,
		Actor:    "alice",
		Roles:    []string{"data-engineer"},
	}
}

func auditEntries(t *testing.T, f fixture) []ledger.Entry {
	t.Helper()
	entries, err := f.auditStore.List(context.Background(), ledger.Filter{})
	require.NoError(t, err)
	return entries
}

func TestProvision(t *testing.T) {
	ctx := context.Background()

	t.Run("parents and children persist with referential integrity", func(t *testing.T) {
		f := newFixture(t, []*catalog.DatasetSpec{usersSpec(), ordersSpec()}, nil)

		result := f.orch.Process(ctx, engineerRequest(ActionProvision, "orders", "users"))

		require.Equal(t, StateCompleted, result.State, result.ErrorMessage)
		assert.Equal(t, map[string]int{"users": 5, "orders": 10}, result.RecordCounts)
		assert.Equal(t, []string{"orders", "users"}, result.Completed)
		assert.NotEmpty(t, result.AuditEntryID)

		users, err := f.store.Find(ctx, "users", storage.Filter{})
		require.NoError(t, err)
		require.Len(t, users, 5)
		parents := map[any]bool{}
		for _, u := range users {
			parents[u["id"]] = true
		}

		orders, err := f.store.Find(ctx, "orders", storage.Filter{})
		require.NoError(t, err)
		require.Len(t, orders, 10)
		for _, o := range orders {
			assert.True(t, parents[o["userId"]], "order references unknown user %v", o["userId"])
			assert.Equal(t, result.RequestID, o[storage.RunIDField])
		}
	})

	t.Run("masking runs before persistence", func(t *testing.T) {
		f := newFixture(t, []*catalog.DatasetSpec{usersSpec()}, nil)

		result := f.orch.Process(ctx, engineerRequest(ActionProvision, "users"))
		require.Equal(t, StateCompleted, result.State)

		users, err := f.store.Find(ctx, "users", storage.Filter{})
		require.NoError(t, err)
		for _, u := range users {
			assert.Len(t, u["email"].(string), 64, "email should be a digest")
		}
	})

	t.Run("reprovisioning with the same seed is reproducible", func(t *testing.T) {
		f := newFixture(t, []*catalog.DatasetSpec{usersSpec()}, nil)

		first := f.orch.Process(ctx, engineerRequest(ActionProvision, "users"))
		require.Equal(t, StateCompleted, first.State)
		initial, err := f.store.Find(ctx, "users", storage.Filter{storage.RunIDField: first.RequestID})
		require.NoError(t, err)

		second := f.orch.Process(ctx, engineerRequest(ActionProvision, "users"))
		require.Equal(t, StateCompleted, second.State)
		repeat, err := f.store.Find(ctx, "users", storage.Filter{storage.RunIDField: second.RequestID})
		require.NoError(t, err)

		strip := func(docs []storage.Document) []storage.Document {
			out := make([]storage.Document, len(docs))
			for i, d := range docs {
				clone := storage.Document{}
				for k, v := range d {
					if k != storage.RunIDField {
						clone[k] = v
					}
				}
				out[i] = clone
			}
			return out
		}
		assert.ElementsMatch(t, strip(initial), strip(repeat))
	})

	t.Run("volume override applies to the named dataset", func(t *testing.T) {
		f := newFixture(t, []*catalog.DatasetSpec{usersSpec()}, nil)
		req := engineerRequest(ActionProvision, "users")
		req.Volumes = map[string]int{"users": 2}

		result := f.orch.Process(ctx, req)
		require.Equal(t, StateCompleted, result.State)
		assert.Equal(t, 2, result.RecordCounts["users"])
	})

	t.Run("aggregate masking surfaces statistics in the result", func(t *testing.T) {
		spec := ordersSpec()
		spec.Relationships = nil
		spec.Fields = []catalog.FieldSpec{
			{Name: "id", Type: catalog.FieldIdentifier},
			{Name: "total", Type: catalog.FieldFloat, Rule: &catalog.Rule{Min: floatPtr(1), Max: floatPtr(500)}},
		}
		spec.Masking = []catalog.MaskingDirective{{Field: "total", Strategy: catalog.StrategyAggregate}}
		f := newFixture(t, []*catalog.DatasetSpec{spec}, nil)

		result := f.orch.Process(ctx, engineerRequest(ActionProvision, "orders"))
		require.Equal(t, StateCompleted, result.State)
		agg := result.Aggregates["orders"]["total"]
		assert.Equal(t, 10, agg.Count)
		assert.GreaterOrEqual(t, agg.Min, 1.0)
		assert.LessOrEqual(t, agg.Max, 500.0)

		orders, err := f.store.Find(ctx, "orders", storage.Filter{})
		require.NoError(t, err)
		for _, o := range orders {
			assert.Nil(t, o["total"], "raw totals must not persist")
		}
	})
}

func TestProvisionFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown dataset fails before any mutation", func(t *testing.T) {
		f := newFixture(t, []*catalog.DatasetSpec{usersSpec()}, nil)

		result := f.orch.Process(ctx, engineerRequest(ActionProvision, "ghosts"))

		assert.Equal(t, StateFailed, result.State)
		assert.Equal(t, dErrors.CodeSpecNotFound, result.ErrorCode)
		assert.Empty(t, result.Completed)

		entries := auditEntries(t, f)
		require.Len(t, entries, 2)
		assert.Equal(t, ledger.OutcomeReceived, entries[0].Outcome)
		assert.Equal(t, ledger.OutcomeFailed, entries[1].Outcome)
	})

	t.Run("relationship cycle fails before generation with only the received entry preceding", func(t *testing.T) {
		a := &catalog.DatasetSpec{
			Name: "a", Version: "v1", Collection: "a", Volume: 3,
			Fields: []catalog.FieldSpec{
				{Name: "id", Type: catalog.FieldIdentifier},
				{Name: "bId", Type: catalog.FieldReference},
			},
			Relationships: []catalog.RelationshipSpec{{Field: "bId", Dataset: "b", References: "id"}},
		}
		b := &catalog.DatasetSpec{
			Name: "b", Version: "v1", Collection: "b", Volume: 3,
			Fields: []catalog.FieldSpec{
				{Name: "id", Type: catalog.FieldIdentifier},
				{Name: "aId", Type: catalog.FieldReference},
			},
			Relationships: []catalog.RelationshipSpec{{Field: "aId", Dataset: "a", References: "id"}},
		}
		f := newFixture(t, []*catalog.DatasetSpec{a, b}, nil)

		result := f.orch.Process(ctx, engineerRequest(ActionProvision, "a", "b"))

		assert.Equal(t, StateFailed, result.State)
		assert.Equal(t, dErrors.CodeCyclicRelationship, result.ErrorCode)

		docs, err := f.store.Find(ctx, "a", storage.Filter{})
		require.NoError(t, err)
		assert.Empty(t, docs, "no record may be generated before cycle detection")

		entries := auditEntries(t, f)
		require.Len(t, entries, 2)
		assert.Equal(t, ledger.OutcomeReceived, entries[0].Outcome)
		assert.Equal(t, ledger.OutcomeFailed, entries[1].Outcome)
	})

	t.Run("storage failure mid-run keeps earlier collections and reports them", func(t *testing.T) {
		store := &failingStore{DocumentStore: storage.NewMemoryStore(), failOn: "orders"}
		f := newFixture(t, []*catalog.DatasetSpec{usersSpec(), ordersSpec()}, store)

		result := f.orch.Process(ctx, engineerRequest(ActionProvision, "users", "orders"))

		assert.Equal(t, StateFailed, result.State)
		assert.Equal(t, dErrors.CodeStorageFailure, result.ErrorCode)
		assert.Equal(t, []string{"users"}, result.Completed)

		users, err := f.store.Find(ctx, "users", storage.Filter{})
		require.NoError(t, err)
		assert.Len(t, users, 5, "persisted collections are not rolled back")

		entries := auditEntries(t, f)
		require.Len(t, entries, 2)
		assert.Equal(t, ledger.OutcomeFailed, entries[1].Outcome)
		assert.EqualValues(t, 5, entries[1].Summary["users"])
	})

	t.Run("audit append failure fails the request even after data work succeeded", func(t *testing.T) {
		cat, err := catalog.New(usersSpec())
		require.NoError(t, err)
		auditStore := &tailFailingAuditStore{}
		led, err := ledger.New(ctx, auditStore)
		require.NoError(t, err)
		orch := New(cat, testPolicy(t), led, storage.NewMemoryStore(), WithDefaultSeed(1))

		result := orch.Process(ctx, engineerRequest(ActionProvision, "users"))

		assert.Equal(t, StateFailed, result.State)
		assert.Equal(t, dErrors.CodeAuditWriteFailure, result.ErrorCode)
		assert.Equal(t, []string{"users"}, result.Completed)
	})

	t.Run("cancelled context stops before the next collection", func(t *testing.T) {
		f := newFixture(t, []*catalog.DatasetSpec{usersSpec()}, nil)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		result := f.orch.Process(cancelled, engineerRequest(ActionProvision, "users"))

		assert.Equal(t, StateFailed, result.State)
		assert.Equal(t, dErrors.CodeStorageFailure, result.ErrorCode)
		assert.Empty(t, result.Completed)
	})
}

func TestPolicyDenial(t *testing.T) {
	ctx := context.Background()

	t.Run("viewer cleanup without an allow rule is denied and audited", func(t *testing.T) {
		f := newFixture(t, []*catalog.DatasetSpec{usersSpec()}, nil)
		req := engineerRequest(ActionCleanup, "users")
		req.Actor = "victor"
		req.Roles = []string{"viewer"}

		result := f.orch.Process(ctx, req)

		assert.Equal(t, StateFailed, result.State)
		assert.Equal(t, dErrors.CodePolicyDenied, result.ErrorCode)
		assert.NotEmpty(t, result.Reasons)
		assert.NotEmpty(t, result.AuditEntryID)

		entries := auditEntries(t, f)
		require.Len(t, entries, 2)
		assert.Equal(t, ledger.OutcomeDenied, entries[1].Outcome)
		assert.Equal(t, "victor", entries[1].Actor)
	})
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()

	t.Run("cleanup by run id removes only that run's records", func(t *testing.T) {
		f := newFixture(t, []*catalog.DatasetSpec{usersSpec()}, nil)

		first := f.orch.Process(ctx, engineerRequest(ActionProvision, "users"))
		require.Equal(t, StateCompleted, first.State)
		second := f.orch.Process(ctx, engineerRequest(ActionProvision, "users"))
		require.Equal(t, StateCompleted, second.State)

		cleanupReq := engineerRequest(ActionCleanup, "users")
		cleanupReq.RunID = first.RequestID
		result := f.orch.Process(ctx, cleanupReq)

		require.Equal(t, StateCompleted, result.State)
		assert.Equal(t, map[string]int{"users": 5}, result.RecordCounts)

		remaining, err := f.store.Find(ctx, "users", storage.Filter{})
		require.NoError(t, err)
		require.Len(t, remaining, 5)
		for _, doc := range remaining {
			assert.Equal(t, second.RequestID, doc[storage.RunIDField])
		}
	})

	t.Run("cleanup without a run id empties the collections", func(t *testing.T) {
		f := newFixture(t, []*catalog.DatasetSpec{usersSpec()}, nil)
		require.Equal(t, StateCompleted, f.orch.Process(ctx, engineerRequest(ActionProvision, "users")).State)
		require.Equal(t, StateCompleted, f.orch.Process(ctx, engineerRequest(ActionProvision, "users")).State)

		result := f.orch.Process(ctx, engineerRequest(ActionCleanup, "users"))

		require.Equal(t, StateCompleted, result.State)
		assert.Equal(t, 10, result.RecordCounts["users"])
	})
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()

	t.Run("finished runs are retrievable by id", func(t *testing.T) {
		f := newFixture(t, []*catalog.DatasetSpec{usersSpec()}, nil)

		result := f.orch.Process(ctx, engineerRequest(ActionProvision, "users"))

		recorded, ok := f.orch.Registry().Get(result.RequestID)
		require.True(t, ok)
		assert.Equal(t, result.RecordCounts, recorded.RecordCounts)

		_, ok = f.orch.Registry().Get("missing")
		assert.False(t, ok)
	})
}

type failingStore struct {
	storage.DocumentStore
	failOn string
}

func (s *failingStore) Insert(ctx context.Context, collection string, docs []storage.Document) (int, error) {
	if collection == s.failOn {
		return 0, assert.AnError
	}
	return s.DocumentStore.Insert(ctx, collection, docs)
}

// tailFailingAuditStore accepts the first append (the received entry)
// and rejects every later one.
type tailFailingAuditStore struct {
	inner ledger.MemoryStore
	seen  int
}

func (s *tailFailingAuditStore) Insert(ctx context.Context, entry ledger.Entry) error {
	s.seen++
	if s.seen > 1 {
		return assert.AnError
	}
	return s.inner.Insert(ctx, entry)
}

func (s *tailFailingAuditStore) Last(ctx context.Context) (*ledger.Entry, error) {
	return s.inner.Last(ctx)
}

func (s *tailFailingAuditStore) List(ctx context.Context, filter ledger.Filter) ([]ledger.Entry, error) {
	return s.inner.List(ctx, filter)
}
