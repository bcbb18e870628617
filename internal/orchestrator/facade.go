package orchestrator

import (
	"context"

	"ista/internal/ledger"
	"ista/internal/storage"
)

// Facade is the surface the transport layer consumes: submission goes
// through the worker pool, everything else straight to the
// orchestrator.
type Facade struct {
	orch *Orchestrator
	pool *Pool
}

func NewFacade(orch *Orchestrator, pool *Pool) *Facade {
	return &Facade{orch: orch, pool: pool}
}

func (f *Facade) Submit(ctx context.Context, req Request) (Result, error) {
	return f.pool.Submit(ctx, req)
}

func (f *Facade) Run(requestID string) (Result, bool) {
	return f.orch.Registry().Get(requestID)
}

func (f *Facade) Datasets() []string {
	return f.orch.Datasets()
}

func (f *Facade) CollectionStats(ctx context.Context, collection string) (storage.Stats, error) {
	return f.orch.CollectionStats(ctx, collection)
}

func (f *Facade) QueryAudit(ctx context.Context, filter ledger.Filter) ([]ledger.Entry, error) {
	return f.orch.QueryAudit(ctx, filter)
}

func (f *Facade) VerifyChain(ctx context.Context) (ledger.VerifyResult, error) {
	return f.orch.VerifyChain(ctx)
}

func (f *Facade) Health(ctx context.Context) error {
	return f.orch.Health(ctx)
}
