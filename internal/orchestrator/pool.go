package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"

	dErrors "ista/pkg/domain-errors"
)

type job struct {
	req  Request
	resp chan Result
}

// Pool fans requests out to a fixed set of workers. A request runs
// end-to-end on one worker, which is what keeps each run's collections
// in dependency order; independent requests run concurrently across
// workers.
type Pool struct {
	orch    *Orchestrator
	workers int
	inbox   chan job
}

func NewPool(orch *Orchestrator, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		orch:    orch,
		workers: workers,
		inbox:   make(chan job),
	}
}

// Run serves requests until ctx is cancelled. Workers drain naturally;
// Submit calls racing the shutdown get a failed result, not a hang.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case j := <-p.inbox:
					j.resp <- p.orch.Process(ctx, j.req)
				}
			}
		})
	}
	return g.Wait()
}

// Submit queues the request and blocks until a worker finishes it or
// ctx expires.
func (p *Pool) Submit(ctx context.Context, req Request) (Result, error) {
	j := job{req: req, resp: make(chan Result, 1)}
	select {
	case <-ctx.Done():
		return Result{}, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "request not accepted")
	case p.inbox <- j:
	}
	select {
	case <-ctx.Done():
		return Result{}, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "request abandoned by caller")
	case result := <-j.resp:
		return result, nil
	}
}
