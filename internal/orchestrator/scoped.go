package orchestrator

import (
	"context"
	"errors"
)

// WithProvisioned provisions the requested datasets, hands the result
// to fn, and cleans the provisioned records up on every exit path,
// including a panic inside fn. Intended for test harnesses that need
// scoped fixture data without owning its lifecycle.
func (o *Orchestrator) WithProvisioned(ctx context.Context, req Request, fn func(Result) error) (err error) {
	req.Action = ActionProvision
	provisioned := o.Process(ctx, req)
	if provisioned.State != StateCompleted {
		return provisioned.Err()
	}

	defer func() {
		cleanup := o.Process(ctx, Request{
			Action:   ActionCleanup,
			Datasets: req.Datasets,
			Actor:    req.Actor,
			Roles:    req.Roles,
			RunID:    provisioned.RequestID,
		})
		err = errors.Join(err, cleanup.Err())
	}()

	return fn(provisioned)
}
