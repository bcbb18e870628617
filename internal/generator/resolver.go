package generator

import (
	"math/rand"

	dErrors "ista/pkg/domain-errors"
)

// Resolver tracks the identifiers emitted for each dataset during one
// provisioning run and hands out valid foreign references to child
// datasets. It is owned by a single run on a single worker, so it
// carries no locking.
type Resolver struct {
	ids map[string][]string
}

func NewResolver() *Resolver {
	return &Resolver{ids: make(map[string][]string)}
}

// Register appends the identifiers generated for a dataset. Called by
// the orchestrator after each parent collection completes.
func (r *Resolver) Register(dataset string, ids []string) {
	r.ids[dataset] = append(r.ids[dataset], ids...)
}

// Pick returns one identifier chosen uniformly from the dataset's
// registered identifiers, drawing from the caller's seeded stream so
// the run stays reproducible. Fails with NoParentRecords when the
// parent has not produced anything yet; the orchestrator's topological
// ordering makes that a programming error rather than a data race.
func (r *Resolver) Pick(dataset string, rng *rand.Rand) (string, error) {
	ids := r.ids[dataset]
	if len(ids) == 0 {
		return "", dErrors.Newf(dErrors.CodeNoParentRecords,
			"dataset %s has no generated records to reference", dataset)
	}
	return ids[rng.Intn(len(ids))], nil
}

// IDs returns the identifiers registered for a dataset.
func (r *Resolver) IDs(dataset string) []string {
	return append([]string{}, r.ids[dataset]...)
}
