package orchestrator

import (
	"sort"
	"sync"
)

// Registry retains finished run results in memory so callers can look
// a run up by request ID after the fact. Results are immutable once
// recorded.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]Result
}

func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]Result)}
}

func (r *Registry) Put(result Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[result.RequestID] = result
}

func (r *Registry) Get(requestID string) (Result, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result, ok := r.runs[requestID]
	return result, ok
}

// List returns all recorded results, most recent first.
func (r *Registry) List() []Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Result, 0, len(r.runs))
	for _, result := range r.runs {
		out = append(out, result)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}
