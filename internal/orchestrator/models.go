package orchestrator

import (
	"time"

	"ista/internal/masking"
	dErrors "ista/pkg/domain-errors"
)

type Action string

const (
	ActionProvision Action = "provision"
	ActionCleanup   Action = "cleanup"
)

// State tracks a request through the pipeline. Completed and Failed
// are terminal.
type State string

const (
	StateReceived    State = "received"
	StateAuthorizing State = "authorizing"
	StateOrdering    State = "ordering"
	StateGenerating  State = "generating"
	StateMasking     State = "masking"
	StatePersisting  State = "persisting"
	StateAuditing    State = "auditing"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// DatasetRef names one dataset of a request. An empty version resolves
// to the catalog's latest.
type DatasetRef struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// Request is one governed operation. Actor and roles come from the
// authenticated caller, never from user-supplied payload fields.
type Request struct {
	ID       string
	Action   Action
	Datasets []DatasetRef
	Actor    string
	Roles    []string
	// Seed overrides the configured default run seed.
	Seed *int64
	// Volumes overrides per-dataset record volumes by dataset name.
	Volumes map[string]int
	// RunID limits a cleanup to the records one earlier provisioning
	// run inserted. Empty means every record in the collections.
	RunID string
}

// Result is what every request produces, success or not. Completed
// lists the collections that were fully persisted, so callers of a
// failed run know exactly what is in storage.
type Result struct {
	RequestID    string                                  `json:"requestId"`
	Action       Action                                  `json:"action"`
	State        State                                   `json:"state"`
	Datasets     []DatasetRef                            `json:"datasets,omitempty"`
	RecordCounts map[string]int                          `json:"recordCounts,omitempty"`
	Completed    []string                                `json:"completedCollections,omitempty"`
	Aggregates   map[string]map[string]masking.Aggregate `json:"aggregates,omitempty"`
	AuditEntryID string                                  `json:"auditEntryId,omitempty"`
	ErrorCode    dErrors.Code                            `json:"errorCode,omitempty"`
	ErrorMessage string                                  `json:"errorMessage,omitempty"`
	Reasons      []string                                `json:"reasons,omitempty"`
	StartedAt    time.Time                               `json:"startedAt"`
	FinishedAt   time.Time                               `json:"finishedAt"`
}

// Err rebuilds the coded error a failed result carries, or nil.
func (r Result) Err() error {
	if r.State != StateFailed || r.ErrorCode == "" {
		return nil
	}
	return dErrors.New(r.ErrorCode, r.ErrorMessage)
}
