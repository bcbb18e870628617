package ledger

import "time"

type Outcome string

const (
	OutcomeReceived  Outcome = "received"
	OutcomeDenied    Outcome = "denied"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// Entry is one link of the audit chain. Hash covers the entry's own
// fields plus the previous entry's hash, so editing or dropping any
// historical entry breaks every later link. Entries are append-only;
// no update or delete exists anywhere on this package's surface.
type Entry struct {
	ID        string         `json:"id"`
	Seq       uint64         `json:"seq"`
	Timestamp time.Time      `json:"timestamp"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource"`
	Outcome   Outcome        `json:"outcome"`
	Summary   map[string]any `json:"summary,omitempty"`
	PrevHash  string         `json:"prevHash"`
	Hash      string         `json:"hash"`
}

// Draft is what callers supply; sequence, timestamp, identity and
// hashes are assigned by the ledger under its append lock.
type Draft struct {
	Actor    string
	Action   string
	Resource string
	Outcome  Outcome
	Summary  map[string]any
}

// Filter narrows Query results. Zero values match everything; times
// are inclusive bounds.
type Filter struct {
	Actor    string
	Action   string
	Resource string
	From     time.Time
	To       time.Time
}

// Matches reports whether the entry passes every set filter field.
func (f Filter) Matches(e Entry) bool {
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Resource != "" && e.Resource != f.Resource {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	return true
}

// VerifyResult reports chain integrity. When Valid is false, BrokenSeq
// is the sequence number of the first entry whose hash no longer
// matches its recomputation.
type VerifyResult struct {
	Valid     bool   `json:"valid"`
	Entries   int    `json:"entries"`
	BrokenSeq uint64 `json:"brokenSeq,omitempty"`
}
