// Package ledger maintains the append-only, hash-chained audit trail
// for every governed operation. Append is the single mutation the
// package exposes and it is serialized by one lock, so the chain has
// exactly one total order across all concurrent requests.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	dErrors "ista/pkg/domain-errors"
)

// Store persists entries. Implementations must return entries from
// List ordered by ascending sequence number.
type Store interface {
	Insert(ctx context.Context, entry Entry) error
	Last(ctx context.Context) (*Entry, error)
	List(ctx context.Context, filter Filter) ([]Entry, error)
}

// Sink receives a best-effort copy of each appended entry, typically a
// message broker feeding downstream compliance tooling. Sink failures
// never fail the append; the store is the source of truth.
type Sink interface {
	Publish(ctx context.Context, entry Entry)
}

type Ledger struct {
	store  Store
	sink   Sink
	logger *slog.Logger
	now    func() time.Time

	// mu guards the chain tail. Two concurrent appends must never read
	// the same previous hash, or the chain silently forks.
	mu       sync.Mutex
	lastHash string
	nextSeq  uint64
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func WithSink(sink Sink) Option {
	return func(l *Ledger) { l.sink = sink }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New loads the chain tail from the store so appends resume the
// existing chain after a restart.
func New(ctx context.Context, store Store, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store:  store,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	last, err := store.Last(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeAuditWriteFailure, "load chain tail")
	}
	if last != nil {
		l.lastHash = last.Hash
		l.nextSeq = last.Seq + 1
	}
	return l, nil
}

// Append assigns sequence, timestamp and hashes to the draft, persists
// it and returns the stored entry. A persistence failure surfaces as
// AuditWriteFailure and leaves the chain tail unchanged.
func (l *Ledger) Append(ctx context.Context, draft Draft) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		ID:        uuid.NewString(),
		Seq:       l.nextSeq,
		// Microsecond precision survives the postgres round trip, so
		// Verify recomputes the same hash the append produced.
		Timestamp: l.now().UTC().Truncate(time.Microsecond),
		Actor:     draft.Actor,
		Action:    draft.Action,
		Resource:  draft.Resource,
		Outcome:   draft.Outcome,
		Summary:   draft.Summary,
		PrevHash:  l.lastHash,
	}
	entry.Hash = chainHash(entry)

	if err := l.store.Insert(ctx, entry); err != nil {
		return Entry{}, dErrors.Wrap(err, dErrors.CodeAuditWriteFailure, "append audit entry")
	}
	l.lastHash = entry.Hash
	l.nextSeq++

	if l.sink != nil {
		l.sink.Publish(ctx, entry)
	}
	l.logger.DebugContext(ctx, "audit entry appended",
		slog.Uint64("seq", entry.Seq),
		slog.String("action", entry.Action),
		slog.String("outcome", string(entry.Outcome)))
	return entry, nil
}

// Query returns entries matching the filter in chain order. Read-only.
func (l *Ledger) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	entries, err := l.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "query audit entries")
	}
	return entries, nil
}

// Verify walks the whole chain and recomputes every hash. Any
// retroactive edit, insertion or deletion shows up as the first entry
// whose stored hash or previous-hash link disagrees.
func (l *Ledger) Verify(ctx context.Context) (VerifyResult, error) {
	entries, err := l.store.List(ctx, Filter{})
	if err != nil {
		return VerifyResult{}, dErrors.Wrap(err, dErrors.CodeStorageFailure, "load audit chain")
	}

	prevHash := ""
	for i, e := range entries {
		if e.Seq != uint64(i) || e.PrevHash != prevHash || chainHash(e) != e.Hash {
			return VerifyResult{Valid: false, Entries: len(entries), BrokenSeq: e.Seq}, nil
		}
		prevHash = e.Hash
	}
	return VerifyResult{Valid: true, Entries: len(entries)}, nil
}

// chainHash digests the entry's canonical JSON form, Hash field
// excluded, PrevHash included. Map keys marshal in sorted order, so
// the encoding is stable for equal entries.
func chainHash(e Entry) string {
	e.Hash = ""
	raw, err := json.Marshal(e)
	if err != nil {
		// Entry fields are all JSON-encodable types; summaries come
		// from our own record counting.
		panic("ledger: entry not encodable: " + err.Error())
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
