// Package orchestrator coordinates the full provisioning pipeline:
// authorize, resolve specs, order by dependency, generate, mask,
// persist, audit. Each request runs end-to-end on one worker so
// parents always complete before the children that reference them.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ista/internal/catalog"
	"ista/internal/generator"
	"ista/internal/ledger"
	"ista/internal/masking"
	"ista/internal/platform/metrics"
	"ista/internal/policy"
	"ista/internal/storage"
	dErrors "ista/pkg/domain-errors"
)

const tracerName = "ista/orchestrator"

type Orchestrator struct {
	catalog   *catalog.Catalog
	policy    *policy.Engine
	ledger    *ledger.Ledger
	store     storage.DocumentStore
	generator *generator.Generator
	masking   *masking.Pipeline
	registry  *Registry

	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	storageTimeout time.Duration
	defaultSeed    int64
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithStorageTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.storageTimeout = d }
}

func WithDefaultSeed(seed int64) Option {
	return func(o *Orchestrator) { o.defaultSeed = seed }
}

func New(cat *catalog.Catalog, pol *policy.Engine, led *ledger.Ledger, store storage.DocumentStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		catalog:        cat,
		policy:         pol,
		ledger:         led,
		store:          store,
		generator:      generator.New(),
		masking:        masking.New(),
		registry:       NewRegistry(),
		logger:         slog.New(slog.DiscardHandler),
		tracer:         otel.Tracer(tracerName),
		storageTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Registry exposes recorded run results for status lookups.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Process drives one request through the pipeline and records the
// result in the registry. It never returns an error: every path,
// including failures, produces a Result the caller can branch on.
func (o *Orchestrator) Process(ctx context.Context, req Request) Result {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	started := time.Now()

	ctx, span := o.tracer.Start(ctx, "orchestrator.process",
		trace.WithAttributes(
			attribute.String("request.id", req.ID),
			attribute.String("request.action", string(req.Action)),
		))
	defer span.End()

	result := o.run(ctx, req)
	result.Datasets = req.Datasets
	result.StartedAt = started
	result.FinishedAt = time.Now()

	if o.metrics != nil {
		o.metrics.ObserveRequest(string(req.Action), string(result.State), result.FinishedAt.Sub(started).Seconds())
	}
	o.registry.Put(result)
	o.logger.InfoContext(ctx, "request finished",
		slog.String("request_id", req.ID),
		slog.String("action", string(req.Action)),
		slog.String("state", string(result.State)),
		slog.String("error_code", string(result.ErrorCode)))
	return result
}

func (o *Orchestrator) run(ctx context.Context, req Request) Result {
	resource := resourceDescriptor(req)

	received, err := o.appendAudit(ctx, req, resource, ledger.OutcomeReceived, nil)
	if err != nil {
		return o.failed(req, "", nil, err)
	}

	if req.Action != ActionProvision && req.Action != ActionCleanup {
		outcome := dErrors.Newf(dErrors.CodeBadRequest, "unknown action %q", req.Action)
		return o.conclude(ctx, req, resource, received.ID, nil, nil, outcome, nil)
	}

	// Authorizing.
	decision := o.policy.Evaluate(policy.Request{
		Actor:    req.Actor,
		Roles:    req.Roles,
		Action:   string(req.Action),
		Datasets: datasetNames(req.Datasets),
	})
	if !decision.Allowed {
		if o.metrics != nil {
			o.metrics.IncrementPolicyDenials()
		}
		denied := dErrors.Newf(dErrors.CodePolicyDenied,
			"actor %s may not %s %s", req.Actor, req.Action, resource)
		return o.conclude(ctx, req, resource, received.ID, nil, nil, denied, decision.Reasons)
	}

	// Resolve specs before any mutation so static failures have no
	// partial effects.
	specs := make([]*catalog.DatasetSpec, 0, len(req.Datasets))
	for _, ref := range req.Datasets {
		spec, err := o.catalog.Load(ref.Name, ref.Version)
		if err != nil {
			return o.conclude(ctx, req, resource, received.ID, nil, nil, err, nil)
		}
		specs = append(specs, applyVolumeOverride(spec, req.Volumes))
	}

	// Ordering.
	ordered, err := orderSpecs(specs)
	if err != nil {
		return o.conclude(ctx, req, resource, received.ID, nil, nil, err, nil)
	}

	var (
		counts     map[string]int
		aggregates map[string]map[string]masking.Aggregate
		runErr     error
	)
	switch req.Action {
	case ActionProvision:
		counts, aggregates, runErr = o.provision(ctx, req, ordered)
	case ActionCleanup:
		counts, runErr = o.cleanup(ctx, req, ordered)
	}
	return o.conclude(ctx, req, resource, received.ID, counts, aggregates, runErr, nil)
}

// provision generates, masks and persists each dataset in dependency
// order. On failure the returned counts cover exactly the collections
// that were fully persisted; earlier collections are not rolled back.
func (o *Orchestrator) provision(ctx context.Context, req Request, ordered []*catalog.DatasetSpec) (map[string]int, map[string]map[string]masking.Aggregate, error) {
	seed := o.defaultSeed
	if req.Seed != nil {
		seed = *req.Seed
	}
	resolver := generator.NewResolver()
	counts := map[string]int{}
	aggregates := map[string]map[string]masking.Aggregate{}

	for _, spec := range ordered {
		// Cancellation is advisory: it is honored between collections,
		// never in the middle of one, so storage is never left with a
		// half-written collection that the audit trail cannot explain.
		if err := ctx.Err(); err != nil {
			return counts, aggregates, dErrors.Wrap(err, dErrors.CodeStorageFailure,
				"request cancelled before collection "+spec.Collection)
		}

		spanCtx, span := o.tracer.Start(ctx, "orchestrator.collection",
			trace.WithAttributes(attribute.String("dataset", spec.Name)))
		records, maskResult, err := o.provisionDataset(spanCtx, req, spec, seed, resolver)
		span.End()
		if err != nil {
			return counts, aggregates, err
		}

		counts[spec.Collection] = len(records)
		if len(maskResult.Aggregates) > 0 {
			aggregates[spec.Name] = maskResult.Aggregates
		}
	}
	return counts, aggregates, nil
}

func (o *Orchestrator) provisionDataset(ctx context.Context, req Request, spec *catalog.DatasetSpec, seed int64, resolver *generator.Resolver) ([]generator.Record, *masking.Result, error) {
	// Generating.
	records, err := o.generator.Generate(spec, seed, resolver)
	if err != nil {
		return nil, nil, err
	}
	if o.metrics != nil {
		o.metrics.AddRecordsGenerated(spec.Name, len(records))
	}

	// Register identifiers before masking so children reference the
	// raw identifiers the parent actually persisted under.
	idField := spec.IdentifierField()
	ids := make([]string, 0, len(records))
	for _, r := range records {
		if id, ok := r[idField].(string); ok {
			ids = append(ids, id)
		}
	}
	resolver.Register(spec.Name, ids)

	// Masking.
	maskResult, err := o.masking.Apply(records, spec.Masking)
	if err != nil {
		return nil, nil, err
	}
	if o.metrics != nil {
		for strategy, n := range maskResult.Masked {
			o.metrics.AddFieldsMasked(string(strategy), n)
		}
	}

	// Persisting, bounded by the storage timeout.
	docs := make([]storage.Document, len(records))
	for i, r := range records {
		doc := storage.Document(r)
		doc[storage.RunIDField] = req.ID
		docs[i] = doc
	}
	persistCtx, cancel := context.WithTimeout(ctx, o.storageTimeout)
	defer cancel()
	if _, err := o.store.Insert(persistCtx, spec.Collection, docs); err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeStorageFailure,
			"persist collection "+spec.Collection)
	}
	return records, maskResult, nil
}

// cleanup deletes the records earlier runs wrote to the requested
// datasets' collections, optionally narrowed to one run.
func (o *Orchestrator) cleanup(ctx context.Context, req Request, ordered []*catalog.DatasetSpec) (map[string]int, error) {
	filter := storage.Filter{}
	if req.RunID != "" {
		filter[storage.RunIDField] = req.RunID
	}

	counts := map[string]int{}
	for _, spec := range ordered {
		if err := ctx.Err(); err != nil {
			return counts, dErrors.Wrap(err, dErrors.CodeStorageFailure,
				"request cancelled before collection "+spec.Collection)
		}
		deleteCtx, cancel := context.WithTimeout(ctx, o.storageTimeout)
		deleted, err := o.store.Delete(deleteCtx, spec.Collection, filter)
		cancel()
		if err != nil {
			return counts, dErrors.Wrap(err, dErrors.CodeStorageFailure,
				"clean collection "+spec.Collection)
		}
		counts[spec.Collection] = deleted
	}
	return counts, nil
}

// conclude appends the single outcome entry and assembles the result.
// Exactly one outcome entry follows the received entry on every path.
func (o *Orchestrator) conclude(ctx context.Context, req Request, resource, receivedID string, counts map[string]int, aggregates map[string]map[string]masking.Aggregate, runErr error, reasons []string) Result {
	summary := map[string]any{}
	for collection, n := range counts {
		summary[collection] = n
	}
	if len(reasons) > 0 {
		summary["reasons"] = strings.Join(reasons, "; ")
	}

	outcome := ledger.OutcomeCompleted
	switch {
	case runErr == nil:
	case dErrors.HasCode(runErr, dErrors.CodePolicyDenied):
		outcome = ledger.OutcomeDenied
	default:
		outcome = ledger.OutcomeFailed
		summary["error"] = runErr.Error()
	}

	entry, auditErr := o.appendAudit(ctx, req, resource, outcome, summary)
	if auditErr != nil {
		// An unaudited state change violates the core invariant, so a
		// failed outcome append fails the request even when the data
		// work succeeded.
		result := o.failed(req, receivedID, counts, auditErr)
		result.Aggregates = aggregates
		return result
	}

	result := Result{
		RequestID:    req.ID,
		Action:       req.Action,
		RecordCounts: counts,
		Completed:    completedCollections(counts),
		Aggregates:   aggregates,
		AuditEntryID: entry.ID,
		Reasons:      reasons,
		State:        StateCompleted,
	}
	if runErr != nil {
		result.State = StateFailed
		result.ErrorCode = dErrors.CodeOf(runErr)
		result.ErrorMessage = runErr.Error()
	}
	return result
}

func (o *Orchestrator) failed(req Request, auditEntryID string, counts map[string]int, err error) Result {
	if o.metrics != nil {
		o.metrics.IncrementLedgerAppendFailures()
	}
	return Result{
		RequestID:    req.ID,
		Action:       req.Action,
		State:        StateFailed,
		RecordCounts: counts,
		Completed:    completedCollections(counts),
		AuditEntryID: auditEntryID,
		ErrorCode:    dErrors.CodeOf(err),
		ErrorMessage: err.Error(),
	}
}

func (o *Orchestrator) appendAudit(ctx context.Context, req Request, resource string, outcome ledger.Outcome, summary map[string]any) (ledger.Entry, error) {
	return o.ledger.Append(ctx, ledger.Draft{
		Actor:    req.Actor,
		Action:   string(req.Action),
		Resource: resource,
		Outcome:  outcome,
		Summary:  summary,
	})
}

// VerifyChain re-validates the whole audit chain.
func (o *Orchestrator) VerifyChain(ctx context.Context) (ledger.VerifyResult, error) {
	result, err := o.ledger.Verify(ctx)
	if err == nil && o.metrics != nil {
		o.metrics.IncrementChainVerifications(result.Valid)
	}
	return result, err
}

// QueryAudit exposes the ledger's filtered read.
func (o *Orchestrator) QueryAudit(ctx context.Context, filter ledger.Filter) ([]ledger.Entry, error) {
	return o.ledger.Query(ctx, filter)
}

// CollectionStats reports document-store stats for one collection.
func (o *Orchestrator) CollectionStats(ctx context.Context, collection string) (storage.Stats, error) {
	statsCtx, cancel := context.WithTimeout(ctx, o.storageTimeout)
	defer cancel()
	stats, err := o.store.Stats(statsCtx, collection)
	if err != nil {
		return storage.Stats{}, dErrors.Wrap(err, dErrors.CodeStorageFailure, "stats for "+collection)
	}
	return stats, nil
}

// Health pings the document store. A stats call against an empty
// collection is the cheapest round trip every backend supports.
func (o *Orchestrator) Health(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, o.storageTimeout)
	defer cancel()
	if _, err := o.store.Stats(healthCtx, "healthz"); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorageFailure, "document store unreachable")
	}
	return nil
}

// Datasets lists the catalog's dataset names, latest version each.
func (o *Orchestrator) Datasets() []string {
	specs := o.catalog.List()
	names := make([]string, len(specs))
	for i, spec := range specs {
		names[i] = spec.Name + "@" + spec.Version
	}
	return names
}

func applyVolumeOverride(spec *catalog.DatasetSpec, volumes map[string]int) *catalog.DatasetSpec {
	override, ok := volumes[spec.Name]
	if !ok || override < 0 {
		return spec
	}
	clone := *spec
	clone.Volume = override
	return &clone
}

func datasetNames(refs []DatasetRef) []string {
	names := make([]string, len(refs))
	for i, ref := range refs {
		names[i] = ref.Name
	}
	return names
}

func resourceDescriptor(req Request) string {
	names := datasetNames(req.Datasets)
	sort.Strings(names)
	if len(names) == 0 {
		return string(req.Action)
	}
	return fmt.Sprintf("datasets:%s", strings.Join(names, ","))
}

func completedCollections(counts map[string]int) []string {
	if len(counts) == 0 {
		return nil
	}
	out := make([]string, 0, len(counts))
	for collection := range counts {
		out = append(out, collection)
	}
	sort.Strings(out)
	return out
}
