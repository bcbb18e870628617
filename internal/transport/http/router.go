// Package httptransport exposes the provisioning engine over HTTP.
// Handlers stay thin: decode, call the service, encode. Business rules
// live behind the Service interface.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ista/internal/ledger"
	"ista/internal/orchestrator"
	"ista/internal/platform/middleware"
	"ista/internal/storage"
)

// Service is the orchestration surface the handlers depend on.
type Service interface {
	Submit(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error)
	Run(requestID string) (orchestrator.Result, bool)
	Datasets() []string
	CollectionStats(ctx context.Context, collection string) (storage.Stats, error)
	QueryAudit(ctx context.Context, filter ledger.Filter) ([]ledger.Entry, error)
	VerifyChain(ctx context.Context) (ledger.VerifyResult, error)
	Health(ctx context.Context) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// NewRouter assembles the middleware stack and mounts every endpoint.
// Everything except health and metrics sits behind JWT auth.
func NewRouter(h *Handler, validator middleware.JWTValidator, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.Logger(h.logger))
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", h.HandleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(validator, h.logger))
		r.Use(middleware.ContentTypeJSON)

		r.Post("/provision", h.HandleProvision)
		r.Get("/provision/{requestID}", h.HandleRunStatus)
		r.Delete("/provision/{requestID}", h.HandleRunCleanup)
		r.Get("/datasets", h.HandleDatasets)
		r.Get("/collections/{collection}/stats", h.HandleCollectionStats)
		r.Get("/audit", h.HandleAuditQuery)
		r.Get("/audit/verify", h.HandleAuditVerify)
	})
	return r
}
