// Command server runs the test-data provisioning service: it loads the
// dataset catalog and policy ruleset, wires the configured storage and
// ledger backends, and serves the governed HTTP API.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"ista/internal/catalog"
	"ista/internal/ledger"
	"ista/internal/orchestrator"
	"ista/internal/platform/config"
	"ista/internal/platform/httpserver"
	"ista/internal/platform/logger"
	"ista/internal/platform/metrics"
	"ista/internal/platform/middleware"
	"ista/internal/policy"
	"ista/internal/storage"
	httptransport "ista/internal/transport/http"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file (optional)")
	flag.Parse()

	log := logger.New(slog.LevelInfo)
	if err := run(*configPath, log); err != nil {
		log.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string, log *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	cat, err := catalog.LoadDir(cfg.SpecDir)
	if err != nil {
		return fmt.Errorf("load dataset specs: %w", err)
	}
	pol, err := policy.LoadFile(cfg.PolicyFile)
	if err != nil {
		return fmt.Errorf("load policy ruleset: %w", err)
	}

	store, closeStore, err := buildStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open document store: %w", err)
	}
	defer closeStore()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	led, closeLedger, err := buildLedger(ctx, cfg.Ledger, log)
	if err != nil {
		return fmt.Errorf("open audit ledger: %w", err)
	}
	defer closeLedger()

	m := metrics.New()
	orch := orchestrator.New(cat, pol, led, store,
		orchestrator.WithLogger(log),
		orchestrator.WithMetrics(m),
		orchestrator.WithStorageTimeout(cfg.Storage.Timeout.Std()),
		orchestrator.WithDefaultSeed(cfg.DefaultSeed),
	)
	pool := orchestrator.NewPool(orch, cfg.Workers)
	facade := orchestrator.NewFacade(orch, pool)

	handler := httptransport.NewHandler(facade, log)
	router := httptransport.NewRouter(handler,
		middleware.NewHMACValidator(cfg.JWTSigningKey), 30*time.Second)
	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := pool.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		log.Info("listening", slog.String("addr", cfg.Addr),
			slog.String("storage", cfg.Storage.Backend),
			slog.String("ledger", cfg.Ledger.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func buildStore(cfg config.StorageConfig) (storage.DocumentStore, func(), error) {
	switch cfg.Backend {
	case "", "memory":
		return storage.NewMemoryStore(), func() {}, nil
	case "redis":
		store, err := storage.NewRedis(cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case "badger":
		store, err := storage.OpenBadger(cfg.BadgerPath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func buildLedger(ctx context.Context, cfg config.LedgerConfig, log *slog.Logger) (*ledger.Ledger, func(), error) {
	var (
		store   ledger.Store
		cleanup = func() {}
	)
	switch cfg.Backend {
	case "", "memory":
		store = ledger.NewMemoryStore()
	case "postgres":
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		pgStore := ledger.NewPostgres(db)
		if err := pgStore.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		store = pgStore
		cleanup = func() { _ = db.Close() }
	default:
		return nil, nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}

	opts := []ledger.Option{ledger.WithLogger(log)}
	if len(cfg.KafkaBrokers) > 0 {
		sink, err := ledger.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		prev := cleanup
		cleanup = func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = sink.Close(closeCtx)
			prev()
		}
		opts = append(opts, ledger.WithSink(sink))
	}

	led, err := ledger.New(ctx, store, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return led, cleanup, nil
}
