package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/provgraph/provgraph/internal/adapter/falkordb"
	pghttp "github.com/provgraph/provgraph/internal/adapter/http"
	"github.com/provgraph/provgraph/internal/adapter/memory"
	"github.com/provgraph/provgraph/internal/adapter/mcp"
	pgnats "github.com/provgraph/provgraph/internal/adapter/nats"
	"github.com/provgraph/provgraph/internal/adapter/otel"
	"github.com/provgraph/provgraph/internal/adapter/postgres"
	"github.com/provgraph/provgraph/internal/adapter/ristretto"
	"github.com/provgraph/provgraph/internal/adapter/ws"
	"github.com/provgraph/provgraph/internal/config"
	"github.com/provgraph/provgraph/internal/logger"
	"github.com/provgraph/provgraph/internal/middleware"
	"github.com/provgraph/provgraph/internal/port/graphstore"
	"github.com/provgraph/provgraph/internal/port/messagequeue"
	"github.com/provgraph/provgraph/internal/service"
)

const version = "0.1.0"

func main() {
	args := os.Args[1:]
	var err error
	switch {
	case len(args) > 0 && args[0] == "admin":
		err = runAdmin(args[1:])
	case len(args) > 0 && args[0] == "mcp":
		err = runMCP()
	case len(args) == 0 || args[0] == "serve":
		err = runServe()
	default:
		fmt.Fprintf(os.Stderr, "Usage: provgraph [serve|mcp|admin] ...\n")
		os.Exit(2)
	}
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"backend", cfg.Store.Backend,
		"nats_enabled", cfg.NATS.Enabled,
		"log_level", cfg.Logging.Level,
	)

	ctx := context.Background()

	// --- Telemetry ---
	otelShutdown, err := otel.Init(ctx, cfg.Telemetry.Endpoint, cfg.Logging.Service, version, cfg.Telemetry.Insecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Graph store ---
	store, _, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer func() { _ = store.Close() }()
	slog.Info("graph store ready", "backend", cfg.Store.Backend)

	// --- Dedup cache ---
	dedup, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer dedup.Close()

	// --- Ingest pipeline ---
	hub := ws.NewHub()
	ingestor := service.NewIngestor(store, dedup, hub, metrics, log, service.Config{
		Parallelism: cfg.Writer.Parallelism,
		MaxAttempts: cfg.Writer.MaxAttempts,
		BaseBackoff: cfg.Writer.BaseBackoff,
		DedupTTL:    cfg.Writer.DedupTTL,
	})

	// --- NATS ---
	if cfg.NATS.Enabled {
		queue, err := pgnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = queue.Drain() }()

		stop, err := queue.Subscribe(ctx, messagequeue.SubjectEventsWildcard, ingestor.HandleMessage)
		if err != nil {
			return fmt.Errorf("nats subscribe: %w", err)
		}
		defer stop()
	}

	// --- HTTP ---
	handlers := pghttp.NewHandlers(ingestor, store, hub, pghttp.Options{
		BodyLimit: cfg.Ingest.BodyLimitBytes,
		BatchMax:  cfg.Ingest.BatchMax,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(pghttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(otel.HTTPMiddleware(cfg.Logging.Service))

	pghttp.MountRoutes(r, handlers, cfg.Ingest.APIKeyHash)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// runMCP serves the MCP protocol over stdio. Logs go to stderr so they do
// not corrupt the protocol stream on stdout.
func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("service", cfg.Logging.Service)
	slog.SetDefault(log)

	ctx := context.Background()
	store, querier, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer func() { _ = store.Close() }()

	srv := mcp.New(store, querier, version, log)
	return srv.ServeStdio()
}

// openStore builds the configured graph store. The second return value is
// non-nil when the backend supports ad-hoc queries.
func openStore(ctx context.Context, cfg *config.Config) (graphstore.Store, graphstore.Querier, error) {
	switch cfg.Store.Backend {
	case "falkordb":
		store, err := falkordb.New(ctx, cfg.FalkorDB.URL, cfg.FalkorDB.Graph)
		if err != nil {
			return nil, nil, fmt.Errorf("falkordb: %w", err)
		}
		return store, store, nil
	case "postgres":
		pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
			MaxConnIdleTime: cfg.Postgres.MaxConnIdleTime,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		return postgres.NewStore(pool), nil, nil
	case "memory":
		return memory.New(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
