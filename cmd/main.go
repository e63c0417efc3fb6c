// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	bolt "go.etcd.io/bbolt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/Shivanand-hulikatti/event-rsvp/internal/config"
	"github.com/Shivanand-hulikatti/event-rsvp/internal/database"
	"github.com/Shivanand-hulikatti/event-rsvp/internal/handler"
	"github.com/Shivanand-hulikatti/event-rsvp/internal/repository"
	"github.com/Shivanand-hulikatti/event-rsvp/internal/repository/kvdb"
	"github.com/Shivanand-hulikatti/event-rsvp/internal/repository/memory"
	"github.com/Shivanand-hulikatti/event-rsvp/internal/repository/postgres"
	"github.com/Shivanand-hulikatti/event-rsvp/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Tracing ────────────────────────────────────────────────────────
	if cfg.OTLPAddr != "" {
		shutdown, err := setupTracing(ctx, cfg.OTLPAddr, cfg.ServiceName)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		defer shutdown()
		logger.Info("otlp/gRPC", "address", cfg.OTLPAddr, "service", cfg.ServiceName)
	}

	// ── 2. Open the store ─────────────────────────────────────────────────
	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer closeStore()
	logger.Info("store ready", "backend", cfg.Store.Backend)

	// ── 3. Wire up layers ─────────────────────────────────────────────────
	eventSvc := service.NewEventService(store)
	eventHandler := handler.NewEventHandler(eventSvc)

	// ── 4. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(handler.Logger(logger.WithGroup("http")))
	r.Use(handler.CORS)
	eventHandler.Routes(r)

	// ── 5. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// openStore returns the configured repository and a func releasing its resources.
func openStore(ctx context.Context, cfg config.Store) (repository.Store, func(), error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.New(), func() {}, nil

	case config.BackendKVDB:
		db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", cfg.Path, err)
		}
		store, err := kvdb.NewStore(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("initialize buckets: %w", err)
		}
		return store, func() { _ = store.Close() }, nil

	case config.BackendPostgres:
		pool, err := database.NewPool(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return postgres.New(pool), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// setupTracing exports spans to an OTLP/gRPC collector at addr.
func setupTracing(ctx context.Context, addr, serviceName string) (func(), error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("create gRPC connection to collector: %w", err)
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	)
	otel.SetTracerProvider(tp)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			slog.Error("trace provider shutdown", "error", err)
		}
		_ = conn.Close()
	}, nil
}
