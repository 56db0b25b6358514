package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/awehrman/peas/internal/config"
	"github.com/awehrman/peas/internal/db"
	"github.com/awehrman/peas/internal/domain/imports"
	"github.com/awehrman/peas/internal/engine"
	"github.com/awehrman/peas/internal/ingest"
	"github.com/awehrman/peas/internal/observability"
	"github.com/awehrman/peas/internal/queue/redisclient"
	"github.com/awehrman/peas/internal/queue/redisqueue"
	"github.com/awehrman/peas/internal/repo/postgres"
	"github.com/awehrman/peas/internal/status"
	"github.com/awehrman/peas/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
)

// importFailSink flips the import row when a terminal FAILED event goes
// out, so the row and the event stream never disagree.
type importFailSink struct {
	repo *postgres.ImportsRepo
}

func (s *importFailSink) MarkFailed(ctx context.Context, importID, message string) error {
	return s.repo.SetStatus(ctx, importID, imports.StatusFailed, message)
}

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1) tracing first, so all spans/logs can attach
	shutdownTracer, err := observability.InitTracer(context.Background(), "peas-worker", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("otel init failed: %v", err)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	// 2) slog with the trace handler
	logger := observability.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	pool, err := db.NewPool(cfg.DBURL)
	if err != nil {
		logger.ErrorContext(ctx, "db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	redis := redisclient.New(redisclient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redis.Close()

	if err := redis.Ping(ctx); err != nil {
		logger.ErrorContext(ctx, "redis connect failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	collector := observability.NewMetricsCollector(cfg.MetricsRetention)
	observability.InitDefault(collector)

	engine.ResetBreakers()

	broker := redisqueue.New(redis, logger, redisqueue.Config{MaxAttempts: cfg.QueueMaxAttempts})

	notesRepo := postgres.NewNotesRepo(pool, prom)
	importsRepo := postgres.NewImportsRepo(pool, prom)
	statusEventsRepo := postgres.NewStatusEventsRepo(pool, prom)

	// status path: redis pub/sub to the api's websocket hub, persisted
	// for replay, breaker-protected so a sick sink cannot stall jobs
	var broadcaster status.Broadcaster = status.NewProtectedBroadcaster(
		status.NewRedisBroadcaster(redis, status.DefaultChannel),
		status.ProtectedBroadcasterConfig{},
	)
	broadcaster = status.NewRecorder(broadcaster, statusEventsRepo, &importFailSink{repo: importsRepo}, logger)

	deps := &engine.Deps{
		Logger:      logger,
		Broadcaster: broadcaster,
		Metrics:     observability.NewWorkerMetrics(collector),
		Services: &ingest.Services{
			Notes:   notesRepo,
			Imports: importsRepo,
		},
	}

	stats := observability.NewStatsRegistry()
	registry := engine.NewWorkerRegistry(logger)

	ingest.BuildWorkers(ingest.WorkerOptions{
		Broker:      broker,
		Deps:        deps,
		Prom:        prom,
		Concurrency: cfg.QueueConcurrency,
		Drain: engine.WorkerConfig{
			DrainTimeout: cfg.DrainTimeout,
			Retry: engine.RetryConfig{
				MaxAttempts:       cfg.RetryMaxAttempts,
				BaseDelay:         cfg.RetryBaseDelay,
				MaxDelay:          cfg.RetryMaxDelay,
				BackoffMultiplier: cfg.RetryBackoffMultiplier,
				Jitter:            cfg.RetryJitter,
			},
			Breaker: engine.BreakerConfig{
				FailureThreshold: cfg.BreakerFailureThreshold,
				ResetTimeout:     cfg.BreakerResetTimeout,
			},
		},
	}, registry, stats)

	if err := registry.StartAll(ctx); err != nil {
		logger.ErrorContext(ctx, "worker startup failed", "err", err)
		os.Exit(1)
	}

	// health server on the side port

	var shuttingDown atomic.Bool

	srv := &http.Server{
		Addr: cfg.WorkerHealthAddr,
		Handler: worker.HealthHandler(reg, registry, redis, func() bool {
			return shuttingDown.Load()
		}),
	}

	go func() {
		logger.Info("worker health server starting", "addr", cfg.WorkerHealthAddr, "pid", os.Getpid())

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker health server error", "err", err)
		}
	}()

	logger.InfoContext(ctx, "worker.start",
		"queues", len(ingest.QueueNames()),
		"concurrency", cfg.QueueConcurrency,
	)

	<-ctx.Done()
	logger.Info("worker: shutdown signal received; draining")

	shuttingDown.Store(true)

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.DrainTimeout+5*time.Second)
	defer cancel()

	if err := registry.StopAll(drainCtx); err != nil {
		logger.Error("worker drain incomplete", "err", err)
	}

	shutdownCtx, cancelSrv := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelSrv()
	_ = srv.Shutdown(shutdownCtx)

	logger.Info("worker.shutdown_complete")
}
