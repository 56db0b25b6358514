package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/awehrman/peas/internal/auth"
	"github.com/awehrman/peas/internal/config"
	"github.com/awehrman/peas/internal/db"
	"github.com/awehrman/peas/internal/engine"
	peashttp "github.com/awehrman/peas/internal/http"
	"github.com/awehrman/peas/internal/ingest"
	"github.com/awehrman/peas/internal/observability"
	"github.com/awehrman/peas/internal/queue/memqueue"
	"github.com/awehrman/peas/internal/queue/redisclient"
	"github.com/awehrman/peas/internal/queue/redisqueue"
	"github.com/awehrman/peas/internal/repo/memory"
	"github.com/awehrman/peas/internal/repo/postgres"
	"github.com/awehrman/peas/internal/status"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(context.Background(), "peas-api", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("otel init failed: %v", err)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	logger := observability.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	collector := observability.NewMetricsCollector(cfg.MetricsRetention)
	observability.InitDefault(collector)

	hub := status.NewHub(logger)
	go hub.Run(ctx)

	deps := peashttp.RouterDeps{
		Log:          logger,
		Cfg:          cfg,
		Prom:         prom,
		PromRegistry: reg,
		Collector:    collector,
		Hub:          hub,
	}

	pool, dbErr := db.NewPool(cfg.DBURL)

	if dbErr != nil && cfg.Env == "dev" {
		// local mode: no postgres/redis needed. Imports run on the
		// in-process broker with in-memory stores, status events go
		// straight to the hub. One binary, full pipeline.
		logger.Warn("db unavailable; running in local mode", "err", dbErr)

		localMode(ctx, cfg, logger, prom, collector, hub, &deps)
	} else {
		if dbErr != nil {
			logger.ErrorContext(ctx, "db connect failed", "err", dbErr)
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

		if err := db.EnsureAdminUser(ctx, pool, cfg); err != nil {
			logger.ErrorContext(ctx, "admin seed failed", "err", err)
			os.Exit(1)
		}

		deps.Broker = redisqueue.New(redis, logger, redisqueue.Config{MaxAttempts: cfg.QueueMaxAttempts})
		deps.Imports = postgres.NewImportsRepo(pool, prom)
		deps.Notes = postgres.NewNotesRepo(pool, prom)
		deps.Events = postgres.NewStatusEventsRepo(pool, prom)
		deps.Users = postgres.NewUsersRepo(pool)

		// workers publish status on redis; feed the hub from there
		go status.SubscribeAndForward(ctx, redis, status.DefaultChannel, hub, logger)

		deps.ReadyCheck = func() error {
			pctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			if err := pool.Ping(pctx); err != nil {
				return err
			}
			return redis.Ping(pctx)
		}
	}

	deps.JWT = authManager(cfg)

	router := peashttp.NewRouter(deps)

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Port),
		Handler: router,
	}

	go func() {
		logger.Info("api.start", "port", cfg.Port, "env", cfg.Env)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server error", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("api: shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	logger.Info("api.shutdown_complete")
}

// localMode wires the single-binary dev setup: memory stores, the
// channel broker, and the full worker fleet inside this process.
func localMode(ctx context.Context, cfg config.Config, logger *slog.Logger, prom *observability.Prom, collector *observability.MetricsCollector, hub *status.Hub, deps *peashttp.RouterDeps) {
	notes := memory.NewNotesRepo()
	importsRepo := memory.NewImportsRepo()
	broker := memqueue.New(cfg.QueueMaxAttempts)

	engine.ResetBreakers()

	workerDeps := &engine.Deps{
		Logger:      logger,
		Broadcaster: hub,
		Metrics:     observability.NewWorkerMetrics(collector),
		Services: &ingest.Services{
			Notes:   notes,
			Imports: importsRepo,
		},
	}

	stats := observability.NewStatsRegistry()
	registry := engine.NewWorkerRegistry(logger)

	ingest.BuildWorkers(ingest.WorkerOptions{
		Broker:      broker,
		Deps:        workerDeps,
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
		},
	}, registry, stats)

	if err := registry.StartAll(ctx); err != nil {
		logger.Error("local workers failed to start", "err", err)
		os.Exit(1)
	}

	deps.Broker = broker
	deps.Imports = importsRepo
	deps.Notes = notes
	deps.Users = memory.NewUsersRepo(cfg.AdminEmail, cfg.AdminPassword, cfg.AdminName, cfg.AdminRole)
	deps.Stats = stats
}

func authManager(cfg config.Config) *auth.Manager {
	return auth.NewManager(cfg.JWTSecret, cfg.AccessTTL)
}
