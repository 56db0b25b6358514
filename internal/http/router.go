package http

import (
	"log/slog"
	"os"
	"time"

	"github.com/awehrman/peas/internal/auth"
	"github.com/awehrman/peas/internal/cache"
	"github.com/awehrman/peas/internal/config"
	"github.com/awehrman/peas/internal/http/handlers"
	"github.com/awehrman/peas/internal/http/middlewares"
	"github.com/awehrman/peas/internal/observability"
	"github.com/awehrman/peas/internal/queue"
	"github.com/awehrman/peas/internal/status"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RouterDeps is everything the api surface needs wired in.
type RouterDeps struct {
	Log *slog.Logger
	Cfg config.Config

	Prom         *observability.Prom
	PromRegistry *prometheus.Registry
	Collector    *observability.MetricsCollector
	Stats        *observability.StatsRegistry

	Broker queue.Broker
	Hub    *status.Hub

	Imports handlers.ImportsStore
	Notes   handlers.NotesReader
	Events  handlers.StatusEventsReader
	Users   handlers.UserReader
	JWT     *auth.Manager

	ReadyCheck func() error
}

func NewRouter(d RouterDeps) *gin.Engine {
	if os.Getenv("APP_ENV") != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	r.Use(otelgin.Middleware("peas-api"))
	r.Use(middlewares.CORSMiddleware([]string{
		"http://localhost:3000",
	}))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.MaxBodyBytes(4 << 20)) // note HTML can be chunky; 4MB cap
	r.Use(middlewares.RequireJSON())

	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}

	// health + prometheus

	h := handlers.NewHealthHandler(d.ReadyCheck)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if d.PromRegistry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.PromRegistry, promhttp.HandlerOpts{})))
	}

	// auth

	authHandler := handlers.NewAuthHandler(d.Users, d.JWT, d.Cfg)
	authMw := middlewares.NewAuthMiddleware(d.JWT)

	loginLimiter := middlewares.NewRateLimiter(10, time.Minute)

	r.POST("/api/v1/auth/login", loginLimiter.RateLimiterMiddleware(middlewares.KeyByIP), authHandler.Login)

	// import pipeline

	importsHandler := handlers.NewImportsHandler(d.Imports, d.Notes, d.Events, d.Broker, d.Log)
	metricsHandler := handlers.NewMetricsHandler(d.Collector, d.Stats, d.Broker, cache.New(5*time.Second))

	api := r.Group("/api/v1")
	api.Use(authMw.RequireAuth())
	{
		api.POST("/imports", importsHandler.Create)
		api.GET("/imports/:id", importsHandler.Get)
		api.GET("/imports/:id/events", importsHandler.Events)

		admin := api.Group("")
		admin.Use(authMw.RequireRole(d.Cfg.AdminRole))
		{
			admin.GET("/metrics/summary", metricsHandler.Summary)
			admin.GET("/metrics/name/:name", metricsHandler.MetricSummary)
		}
	}

	// live status stream; the importer UI connects before submitting so
	// it never misses the first events
	if d.Hub != nil {
		ws := handlers.NewStatusStreamHandler(d.Hub)
		r.GET("/ws/status", ws.Stream)
	}

	return r
}
