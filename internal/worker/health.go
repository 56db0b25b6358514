package worker

import (
	"context"
	"net/http"
	"time"

	"github.com/awehrman/peas/internal/engine"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler is the worker binary's side port: liveness, readiness
// against the broker, prometheus, and a peek at the registered workers.
func HealthHandler(reg *prometheus.Registry, registry *engine.WorkerRegistry, broker Pinger, isShuttingDown func() bool) http.Handler {
	r := gin.New()

	r.Use(gin.Recovery())

	// liveness: process is up

	r.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"ok": true})
	})

	// readiness: able to reach the broker and not draining

	r.GET("/readyz", func(c *gin.Context) {
		if isShuttingDown != nil && isShuttingDown() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "reason": "shutting down"})
			return
		}

		if broker != nil {
			pctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			defer cancel()

			if err := broker.Ping(pctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "reason": err.Error()})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	// worker states for quick inspection

	r.GET("/workers", func(c *gin.Context) {
		type row struct {
			Name  string `json:"name"`
			Queue string `json:"queue"`
			State string `json:"state"`
		}

		var rows []row
		if registry != nil {
			for _, w := range registry.Workers() {
				rows = append(rows, row{
					Name:  w.Name(),
					Queue: w.QueueName(),
					State: string(w.State()),
				})
			}
		}

		c.JSON(http.StatusOK, gin.H{"workers": rows})
	})

	// Prometheus
	if reg != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	return r
}
