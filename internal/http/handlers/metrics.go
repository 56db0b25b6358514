package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/awehrman/peas/internal/cache"
	"github.com/awehrman/peas/internal/config"
	"github.com/awehrman/peas/internal/ingest"
	"github.com/awehrman/peas/internal/observability"
	"github.com/awehrman/peas/internal/queue"
	"github.com/gin-gonic/gin"
)

// MetricsHandler serves the collector snapshots (not the prometheus
// exposition; that lives on /metrics).
type MetricsHandler struct {
	collector *observability.MetricsCollector
	stats     *observability.StatsRegistry
	broker    queue.Broker
	cache     *cache.Cache
}

func NewMetricsHandler(collector *observability.MetricsCollector, stats *observability.StatsRegistry, broker queue.Broker, c *cache.Cache) *MetricsHandler {
	return &MetricsHandler{
		collector: collector,
		stats:     stats,
		broker:    broker,
		cache:     c,
	}
}

const summaryCacheKey = "metrics.summary"

// GET /api/v1/metrics/summary
func (h *MetricsHandler) Summary(ctx *gin.Context) {
	if h.cache != nil {
		if v, ok := h.cache.Get(summaryCacheKey); ok {
			RespondJSONWithETag(ctx, http.StatusOK, v)
			return
		}
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	snapshot := h.buildSnapshot(cctx)

	if h.cache != nil {
		h.cache.Set(summaryCacheKey, snapshot)
	}

	RespondJSONWithETag(ctx, http.StatusOK, snapshot)
}

func (h *MetricsHandler) buildSnapshot(ctx context.Context) observability.SystemSnapshot {
	queues := make([]observability.QueueSnapshot, 0, len(ingest.QueueNames()))

	for _, q := range ingest.QueueNames() {
		qs := observability.QueueSnapshot{QueueName: q, Timestamp: time.Now().UTC()}

		if h.broker != nil {
			if depth, err := h.broker.Depth(ctx, q); err == nil {
				qs.WaitingCount = depth.Waiting
				qs.ActiveCount = depth.Active
				qs.FailedCount = depth.Dead
				qs.JobCount = depth.Waiting + depth.Active + depth.Delayed
			}
		}

		queues = append(queues, qs)
	}

	if h.stats != nil {
		return h.stats.System(queues)
	}

	return observability.SystemSnapshot{Queues: queues}
}

// GET /api/v1/metrics/name/:name — one metric's summary from the collector.
func (h *MetricsHandler) MetricSummary(ctx *gin.Context) {
	name := ctx.Param("name")

	s := h.collector.GetMetricSummary(name)
	if s == nil {
		RespondNotFound(ctx, "No samples for metric")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"name":    name,
		"summary": s,
	})
}
