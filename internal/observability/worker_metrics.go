package observability

import "runtime"

// WorkerMetrics is the purpose-built façade the pipeline writes through.
// Each timed helper records the value plus a success/failure counter pair
// (the non-matching branch gets a 0 increment) so a summary over either
// counter yields an accurate rate.
type WorkerMetrics struct {
	c *MetricsCollector
}

func NewWorkerMetrics(c *MetricsCollector) *WorkerMetrics {
	if c == nil {
		c = Default()
	}

	return &WorkerMetrics{c: c}
}

func (w *WorkerMetrics) Collector() *MetricsCollector {
	return w.c
}

func boolsToPair(ok bool) (success, failure float64) {
	if ok {
		return 1, 0
	}
	return 0, 1
}

func (w *WorkerMetrics) RecordJobProcessingTime(operation string, ms float64, ok bool) {
	tags := map[string]string{"operation": operation}

	w.c.Histogram("worker.job.processing_time", ms, tags)

	success, failure := boolsToPair(ok)
	w.c.Increment("worker.job.success", success, tags)
	w.c.Increment("worker.job.failure", failure, tags)
}

func (w *WorkerMetrics) RecordActionExecutionTime(action string, ms float64, ok bool) {
	tags := map[string]string{"action": action}

	w.c.Histogram("worker.action.execution_time", ms, tags)

	success, failure := boolsToPair(ok)
	w.c.Increment("worker.action.success", success, tags)
	w.c.Increment("worker.action.failure", failure, tags)
}

func (w *WorkerMetrics) RecordQueueDepth(queue string, depth int) {
	w.c.Gauge("worker.queue.depth", float64(depth), map[string]string{"queue": queue})
}

func (w *WorkerMetrics) RecordWorkerStatus(worker string, running bool) {
	v := 0.0
	if running {
		v = 1.0
	}

	w.c.Gauge("worker.status", v, map[string]string{"worker": worker})
}

// MemoryUsageBytes is used by the system snapshot.
func MemoryUsageBytes() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.Alloc
}
