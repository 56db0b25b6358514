package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/awehrman/peas/internal/importctx"
	"github.com/awehrman/peas/internal/observability"
	"github.com/awehrman/peas/internal/queue"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("peas-worker")

// Stage is what a concrete pipeline stage provides on top of the base
// worker: its identity, its action registrations and the per-job
// pipeline.
type Stage interface {
	OperationName() string
	QueueName() string
	RegisterActions(f *Factory)
	BuildPipeline(ctx context.Context, data JobData, actx *ActionContext) ([]Action, error)
}

// Chainer is optional: a stage that names a follow-up queue gets the
// merged payload forwarded there after a successful run.
type Chainer interface {
	NextQueue() string
}

type WorkerState string

const (
	WorkerStarting WorkerState = "STARTING"
	WorkerRunning  WorkerState = "RUNNING"
	WorkerDraining WorkerState = "DRAINING"
	WorkerStopped  WorkerState = "STOPPED"
)

type WorkerConfig struct {
	Name         string
	Concurrency  int
	DrainTimeout time.Duration
	Retry        RetryConfig
	Breaker      BreakerConfig
}

// Worker drains one queue: for every delivered job it builds the stage
// pipeline, runs it action by action with shallow-merged data flow, and
// reports the outcome to the queue and the metrics.
type Worker struct {
	cfg     WorkerConfig
	stage   Stage
	broker  queue.Broker
	deps    *Deps
	factory *Factory

	stats *observability.WorkerStats
	prom  *observability.Prom

	mu    sync.Mutex
	state WorkerState
	stop  queue.StopFunc
}

func NewWorker(cfg WorkerConfig, stage Stage, broker queue.Broker, deps *Deps, prom *observability.Prom) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 10 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = stage.QueueName() + "-worker"
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker = DefaultBreakerConfig()
	}

	if deps == nil {
		deps = &Deps{}
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NewWorkerMetrics(nil)
	}

	w := &Worker{
		cfg:     cfg,
		stage:   stage,
		broker:  broker,
		deps:    deps,
		factory: NewFactory(),
		stats:   observability.NewWorkerStats(cfg.Name, stage.QueueName()),
		prom:    prom,
		state:   WorkerStarting,
	}

	stage.RegisterActions(w.factory)

	return w
}

func (w *Worker) Name() string { return w.cfg.Name }

func (w *Worker) QueueName() string { return w.stage.QueueName() }

func (w *Worker) Factory() *Factory { return w.factory }

func (w *Worker) Stats() *observability.WorkerStats { return w.stats }

func (w *Worker) State() WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) setState(s WorkerState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()

	running := s == WorkerRunning
	w.deps.Metrics.RecordWorkerStatus(w.cfg.Name, running)
}

// CreateWrappedAction pulls an action from the factory and stacks retry
// plus error handling around it.
func (w *Worker) CreateWrappedAction(name string) (Action, error) {
	a, err := w.factory.Create(name, w.deps)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, nil
	}

	return WrapErrorHandling(WrapRetry(a, w.cfg.Retry)), nil
}

// CreateErrorHandledAction is the lighter variant: error dispatch only.
func (w *Worker) CreateErrorHandledAction(name string) (Action, error) {
	a, err := w.factory.Create(name, w.deps)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, nil
	}

	return WrapErrorHandling(a), nil
}

// CreateProtectedAction adds the shared circuit breaker under the retry
// stack, for actions that talk to flaky externals.
func (w *Worker) CreateProtectedAction(name string) (Action, error) {
	a, err := w.factory.Create(name, w.deps)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, nil
	}

	return WrapRetry(WrapCircuitBreaker(WrapErrorHandling(a), w.cfg.Breaker), w.cfg.Retry), nil
}

// Start begins consuming. It returns once the consumer is wired up;
// processing happens on broker goroutines.
func (w *Worker) Start(ctx context.Context) error {
	stop, err := w.broker.Consume(ctx, w.stage.QueueName(), w.cfg.Concurrency, w.handle)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.stop = stop
	w.mu.Unlock()

	w.setState(WorkerRunning)

	go w.metricsLoop(ctx)

	if w.deps.Logger != nil {
		w.deps.Logger.InfoContext(ctx, "worker.start",
			"worker", w.cfg.Name,
			"queue", w.stage.QueueName(),
			"concurrency", w.cfg.Concurrency,
		)
	}

	return nil
}

// Stop drains in-flight pipelines up to the configured timeout, then
// cancels.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	stop := w.stop
	w.mu.Unlock()

	if stop == nil {
		w.setState(WorkerStopped)
		return nil
	}

	w.setState(WorkerDraining)

	drainCtx, cancel := context.WithTimeout(ctx, w.cfg.DrainTimeout)
	defer cancel()

	err := stop(drainCtx)

	w.setState(WorkerStopped)

	if w.deps.Logger != nil {
		w.deps.Logger.Info("worker.stopped", "worker", w.cfg.Name, "drained", err == nil)
	}

	return err
}

// metricsLoop samples queue depth and logs a worker snapshot, the same
// cadence the rest of the fleet dashboards expect.
func (w *Worker) metricsLoop(ctx context.Context) {
	t := time.NewTicker(30 * time.Second)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-t.C:
			depth, err := w.broker.Depth(ctx, w.stage.QueueName())
			if err == nil {
				w.deps.Metrics.RecordQueueDepth(w.stage.QueueName(), depth.Waiting)

				if w.prom != nil {
					w.prom.QueueDepth.WithLabelValues(w.stage.QueueName(), "waiting").Set(float64(depth.Waiting))
					w.prom.QueueDepth.WithLabelValues(w.stage.QueueName(), "active").Set(float64(depth.Active))
					w.prom.QueueDepth.WithLabelValues(w.stage.QueueName(), "dead").Set(float64(depth.Dead))
				}
			}

			if w.deps.Logger != nil {
				s := w.stats.Snapshot()
				w.deps.Logger.Info("worker.metrics",
					"worker", w.cfg.Name,
					"processed", s.JobsProcessed,
					"failed", s.JobsFailed,
					"avg_ms", s.AverageProcessingTime.Milliseconds(),
				)
			}
		}
	}
}

// handle runs one delivered job through the stage pipeline.
func (w *Worker) handle(ctx context.Context, job *queue.Job) error {
	start := time.Now()
	operation := w.stage.OperationName()

	var data JobData
	if len(job.Payload) > 0 {
		if err := json.Unmarshal(job.Payload, &data); err != nil {
			// a payload that cannot parse will never succeed; let the
			// queue dead-letter it without burning retries on our side
			return queue.Unretryable(fmt.Errorf("%w: bad payload: %v", ErrPermanent, err))
		}
	}
	if data == nil {
		data = JobData{}
	}

	actx := &ActionContext{
		JobID:         job.ID,
		AttemptNumber: job.Attempt,
		RetryCount:    job.Attempt - 1,
		QueueName:     job.Queue,
		WorkerName:    w.cfg.Name,
		Operation:     operation,
		StartTime:     start,
	}

	ctx = importctx.WithImportID(ctx, data.ImportID())
	ctx = importctx.WithJobID(ctx, job.ID)

	execCtx, span := tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.String("job.queue", job.Queue),
			attribute.Int("job.attempt", job.Attempt),
			attribute.String("worker.name", w.cfg.Name),
			attribute.String("operation", operation),
		),
	)
	defer span.End()

	if w.prom != nil {
		w.prom.JobsInFlight.Inc()
		defer w.prom.JobsInFlight.Dec()
	}

	if w.deps.Logger != nil {
		w.deps.Logger.InfoContext(execCtx, "job.start",
			"worker", w.cfg.Name,
			"job_id", job.ID,
			"operation", operation,
			"attempt", fmt.Sprintf("%d/%d", job.Attempt, job.MaxAttempts),
		)
	}

	pipeline, err := w.stage.BuildPipeline(execCtx, data, actx)
	if err != nil {
		w.finishFailure(execCtx, span, data, actx, job, start, fmt.Errorf("build pipeline: %w", err))
		return err
	}

	current := data.Clone()

	for _, action := range pipeline {
		result := ExecuteWithTiming(execCtx, action, current, w.deps, actx)

		collector := w.deps.Metrics.Collector()
		tags := map[string]string{"action": action.Name()}
		collector.Increment("worker.action.total", 1, tags)

		if result.Success() {
			current = MergeData(current, result.Data)

			w.deps.Metrics.RecordActionExecutionTime(action.Name(), float64(result.Duration.Milliseconds()), true)

			if w.prom != nil {
				w.prom.ActionDuration.WithLabelValues(action.Name(), "done").Observe(result.Duration.Seconds())
				w.prom.ActionResults.WithLabelValues(action.Name(), "done").Inc()
			}
			continue
		}

		w.deps.Metrics.RecordActionExecutionTime(action.Name(), float64(result.Duration.Milliseconds()), false)

		if w.prom != nil {
			w.prom.ActionDuration.WithLabelValues(action.Name(), "failed").Observe(result.Duration.Seconds())
			w.prom.ActionResults.WithLabelValues(action.Name(), "failed").Inc()
		}

		if IsStatusAction(action) {
			// status broadcasts are advisory; the pipeline moves on
			if w.deps.Logger != nil {
				w.deps.Logger.WarnContext(execCtx, "status action failed, continuing",
					"action", action.Name(),
					"job_id", job.ID,
					"err", result.Err,
				)
			}
			continue
		}

		w.finishFailure(execCtx, span, current, actx, job, start, result.Err)

		if !IsRetryable(result.Err) {
			return queue.Unretryable(result.Err)
		}
		return result.Err
	}

	// chain to the next stage with the merged payload
	if c, ok := w.stage.(Chainer); ok {
		if next := c.NextQueue(); next != "" {
			if _, err := w.broker.Enqueue(execCtx, next, current); err != nil {
				w.finishFailure(execCtx, span, current, actx, job, start, fmt.Errorf("chain to %s: %w", next, err))
				return err
			}
		}
	}

	w.finishSuccess(execCtx, span, actx, start)
	return nil
}

func (w *Worker) finishSuccess(ctx context.Context, span trace.Span, actx *ActionContext, start time.Time) {
	d := time.Since(start)
	operation := actx.Operation

	collector := w.deps.Metrics.Collector()
	tags := map[string]string{"operation": operation}
	collector.Increment("worker.job.total", 1, tags)

	w.deps.Metrics.RecordJobProcessingTime(operation, float64(d.Milliseconds()), true)

	if w.prom != nil {
		w.prom.JobDuration.WithLabelValues(operation, "done").Observe(d.Seconds())
		w.prom.JobResults.WithLabelValues(operation, "done").Inc()
	}

	w.stats.IncProcessed()
	w.stats.ObserveDuration(d)

	span.SetStatus(codes.Ok, "done")
	span.SetAttributes(attribute.Int64("job.duration_ms", d.Milliseconds()))

	if w.deps.Logger != nil {
		w.deps.Logger.InfoContext(ctx, "job.done",
			"worker", w.cfg.Name,
			"job_id", actx.JobID,
			"operation", operation,
			"duration_ms", d.Milliseconds(),
		)
	}
}

func (w *Worker) finishFailure(ctx context.Context, span trace.Span, data JobData, actx *ActionContext, job *queue.Job, start time.Time, jobErr error) {
	d := time.Since(start)
	operation := actx.Operation

	// the queue redelivers non-terminal failures; only the last attempt
	// gets the FAILED event so the user sees exactly one
	terminal := job.MaxAttempts <= 0 || job.Attempt >= job.MaxAttempts || !IsRetryable(jobErr)

	if terminal {
		failed := FailedStatusAction{Err: jobErr}
		_ = ExecuteWithTiming(ctx, failed, data, w.deps, actx)
	}

	collector := w.deps.Metrics.Collector()
	tags := map[string]string{"operation": operation}
	collector.Increment("worker.job.total", 1, tags)

	w.deps.Metrics.RecordJobProcessingTime(operation, float64(d.Milliseconds()), false)

	if w.prom != nil {
		w.prom.JobDuration.WithLabelValues(operation, "failed").Observe(d.Seconds())
		w.prom.JobResults.WithLabelValues(operation, "failed").Inc()
	}

	w.stats.IncFailed()
	w.stats.ObserveDuration(d)

	span.RecordError(jobErr)
	span.SetStatus(codes.Error, jobErr.Error())
	span.SetAttributes(attribute.Int64("job.duration_ms", d.Milliseconds()))

	if w.deps.Logger != nil {
		w.deps.Logger.ErrorContext(ctx, "job.error",
			"worker", w.cfg.Name,
			"job_id", actx.JobID,
			"operation", operation,
			"duration_ms", d.Milliseconds(),
			"err", jobErr,
		)
	}
}
