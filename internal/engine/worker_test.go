package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/awehrman/peas/internal/observability"
	"github.com/awehrman/peas/internal/queue/memqueue"
	"github.com/awehrman/peas/internal/status"
)

type testStage struct {
	queue string
	op    string
	next  string
	build func(actx *ActionContext) []Action

	registered []string
}

func (s *testStage) OperationName() string { return s.op }

func (s *testStage) QueueName() string { return s.queue }

func (s *testStage) RegisterActions(f *Factory) {
	for _, name := range s.registered {
		n := name
		f.Register(n, func(*Deps) Action { return &stubAction{name: n} })
	}
}

func (s *testStage) BuildPipeline(_ context.Context, _ JobData, actx *ActionContext) ([]Action, error) {
	return s.build(actx), nil
}

func (s *testStage) NextQueue() string { return s.next }

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

type captureSave struct {
	mu   sync.Mutex
	seen JobData
}

func (c *captureSave) Name() string { return "save" }

func (c *captureSave) Execute(_ context.Context, data JobData, _ *Deps, _ *ActionContext) (JobData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = data.Clone()
	return JobData{"saved": true}, nil
}

func (c *captureSave) Seen() JobData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen
}

func TestWorker_HappyPath(t *testing.T) {
	broker := memqueue.New(3)
	sink := &fakeBroadcaster{}
	collector := observability.NewMetricsCollector(1000)

	deps := &Deps{
		Logger:      slog.New(&captureHandler{}),
		Broadcaster: sink,
		Metrics:     observability.NewWorkerMetrics(collector),
	}

	save := &captureSave{}

	stage := &testStage{
		queue: "parse_html",
		op:    "parse_html",
		build: func(*ActionContext) []Action {
			transform := &stubAction{name: "transform", out: JobData{"transformed": true}}

			pipeline := []Action{
				ValidationAction{ActionName: "validate", Validate: func(d JobData) error {
					if d["content"] == nil {
						return errors.New("content is required")
					}
					return nil
				}},
				transform,
				save,
			}

			_ = InjectStandardStatusActions(&pipeline, func() string { return "parse_html" }, nil)
			return pipeline
		},
	}

	w := NewWorker(WorkerConfig{Name: "w1", Concurrency: 1, DrainTimeout: time.Second}, stage, broker, deps, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := broker.Enqueue(ctx, "parse_html", map[string]any{
		"importId": "i1",
		"noteId":   "n1",
		"content":  "x",
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		s := collector.GetMetricSummary("worker.job.success")
		return s != nil && s.Sum >= 1
	})

	_ = w.Stop(ctx)

	// exactly one COMPLETED event for the import, one PROCESSING before it
	events := sink.Events()

	var processing, completed int
	for _, e := range events {
		if e.ImportID != "i1" {
			t.Fatalf("event importId: got %s", e.ImportID)
		}
		switch e.Status {
		case status.StatusProcessing:
			processing++
		case status.StatusCompleted:
			completed++
		case status.StatusFailed:
			t.Fatalf("no failure expected, got %+v", e)
		}
	}
	if processing != 1 || completed != 1 {
		t.Fatalf("expected 1 processing + 1 completed, got %d/%d", processing, completed)
	}

	// data flow: the save action saw the original input plus upstream output
	seen := save.Seen()
	for k, want := range map[string]any{"importId": "i1", "noteId": "n1", "content": "x", "transformed": true} {
		if seen[k] != want {
			t.Fatalf("save input[%s]: got %v, want %v", k, seen[k], want)
		}
	}

	if s := collector.GetMetricSummary("worker.job.success"); s == nil || s.Sum != 1 {
		t.Fatalf("worker.job.success should be 1, got %+v", s)
	}
	if s := collector.GetMetricSummary("worker.job.failure"); s != nil && s.Sum != 0 {
		t.Fatalf("worker.job.failure should be 0, got %+v", s)
	}

	snap := w.Stats().Snapshot()
	if snap.JobsProcessed != 1 || snap.JobsFailed != 0 {
		t.Fatalf("stats: got %d/%d", snap.JobsProcessed, snap.JobsFailed)
	}
}

func TestWorker_StatusFailureIsAdvisory(t *testing.T) {
	broker := memqueue.New(3)
	collector := observability.NewMetricsCollector(1000)

	deps := &Deps{
		Logger:      slog.New(&captureHandler{}),
		Broadcaster: &fakeBroadcaster{fail: true},
		Metrics:     observability.NewWorkerMetrics(collector),
	}

	save := &captureSave{}

	stage := &testStage{
		queue: "save_note",
		op:    "save_note",
		build: func(*ActionContext) []Action {
			pipeline := []Action{save}
			_ = InjectStandardStatusActions(&pipeline, func() string { return "save_note" }, nil)
			return pipeline
		},
	}

	w := NewWorker(WorkerConfig{Name: "w2", Concurrency: 1, DrainTimeout: time.Second}, stage, broker, deps, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = w.Start(ctx)
	defer w.Stop(ctx)

	_, _ = broker.Enqueue(ctx, "save_note", map[string]any{"importId": "i9"})

	waitFor(t, 2*time.Second, func() bool {
		s := collector.GetMetricSummary("worker.job.success")
		return s != nil && s.Sum >= 1
	})

	if save.Seen() == nil {
		t.Fatalf("pipeline must continue past a failed status broadcast")
	}
}

func TestWorker_FailurePropagatesToQueue(t *testing.T) {
	broker := memqueue.New(2)
	broker.RedeliveryDelay = func(int) time.Duration { return time.Millisecond }

	sink := &fakeBroadcaster{}
	collector := observability.NewMetricsCollector(1000)

	deps := &Deps{
		Logger:      slog.New(&captureHandler{}),
		Broadcaster: sink,
		Metrics:     observability.NewWorkerMetrics(collector),
	}

	stage := &testStage{
		queue: "categorization",
		op:    "categorization",
		build: func(*ActionContext) []Action {
			return []Action{&stubAction{name: "categorize", failTimes: 100, err: errors.New("model unavailable")}}
		},
	}

	w := NewWorker(WorkerConfig{
		Name: "w3", Concurrency: 1, DrainTimeout: time.Second,
		Retry: RetryConfig{MaxAttempts: 0, BaseDelay: time.Millisecond, BackoffMultiplier: 2},
	}, stage, broker, deps, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = w.Start(ctx)
	defer w.Stop(ctx)

	_, _ = broker.Enqueue(ctx, "categorization", map[string]any{"importId": "i2"})

	// queue runs the whole pipeline twice (one redelivery), then dead-letters
	waitFor(t, 3*time.Second, func() bool {
		return len(broker.DeadLetters("categorization")) == 1
	})

	if s := collector.GetMetricSummary("worker.job.failure"); s == nil || s.Sum != 2 {
		t.Fatalf("expected 2 failed pipeline runs, got %+v", s)
	}

	// exactly one FAILED event, from the terminal attempt
	var failed int
	for _, e := range sink.Events() {
		if e.Status == status.StatusFailed {
			failed++
			if e.Message != "model unavailable" {
				t.Fatalf("failure message: got %q", e.Message)
			}
		}
	}
	if failed != 1 {
		t.Fatalf("expected exactly one FAILED event, got %d", failed)
	}
}

func TestWorker_ChainsToNextQueue(t *testing.T) {
	broker := memqueue.New(3)
	collector := observability.NewMetricsCollector(1000)

	deps := &Deps{
		Logger:  slog.New(&captureHandler{}),
		Metrics: observability.NewWorkerMetrics(collector),
	}

	downstream := &captureSave{}

	first := &testStage{
		queue: "parse_html",
		op:    "parse_html",
		next:  "save_note",
		build: func(*ActionContext) []Action {
			return []Action{&stubAction{name: "parse", out: JobData{"title": "Soup"}}}
		},
	}

	second := &testStage{
		queue: "save_note",
		op:    "save_note",
		build: func(*ActionContext) []Action { return []Action{downstream} },
	}

	w1 := NewWorker(WorkerConfig{Name: "chain-1", Concurrency: 1, DrainTimeout: time.Second}, first, broker, deps, nil)
	w2 := NewWorker(WorkerConfig{Name: "chain-2", Concurrency: 1, DrainTimeout: time.Second}, second, broker, deps, nil)

	reg := NewWorkerRegistry(deps.Logger)
	reg.Add(w1)
	reg.Add(w2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := reg.StartAll(ctx); err != nil {
		t.Fatalf("start all: %v", err)
	}
	defer reg.StopAll(ctx)

	_, _ = broker.Enqueue(ctx, "parse_html", map[string]any{"importId": "i3", "content": "<html></html>"})

	waitFor(t, 2*time.Second, func() bool { return downstream.Seen() != nil })

	seen := downstream.Seen()
	if seen["title"] != "Soup" || seen["importId"] != "i3" {
		t.Fatalf("chained payload must carry the merged data, got %+v", seen)
	}
}

func TestWorker_StateTransitions(t *testing.T) {
	broker := memqueue.New(3)
	stage := &testStage{
		queue: "process_image",
		op:    "process_image",
		build: func(*ActionContext) []Action { return []Action{NoopAction{}} },
	}

	w := NewWorker(WorkerConfig{Name: "w-states", DrainTimeout: time.Second}, stage, broker, nil, nil)

	if w.State() != WorkerStarting {
		t.Fatalf("initial state: got %s", w.State())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = w.Start(ctx)
	if w.State() != WorkerRunning {
		t.Fatalf("after start: got %s", w.State())
	}

	_ = w.Stop(ctx)
	if w.State() != WorkerStopped {
		t.Fatalf("after stop: got %s", w.State())
	}
}
