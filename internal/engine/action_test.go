package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/awehrman/peas/internal/status"
)

// test doubles shared across the engine tests

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []status.Event
	fail   bool
}

func (f *fakeBroadcaster) AddStatusEventAndBroadcast(_ context.Context, e status.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		return errors.New("sink down")
	}

	f.events = append(f.events, e)
	return nil
}

func (f *fakeBroadcaster) Events() []status.Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]status.Event, len(f.events))
	copy(out, f.events)
	return out
}

type stubAction struct {
	name      string
	calls     int
	failTimes int // fail this many calls before succeeding
	err       error
	out       JobData

	validateErr error
	onErrorHits int
	retryable   *bool
}

func (a *stubAction) Name() string { return a.name }

func (a *stubAction) Execute(_ context.Context, data JobData, _ *Deps, _ *ActionContext) (JobData, error) {
	a.calls++

	if a.failTimes >= a.calls {
		if a.err != nil {
			return nil, a.err
		}
		return nil, fmt.Errorf("boom on call %d", a.calls)
	}

	if a.out != nil {
		return a.out, nil
	}
	return data, nil
}

func (a *stubAction) ValidateInput(JobData) error { return a.validateErr }

func (a *stubAction) OnError(context.Context, error, JobData, *Deps, *ActionContext) {
	a.onErrorHits++
}

func (a *stubAction) Retryable() bool {
	if a.retryable != nil {
		return *a.retryable
	}
	return true
}

func boolPtr(b bool) *bool { return &b }

func testCtx() *ActionContext {
	return &ActionContext{
		JobID:         "job-1",
		AttemptNumber: 1,
		QueueName:     "parse_html",
		WorkerName:    "test-worker",
		Operation:     "parse_html",
	}
}

func TestExecuteWithTiming_Success(t *testing.T) {
	a := &stubAction{name: "ok", out: JobData{"added": true}}

	res := ExecuteWithTiming(context.Background(), a, JobData{"content": "x"}, &Deps{}, testCtx())

	if !res.Success() {
		t.Fatalf("expected success, got err=%v", res.Err)
	}
	if res.Duration < 0 {
		t.Fatalf("duration must be >= 0, got %v", res.Duration)
	}
	if res.Data["added"] != true {
		t.Fatalf("expected result data, got %+v", res.Data)
	}
}

func TestExecuteWithTiming_ValidationStopsExecute(t *testing.T) {
	a := &stubAction{name: "guarded", validateErr: errors.New("content is missing")}

	res := ExecuteWithTiming(context.Background(), a, JobData{}, &Deps{}, testCtx())

	if res.Success() {
		t.Fatalf("expected failure")
	}
	if !errors.Is(res.Err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", res.Err)
	}
	if a.calls != 0 {
		t.Fatalf("execute must not run after validation rejection; ran %d times", a.calls)
	}
	if res.Duration < 0 {
		t.Fatalf("duration must be >= 0 even on validation failure")
	}
}

func TestExecuteWithTiming_ErrorGoesToResultNotPanic(t *testing.T) {
	a := &stubAction{name: "bad", failTimes: 1}

	res := ExecuteWithTiming(context.Background(), a, JobData{}, &Deps{}, testCtx())

	if res.Success() {
		t.Fatalf("expected failure result")
	}
	if a.onErrorHits != 1 {
		t.Fatalf("expected OnError once, got %d", a.onErrorHits)
	}
}

func TestWithConfig_OverridesFlagsOnly(t *testing.T) {
	a := &stubAction{name: "base"}

	cfgd := WithConfig(a, ActionConfig{Retryable: boolPtr(false), Priority: intPtr(7)})

	if cfgd.Name() != "base" {
		t.Fatalf("name must be preserved, got %s", cfgd.Name())
	}
	if IsRetryableAction(cfgd) {
		t.Fatalf("expected retryable=false after override")
	}
	if PriorityOf(cfgd) != 7 {
		t.Fatalf("expected priority 7, got %d", PriorityOf(cfgd))
	}

	// original is untouched
	if !IsRetryableAction(a) || PriorityOf(a) != 0 {
		t.Fatalf("original action must be unchanged")
	}

	// behavior still flows through
	res := ExecuteWithTiming(context.Background(), cfgd, JobData{"k": "v"}, &Deps{}, testCtx())
	if !res.Success() || res.Data["k"] != "v" {
		t.Fatalf("configured action must delegate execute, got %+v", res)
	}
}

func intPtr(n int) *int { return &n }

func TestNoopAction_PassesInputThrough(t *testing.T) {
	in := JobData{"importId": "i1"}

	res := ExecuteWithTiming(context.Background(), NoopAction{}, in, &Deps{}, testCtx())

	if !res.Success() {
		t.Fatalf("noop must succeed: %v", res.Err)
	}
	if res.Data["importId"] != "i1" {
		t.Fatalf("noop must return its input")
	}
}

func TestValidationAction_RejectsAndPasses(t *testing.T) {
	a := ValidationAction{
		ActionName: "require_content",
		Validate: func(d JobData) error {
			if _, ok := d["content"]; !ok {
				return errors.New("content is required")
			}
			return nil
		},
	}

	res := ExecuteWithTiming(context.Background(), a, JobData{}, &Deps{}, testCtx())
	if res.Success() || !errors.Is(res.Err, ErrValidationFailed) {
		t.Fatalf("expected validation failure, got %+v", res)
	}

	res = ExecuteWithTiming(context.Background(), a, JobData{"content": "x"}, &Deps{}, testCtx())
	if !res.Success() || res.Data["content"] != "x" {
		t.Fatalf("expected pass-through on valid input, got %+v", res)
	}
}

func TestMergeData_ShallowLaterWins(t *testing.T) {
	current := JobData{"a": 1, "b": "keep", "nested": map[string]any{"x": 1}}
	result := JobData{"a": 2, "nested": map[string]any{"y": 2}}

	merged := MergeData(current, result)

	if merged["a"] != 2 {
		t.Fatalf("later write must win: got %v", merged["a"])
	}
	if merged["b"] != "keep" {
		t.Fatalf("untouched keys must survive")
	}

	// shallow: nested objects replace wholesale
	nested := merged["nested"].(map[string]any)
	if _, ok := nested["x"]; ok {
		t.Fatalf("merge must be shallow; nested map should be replaced")
	}

	// inputs are not mutated
	if current["a"] != 1 {
		t.Fatalf("MergeData must not mutate its inputs")
	}
}

func TestMergeData_NilCases(t *testing.T) {
	current := JobData{"a": 1}

	if got := MergeData(current, nil); got["a"] != 1 {
		t.Fatalf("nil result must leave current untouched, got %+v", got)
	}

	if got := MergeData(nil, JobData{"b": 2}); got["b"] != 2 {
		t.Fatalf("nil current must adopt the result, got %+v", got)
	}
}
