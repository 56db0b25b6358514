package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newBreakerForTest(a Action, cfg BreakerConfig, clock func() time.Time) *breakerAction {
	w := WrapCircuitBreaker(a, cfg).(*breakerAction)
	if clock != nil {
		w.now = clock
	}
	return w
}

func TestBreaker_OpensAfterThresholdAndFastFails(t *testing.T) {
	ResetBreakers()
	defer ResetBreakers()

	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }

	a := &stubAction{name: "parse", failTimes: 100, err: errors.New("downstream 503")}

	cfg := BreakerConfig{FailureThreshold: 3, ResetTimeout: 60 * time.Second, BreakerKey: "op=parse"}
	wrapped := newBreakerForTest(a, cfg, clock)

	deps := &Deps{}
	actx := testCtx()

	// three failing calls trip the breaker
	for i := 0; i < 3; i++ {
		_, err := wrapped.Execute(context.Background(), JobData{}, deps, actx)
		if err == nil {
			t.Fatalf("call %d should fail", i+1)
		}
	}

	state, failures, ok := BreakerSnapshot("op=parse")
	if !ok || state != BreakerOpen {
		t.Fatalf("expected OPEN after threshold, got %v (failures=%d)", state, failures)
	}
	if failures < 3 {
		t.Fatalf("OPEN implies failures >= threshold, got %d", failures)
	}

	// 4th call fast-fails without touching the wrapped action
	callsBefore := a.calls

	_, err := wrapped.Execute(context.Background(), JobData{}, deps, actx)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if a.calls != callsBefore {
		t.Fatalf("open breaker must not call the wrapped action")
	}
}

func TestBreaker_HalfOpenThenClosed(t *testing.T) {
	ResetBreakers()
	defer ResetBreakers()

	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }

	a := &stubAction{name: "parse", failTimes: 3, out: JobData{"parsed": true}}

	cfg := BreakerConfig{FailureThreshold: 3, ResetTimeout: 60 * time.Second, BreakerKey: "op=flaky"}
	wrapped := newBreakerForTest(a, cfg, clock)

	for i := 0; i < 3; i++ {
		_, _ = wrapped.Execute(context.Background(), JobData{}, &Deps{}, testCtx())
	}

	if state, _, _ := BreakerSnapshot("op=flaky"); state != BreakerOpen {
		t.Fatalf("expected OPEN, got %v", state)
	}

	// advance past the reset window; next call is the half-open trial and
	// the action now succeeds
	now = now.Add(60*time.Second + time.Millisecond)

	out, err := wrapped.Execute(context.Background(), JobData{}, &Deps{}, testCtx())
	if err != nil {
		t.Fatalf("half-open trial should run and succeed, got %v", err)
	}
	if out["parsed"] != true {
		t.Fatalf("expected wrapped output")
	}

	state, failures, _ := BreakerSnapshot("op=flaky")
	if state != BreakerClosed {
		t.Fatalf("expected CLOSED after half-open success, got %v", state)
	}
	if failures != 0 {
		t.Fatalf("HALF_OPEN -> CLOSED must reset failures to 0, got %d", failures)
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	ResetBreakers()
	defer ResetBreakers()

	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }

	a := &stubAction{name: "parse", failTimes: 100, err: errors.New("still down")}

	cfg := BreakerConfig{FailureThreshold: 2, ResetTimeout: 30 * time.Second, BreakerKey: "op=down"}
	wrapped := newBreakerForTest(a, cfg, clock)

	for i := 0; i < 2; i++ {
		_, _ = wrapped.Execute(context.Background(), JobData{}, &Deps{}, testCtx())
	}

	now = now.Add(31 * time.Second)

	_, err := wrapped.Execute(context.Background(), JobData{}, &Deps{}, testCtx())
	if err == nil {
		t.Fatalf("half-open trial should have run and failed")
	}

	if state, _, _ := BreakerSnapshot("op=down"); state != BreakerOpen {
		t.Fatalf("failed half-open trial must reopen, got %v", state)
	}

	// and the very next call fast-fails again
	callsBefore := a.calls
	_, err = wrapped.Execute(context.Background(), JobData{}, &Deps{}, testCtx())
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected fast-fail after reopen, got %v", err)
	}
	if a.calls != callsBefore {
		t.Fatalf("reopened breaker must not call the action")
	}
}

func TestBreaker_SharedAcrossWrappersByKey(t *testing.T) {
	ResetBreakers()
	defer ResetBreakers()

	cfg := BreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour}

	a1 := &stubAction{name: "a1", failTimes: 100, err: errors.New("no")}
	a2 := &stubAction{name: "a2", out: JobData{}}

	// key defaults to the operation from the context
	w1 := WrapCircuitBreaker(a1, cfg)
	w2 := WrapCircuitBreaker(a2, cfg)

	actx := testCtx() // operation: parse_html

	_, _ = w1.Execute(context.Background(), JobData{}, &Deps{}, actx)
	_, _ = w1.Execute(context.Background(), JobData{}, &Deps{}, actx)

	// the sibling wrapper with the same key is now fast-failing too
	_, err := w2.Execute(context.Background(), JobData{}, &Deps{}, actx)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("wrappers sharing a key must share the breaker, got %v", err)
	}
	if a2.calls != 0 {
		t.Fatalf("a2 must not run while the shared breaker is open")
	}
}
