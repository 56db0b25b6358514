package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

type sleepyAction struct {
	name  string
	sleep time.Duration
	calls int
}

func (a *sleepyAction) Name() string { return a.name }

func (a *sleepyAction) Execute(ctx context.Context, data JobData, _ *Deps, _ *ActionContext) (JobData, error) {
	a.calls++

	select {
	case <-time.After(a.sleep):
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestTimeout_FastActionPasses(t *testing.T) {
	a := &sleepyAction{name: "quick", sleep: time.Millisecond}

	wrapped := WrapTimeout(a, time.Second)

	out, err := wrapped.Execute(context.Background(), JobData{"k": "v"}, &Deps{}, testCtx())
	if err != nil {
		t.Fatalf("fast action should pass: %v", err)
	}
	if out["k"] != "v" {
		t.Fatalf("data must flow through")
	}
}

func TestTimeout_SlowActionIsCancelled(t *testing.T) {
	a := &sleepyAction{name: "slow", sleep: 5 * time.Second}

	wrapped := WrapTimeout(a, 20*time.Millisecond)

	start := time.Now()
	_, err := wrapped.Execute(context.Background(), JobData{}, &Deps{}, testCtx())
	elapsed := time.Since(start)

	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected Cancelled kind, got %v", err)
	}
	if elapsed > time.Second {
		t.Fatalf("timeout should fire promptly, took %v", elapsed)
	}

	// cancelled errors are not retried by the wrapper
	if IsRetryable(err) {
		t.Fatalf("timeout errors must not be retryable")
	}
}

func TestTimeout_ZeroLimitIsPassThrough(t *testing.T) {
	a := &sleepyAction{name: "raw", sleep: 0}

	if got := WrapTimeout(a, 0); got != Action(a) {
		t.Fatalf("zero limit should return the action unchanged")
	}
}
