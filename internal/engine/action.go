package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/awehrman/peas/internal/observability"
	"github.com/awehrman/peas/internal/status"
)

// Deps is the dependency bundle handed to every action. Everything except
// Services may be nil; Services carries the stage-specific collaborators
// (parsers, repos, http clients) and is passed through verbatim, the
// engine never looks inside it.
type Deps struct {
	Logger      *slog.Logger
	Broadcaster status.Broadcaster
	Metrics     *observability.WorkerMetrics
	Services    any
}

// Action is a composable unit of pipeline work. Execute is the only
// mandatory operation; the optional capabilities below are discovered
// with type assertions.
type Action interface {
	Name() string
	Execute(ctx context.Context, data JobData, deps *Deps, actx *ActionContext) (JobData, error)
}

// InputValidator rejects a payload before Execute runs.
type InputValidator interface {
	ValidateInput(data JobData) error
}

// ErrorHandler runs after Execute returns an error. A secondary error it
// raises is swallowed by the caller.
type ErrorHandler interface {
	OnError(ctx context.Context, execErr error, data JobData, deps *Deps, actx *ActionContext)
}

// RetryableAction overrides the default (true).
type RetryableAction interface {
	Retryable() bool
}

// PrioritizedAction overrides the default priority (0).
type PrioritizedAction interface {
	Priority() int
}

func IsRetryableAction(a Action) bool {
	if r, ok := a.(RetryableAction); ok {
		return r.Retryable()
	}
	return true
}

func PriorityOf(a Action) int {
	if p, ok := a.(PrioritizedAction); ok {
		return p.Priority()
	}
	return 0
}

// Result is what a timed execution yields. The error travels here rather
// than up the stack: callers decide whether it becomes a job failure.
type Result struct {
	Data     JobData
	Err      error
	Duration time.Duration
}

func (r Result) Success() bool {
	return r.Err == nil
}

// ExecuteWithTiming is the single adapter every wrapper and worker runs
// actions through: validate, execute, time, dispatch errors.
func ExecuteWithTiming(ctx context.Context, a Action, data JobData, deps *Deps, actx *ActionContext) Result {
	t0 := time.Now()

	if v, ok := a.(InputValidator); ok {
		if err := v.ValidateInput(data); err != nil {
			if !errors.Is(err, ErrValidationFailed) {
				err = fmt.Errorf("%w: %v", ErrValidationFailed, err)
			}
			dispatchError(ctx, a, err, data, deps, actx)
			return Result{Err: err, Duration: time.Since(t0)}
		}
	}

	out, err := a.Execute(ctx, data, deps, actx)

	if err != nil {
		dispatchError(ctx, a, err, data, deps, actx)
		return Result{Err: err, Duration: time.Since(t0)}
	}

	return Result{Data: out, Duration: time.Since(t0)}
}

func dispatchError(ctx context.Context, a Action, execErr error, data JobData, deps *Deps, actx *ActionContext) {
	if h, ok := a.(ErrorHandler); ok {
		// a broken error handler must not mask the original failure
		func() {
			defer func() { _ = recover() }()
			h.OnError(ctx, execErr, data, deps, actx)
		}()
		return
	}

	defaultErrorLog(ctx, a.Name(), execErr, deps, actx)
}

func defaultErrorLog(ctx context.Context, actionName string, execErr error, deps *Deps, actx *ActionContext) {
	if deps != nil && deps.Logger != nil {
		deps.Logger.ErrorContext(ctx, "action.error",
			"action", actionName,
			"job_id", jobIDOf(actx),
			"err", execErr,
		)
		return
	}

	fmt.Fprintf(os.Stderr, "action %s failed for job %s: %v\n", actionName, jobIDOf(actx), execErr)
}

func jobIDOf(actx *ActionContext) string {
	if actx == nil {
		return ""
	}
	return actx.JobID
}
