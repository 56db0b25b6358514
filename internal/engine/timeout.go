package engine

import (
	"context"
	"fmt"
	"time"
)

type timeoutAction struct {
	inner Action
	limit time.Duration
}

// WrapTimeout bounds a single action execution. The engine imposes no
// per-action deadline on its own; stages opt in with this decorator, the
// same composition pattern as retry and the breaker.
func WrapTimeout(a Action, limit time.Duration) Action {
	if limit <= 0 {
		return a
	}

	return &timeoutAction{inner: a, limit: limit}
}

func (w *timeoutAction) Name() string { return w.inner.Name() }

func (w *timeoutAction) Execute(ctx context.Context, data JobData, deps *Deps, actx *ActionContext) (JobData, error) {
	tctx, cancel := context.WithTimeout(ctx, w.limit)
	defer cancel()

	type outcome struct {
		data JobData
		err  error
	}

	done := make(chan outcome, 1)

	go func() {
		out, err := w.inner.Execute(tctx, data, deps, actx)
		done <- outcome{data: out, err: err}
	}()

	select {
	case o := <-done:
		return o.data, o.err

	case <-tctx.Done():
		// the inner goroutine keeps running until it notices the
		// cancelled context; its result is discarded
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %s exceeded %s", ErrCancelled, w.inner.Name(), w.limit)
	}
}

func (w *timeoutAction) ValidateInput(data JobData) error {
	if v, ok := w.inner.(InputValidator); ok {
		return v.ValidateInput(data)
	}
	return nil
}

func (w *timeoutAction) OnError(ctx context.Context, execErr error, data JobData, deps *Deps, actx *ActionContext) {
	if h, ok := w.inner.(ErrorHandler); ok {
		h.OnError(ctx, execErr, data, deps, actx)
		return
	}
	defaultErrorLog(ctx, w.inner.Name(), execErr, deps, actx)
}

func (w *timeoutAction) Retryable() bool { return IsRetryableAction(w.inner) }

func (w *timeoutAction) Priority() int { return PriorityOf(w.inner) }
