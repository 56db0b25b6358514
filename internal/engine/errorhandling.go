package engine

import "context"

type errorHandlingAction struct {
	inner Action
}

// WrapErrorHandling decorates an action so a failure runs the wrapped
// action's OnError (or the default error log) exactly once before the
// error is handed back to the caller.
func WrapErrorHandling(a Action) Action {
	return &errorHandlingAction{inner: a}
}

func (w *errorHandlingAction) Name() string { return w.inner.Name() }

func (w *errorHandlingAction) Execute(ctx context.Context, data JobData, deps *Deps, actx *ActionContext) (JobData, error) {
	out, err := w.inner.Execute(ctx, data, deps, actx)

	if err != nil {
		if h, ok := w.inner.(ErrorHandler); ok {
			func() {
				defer func() { _ = recover() }()
				h.OnError(ctx, err, data, deps, actx)
			}()
		} else {
			defaultErrorLog(ctx, w.inner.Name(), err, deps, actx)
		}

		return nil, err
	}

	return out, nil
}

func (w *errorHandlingAction) ValidateInput(data JobData) error {
	if v, ok := w.inner.(InputValidator); ok {
		return v.ValidateInput(data)
	}
	return nil
}

// OnError is a no-op: Execute already dispatched the error, and without
// this the timing adapter would dispatch a second time.
func (w *errorHandlingAction) OnError(context.Context, error, JobData, *Deps, *ActionContext) {}

func (w *errorHandlingAction) Retryable() bool { return IsRetryableAction(w.inner) }

func (w *errorHandlingAction) Priority() int { return PriorityOf(w.inner) }
