package engine

import (
	"context"
	"errors"
	"fmt"
)

// ActionConfig overrides behavior flags without touching the action
// itself.
type ActionConfig struct {
	Retryable *bool
	Priority  *int
}

type configuredAction struct {
	inner Action
	cfg   ActionConfig
}

// WithConfig returns a new logical action with retryable and/or priority
// overridden. Name and all behavior are preserved; the original instance
// is unchanged.
func WithConfig(a Action, cfg ActionConfig) Action {
	return &configuredAction{inner: a, cfg: cfg}
}

func (c *configuredAction) Name() string { return c.inner.Name() }

func (c *configuredAction) Execute(ctx context.Context, data JobData, deps *Deps, actx *ActionContext) (JobData, error) {
	return c.inner.Execute(ctx, data, deps, actx)
}

func (c *configuredAction) ValidateInput(data JobData) error {
	if v, ok := c.inner.(InputValidator); ok {
		return v.ValidateInput(data)
	}
	return nil
}

func (c *configuredAction) OnError(ctx context.Context, execErr error, data JobData, deps *Deps, actx *ActionContext) {
	if h, ok := c.inner.(ErrorHandler); ok {
		h.OnError(ctx, execErr, data, deps, actx)
		return
	}
	defaultErrorLog(ctx, c.inner.Name(), execErr, deps, actx)
}

func (c *configuredAction) Retryable() bool {
	if c.cfg.Retryable != nil {
		return *c.cfg.Retryable
	}
	return IsRetryableAction(c.inner)
}

func (c *configuredAction) Priority() int {
	if c.cfg.Priority != nil {
		return *c.cfg.Priority
	}
	return PriorityOf(c.inner)
}

// NoopAction returns its input unchanged. Placeholder slots and tests.
type NoopAction struct{}

func (NoopAction) Name() string { return "noop" }

func (NoopAction) Execute(_ context.Context, data JobData, _ *Deps, _ *ActionContext) (JobData, error) {
	return data, nil
}

// LogAction writes a message and passes the payload through untouched.
// Message is either a literal or a function of the payload and context.
type LogAction struct {
	Message   string
	MessageFn func(data JobData, actx *ActionContext) string
}

func (LogAction) Name() string { return "log" }

func (LogAction) Retryable() bool { return false }

func (a LogAction) Execute(ctx context.Context, data JobData, deps *Deps, actx *ActionContext) (JobData, error) {
	msg := a.Message
	if a.MessageFn != nil {
		msg = a.MessageFn(data, actx)
	}

	line := fmt.Sprintf("[%s] %s", jobIDOf(actx), msg)

	if deps != nil && deps.Logger != nil {
		deps.Logger.InfoContext(ctx, line)
	} else {
		fmt.Println(line)
	}

	return data, nil
}

// ValidationAction runs a predicate against the payload: on success the
// input passes through, on failure the pipeline stops with the error.
type ValidationAction struct {
	ActionName string
	Validate   func(data JobData) error
}

func (a ValidationAction) Name() string {
	if a.ActionName != "" {
		return a.ActionName
	}
	return "validation"
}

func (ValidationAction) Retryable() bool { return false }

func (a ValidationAction) Execute(_ context.Context, data JobData, _ *Deps, _ *ActionContext) (JobData, error) {
	if a.Validate == nil {
		return data, nil
	}

	if err := a.Validate(data); err != nil {
		if !errors.Is(err, ErrValidationFailed) {
			err = fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}
		return nil, err
	}

	return data, nil
}
