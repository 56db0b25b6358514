package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

type BreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	BreakerKey       string // defaults to the pipeline operation name
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     60 * time.Second,
	}
}

type breakerState struct {
	failures    int
	lastFailure time.Time
	state       BreakerState
}

// breakers are shared process-wide: every pipeline hitting the same key
// sees the same state.
var (
	breakersMu sync.Mutex
	breakers   = make(map[string]*breakerState)
)

// ResetBreakers clears all breaker state. Called on startup/shutdown and
// between tests.
func ResetBreakers() {
	breakersMu.Lock()
	defer breakersMu.Unlock()
	breakers = make(map[string]*breakerState)
}

// BreakerSnapshot reports a breaker's current state for the admin
// surface. ok is false when the key has never tripped or run.
func BreakerSnapshot(key string) (state BreakerState, failures int, ok bool) {
	breakersMu.Lock()
	defer breakersMu.Unlock()

	b, found := breakers[key]
	if !found {
		return "", 0, false
	}
	return b.state, b.failures, true
}

type breakerAction struct {
	inner Action
	cfg   BreakerConfig

	// test hook for the reset window
	now func() time.Time
}

// WrapCircuitBreaker decorates an action with a shared circuit breaker.
// All wrappers using the same key share one breaker.
func WrapCircuitBreaker(a Action, cfg BreakerConfig) Action {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}

	return &breakerAction{inner: a, cfg: cfg, now: time.Now}
}

func (w *breakerAction) Name() string { return w.inner.Name() }

func (w *breakerAction) key(actx *ActionContext) string {
	if w.cfg.BreakerKey != "" {
		return w.cfg.BreakerKey
	}
	if actx != nil && actx.Operation != "" {
		return actx.Operation
	}
	return w.inner.Name()
}

func (w *breakerAction) Execute(ctx context.Context, data JobData, deps *Deps, actx *ActionContext) (JobData, error) {
	key := w.key(actx)

	allowed, halfOpen := w.beforeCall(key)

	if !allowed {
		return nil, fmt.Errorf("%w for %s", ErrCircuitOpen, key)
	}

	out, err := w.inner.Execute(ctx, data, deps, actx)

	w.afterCall(ctx, key, halfOpen, err, deps)

	if err != nil {
		return nil, err
	}
	return out, nil
}

// beforeCall decides whether the wrapped action may run and whether this
// call is the half-open trial.
func (w *breakerAction) beforeCall(key string) (allowed, halfOpen bool) {
	breakersMu.Lock()
	defer breakersMu.Unlock()

	b, ok := breakers[key]
	if !ok {
		b = &breakerState{state: BreakerClosed}
		breakers[key] = b
	}

	switch b.state {
	case BreakerOpen:
		if w.now().Sub(b.lastFailure) > w.cfg.ResetTimeout {
			b.state = BreakerHalfOpen
			return true, true
		}
		return false, false

	case BreakerHalfOpen:
		return true, true

	default:
		return true, false
	}
}

func (w *breakerAction) afterCall(ctx context.Context, key string, halfOpen bool, execErr error, deps *Deps) {
	breakersMu.Lock()
	defer breakersMu.Unlock()

	b := breakers[key]
	if b == nil {
		return
	}

	if execErr == nil {
		if halfOpen {
			b.state = BreakerClosed
			b.failures = 0
		}
		return
	}

	b.failures++
	b.lastFailure = w.now()

	if halfOpen {
		b.state = BreakerOpen
		return
	}

	if b.failures >= w.cfg.FailureThreshold && b.state != BreakerOpen {
		b.state = BreakerOpen

		if deps != nil && deps.Logger != nil {
			deps.Logger.ErrorContext(ctx, "breaker.opened",
				"key", key,
				"failures", b.failures,
				"threshold", w.cfg.FailureThreshold,
			)
		}
	}
}

func (w *breakerAction) ValidateInput(data JobData) error {
	if v, ok := w.inner.(InputValidator); ok {
		return v.ValidateInput(data)
	}
	return nil
}

func (w *breakerAction) OnError(ctx context.Context, execErr error, data JobData, deps *Deps, actx *ActionContext) {
	if h, ok := w.inner.(ErrorHandler); ok {
		h.OnError(ctx, execErr, data, deps, actx)
		return
	}
	defaultErrorLog(ctx, w.inner.Name(), execErr, deps, actx)
}

func (w *breakerAction) Retryable() bool { return IsRetryableAction(w.inner) }

func (w *breakerAction) Priority() int { return PriorityOf(w.inner) }
