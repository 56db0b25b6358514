package engine

import (
	"context"
	"math"
	"math/rand"
	"time"
)

type RetryConfig struct {
	MaxAttempts       int           // retries on top of the first attempt; 0 = exactly one attempt
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Jitter            bool
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BaseDelay:         1 * time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2,
		Jitter:            true,
	}
}

// RetryDelay is the deterministic part of the backoff schedule: the wait
// before the k-th retry (0-based), jitter excluded.
func RetryDelay(cfg RetryConfig, k int) time.Duration {
	delay := time.Duration(float64(cfg.BaseDelay) * math.Pow(cfg.BackoffMultiplier, float64(k)))

	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}

	return delay
}

type retryAction struct {
	inner Action
	cfg   RetryConfig
}

// WrapRetry decorates an action with exponential backoff. Non-retryable
// errors (validation, permanent, open breaker, cancellation) and actions
// flagged retryable=false surface immediately.
func WrapRetry(a Action, cfg RetryConfig) Action {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 2
	}

	return &retryAction{inner: a, cfg: cfg}
}

func (w *retryAction) Name() string { return w.inner.Name() }

func (w *retryAction) Execute(ctx context.Context, data JobData, deps *Deps, actx *ActionContext) (JobData, error) {
	attempts := w.cfg.MaxAttempts + 1

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := RetryDelay(w.cfg, attempt-2)

			if w.cfg.Jitter {
				delay += time.Duration(rand.Float64() * 0.1 * float64(delay))
			}

			if deps != nil && deps.Logger != nil {
				deps.Logger.WarnContext(ctx, "action.retry",
					"action", w.inner.Name(),
					"job_id", jobIDOf(actx),
					"attempt", attempt,
					"max_attempts", attempts,
					"delay_ms", delay.Milliseconds(),
				)
			}

			// the attempt that just failed is retried, so it counts as a
			// failed execution in the action metrics
			if deps != nil && deps.Metrics != nil {
				deps.Metrics.RecordActionExecutionTime(w.inner.Name(), 0, false)
			}

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				// cancellation aborts the pending backoff; surface the
				// last real failure
				return nil, lastErr
			}
		}

		out, err := w.inner.Execute(ctx, data, deps, actx)
		if err == nil {
			return out, nil
		}

		lastErr = err

		if !IsRetryable(err) || !IsRetryableAction(w.inner) {
			return nil, err
		}
	}

	return nil, lastErr
}

func (w *retryAction) ValidateInput(data JobData) error {
	if v, ok := w.inner.(InputValidator); ok {
		return v.ValidateInput(data)
	}
	return nil
}

func (w *retryAction) OnError(ctx context.Context, execErr error, data JobData, deps *Deps, actx *ActionContext) {
	if h, ok := w.inner.(ErrorHandler); ok {
		h.OnError(ctx, execErr, data, deps, actx)
		return
	}
	defaultErrorLog(ctx, w.inner.Name(), execErr, deps, actx)
}

func (w *retryAction) Retryable() bool { return IsRetryableAction(w.inner) }

func (w *retryAction) Priority() int { return PriorityOf(w.inner) }
