package queue

import (
	"math"
	"math/rand"
	"time"
)

// RedeliveryBackoff computes the delay before the broker re-offers a
// failed job. This is queue-level policy: it spaces out whole-pipeline
// re-runs and is independent of the per-action retry wrapper inside the
// engine.
//
// attempt=0 => 2s, attempt=1 => 4s, attempt=2 => 8s, capped at 5m.
func RedeliveryBackoff(attempt int) time.Duration {
	base := 2 * time.Second
	capDelay := 5 * time.Minute

	multiple := math.Pow(2, float64(attempt))
	delay := time.Duration(float64(base) * multiple)

	if delay > capDelay {
		delay = capDelay
	}

	// small jitter (0-250ms) to avoid thundering herd
	delay += time.Duration(rand.Intn(250)) * time.Millisecond
	return delay
}
