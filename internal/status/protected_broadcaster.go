package status

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker open")

var errSinkDown = errors.New("status sink down (simulated)")

type ProtectedBroadcasterConfig struct {
	Timeout          time.Duration // hard timeout per broadcast
	FailureThreshold int           // consecutive failures to open circuit
	Cooldown         time.Duration // how long to stay open before half-open
	HalfOpenMaxCalls int           // allow N trial calls in half-open
}

// ProtectedBroadcaster shields the pipeline from a misbehaving status sink.
// Broadcasts are already advisory; the breaker just keeps a dead websocket
// hub or a hung persistence layer from stalling every job on timeouts.
type ProtectedBroadcaster struct {
	inner Broadcaster
	cfg   ProtectedBroadcasterConfig
	mu    sync.Mutex

	state string // "closed" | "open" | "half_open"

	consecutiveFailures int
	openedAt            time.Time
	halfOpenInFlight    int
}

func NewProtectedBroadcaster(inner Broadcaster, cfg ProtectedBroadcasterConfig) *ProtectedBroadcaster {
	// defaults
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}

	return &ProtectedBroadcaster{
		inner: inner,
		cfg:   cfg,
		state: "closed",
	}
}

func (b *ProtectedBroadcaster) AddStatusEventAndBroadcast(ctx context.Context, event Event) error {
	// fail-fast gate

	if !b.allowRequest() {
		return ErrCircuitOpen
	}

	// enforce timeout

	sendCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	err := b.inner.AddStatusEventAndBroadcast(sendCtx, event)

	b.afterRequest(err)

	return err
}

func (b *ProtectedBroadcaster) allowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case "closed":
		return true
	case "open":
		// cooldown has passed? move to half open

		if time.Since(b.openedAt) >= b.cfg.Cooldown {
			b.state = "half_open"
			b.halfOpenInFlight = 0
		} else {
			return false
		}

		b.halfOpenInFlight++
		return true
	case "half_open":
		if b.halfOpenInFlight >= b.cfg.HalfOpenMaxCalls {
			return false
		}
		b.halfOpenInFlight++
		return true

	default:
		// safe fallback
		return true
	}
}

func (b *ProtectedBroadcaster) afterRequest(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// half-open call just finished
	if b.state == "half_open" && b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}

	if err == nil {
		// success => close circuit and reset counters
		b.consecutiveFailures = 0
		b.state = "closed"
		return
	}

	// failure
	b.consecutiveFailures++

	// if half-open failed, reopen immediately
	if b.state == "half_open" {
		b.state = "open"
		b.openedAt = time.Now()
		return
	}

	if b.consecutiveFailures >= b.cfg.FailureThreshold {
		b.state = "open"
		b.openedAt = time.Now()
	}
}
