package engine

import "time"

// ActionContext is the per-job descriptor carried alongside the payload
// through every action. It is created at worker pickup and never mutated
// by actions.
type ActionContext struct {
	JobID         string
	AttemptNumber int // 1-based; bumped by the queue on redelivery
	RetryCount    int // queue-level attempts so far
	QueueName     string
	WorkerName    string
	Operation     string // human-readable stage name for logs and status events
	StartTime     time.Time
}
