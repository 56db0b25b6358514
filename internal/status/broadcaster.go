package status

import "context"

// Broadcaster is the sink the pipeline reports progress into.
// Callers treat it as best-effort: a broadcast error must never fail a job.
type Broadcaster interface {
	AddStatusEventAndBroadcast(ctx context.Context, event Event) error
}
