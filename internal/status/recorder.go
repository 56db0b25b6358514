package status

import (
	"context"
	"log/slog"
)

// EventStore persists broadcast events for replay.
type EventStore interface {
	Insert(ctx context.Context, event Event) error
}

// ImportStateSink lets the recorder flip the import row on terminal
// events without importing the repo packages here.
type ImportStateSink interface {
	MarkFailed(ctx context.Context, importID, message string) error
}

// Recorder decorates a broadcaster: events still fan out to the inner
// sink, and on the side they are persisted and terminal failures are
// reflected on the import row. Storage errors never block the broadcast.
type Recorder struct {
	inner Broadcaster
	store EventStore
	state ImportStateSink
	log   *slog.Logger
}

func NewRecorder(inner Broadcaster, store EventStore, state ImportStateSink, log *slog.Logger) *Recorder {
	return &Recorder{inner: inner, store: store, state: state, log: log}
}

func (r *Recorder) AddStatusEventAndBroadcast(ctx context.Context, event Event) error {
	if r.store != nil && event.ImportID != "" {
		if err := r.store.Insert(ctx, event); err != nil && r.log != nil {
			r.log.WarnContext(ctx, "status.record failed", "import_id", event.ImportID, "err", err)
		}
	}

	if r.state != nil && event.Status == StatusFailed && event.ImportID != "" {
		if err := r.state.MarkFailed(ctx, event.ImportID, event.Message); err != nil && r.log != nil {
			r.log.WarnContext(ctx, "status.mark_failed failed", "import_id", event.ImportID, "err", err)
		}
	}

	if r.inner == nil {
		return nil
	}

	return r.inner.AddStatusEventAndBroadcast(ctx, event)
}
