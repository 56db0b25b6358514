package status

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// LogBroadcaster writes status events to the logger, which is handy in
// dev to see the import progress inline with the worker logs. Neither
// binary wires it in; the worker publishes through the redis broadcaster.
type LogBroadcaster struct {
	log *slog.Logger
}

func NewLogBroadcaster(log *slog.Logger) *LogBroadcaster {
	return &LogBroadcaster{log: log}
}

func (b *LogBroadcaster) AddStatusEventAndBroadcast(ctx context.Context, event Event) error {
	// Optional: simulate a slow or broken sink for local failure drills
	if msStr := os.Getenv("STATUS_SINK_SLEEP_MS"); msStr != "" {
		ms, _ := strconv.Atoi(msStr)
		if ms > 0 {
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if os.Getenv("STATUS_SINK_FAIL") == "1" {
		return errSinkDown
	}

	b.log.InfoContext(ctx, "status.event",
		"import_id", event.ImportID,
		"note_id", event.NoteID,
		"status", string(event.Status),
		"context", event.Context,
		"indent", event.IndentLevel,
		"message", event.Message,
	)
	return nil
}
