package observability

import (
	"context"
	"log/slog"

	"github.com/awehrman/peas/internal/importctx"
	"go.opentelemetry.io/otel/trace"
)

// TraceHandler stamps every record with the otel trace/span ids and the
// pipeline correlation ids carried in the context.
type TraceHandler struct {
	next slog.Handler
}

func NewTraceHandler(next slog.Handler) *TraceHandler {
	return &TraceHandler{next: next}
}

func (h *TraceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	span := trace.SpanFromContext(ctx)
	sc := span.SpanContext()

	if sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}

	if importID, ok := importctx.ImportIDFrom(ctx); ok {
		r.AddAttrs(slog.String("import_id", importID))
	}
	if jobID, ok := importctx.JobIDFrom(ctx); ok {
		r.AddAttrs(slog.String("pipeline_job_id", jobID))
	}

	return h.next.Handle(ctx, r)
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{next: h.next.WithAttrs(attrs)}
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{next: h.next.WithGroup(name)}
}
