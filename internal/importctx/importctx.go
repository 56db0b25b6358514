package importctx

import "context"

type ctxKey string

const (
	keyImportID ctxKey = "import_id"
	keyJobID    ctxKey = "job_id"
)

// WithImportID tags a context with the import correlation id so log
// lines emitted anywhere under a pipeline can be grouped per import.
func WithImportID(ctx context.Context, importID string) context.Context {
	if importID == "" {
		return ctx
	}
	return context.WithValue(ctx, keyImportID, importID)
}

func ImportIDFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyImportID).(string)
	return v, ok && v != ""
}

func WithJobID(ctx context.Context, jobID string) context.Context {
	if jobID == "" {
		return ctx
	}
	return context.WithValue(ctx, keyJobID, jobID)
}

func JobIDFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyJobID).(string)
	return v, ok && v != ""
}
