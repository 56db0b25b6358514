package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/awehrman/peas/internal/status"
)

// StatusAction marks the broadcast decorators. The worker treats their
// failures as advisory: a broken status sink never kills a pipeline.
type StatusAction interface {
	Action
	isStatusAction()
}

func IsStatusAction(a Action) bool {
	_, ok := a.(StatusAction)
	return ok
}

// ProcessingStatusAction announces that a stage started working on an
// import. It only speaks when the payload carries an importId and a
// broadcaster is wired; otherwise it is a silent pass-through.
type ProcessingStatusAction struct{}

func (ProcessingStatusAction) Name() string { return "processing_status" }

func (ProcessingStatusAction) Retryable() bool { return false }

func (ProcessingStatusAction) isStatusAction() {}

func (ProcessingStatusAction) Execute(ctx context.Context, data JobData, deps *Deps, actx *ActionContext) (JobData, error) {
	broadcastLifecycle(ctx, data, deps, actx, status.StatusProcessing, "Processing "+operationOf(actx), false)
	return data, nil
}

// CompletedStatusAction is the symmetric terminal decorator.
type CompletedStatusAction struct{}

func (CompletedStatusAction) Name() string { return "completed_status" }

func (CompletedStatusAction) Retryable() bool { return false }

func (CompletedStatusAction) isStatusAction() {}

func (CompletedStatusAction) Execute(ctx context.Context, data JobData, deps *Deps, actx *ActionContext) (JobData, error) {
	broadcastLifecycle(ctx, data, deps, actx, status.StatusCompleted, "Completed "+operationOf(actx), false)
	return data, nil
}

// FailedStatusAction surfaces a terminal failure. Unlike the other two it
// always tries to broadcast, even without an importId: failure must reach
// the user.
type FailedStatusAction struct {
	Err error
}

func (FailedStatusAction) Name() string { return "failed_status" }

func (FailedStatusAction) Retryable() bool { return false }

func (FailedStatusAction) isStatusAction() {}

func (a FailedStatusAction) Execute(ctx context.Context, data JobData, deps *Deps, actx *ActionContext) (JobData, error) {
	msg := operationOf(actx) + " failed"
	if a.Err != nil {
		msg = a.Err.Error()
	}

	broadcastLifecycle(ctx, data, deps, actx, status.StatusFailed, msg, true)
	return data, nil
}

func operationOf(actx *ActionContext) string {
	if actx == nil {
		return ""
	}
	return actx.Operation
}

func broadcastLifecycle(ctx context.Context, data JobData, deps *Deps, actx *ActionContext, st status.Status, msg string, force bool) {
	op := operationOf(actx)

	label := map[status.Status]string{
		status.StatusProcessing: "Processing",
		status.StatusCompleted:  "Completed",
		status.StatusFailed:     "Failed",
	}[st]

	if deps != nil && deps.Logger != nil {
		deps.Logger.InfoContext(ctx, "["+op+"] "+label+" status for job "+jobIDOf(actx))
	}

	if deps == nil || deps.Broadcaster == nil {
		return
	}

	importID := data.ImportID()
	if importID == "" && !force {
		return
	}

	event := status.Event{
		ImportID:    importID,
		NoteID:      data.NoteID(),
		Status:      st,
		Message:     msg,
		Context:     op,
		IndentLevel: 1,
		Metadata: map[string]any{
			"jobId":     jobIDOf(actx),
			"operation": op,
		},
	}

	if err := deps.Broadcaster.AddStatusEventAndBroadcast(ctx, event); err != nil {
		if deps.Logger != nil {
			deps.Logger.WarnContext(ctx, "Failed to broadcast: "+err.Error(),
				"import_id", importID,
				"status", string(st),
			)
		}
	}
}

var (
	ErrNilPipeline    = errors.New("pipeline is required")
	ErrNilOperationFn = errors.New("operation name function is required")
)

// InjectStandardStatusActions prepends the processing broadcast and
// appends the completed broadcast to a pipeline, in place.
func InjectStandardStatusActions(pipeline *[]Action, opName func() string, deps *Deps) error {
	if pipeline == nil {
		return ErrNilPipeline
	}
	if opName == nil {
		return ErrNilOperationFn
	}

	if deps != nil && deps.Logger != nil {
		deps.Logger.Info("[" + strings.ToUpper(opName()) + "] Adding status actions")
	}

	out := make([]Action, 0, len(*pipeline)+2)
	out = append(out, ProcessingStatusAction{})
	out = append(out, *pipeline...)
	out = append(out, CompletedStatusAction{})

	*pipeline = out
	return nil
}
