package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type saveNoteInput struct {
	ImportID string `json:"importId" validate:"required"`
	Value    string `json:"value" validate:"required"`
	Title    string `json:"title"`
}

func TestTypedAction_RunsWithTypedInput(t *testing.T) {
	var got saveNoteInput

	a := &TypedAction[saveNoteInput]{
		ActionName: "save_note",
		Run: func(_ context.Context, in saveNoteInput, _ *Deps, _ *ActionContext) (JobData, error) {
			got = in
			return JobData{"noteId": "n1"}, nil
		},
	}

	data := JobData{"importId": "i1", "value": "chicken soup", "title": "Soup"}

	res := ExecuteWithTiming(context.Background(), a, data, &Deps{}, testCtx())

	if !res.Success() {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if got.ImportID != "i1" || got.Value != "chicken soup" || got.Title != "Soup" {
		t.Fatalf("typed input mismatch: %+v", got)
	}
	if res.Data["noteId"] != "n1" {
		t.Fatalf("run output must flow through, got %+v", res.Data)
	}
}

func TestTypedAction_TypeMismatchIsValidationFailure(t *testing.T) {
	ran := false

	a := &TypedAction[saveNoteInput]{
		ActionName: "save_note",
		Run: func(_ context.Context, _ saveNoteInput, _ *Deps, _ *ActionContext) (JobData, error) {
			ran = true
			return nil, nil
		},
	}

	// value is a number where the schema wants a string
	res := ExecuteWithTiming(context.Background(), a, JobData{"importId": "i1", "value": 123}, &Deps{}, testCtx())

	if res.Success() {
		t.Fatalf("expected rejection")
	}
	if ran {
		t.Fatalf("run must not execute on schema rejection")
	}
	if !errors.Is(res.Err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", res.Err)
	}
	if !strings.Contains(res.Err.Error(), "expected string") {
		t.Fatalf("message should name the expected type, got %q", res.Err.Error())
	}
	if res.Duration < 0 {
		t.Fatalf("duration must be >= 0")
	}
}

func TestTypedAction_AllIssuesJoined(t *testing.T) {
	a := &TypedAction[saveNoteInput]{
		ActionName: "save_note",
		Run: func(_ context.Context, _ saveNoteInput, _ *Deps, _ *ActionContext) (JobData, error) {
			return nil, nil
		},
	}

	res := ExecuteWithTiming(context.Background(), a, JobData{}, &Deps{}, testCtx())

	if res.Success() {
		t.Fatalf("expected rejection for empty payload")
	}

	msg := res.Err.Error()
	if !strings.Contains(msg, "importId is required") || !strings.Contains(msg, "value is required") {
		t.Fatalf("expected every issue listed, got %q", msg)
	}
	if !strings.Contains(msg, ", ") {
		t.Fatalf("issues should be joined by a comma, got %q", msg)
	}
}
