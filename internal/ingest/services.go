package ingest

import (
	"context"
	"fmt"

	"github.com/awehrman/peas/internal/domain/imports"
	"github.com/awehrman/peas/internal/domain/note"
	"github.com/awehrman/peas/internal/engine"
)

// NotesStore is the slice of persistence the pipeline actions need.
type NotesStore interface {
	Create(ctx context.Context, req note.CreateRequest) (note.Note, error)
	GetByID(ctx context.Context, id string) (note.Note, error)
	UpdateIngredients(ctx context.Context, id string, lines []note.IngredientLine) error
	UpdateInstructions(ctx context.Context, id string, lines []note.InstructionLine) error
	SetCategories(ctx context.Context, id string, categories, tags []string) error
	SetSource(ctx context.Context, id string, source string) error
	SetImage(ctx context.Context, id string, image note.ImageMeta) error
}

// ImportsStore tracks the end-to-end import row.
type ImportsStore interface {
	SetStatus(ctx context.Context, id string, status imports.Status, errMsg string) error
	AttachNote(ctx context.Context, id string, noteID string) error
}

// Services is the dependency bundle the stage workers hand to their
// actions through engine deps.
type Services struct {
	Notes   NotesStore
	Imports ImportsStore
}

func servicesFrom(d *engine.Deps) (*Services, error) {
	if d == nil || d.Services == nil {
		return nil, fmt.Errorf("%w: ingest services not wired", engine.ErrPermanent)
	}

	svc, ok := d.Services.(*Services)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected services type %T", engine.ErrPermanent, d.Services)
	}

	return svc, nil
}
