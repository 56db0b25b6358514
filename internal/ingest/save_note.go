package ingest

import (
	"context"
	"fmt"

	"github.com/awehrman/peas/internal/domain/imports"
	"github.com/awehrman/peas/internal/domain/note"
	"github.com/awehrman/peas/internal/engine"
)

type SaveNoteInput struct {
	ImportID    string   `json:"importId" validate:"required"`
	Title       string   `json:"title" validate:"required"`
	ContentHTML string   `json:"contentHtml"`
	SourceURL   string   `json:"sourceUrl"`
	ImageRefs   []string `json:"imageRefs"`
}

// NewSaveNoteAction persists the parsed skeleton as a note and hands the
// new noteId to the rest of the pipeline. It also flips the import row to
// processing, so the UI shows work has started even when the user missed
// the first websocket events.
func NewSaveNoteAction() engine.Action {
	return &engine.TypedAction[SaveNoteInput]{
		ActionName: "save_note",
		Run: func(ctx context.Context, in SaveNoteInput, d *engine.Deps, actx *engine.ActionContext) (engine.JobData, error) {
			svc, err := servicesFrom(d)
			if err != nil {
				return nil, err
			}

			var source *string
			if in.SourceURL != "" {
				source = &in.SourceURL
			}

			n, err := svc.Notes.Create(ctx, note.CreateRequest{
				ImportID:    in.ImportID,
				Title:       in.Title,
				ContentHTML: in.ContentHTML,
				Source:      source,
				ImageRefs:   in.ImageRefs,
			})
			if err != nil {
				return nil, fmt.Errorf("create note: %w", err)
			}

			if err := svc.Imports.AttachNote(ctx, in.ImportID, n.ID); err != nil {
				// the note exists; losing the back-reference is not fatal
				if d.Logger != nil {
					d.Logger.WarnContext(ctx, "attach note to import failed",
						"import_id", in.ImportID,
						"note_id", n.ID,
						"err", err,
					)
				}
			}

			if err := svc.Imports.SetStatus(ctx, in.ImportID, imports.StatusProcessing, ""); err != nil && d.Logger != nil {
				d.Logger.WarnContext(ctx, "import status update failed", "import_id", in.ImportID, "err", err)
			}

			return engine.JobData{"noteId": n.ID}, nil
		},
	}
}
