package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/awehrman/peas/internal/domain/imports"
	"github.com/awehrman/peas/internal/domain/note"
	"github.com/awehrman/peas/internal/engine"
	"github.com/awehrman/peas/internal/status"
)

type ProcessImageInput struct {
	ImportID  string   `json:"importId" validate:"required"`
	NoteID    string   `json:"noteId" validate:"required"`
	ImageRefs []string `json:"imageRefs"`
}

// NewProcessImageAction picks the primary image reference and stores its
// metadata. Notes without images pass straight through.
func NewProcessImageAction() engine.Action {
	return &engine.TypedAction[ProcessImageInput]{
		ActionName: "process_image",
		Run: func(ctx context.Context, in ProcessImageInput, d *engine.Deps, actx *engine.ActionContext) (engine.JobData, error) {
			svc, err := servicesFrom(d)
			if err != nil {
				return nil, err
			}

			meta, ok := PrimaryImage(in.ImageRefs)
			if !ok {
				return engine.JobData{"imageProcessed": false}, nil
			}

			if err := svc.Notes.SetImage(ctx, in.NoteID, meta); err != nil {
				return nil, fmt.Errorf("set image: %w", err)
			}

			return engine.JobData{
				"imageProcessed": true,
				"imageFormat":    meta.Format,
			}, nil
		},
	}
}

// PrimaryImage chooses the first usable reference and classifies it.
func PrimaryImage(refs []string) (note.ImageMeta, bool) {
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}

		meta := note.ImageMeta{URL: ref}

		if strings.HasPrefix(ref, "data:") {
			meta.IsData = true
			meta.Format = formatFromDataURL(ref)
			return meta, true
		}

		meta.Format = formatFromExtension(ref)
		return meta, true
	}

	return note.ImageMeta{}, false
}

func formatFromDataURL(ref string) string {
	// data:image/png;base64,...
	rest := strings.TrimPrefix(ref, "data:")

	if i := strings.IndexAny(rest, ";,"); i >= 0 {
		rest = rest[:i]
	}

	if strings.HasPrefix(rest, "image/") {
		return strings.TrimPrefix(rest, "image/")
	}
	return ""
}

func formatFromExtension(ref string) string {
	// drop query noise before looking at the extension
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}

	i := strings.LastIndex(ref, ".")
	if i < 0 || i == len(ref)-1 {
		return ""
	}

	ext := strings.ToLower(ref[i+1:])
	switch ext {
	case "jpg", "jpeg":
		return "jpeg"
	case "png", "gif", "webp", "bmp", "tiff", "avif":
		return ext
	default:
		return ""
	}
}

// NewCompleteImportAction is the terminal step of the last stage: it
// marks the import row completed and emits the import-level COMPLETED
// event the UI collapses the progress tree on.
func NewCompleteImportAction() engine.Action {
	return &engine.TypedAction[completeImportInput]{
		ActionName: "complete_import",
		Run: func(ctx context.Context, in completeImportInput, d *engine.Deps, actx *engine.ActionContext) (engine.JobData, error) {
			svc, err := servicesFrom(d)
			if err != nil {
				return nil, err
			}

			if err := svc.Imports.SetStatus(ctx, in.ImportID, imports.StatusCompleted, ""); err != nil {
				return nil, fmt.Errorf("complete import: %w", err)
			}

			if d.Broadcaster != nil {
				event := status.Event{
					ImportID:    in.ImportID,
					NoteID:      in.NoteID,
					Status:      status.StatusCompleted,
					Message:     "Import complete",
					Context:     "import",
					IndentLevel: 0,
				}
				if err := d.Broadcaster.AddStatusEventAndBroadcast(ctx, event); err != nil && d.Logger != nil {
					d.Logger.WarnContext(ctx, "Failed to broadcast: "+err.Error(), "import_id", in.ImportID)
				}
			}

			return engine.JobData{"importCompleted": true}, nil
		},
	}
}

type completeImportInput struct {
	ImportID string `json:"importId" validate:"required"`
	NoteID   string `json:"noteId" validate:"required"`
}
