package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/awehrman/peas/internal/domain/note"
	"github.com/awehrman/peas/internal/engine"
	"github.com/google/uuid"
)

type ParseInstructionsInput struct {
	ImportID         string   `json:"importId" validate:"required"`
	NoteID           string   `json:"noteId" validate:"required"`
	InstructionLines []string `json:"instructionLines"`
}

// NewParseInstructionsAction normalizes the instruction lines (step
// numbering stripped, sentences trimmed) and persists them in order.
func NewParseInstructionsAction() engine.Action {
	return &engine.TypedAction[ParseInstructionsInput]{
		ActionName: "parse_instructions",
		Run: func(ctx context.Context, in ParseInstructionsInput, d *engine.Deps, actx *engine.ActionContext) (engine.JobData, error) {
			svc, err := servicesFrom(d)
			if err != nil {
				return nil, err
			}

			lines := make([]note.InstructionLine, 0, len(in.InstructionLines))

			for _, raw := range in.InstructionLines {
				text := NormalizeInstruction(raw)
				if text == "" {
					continue
				}

				lines = append(lines, note.InstructionLine{
					ID:        uuid.NewString(),
					LineIndex: len(lines),
					Reference: text,
					Parsed:    true,
				})
			}

			if err := svc.Notes.UpdateInstructions(ctx, in.NoteID, lines); err != nil {
				return nil, fmt.Errorf("update instructions: %w", err)
			}

			return engine.JobData{"instructionCount": len(lines)}, nil
		},
	}
}

// NormalizeInstruction strips leading step markers ("1.", "Step 2:", "-")
// and collapses whitespace.
func NormalizeInstruction(raw string) string {
	s := cleanLine(raw)

	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "step") {
		rest := strings.TrimSpace(s[4:])
		rest = strings.TrimLeft(rest, "0123456789")
		rest = strings.TrimLeft(rest, ":.) ")
		if rest != "" {
			s = rest
		}
	}

	s = strings.TrimLeft(s, "-*• ")

	// "1. Preheat the oven" / "2) Mix"
	trimmed := strings.TrimLeft(s, "0123456789")
	if trimmed != s && len(trimmed) > 0 && (trimmed[0] == '.' || trimmed[0] == ')' || trimmed[0] == ':') {
		s = strings.TrimSpace(trimmed[1:])
	}

	return strings.TrimSpace(s)
}
