package note

import (
	"time"

	"github.com/google/uuid"
)

// Note is the recipe being assembled by the import pipeline. Stages fill
// it in incrementally: parse_html creates it, later stages attach parsed
// ingredients, instructions, categories, source and image metadata.
type Note struct {
	ID          string    `json:"id"`
	ImportID    string    `json:"importId"`
	Title       string    `json:"title"`
	ContentHTML string    `json:"contentHtml"`
	Source      *string   `json:"source,omitempty"`
	ImageRefs   []string  `json:"imageRefs,omitempty"`

	Ingredients  []IngredientLine  `json:"ingredients,omitempty"`
	Instructions []InstructionLine `json:"instructions,omitempty"`

	Categories []string   `json:"categories,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	Image      *ImageMeta `json:"image,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IngredientLine is one parsed line from an ingredient block. Reference
// keeps the raw text so the UI can always fall back to it.
type IngredientLine struct {
	ID         string `json:"id"`
	BlockIndex int    `json:"blockIndex"`
	LineIndex  int    `json:"lineIndex"`
	Reference  string `json:"reference"`

	Quantity string `json:"quantity,omitempty"`
	Unit     string `json:"unit,omitempty"`
	Name     string `json:"name,omitempty"`
	Comment  string `json:"comment,omitempty"`

	Parsed bool   `json:"parsed"`
	Rule   string `json:"rule,omitempty"`
}

type InstructionLine struct {
	ID        string `json:"id"`
	LineIndex int    `json:"lineIndex"`
	Reference string `json:"reference"`
	Parsed    bool   `json:"parsed"`
}

type ImageMeta struct {
	URL    string `json:"url"`
	Format string `json:"format,omitempty"`
	IsData bool   `json:"isData"` // inline data: URL vs remote reference
}

type CreateRequest struct {
	ImportID    string
	Title       string
	ContentHTML string
	Source      *string
	ImageRefs   []string
}

// New builds a pending note from the parse_html stage output.
func New(req CreateRequest) Note {
	now := time.Now().UTC()

	return Note{
		ID:          uuid.NewString(),
		ImportID:    req.ImportID,
		Title:       req.Title,
		ContentHTML: req.ContentHTML,
		Source:      req.Source,
		ImageRefs:   req.ImageRefs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
