package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/awehrman/peas/internal/domain/note"
)

var ErrNotFound = errors.New("note not found")

// NotesRepo is the in-memory store used by tests and by the api binary's
// local mode (no postgres required to try the pipeline end to end).
type NotesRepo struct {
	mu    sync.RWMutex
	items map[string]note.Note
}

func NewNotesRepo() *NotesRepo {
	return &NotesRepo{
		items: make(map[string]note.Note),
	}
}

func (r *NotesRepo) Create(_ context.Context, req note.CreateRequest) (note.Note, error) {
	n := note.New(req)

	r.mu.Lock()
	r.items[n.ID] = n
	r.mu.Unlock()

	return n, nil
}

func (r *NotesRepo) GetByID(_ context.Context, id string) (note.Note, error) {
	r.mu.RLock()
	n, ok := r.items[id]
	r.mu.RUnlock()

	if !ok {
		return note.Note{}, ErrNotFound
	}
	return n, nil
}

func (r *NotesRepo) update(id string, fn func(*note.Note)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.items[id]
	if !ok {
		return ErrNotFound
	}

	fn(&n)
	n.UpdatedAt = time.Now().UTC()
	r.items[id] = n

	return nil
}

func (r *NotesRepo) UpdateIngredients(_ context.Context, id string, lines []note.IngredientLine) error {
	return r.update(id, func(n *note.Note) {
		n.Ingredients = lines
	})
}

func (r *NotesRepo) UpdateInstructions(_ context.Context, id string, lines []note.InstructionLine) error {
	return r.update(id, func(n *note.Note) {
		n.Instructions = lines
	})
}

func (r *NotesRepo) SetCategories(_ context.Context, id string, categories, tags []string) error {
	return r.update(id, func(n *note.Note) {
		n.Categories = categories
		n.Tags = tags
	})
}

func (r *NotesRepo) SetSource(_ context.Context, id string, source string) error {
	return r.update(id, func(n *note.Note) {
		n.Source = &source
	})
}

func (r *NotesRepo) SetImage(_ context.Context, id string, image note.ImageMeta) error {
	return r.update(id, func(n *note.Note) {
		n.Image = &image
	})
}
