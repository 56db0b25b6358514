package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/awehrman/peas/internal/domain/imports"
)

type ImportsRepo struct {
	mu    sync.RWMutex
	items map[string]imports.Import
}

func NewImportsRepo() *ImportsRepo {
	return &ImportsRepo{
		items: make(map[string]imports.Import),
	}
}

func (r *ImportsRepo) Create(_ context.Context, req imports.CreateRequest) (imports.Import, error) {
	imp := imports.New(req)

	r.mu.Lock()
	r.items[imp.ID] = imp
	r.mu.Unlock()

	return imp, nil
}

func (r *ImportsRepo) GetByID(_ context.Context, id string) (imports.Import, error) {
	r.mu.RLock()
	imp, ok := r.items[id]
	r.mu.RUnlock()

	if !ok {
		return imports.Import{}, imports.ErrNotFound
	}
	return imp, nil
}

func (r *ImportsRepo) List(_ context.Context) ([]imports.Import, error) {
	r.mu.RLock()
	out := make([]imports.Import, 0, len(r.items))
	for _, imp := range r.items {
		out = append(out, imp)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out, nil
}

func (r *ImportsRepo) update(id string, fn func(*imports.Import)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	imp, ok := r.items[id]
	if !ok {
		return imports.ErrNotFound
	}

	fn(&imp)
	imp.UpdatedAt = time.Now().UTC()
	r.items[id] = imp

	return nil
}

func (r *ImportsRepo) SetStatus(_ context.Context, id string, status imports.Status, errMsg string) error {
	return r.update(id, func(imp *imports.Import) {
		imp.Status = status

		if errMsg != "" {
			imp.LastError = &errMsg
		} else {
			imp.LastError = nil
		}
	})
}

func (r *ImportsRepo) AttachNote(_ context.Context, id string, noteID string) error {
	return r.update(id, func(imp *imports.Import) {
		imp.NoteID = &noteID
	})
}
