package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/awehrman/peas/internal/domain/note"
	"github.com/awehrman/peas/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNoteNotFound = errors.New("note not found")

type NotesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewNotesRepo(pool *pgxpool.Pool, prom *observability.Prom) *NotesRepo {
	return &NotesRepo{pool: pool, prom: prom}
}

func (r *NotesRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *NotesRepo) Create(ctx context.Context, req note.CreateRequest) (note.Note, error) {
	n := note.New(req)
	op := "notes.create"

	imageRefs, err := json.Marshal(n.ImageRefs)
	if err != nil {
		return note.Note{}, err
	}

	err = r.observe(op, func() error {
		_, execErr := r.pool.Exec(ctx, `INSERT INTO notes(
	 id, import_id, title, content_html, source, image_refs, created_at, updated_at
	 ) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8
	 )
	 `, n.ID, n.ImportID, n.Title, n.ContentHTML, n.Source, imageRefs, n.CreatedAt, n.UpdatedAt)
		return execErr
	})

	if err != nil {
		return note.Note{}, err
	}

	return n, nil
}

func (r *NotesRepo) GetByID(ctx context.Context, id string) (note.Note, error) {
	var (
		n            note.Note
		imageRefs    []byte
		ingredients  []byte
		instructions []byte
		categories   []byte
		tags         []byte
		image        []byte
	)

	op := "notes.get_by_id"

	err := r.observe(op, func() error {
		return r.pool.QueryRow(ctx, `
		SELECT id, import_id, title, content_html, source,
		       image_refs, ingredients, instructions, categories, tags, image,
		       created_at, updated_at
		FROM notes
		WHERE id = $1
	`, id).Scan(
			&n.ID, &n.ImportID, &n.Title, &n.ContentHTML, &n.Source,
			&imageRefs, &ingredients, &instructions, &categories, &tags, &image,
			&n.CreatedAt, &n.UpdatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return note.Note{}, ErrNoteNotFound
		}
		return note.Note{}, err
	}

	// jsonb columns; absent values come back as SQL NULL
	for _, col := range []struct {
		raw []byte
		dst any
	}{
		{imageRefs, &n.ImageRefs},
		{ingredients, &n.Ingredients},
		{instructions, &n.Instructions},
		{categories, &n.Categories},
		{tags, &n.Tags},
		{image, &n.Image},
	} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dst); err != nil {
			return note.Note{}, err
		}
	}

	return n, nil
}

func (r *NotesRepo) updateJSONColumn(ctx context.Context, op, column, id string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return r.observe(op, func() error {
		tag, execErr := r.pool.Exec(ctx, `
		UPDATE notes
		SET `+column+` = $2,
		    updated_at = NOW()
		WHERE id = $1
	`, id, raw)

		if execErr != nil {
			return execErr
		}
		if tag.RowsAffected() == 0 {
			return ErrNoteNotFound
		}
		return nil
	})
}

func (r *NotesRepo) UpdateIngredients(ctx context.Context, id string, lines []note.IngredientLine) error {
	return r.updateJSONColumn(ctx, "notes.update_ingredients", "ingredients", id, lines)
}

func (r *NotesRepo) UpdateInstructions(ctx context.Context, id string, lines []note.InstructionLine) error {
	return r.updateJSONColumn(ctx, "notes.update_instructions", "instructions", id, lines)
}

func (r *NotesRepo) SetCategories(ctx context.Context, id string, categories, tags []string) error {
	catRaw, err := json.Marshal(categories)
	if err != nil {
		return err
	}
	tagRaw, err := json.Marshal(tags)
	if err != nil {
		return err
	}

	op := "notes.set_categories"

	return r.observe(op, func() error {
		tag, execErr := r.pool.Exec(ctx, `
		UPDATE notes
		SET categories = $2,
		    tags = $3,
		    updated_at = NOW()
		WHERE id = $1
	`, id, catRaw, tagRaw)

		if execErr != nil {
			return execErr
		}
		if tag.RowsAffected() == 0 {
			return ErrNoteNotFound
		}
		return nil
	})
}

func (r *NotesRepo) SetSource(ctx context.Context, id string, source string) error {
	op := "notes.set_source"

	return r.observe(op, func() error {
		tag, execErr := r.pool.Exec(ctx, `
		UPDATE notes
		SET source = $2,
		    updated_at = NOW()
		WHERE id = $1
	`, id, source)

		if execErr != nil {
			return execErr
		}
		if tag.RowsAffected() == 0 {
			return ErrNoteNotFound
		}
		return nil
	})
}

func (r *NotesRepo) SetImage(ctx context.Context, id string, image note.ImageMeta) error {
	return r.updateJSONColumn(ctx, "notes.set_image", "image", id, image)
}
