package postgres

import (
	"context"
	"errors"

	"github.com/awehrman/peas/internal/domain/imports"
	"github.com/awehrman/peas/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ImportsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewImportsRepo(pool *pgxpool.Pool, prom *observability.Prom) *ImportsRepo {
	return &ImportsRepo{pool: pool, prom: prom}
}

func (r *ImportsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *ImportsRepo) Create(ctx context.Context, req imports.CreateRequest) (imports.Import, error) {
	imp := imports.New(req)
	op := "imports.create"

	err := r.observe(op, func() error {
		_, execErr := r.pool.Exec(ctx, `INSERT INTO imports(
	 id, user_id, filename, status, note_id, last_error, created_at, updated_at
	 ) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8
	 )
	 `, imp.ID, imp.UserID, imp.Filename, string(imp.Status), imp.NoteID, imp.LastError, imp.CreatedAt, imp.UpdatedAt)
		return execErr
	})

	if err != nil {
		return imports.Import{}, err
	}

	return imp, nil
}

func (r *ImportsRepo) GetByID(ctx context.Context, id string) (imports.Import, error) {
	var imp imports.Import
	var statusStr string

	op := "imports.get_by_id"

	err := r.observe(op, func() error {
		return r.pool.QueryRow(ctx, `
		SELECT id, user_id, filename, status, note_id, last_error, created_at, updated_at
		FROM imports
		WHERE id = $1
	`, id).Scan(
			&imp.ID, &imp.UserID, &imp.Filename, &statusStr, &imp.NoteID, &imp.LastError,
			&imp.CreatedAt, &imp.UpdatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return imports.Import{}, imports.ErrNotFound
		}
		return imports.Import{}, err
	}

	imp.Status = imports.Status(statusStr)
	return imp, nil
}

func (r *ImportsRepo) List(ctx context.Context, limit int) ([]imports.Import, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}

	var out []imports.Import
	op := "imports.list"

	err := r.observe(op, func() error {
		rows, qErr := r.pool.Query(ctx, `
		SELECT id, user_id, filename, status, note_id, last_error, created_at, updated_at
		FROM imports
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)

		if qErr != nil {
			return qErr
		}
		defer rows.Close()

		for rows.Next() {
			var imp imports.Import
			var statusStr string

			if scanErr := rows.Scan(
				&imp.ID, &imp.UserID, &imp.Filename, &statusStr, &imp.NoteID, &imp.LastError,
				&imp.CreatedAt, &imp.UpdatedAt,
			); scanErr != nil {
				return scanErr
			}

			imp.Status = imports.Status(statusStr)
			out = append(out, imp)
		}

		return rows.Err()
	})

	if err != nil {
		return nil, err
	}

	return out, nil
}

func (r *ImportsRepo) SetStatus(ctx context.Context, id string, status imports.Status, errMsg string) error {
	if !status.IsValid() {
		return errors.New("invalid import status: " + string(status))
	}

	var lastError *string
	if errMsg != "" {
		lastError = &errMsg
	}

	op := "imports.set_status"

	return r.observe(op, func() error {
		tag, execErr := r.pool.Exec(ctx, `
		UPDATE imports
		SET status = $2,
		    last_error = $3,
		    updated_at = NOW()
		WHERE id = $1
	`, id, string(status), lastError)

		if execErr != nil {
			return execErr
		}
		if tag.RowsAffected() == 0 {
			return imports.ErrNotFound
		}
		return nil
	})
}

func (r *ImportsRepo) AttachNote(ctx context.Context, id string, noteID string) error {
	op := "imports.attach_note"

	return r.observe(op, func() error {
		tag, execErr := r.pool.Exec(ctx, `
		UPDATE imports
		SET note_id = $2,
		    updated_at = NOW()
		WHERE id = $1
	`, id, noteID)

		if execErr != nil {
			return execErr
		}
		if tag.RowsAffected() == 0 {
			return imports.ErrNotFound
		}
		return nil
	})
}
