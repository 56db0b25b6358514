package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/awehrman/peas/internal/observability"
	"github.com/awehrman/peas/internal/status"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StatusEventsRepo persists every broadcast status event so the importer
// UI can replay an import's progress after a reconnect.
type StatusEventsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewStatusEventsRepo(pool *pgxpool.Pool, prom *observability.Prom) *StatusEventsRepo {
	return &StatusEventsRepo{pool: pool, prom: prom}
}

func (r *StatusEventsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *StatusEventsRepo) Insert(ctx context.Context, e status.Event) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}

	op := "status_events.insert"

	return r.observe(op, func() error {
		_, execErr := r.pool.Exec(ctx, `INSERT INTO status_events(
	 id, import_id, note_id, status, message, context, indent_level, metadata, created_at
	 ) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9
	 )
	 `, uuid.NewString(), e.ImportID, nullable(e.NoteID), string(e.Status), e.Message, e.Context, e.IndentLevel, meta, time.Now().UTC())
		return execErr
	})
}

func (r *StatusEventsRepo) ListByImport(ctx context.Context, importID string) ([]status.Event, error) {
	var out []status.Event
	op := "status_events.list_by_import"

	err := r.observe(op, func() error {
		rows, qErr := r.pool.Query(ctx, `
		SELECT import_id, note_id, status, message, context, indent_level, metadata
		FROM status_events
		WHERE import_id = $1
		ORDER BY created_at ASC
	`, importID)

		if qErr != nil {
			return qErr
		}
		defer rows.Close()

		for rows.Next() {
			var e status.Event
			var noteID *string
			var statusStr string
			var meta []byte

			if scanErr := rows.Scan(&e.ImportID, &noteID, &statusStr, &e.Message, &e.Context, &e.IndentLevel, &meta); scanErr != nil {
				return scanErr
			}

			if noteID != nil {
				e.NoteID = *noteID
			}
			e.Status = status.Status(statusStr)

			if len(meta) > 0 {
				if err := json.Unmarshal(meta, &e.Metadata); err != nil {
					return err
				}
			}

			out = append(out, e)
		}

		return rows.Err()
	})

	if err != nil {
		return nil, err
	}

	return out, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
