package imports

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("import not found")

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Import tracks one end-to-end user import across all pipeline stages.
// Its ID is the correlation id every status event carries.
type Import struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	Filename  string    `json:"filename,omitempty"`
	Status    Status    `json:"status"`
	NoteID    *string   `json:"noteId,omitempty"`
	LastError *string   `json:"lastError,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CreateRequest struct {
	UserID   string
	Filename string
}

func New(req CreateRequest) Import {
	now := time.Now().UTC()

	return Import{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Filename:  req.Filename,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
