package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/awehrman/peas/internal/config"
	"github.com/awehrman/peas/internal/domain/imports"
	"github.com/awehrman/peas/internal/domain/note"
	"github.com/awehrman/peas/internal/http/middlewares"
	"github.com/awehrman/peas/internal/ingest"
	"github.com/awehrman/peas/internal/queue"
	"github.com/awehrman/peas/internal/status"
	"github.com/gin-gonic/gin"
)

type ImportsStore interface {
	Create(ctx context.Context, req imports.CreateRequest) (imports.Import, error)
	GetByID(ctx context.Context, id string) (imports.Import, error)
}

type NotesReader interface {
	GetByID(ctx context.Context, id string) (note.Note, error)
}

type StatusEventsReader interface {
	ListByImport(ctx context.Context, importID string) ([]status.Event, error)
}

type ImportsHandler struct {
	store  ImportsStore
	notes  NotesReader
	events StatusEventsReader // optional; nil without persistence
	broker queue.Broker
	log    *slog.Logger
}

func NewImportsHandler(store ImportsStore, notes NotesReader, events StatusEventsReader, broker queue.Broker, log *slog.Logger) *ImportsHandler {
	return &ImportsHandler{
		store:  store,
		notes:  notes,
		events: events,
		broker: broker,
		log:    log,
	}
}

type CreateImportRequest struct {
	Filename string `json:"filename" binding:"omitempty,max=255"`
	Content  string `json:"content" binding:"required,min=1"`
}

// POST /api/v1/imports
//
// Creates the import row and enqueues the first pipeline stage. The
// response is a 202: everything else happens on the workers and is
// observable over the status websocket.
func (h *ImportsHandler) Create(ctx *gin.Context) {
	var req CreateImportRequest

	if !BindJSON(ctx, &req) {
		return
	}

	userID, _ := middlewares.UserIDFromContext(ctx)

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	imp, err := h.store.Create(cctx, imports.CreateRequest{
		UserID:   userID,
		Filename: req.Filename,
	})

	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "import.create failed", "err", err)
		RespondInternal(ctx, "Could not create import")
		return
	}

	_, err = h.broker.Enqueue(cctx, ingest.QueueParseHTML, map[string]any{
		"importId": imp.ID,
		"content":  req.Content,
		"filename": req.Filename,
	})

	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "import.enqueue failed", "import_id", imp.ID, "err", err)
		RespondInternal(ctx, "Could not enqueue import")
		return
	}

	h.log.InfoContext(ctx.Request.Context(), "import.accepted",
		"import_id", imp.ID,
		"filename", req.Filename,
	)

	ctx.JSON(http.StatusAccepted, gin.H{
		"importId": imp.ID,
		"status":   imp.Status,
	})
}

// GET /api/v1/imports/:id
func (h *ImportsHandler) Get(ctx *gin.Context) {
	id := ctx.Param("id")

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	imp, err := h.store.GetByID(cctx, id)
	if err != nil {
		RespondNotFound(ctx, "Import not found")
		return
	}

	resp := gin.H{"import": imp}

	if imp.NoteID != nil {
		if n, err := h.notes.GetByID(cctx, *imp.NoteID); err == nil {
			resp["note"] = n
		}
	}

	ctx.JSON(http.StatusOK, resp)
}

// GET /api/v1/imports/:id/events — replay the status stream for an
// import (what the websocket already delivered live).
func (h *ImportsHandler) Events(ctx *gin.Context) {
	if h.events == nil {
		RespondNotFound(ctx, "Event history is not enabled")
		return
	}

	id := ctx.Param("id")

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	events, err := h.events.ListByImport(cctx, id)
	if err != nil {
		RespondInternal(ctx, "Could not load events")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"events": events})
}
