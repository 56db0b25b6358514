package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/awehrman/peas/internal/http/handlers"
	"github.com/awehrman/peas/internal/ingest"
	"github.com/awehrman/peas/internal/queue/memqueue"
	"github.com/awehrman/peas/internal/repo/memory"
	"github.com/gin-gonic/gin"
)

func importsRouter(broker *memqueue.Broker, importsRepo *memory.ImportsRepo, notes *memory.NotesRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)

	h := handlers.NewImportsHandler(importsRepo, notes, nil, broker, slog.New(slog.DiscardHandler))

	r := gin.New()
	r.POST("/api/v1/imports", h.Create)
	r.GET("/api/v1/imports/:id", h.Get)

	return r
}

func TestCreateImport_EnqueuesFirstStage(t *testing.T) {
	broker := memqueue.New(3)
	importsRepo := memory.NewImportsRepo()
	notes := memory.NewNotesRepo()

	r := importsRouter(broker, importsRepo, notes)

	body := `{"filename":"soup.html","content":"<html><body><h1>Soup</h1></body></html>"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("got status %d, want 202, body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		ImportID string `json:"importId"`
		Status   string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.ImportID == "" {
		t.Fatalf("expected an importId")
	}
	if resp.Status != "pending" {
		t.Fatalf("status: got %q", resp.Status)
	}

	// the import row exists
	if _, err := importsRepo.GetByID(context.Background(), resp.ImportID); err != nil {
		t.Fatalf("import row missing: %v", err)
	}

	// and the parse_html queue has the job
	depth, _ := broker.Depth(context.Background(), ingest.QueueParseHTML)
	if depth.Waiting != 1 {
		t.Fatalf("expected 1 waiting job on %s, got %d", ingest.QueueParseHTML, depth.Waiting)
	}
}

func TestGetImport_NotFound(t *testing.T) {
	r := importsRouter(memqueue.New(3), memory.NewImportsRepo(), memory.NewNotesRepo())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/imports/nope", nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", w.Code)
	}
}
