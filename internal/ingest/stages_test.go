package ingest

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/awehrman/peas/internal/domain/imports"
	"github.com/awehrman/peas/internal/engine"
	"github.com/awehrman/peas/internal/observability"
	"github.com/awehrman/peas/internal/queue/memqueue"
	"github.com/awehrman/peas/internal/repo/memory"
	"github.com/awehrman/peas/internal/status"
)

type recordingSink struct {
	mu     sync.Mutex
	events []status.Event
}

func (s *recordingSink) AddStatusEventAndBroadcast(_ context.Context, e status.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) Events() []status.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]status.Event, len(s.events))
	copy(out, s.events)
	return out
}

// TestPipeline_EndToEnd pushes one import through all seven stages over
// the in-process broker and checks the assembled note.
func TestPipeline_EndToEnd(t *testing.T) {
	engine.ResetBreakers()
	defer engine.ResetBreakers()

	broker := memqueue.New(3)
	notes := memory.NewNotesRepo()
	importsRepo := memory.NewImportsRepo()
	sink := &recordingSink{}
	collector := observability.NewMetricsCollector(5000)

	deps := &engine.Deps{
		Logger:      slog.New(slog.DiscardHandler),
		Broadcaster: sink,
		Metrics:     observability.NewWorkerMetrics(collector),
		Services:    &Services{Notes: notes, Imports: importsRepo},
	}

	registry := engine.NewWorkerRegistry(deps.Logger)

	BuildWorkers(WorkerOptions{
		Broker:      broker,
		Deps:        deps,
		Concurrency: 1,
		Drain: engine.WorkerConfig{
			DrainTimeout: time.Second,
			Retry:        engine.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond, BackoffMultiplier: 2},
		},
	}, registry, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := registry.StartAll(ctx); err != nil {
		t.Fatalf("start workers: %v", err)
	}
	defer registry.StopAll(ctx)

	imp, err := importsRepo.Create(ctx, imports.CreateRequest{Filename: "chicken-soup.html"})
	if err != nil {
		t.Fatalf("create import: %v", err)
	}

	if _, err := broker.Enqueue(ctx, QueueParseHTML, map[string]any{
		"importId": imp.ID,
		"content":  sampleNoteHTML,
		"filename": "chicken-soup.html",
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// wait for the terminal stage to mark the import completed
	deadline := time.Now().Add(5 * time.Second)
	for {
		got, _ := importsRepo.GetByID(ctx, imp.ID)
		if got.Status == imports.StatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("import never completed; status=%s events=%d", got.Status, len(sink.Events()))
		}
		time.Sleep(10 * time.Millisecond)
	}

	final, _ := importsRepo.GetByID(ctx, imp.ID)
	if final.NoteID == nil {
		t.Fatalf("import should reference the created note")
	}

	n, err := notes.GetByID(ctx, *final.NoteID)
	if err != nil {
		t.Fatalf("load note: %v", err)
	}

	if n.Title != "Weeknight Chicken Soup" {
		t.Fatalf("title: got %q", n.Title)
	}
	if len(n.Ingredients) != 5 {
		t.Fatalf("ingredients: got %d", len(n.Ingredients))
	}
	if len(n.Instructions) != 3 {
		t.Fatalf("instructions: got %d", len(n.Instructions))
	}
	if len(n.Categories) == 0 {
		t.Fatalf("expected categories on a chicken soup note")
	}
	if n.Source == nil || *n.Source != "https://www.example.com/recipes/chicken-soup" {
		t.Fatalf("source: got %v", n.Source)
	}
	if n.Image == nil || n.Image.Format != "jpeg" {
		t.Fatalf("image: got %+v", n.Image)
	}

	// ingredient grammar did real work
	first := n.Ingredients[0]
	if first.Quantity != "2" || first.Unit != "tablespoon" || first.Name != "olive oil" {
		t.Fatalf("first ingredient parse: %+v", first)
	}

	// one PROCESSING + one COMPLETED per stage, plus the import-level
	// COMPLETED, and no failures
	var processing, completed, failed int
	for _, e := range sink.Events() {
		if e.ImportID != imp.ID {
			t.Fatalf("stray importId on event: %+v", e)
		}
		switch e.Status {
		case status.StatusProcessing:
			processing++
		case status.StatusCompleted:
			completed++
		case status.StatusFailed:
			failed++
		}
	}

	if failed != 0 {
		t.Fatalf("expected no FAILED events, got %d", failed)
	}
	if processing != 7 {
		t.Fatalf("expected 7 PROCESSING events, got %d", processing)
	}
	if completed != 8 { // 7 stage events + the import-level one
		t.Fatalf("expected 8 COMPLETED events, got %d", completed)
	}

	if s := collector.GetMetricSummary("worker.job.success"); s == nil || s.Sum != 7 {
		t.Fatalf("expected 7 successful pipeline runs, got %+v", s)
	}
}
