package ingest

import (
	"context"
	"fmt"

	"github.com/awehrman/peas/internal/engine"
	"github.com/awehrman/peas/internal/observability"
	"github.com/awehrman/peas/internal/queue"
)

// breaker key shared by every action that writes to the notes store: one
// sick database trips a single breaker instead of seven
const storeBreakerKey = "notes_store"

// StageDef declares one pipeline stage: its queue, the factory
// registrations, the action order, and which actions run under the
// store circuit breaker.
type StageDef struct {
	Queue     string
	Operation string
	Next      string

	Actions   []string
	Protected map[string]bool

	Register func(f *engine.Factory)
}

// pipelineStage adapts a StageDef to the engine's Stage interface. It
// needs its worker back to pull wrapped actions from the worker factory,
// so construction goes through NewStageWorker.
type pipelineStage struct {
	def StageDef
	w   *engine.Worker
}

func (s *pipelineStage) OperationName() string { return s.def.Operation }

func (s *pipelineStage) QueueName() string { return s.def.Queue }

func (s *pipelineStage) NextQueue() string { return s.def.Next }

func (s *pipelineStage) RegisterActions(f *engine.Factory) {
	s.def.Register(f)
}

func (s *pipelineStage) BuildPipeline(_ context.Context, _ engine.JobData, _ *engine.ActionContext) ([]engine.Action, error) {
	pipeline := make([]engine.Action, 0, len(s.def.Actions)+2)

	for _, name := range s.def.Actions {
		var (
			a   engine.Action
			err error
		)

		if s.def.Protected[name] {
			a, err = s.w.CreateProtectedAction(name)
		} else {
			a, err = s.w.CreateWrappedAction(name)
		}

		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", s.def.Queue, err)
		}
		if a == nil {
			return nil, fmt.Errorf("stage %s: constructor for %q returned nil", s.def.Queue, name)
		}

		pipeline = append(pipeline, a)
	}

	op := s.def.Operation
	if err := engine.InjectStandardStatusActions(&pipeline, func() string { return op }, nil); err != nil {
		return nil, err
	}

	return pipeline, nil
}

// NewStageWorker builds the worker for one stage definition.
func NewStageWorker(cfg engine.WorkerConfig, def StageDef, broker queue.Broker, deps *engine.Deps, prom *observability.Prom) *engine.Worker {
	s := &pipelineStage{def: def}

	if cfg.Name == "" {
		cfg.Name = def.Queue + "-worker"
	}

	w := engine.NewWorker(cfg, s, broker, deps, prom)
	s.w = w

	return w
}

// StageDefs declares the full import pipeline in order.
func StageDefs() []StageDef {
	return []StageDef{
		{
			Queue:     QueueParseHTML,
			Operation: "parse_html",
			Next:      QueueSaveNote,
			Actions:   []string{"parse_html"},
			Register: func(f *engine.Factory) {
				f.Register("parse_html", func(*engine.Deps) engine.Action { return NewParseHTMLAction() })
			},
		},
		{
			Queue:     QueueSaveNote,
			Operation: "save_note",
			Next:      QueueParseIngredients,
			Actions:   []string{"save_note"},
			Protected: map[string]bool{"save_note": true},
			Register: func(f *engine.Factory) {
				f.Register("save_note", func(*engine.Deps) engine.Action { return NewSaveNoteAction() })
			},
		},
		{
			Queue:     QueueParseIngredients,
			Operation: "parse_ingredients",
			Next:      QueueParseInstructions,
			Actions:   []string{"parse_ingredients"},
			Protected: map[string]bool{"parse_ingredients": true},
			Register: func(f *engine.Factory) {
				f.Register("parse_ingredients", func(*engine.Deps) engine.Action { return NewParseIngredientsAction() })
			},
		},
		{
			Queue:     QueueParseInstructions,
			Operation: "parse_instructions",
			Next:      QueueCategorization,
			Actions:   []string{"parse_instructions"},
			Protected: map[string]bool{"parse_instructions": true},
			Register: func(f *engine.Factory) {
				f.Register("parse_instructions", func(*engine.Deps) engine.Action { return NewParseInstructionsAction() })
			},
		},
		{
			Queue:     QueueCategorization,
			Operation: "categorization",
			Next:      QueueProcessSource,
			Actions:   []string{"categorize"},
			Protected: map[string]bool{"categorize": true},
			Register: func(f *engine.Factory) {
				f.Register("categorize", func(*engine.Deps) engine.Action { return NewCategorizeAction() })
			},
		},
		{
			Queue:     QueueProcessSource,
			Operation: "process_source",
			Next:      QueueProcessImage,
			Actions:   []string{"process_source"},
			Protected: map[string]bool{"process_source": true},
			Register: func(f *engine.Factory) {
				f.Register("process_source", func(*engine.Deps) engine.Action { return NewProcessSourceAction() })
			},
		},
		{
			Queue:     QueueProcessImage,
			Operation: "process_image",
			Actions:   []string{"process_image", "complete_import"},
			Protected: map[string]bool{"process_image": true, "complete_import": true},
			Register: func(f *engine.Factory) {
				f.Register("process_image", func(*engine.Deps) engine.Action { return NewProcessImageAction() })
				f.Register("complete_import", func(*engine.Deps) engine.Action { return NewCompleteImportAction() })
			},
		},
	}
}

// WorkerOptions carries the shared wiring for BuildWorkers.
type WorkerOptions struct {
	Broker      queue.Broker
	Deps        *engine.Deps
	Prom        *observability.Prom
	Concurrency int
	Drain       engine.WorkerConfig // template: Retry/Breaker/DrainTimeout
}

// BuildWorkers constructs one worker per stage and registers them all.
func BuildWorkers(opts WorkerOptions, registry *engine.WorkerRegistry, stats *observability.StatsRegistry) []*engine.Worker {
	var workers []*engine.Worker

	for _, def := range StageDefs() {
		cfg := opts.Drain
		cfg.Name = def.Queue + "-worker"
		cfg.Concurrency = opts.Concurrency

		// store-backed stages share the store breaker
		if len(def.Protected) > 0 {
			cfg.Breaker.BreakerKey = storeBreakerKey
		}

		w := NewStageWorker(cfg, def, opts.Broker, opts.Deps, opts.Prom)

		workers = append(workers, w)

		if registry != nil {
			registry.Add(w)
		}
		if stats != nil {
			stats.Add(w.Stats())
		}
	}

	return workers
}
