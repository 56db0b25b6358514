package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// WorkerRegistry starts the workers for every declared queue and holds
// them for graceful shutdown.
type WorkerRegistry struct {
	log *slog.Logger

	mu      sync.Mutex
	workers []*Worker
}

func NewWorkerRegistry(log *slog.Logger) *WorkerRegistry {
	return &WorkerRegistry{log: log}
}

func (r *WorkerRegistry) Add(w *Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers = append(r.workers, w)
}

func (r *WorkerRegistry) Workers() []*Worker {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Worker, len(r.workers))
	copy(out, r.workers)
	return out
}

// StartAll wires up every worker. A failure stops the rollout and shuts
// down whatever already started.
func (r *WorkerRegistry) StartAll(ctx context.Context) error {
	started := make([]*Worker, 0, len(r.Workers()))

	for _, w := range r.Workers() {
		if err := w.Start(ctx); err != nil {
			if r.log != nil {
				r.log.Error("registry.start failed", "worker", w.Name(), "err", err)
			}

			for _, s := range started {
				_ = s.Stop(ctx)
			}
			return err
		}
		started = append(started, w)
	}

	if r.log != nil {
		r.log.Info("registry.started", "workers", len(started))
	}

	return nil
}

// StopAll drains every worker concurrently and waits for all of them
// before returning.
func (r *WorkerRegistry) StopAll(ctx context.Context) error {
	workers := r.Workers()

	var wg sync.WaitGroup
	errs := make([]error, len(workers))

	for i, w := range workers {
		wg.Add(1)
		go func(i int, w *Worker) {
			defer wg.Done()
			errs[i] = w.Stop(ctx)
		}(i, w)
	}

	wg.Wait()

	if r.log != nil {
		r.log.Info("registry.stopped", "workers", len(workers))
	}

	return errors.Join(errs...)
}
