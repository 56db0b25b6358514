package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// WorkerStats tracks one worker's lifetime counters with atomics so the
// concurrent pipelines never contend on a lock for bookkeeping.
type WorkerStats struct {
	workerID  string
	queueName string
	startedAt time.Time

	processed atomic.Uint64
	failed    atomic.Uint64

	// duration stats (nanoseconds)
	durationCount atomic.Uint64
	durationTotal atomic.Int64
	durationMax   atomic.Int64

	lastJobUnixNano atomic.Int64
}

func NewWorkerStats(workerID, queueName string) *WorkerStats {
	return &WorkerStats{
		workerID:  workerID,
		queueName: queueName,
		startedAt: time.Now(),
	}
}

func (s *WorkerStats) IncProcessed() {
	s.processed.Add(1)
}

func (s *WorkerStats) IncFailed() {
	s.failed.Add(1)
}

func (s *WorkerStats) ObserveDuration(d time.Duration) {
	ns := d.Nanoseconds()
	s.durationCount.Add(1)
	s.durationTotal.Add(ns)
	s.lastJobUnixNano.Store(time.Now().UnixNano())

	// max update

	for {
		curr := s.durationMax.Load()

		if ns <= curr {
			return
		}

		if s.durationMax.CompareAndSwap(curr, ns) {
			return
		}
	}
}

type WorkerSnapshot struct {
	WorkerID              string        `json:"workerId"`
	QueueName             string        `json:"queueName"`
	JobsProcessed         uint64        `json:"jobsProcessed"`
	JobsFailed            uint64        `json:"jobsFailed"`
	AverageProcessingTime time.Duration `json:"averageProcessingTime"`
	MaxProcessingTime     time.Duration `json:"maxProcessingTime"`
	LastJobTime           *time.Time    `json:"lastJobTime,omitempty"`
	UptimeMs              int64         `json:"uptimeMs"`
}

func (s *WorkerStats) Snapshot() WorkerSnapshot {
	count := s.durationCount.Load()
	total := s.durationTotal.Load()
	max := s.durationMax.Load()

	var avg time.Duration

	if count > 0 {
		avg = time.Duration(total / int64(count))
	}

	var last *time.Time
	if ns := s.lastJobUnixNano.Load(); ns > 0 {
		t := time.Unix(0, ns)
		last = &t
	}

	return WorkerSnapshot{
		WorkerID:              s.workerID,
		QueueName:             s.queueName,
		JobsProcessed:         s.processed.Load(),
		JobsFailed:            s.failed.Load(),
		AverageProcessingTime: avg,
		MaxProcessingTime:     time.Duration(max),
		LastJobTime:           last,
		UptimeMs:              time.Since(s.startedAt).Milliseconds(),
	}
}

type QueueSnapshot struct {
	QueueName      string    `json:"queueName"`
	JobCount       int       `json:"jobCount"`
	WaitingCount   int       `json:"waitingCount"`
	ActiveCount    int       `json:"activeCount"`
	CompletedCount int       `json:"completedCount"`
	FailedCount    int       `json:"failedCount"`
	Timestamp      time.Time `json:"timestamp"`
}

type SystemSnapshot struct {
	Workers      []WorkerSnapshot `json:"workers"`
	Queues       []QueueSnapshot  `json:"queues"`
	SystemUptime int64            `json:"systemUptimeMs"`
	MemoryUsage  uint64           `json:"memoryUsageBytes"`
	CPUUsage     float64          `json:"cpuUsage"`
}

// StatsRegistry aggregates every worker's stats for the snapshot endpoint.
type StatsRegistry struct {
	mu        sync.RWMutex
	startedAt time.Time
	workers   []*WorkerStats
}

func NewStatsRegistry() *StatsRegistry {
	return &StatsRegistry{startedAt: time.Now()}
}

func (r *StatsRegistry) Add(stats *WorkerStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers = append(r.workers, stats)
}

func (r *StatsRegistry) WorkerSnapshots() []WorkerSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]WorkerSnapshot, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, w.Snapshot())
	}

	return out
}

// System builds the aggregate view. CPUUsage is a utilization proxy:
// total pipeline busy time over wall uptime (can exceed 1 under
// concurrency).
func (r *StatsRegistry) System(queues []QueueSnapshot) SystemSnapshot {
	workers := r.WorkerSnapshots()

	uptime := time.Since(r.startedAt)

	var busy time.Duration
	for _, w := range workers {
		busy += w.AverageProcessingTime * time.Duration(w.JobsProcessed)
	}

	usage := 0.0
	if uptime > 0 {
		usage = float64(busy) / float64(uptime)
	}

	return SystemSnapshot{
		Workers:      workers,
		Queues:       queues,
		SystemUptime: uptime.Milliseconds(),
		MemoryUsage:  MemoryUsageBytes(),
		CPUUsage:     usage,
	}
}
