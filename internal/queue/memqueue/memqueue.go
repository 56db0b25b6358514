package memqueue

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/awehrman/peas/internal/queue"
	"github.com/google/uuid"
)

const defaultBuffer = 1024

// Broker is a channel-backed, in-process queue. It keeps the same
// at-least-once redelivery semantics as the redis broker (attempts,
// backoff, dead-letter) so the engine and the tests exercise identical
// behavior without a running redis.
type Broker struct {
	maxAttempts int

	// test hook: overrides the redelivery delay when set
	RedeliveryDelay func(attempt int) time.Duration

	mu     sync.Mutex
	queues map[string]chan *queue.Job
	active map[string]*atomic.Int64
	dead   map[string][]*queue.Job

	timers sync.WaitGroup
}

func New(maxAttempts int) *Broker {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	return &Broker{
		maxAttempts: maxAttempts,
		queues:      make(map[string]chan *queue.Job),
		active:      make(map[string]*atomic.Int64),
		dead:        make(map[string][]*queue.Job),
	}
}

func (b *Broker) channel(queueName string) chan *queue.Job {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.queues[queueName]
	if !ok {
		ch = make(chan *queue.Job, defaultBuffer)
		b.queues[queueName] = ch
		b.active[queueName] = &atomic.Int64{}
	}

	return ch
}

func (b *Broker) Enqueue(ctx context.Context, queueName string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	j := &queue.Job{
		ID:          uuid.NewString(),
		Queue:       queueName,
		Attempt:     0,
		MaxAttempts: b.maxAttempts,
		EnqueuedAt:  time.Now().UTC(),
		Payload:     raw,
	}

	select {
	case b.channel(queueName) <- j:
		return j.ID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	default:
		return "", queue.ErrQueueFull
	}
}

func (b *Broker) Consume(ctx context.Context, queueName string, concurrency int, h queue.Handler) (queue.StopFunc, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	ch := b.channel(queueName)

	consumeCtx, cancel := context.WithCancel(context.Background())

	// in-flight handlers run on their own context so stop can let them
	// finish until the drain context expires
	jobCtx, cancelJobs := context.WithCancel(context.Background())

	var wg sync.WaitGroup

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for {
				select {
				case <-ctx.Done():
					return
				case <-consumeCtx.Done():
					return
				case j := <-ch:
					b.handleOne(jobCtx, queueName, j, h)
				}
			}
		}()
	}

	stop := func(drainCtx context.Context) error {
		// stop pulling new jobs, then give in-flight work until the
		// drain context expires
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		cancel()

		select {
		case <-done:
			cancelJobs()
			return nil
		case <-drainCtx.Done():
			cancelJobs()
			return drainCtx.Err()
		}
	}

	return stop, nil
}

func (b *Broker) handleOne(ctx context.Context, queueName string, j *queue.Job, h queue.Handler) {
	b.mu.Lock()
	counter := b.active[queueName]
	b.mu.Unlock()

	counter.Add(1)
	defer counter.Add(-1)

	j.Attempt++

	err := h(ctx, j)
	if err == nil {
		return
	}

	if queue.IsUnretryable(err) || j.Attempt >= j.MaxAttempts {
		b.mu.Lock()
		b.dead[queueName] = append(b.dead[queueName], j)
		b.mu.Unlock()
		return
	}

	delay := queue.RedeliveryBackoff(j.Attempt - 1)
	if b.RedeliveryDelay != nil {
		delay = b.RedeliveryDelay(j.Attempt - 1)
	}

	b.timers.Add(1)
	go func() {
		defer b.timers.Done()

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}

		select {
		case b.channel(queueName) <- j:
		default:
			// queue full on redelivery; park it in the dead list so the
			// job is not silently lost
			b.mu.Lock()
			b.dead[queueName] = append(b.dead[queueName], j)
			b.mu.Unlock()
		}
	}()
}

func (b *Broker) Depth(ctx context.Context, queueName string) (queue.Depth, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.queues[queueName]
	if !ok {
		return queue.Depth{}, nil
	}

	return queue.Depth{
		Waiting: len(ch),
		Active:  int(b.active[queueName].Load()),
		Dead:    len(b.dead[queueName]),
	}, nil
}

// DeadLetters returns the jobs that exhausted their attempts.
func (b *Broker) DeadLetters(queueName string) []*queue.Job {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*queue.Job, len(b.dead[queueName]))
	copy(out, b.dead[queueName])
	return out
}
