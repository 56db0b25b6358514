package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/awehrman/peas/internal/queue"
	"github.com/awehrman/peas/internal/queue/redisclient"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "peas:q:"
	popTimeout    = 2 * time.Second
	promoteEvery  = 1 * time.Second
	promoteChunk  = 100
)

type Config struct {
	MaxAttempts int
}

// Broker moves jobs through redis lists: a pending list per queue, a
// processing list while a handler runs, a delayed zset for backoff
// redelivery and a dead list once attempts are exhausted. Delivery is
// at-least-once: a worker that dies mid-job leaves the entry in the
// processing list, and the next Consume sweeps it back to pending.
type Broker struct {
	client *redisclient.Client
	log    *slog.Logger
	cfg    Config
}

func New(client *redisclient.Client, log *slog.Logger, cfg Config) *Broker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}

	return &Broker{client: client, log: log, cfg: cfg}
}

func pendingKey(q string) string    { return keyPrefix + q }
func processingKey(q string) string { return keyPrefix + q + ":processing" }
func delayedKey(q string) string    { return keyPrefix + q + ":delayed" }
func deadKey(q string) string       { return keyPrefix + q + ":dead" }

func (b *Broker) Enqueue(ctx context.Context, queueName string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	j := queue.Job{
		ID:          uuid.NewString(),
		Queue:       queueName,
		Attempt:     0,
		MaxAttempts: b.cfg.MaxAttempts,
		EnqueuedAt:  time.Now().UTC(),
		Payload:     raw,
	}

	body, err := json.Marshal(j)
	if err != nil {
		return "", err
	}

	if err := b.client.Raw().LPush(ctx, pendingKey(queueName), body).Err(); err != nil {
		return "", err
	}

	return j.ID, nil
}

func (b *Broker) Consume(ctx context.Context, queueName string, concurrency int, h queue.Handler) (queue.StopFunc, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	// sweep anything a dead worker left in the processing list
	if n, err := b.recoverProcessing(ctx, queueName); err != nil {
		b.log.Warn("redisqueue.recover failed", "queue", queueName, "err", err)
	} else if n > 0 {
		b.log.Info("redisqueue.recovered stale jobs", "queue", queueName, "count", n)
	}

	consumeCtx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(workerNum int) {
			defer wg.Done()
			b.consumeLoop(ctx, consumeCtx, queueName, workerNum, h)
		}(i + 1)
	}

	// one promoter per queue consumer moves due delayed jobs back to pending
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.promoteLoop(ctx, consumeCtx, queueName)
	}()

	stop := func(drainCtx context.Context) error {
		cancel()

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			return nil
		case <-drainCtx.Done():
			return drainCtx.Err()
		}
	}

	return stop, nil
}

func (b *Broker) consumeLoop(appCtx, consumeCtx context.Context, queueName string, workerNum int, h queue.Handler) {
	rdb := b.client.Raw()

	for {
		select {
		case <-appCtx.Done():
			return
		case <-consumeCtx.Done():
			return
		default:
		}

		raw, err := rdb.BRPopLPush(appCtx, pendingKey(queueName), processingKey(queueName), popTimeout).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if appCtx.Err() != nil || consumeCtx.Err() != nil {
				return
			}

			b.log.Warn("redisqueue.pop failed", "queue", queueName, "worker_num", workerNum, "err", err)

			select {
			case <-time.After(time.Second):
			case <-appCtx.Done():
				return
			}
			continue
		}

		var j queue.Job
		if err := json.Unmarshal([]byte(raw), &j); err != nil {
			// poison entry: it can never be processed, park it in dead
			b.log.Error("redisqueue.bad envelope", "queue", queueName, "err", err)
			rdb.LPush(appCtx, deadKey(queueName), raw)
			rdb.LRem(appCtx, processingKey(queueName), 1, raw)
			continue
		}

		j.Attempt++

		handlerErr := h(appCtx, &j)

		if handlerErr == nil {
			rdb.LRem(appCtx, processingKey(queueName), 1, raw)
			continue
		}

		b.reoffer(appCtx, queueName, raw, &j, handlerErr)
	}
}

// reoffer reschedules a failed job with backoff, or dead-letters it once
// attempts run out.
func (b *Broker) reoffer(ctx context.Context, queueName, raw string, j *queue.Job, handlerErr error) {
	rdb := b.client.Raw()

	body, err := json.Marshal(j)
	if err != nil {
		body = []byte(raw)
	}

	if queue.IsUnretryable(handlerErr) || j.Attempt >= j.MaxAttempts {
		rdb.LPush(ctx, deadKey(queueName), body)
		rdb.LRem(ctx, processingKey(queueName), 1, raw)

		b.log.Error("redisqueue.dead_lettered",
			"queue", queueName,
			"job_id", j.ID,
			"attempts", strconv.Itoa(j.Attempt)+"/"+strconv.Itoa(j.MaxAttempts),
			"err", handlerErr,
		)
		return
	}

	delay := queue.RedeliveryBackoff(j.Attempt - 1)
	runAt := time.Now().Add(delay)

	rdb.ZAdd(ctx, delayedKey(queueName), redis.Z{
		Score:  float64(runAt.UnixMilli()),
		Member: body,
	})
	rdb.LRem(ctx, processingKey(queueName), 1, raw)

	b.log.Warn("redisqueue.retry_scheduled",
		"queue", queueName,
		"job_id", j.ID,
		"attempt", strconv.Itoa(j.Attempt)+"/"+strconv.Itoa(j.MaxAttempts),
		"next_run", runAt.UTC().Format(time.RFC3339),
		"err", handlerErr,
	)
}

func (b *Broker) promoteLoop(appCtx, consumeCtx context.Context, queueName string) {
	rdb := b.client.Raw()

	t := time.NewTicker(promoteEvery)
	defer t.Stop()

	for {
		select {
		case <-appCtx.Done():
			return
		case <-consumeCtx.Done():
			return

		case <-t.C:
			now := strconv.FormatInt(time.Now().UnixMilli(), 10)

			due, err := rdb.ZRangeByScore(appCtx, delayedKey(queueName), &redis.ZRangeBy{
				Min:   "-inf",
				Max:   now,
				Count: promoteChunk,
			}).Result()

			if err != nil || len(due) == 0 {
				continue
			}

			for _, member := range due {
				// remove first so two promoters cannot double-deliver
				removed, err := rdb.ZRem(appCtx, delayedKey(queueName), member).Result()
				if err != nil || removed == 0 {
					continue
				}
				rdb.LPush(appCtx, pendingKey(queueName), member)
			}
		}
	}
}

func (b *Broker) recoverProcessing(ctx context.Context, queueName string) (int, error) {
	rdb := b.client.Raw()

	moved := 0
	for {
		_, err := rdb.RPopLPush(ctx, processingKey(queueName), pendingKey(queueName)).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				return moved, nil
			}
			return moved, err
		}
		moved++
	}
}

func (b *Broker) Depth(ctx context.Context, queueName string) (queue.Depth, error) {
	rdb := b.client.Raw()

	waiting, err := rdb.LLen(ctx, pendingKey(queueName)).Result()
	if err != nil {
		return queue.Depth{}, err
	}

	active, err := rdb.LLen(ctx, processingKey(queueName)).Result()
	if err != nil {
		return queue.Depth{}, err
	}

	delayed, err := rdb.ZCard(ctx, delayedKey(queueName)).Result()
	if err != nil {
		return queue.Depth{}, err
	}

	dead, err := rdb.LLen(ctx, deadKey(queueName)).Result()
	if err != nil {
		return queue.Depth{}, err
	}

	return queue.Depth{
		Waiting: int(waiting),
		Active:  int(active),
		Delayed: int(delayed),
		Dead:    int(dead),
	}, nil
}
