package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/tenantsync/engine/internal/storage"
	"github.com/tenantsync/engine/pkg/logger"
)

// RedisQueue implements Queue with Redis lists for ready jobs, a sorted set
// for delayed/backoff retries; dead-lettered jobs are recorded in the
// DeadLetterStore.
type RedisQueue struct {
	client      *redis.Client
	log         *logger.Logger
	deadLetters storage.DeadLetterStore
	concurrency int
	reapEvery   time.Duration

	mu       sync.Mutex
	handlers map[string]map[string]Handler
	queues   map[string]bool

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewRedisQueue(client *redis.Client, log *logger.Logger, deadLetters storage.DeadLetterStore, concurrencyPerQueue int) *RedisQueue {
	if concurrencyPerQueue <= 0 {
		concurrencyPerQueue = 4
	}
	return &RedisQueue{
		client:      client,
		log:         log,
		deadLetters: deadLetters,
		concurrency: concurrencyPerQueue,
		reapEvery:   5 * time.Second,
		handlers:    make(map[string]map[string]Handler),
		queues:      make(map[string]bool),
	}
}

func (q *RedisQueue) Name() string { return "redis-queue" }

func readyKey(queueName string) string   { return fmt.Sprintf("queue:%s:ready", queueName) }
func delayedKey(queueName string) string { return fmt.Sprintf("queue:%s:delayed", queueName) }

func (q *RedisQueue) RegisterHandler(queueName, jobName string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.handlers[queueName] == nil {
		q.handlers[queueName] = make(map[string]Handler)
	}
	q.handlers[queueName][jobName] = h
	q.queues[queueName] = true
}

func (q *RedisQueue) Enqueue(ctx context.Context, queueName, jobName string, payload []byte, opts Options) error {
	e := envelope{
		Queue: queueName, Name: jobName, Payload: payload,
		Attempt: 1, MaxAttempts: opts.Attempts, Backoff: opts.Backoff, EnqueuedAt: time.Now(),
	}
	if e.MaxAttempts <= 0 {
		e.MaxAttempts = DefaultOptions().Attempts
	}
	e.ID = fmt.Sprintf("%s-%d", jobName, time.Now().UnixNano())
	raw, err := e.encode()
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, readyKey(queueName), raw).Err()
}

func (q *RedisQueue) Start(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel

	q.mu.Lock()
	queues := make([]string, 0, len(q.queues))
	for name := range q.queues {
		queues = append(queues, name)
	}
	q.mu.Unlock()

	for _, name := range queues {
		for i := 0; i < q.concurrency; i++ {
			q.wg.Add(1)
			go q.worker(runCtx, name)
		}
		q.wg.Add(1)
		go q.reaper(runCtx, name)
	}
	return nil
}

func (q *RedisQueue) Stop(ctx context.Context) error {
	if q.cancel != nil {
		q.cancel()
	}
	done := make(chan struct{})
	go func() { q.wg.Wait(); close(done) }()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reaper moves delayed jobs whose due time has arrived back onto the ready list.
func (q *RedisQueue) reaper(ctx context.Context, queueName string) {
	defer q.wg.Done()
	ticker := time.NewTicker(q.reapEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := float64(time.Now().Unix())
			due, err := q.client.ZRangeByScore(ctx, delayedKey(queueName), &redis.ZRangeBy{
				Min: "0", Max: fmt.Sprintf("%f", now),
			}).Result()
			if err != nil || len(due) == 0 {
				continue
			}
			pipe := q.client.TxPipeline()
			for _, raw := range due {
				pipe.LPush(ctx, readyKey(queueName), raw)
				pipe.ZRem(ctx, delayedKey(queueName), raw)
			}
			if _, err := pipe.Exec(ctx); err != nil && q.log != nil {
				q.log.WithError(err).Error("reaper pipeline failed")
			}
		}
	}
}

func (q *RedisQueue) worker(ctx context.Context, queueName string) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		res, err := q.client.BRPop(ctx, 2*time.Second, readyKey(queueName)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			time.Sleep(time.Second)
			continue
		}
		if len(res) != 2 {
			continue
		}
		e, err := decodeEnvelope([]byte(res[1]))
		if err != nil {
			continue
		}
		q.process(ctx, queueName, e)
	}
}

func (q *RedisQueue) process(ctx context.Context, queueName string, e envelope) {
	q.mu.Lock()
	h, ok := q.handlers[queueName][e.Name]
	q.mu.Unlock()
	if !ok {
		if q.log != nil {
			q.log.WithField("queue", queueName).WithField("job", e.Name).Error("no handler registered")
		}
		return
	}
	job := Job{ID: e.ID, Queue: queueName, Name: e.Name, Payload: e.Payload, Attempt: e.Attempt, MaxAttempts: e.MaxAttempts, EnqueuedAt: e.EnqueuedAt}
	err := h(ctx, job)
	if err == nil {
		return
	}
	if e.Attempt >= e.MaxAttempts {
		if q.deadLetters != nil {
			_ = q.deadLetters.RecordDeadLetter(context.Background(), queueName, e.Name, e.Payload, err.Error(), e.Attempt)
		}
		if q.log != nil {
			q.log.WithField("queue", queueName).WithField("job", e.Name).WithError(err).Error("job dead-lettered")
		}
		return
	}
	next := e
	next.Attempt++
	due := float64(time.Now().Add(backoffDelay(next.Attempt)).Unix())
	raw, encErr := next.encode()
	if encErr != nil {
		return
	}
	if err := q.client.ZAdd(ctx, delayedKey(queueName), &redis.Z{Score: due, Member: raw}).Err(); err != nil && q.log != nil {
		q.log.WithError(err).Error("failed to schedule retry")
	}
}
