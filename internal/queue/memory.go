package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tenantsync/engine/internal/storage"
	"github.com/tenantsync/engine/pkg/logger"
)

// MemoryQueue is an in-process Queue backed by buffered channels, used in
// tests and DSN-less local runs, mirroring the teacher's in-memory/Postgres
// store dual-implementation pattern.
type MemoryQueue struct {
	log         *logger.Logger
	deadLetters storage.DeadLetterStore
	concurrency int

	mu       sync.Mutex
	handlers map[string]map[string]Handler // queue -> jobName -> handler
	ready    map[string]chan envelope      // queue -> channel
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	started  bool
}

func NewMemoryQueue(log *logger.Logger, deadLetters storage.DeadLetterStore, concurrencyPerQueue int) *MemoryQueue {
	if concurrencyPerQueue <= 0 {
		concurrencyPerQueue = 4
	}
	return &MemoryQueue{
		log:         log,
		deadLetters: deadLetters,
		concurrency: concurrencyPerQueue,
		handlers:    make(map[string]map[string]Handler),
		ready:       make(map[string]chan envelope),
	}
}

func (q *MemoryQueue) Name() string { return "memory-queue" }

func (q *MemoryQueue) RegisterHandler(queueName, jobName string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.handlers[queueName] == nil {
		q.handlers[queueName] = make(map[string]Handler)
	}
	q.handlers[queueName][jobName] = h
	q.channelFor(queueName)
}

// channelFor returns (creating if needed) the ready channel for a queue.
// Caller must hold q.mu.
func (q *MemoryQueue) channelFor(queueName string) chan envelope {
	ch, ok := q.ready[queueName]
	if !ok {
		ch = make(chan envelope, 1024)
		q.ready[queueName] = ch
	}
	return ch
}

func (q *MemoryQueue) Enqueue(ctx context.Context, queueName, jobName string, payload []byte, opts Options) error {
	e := envelope{
		ID:          uuid.NewString(),
		Queue:       queueName,
		Name:        jobName,
		Payload:     payload,
		Attempt:     1,
		MaxAttempts: opts.Attempts,
		Backoff:     opts.Backoff,
		EnqueuedAt:  time.Now(),
	}
	if e.MaxAttempts <= 0 {
		e.MaxAttempts = DefaultOptions().Attempts
	}
	q.mu.Lock()
	ch := q.channelFor(queueName)
	q.mu.Unlock()
	select {
	case ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	for queueName, ch := range q.ready {
		for i := 0; i < q.concurrency; i++ {
			q.wg.Add(1)
			go q.worker(runCtx, queueName, ch)
		}
	}
	q.started = true
	return nil
}

func (q *MemoryQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	cancel := q.cancel
	q.started = false
	q.mu.Unlock()
	if cancel != nil {
		cancel()
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

func (q *MemoryQueue) worker(ctx context.Context, queueName string, ch chan envelope) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-ch:
			q.process(ctx, queueName, ch, e)
		}
	}
}

func (q *MemoryQueue) process(ctx context.Context, queueName string, ch chan envelope, e envelope) {
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
	delay := backoffDelay(next.Attempt)
	q.wg.Add(1)
	time.AfterFunc(delay, func() {
		defer q.wg.Done()
		select {
		case ch <- next:
		case <-ctx.Done():
		}
	})
}
