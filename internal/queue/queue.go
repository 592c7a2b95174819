// Package queue implements the durable, named job queues from §4.2: FIFO
// delivery, per-job attempt tracking with exponential backoff, and
// dead-letter routing for exhausted jobs. Two transports share this
// contract: an in-memory implementation for tests and DSN-less local runs,
// and a Redis-backed implementation for production.
package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Queue names, fixed per §4.2.
const (
	Ingest    = "ingest"
	Normalize = "normalize"
	Metrics   = "metrics"
	Feed      = "feed"
)

// Options configures one enqueued job's retry behaviour.
type Options struct {
	Attempts         int    // default 3
	Backoff          string // "exponential"; seed 30-60s
	RemoveOnComplete int    // default 100
	RemoveOnFail     int    // default 50
}

// DefaultOptions returns the §4.2 documented defaults.
func DefaultOptions() Options {
	return Options{Attempts: 3, Backoff: "exponential", RemoveOnComplete: 100, RemoveOnFail: 50}
}

// Job is one unit of work delivered to a Handler.
type Job struct {
	ID          string
	Queue       string
	Name        string
	Payload     []byte
	Attempt     int
	MaxAttempts int
	EnqueuedAt  time.Time
}

// Handler processes one job. Returning an error causes a retry (with
// backoff) until Attempt reaches MaxAttempts, after which the job is
// dead-lettered. Handlers must be idempotent per §3.
type Handler func(ctx context.Context, job Job) error

// Queue is the shared contract implemented by the in-memory and Redis
// transports.
type Queue interface {
	// Enqueue schedules a job for immediate delivery.
	Enqueue(ctx context.Context, queueName, jobName string, payload []byte, opts Options) error
	// RegisterHandler binds a handler to (queueName, jobName). Must be
	// called before Start.
	RegisterHandler(queueName, jobName string, h Handler)
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// envelope is the wire/storage representation of a scheduled job.
type envelope struct {
	ID          string    `json:"id"`
	Queue       string    `json:"queue"`
	Name        string    `json:"name"`
	Payload     []byte    `json:"payload"`
	Attempt     int       `json:"attempt"`
	MaxAttempts int       `json:"max_attempts"`
	Backoff     string    `json:"backoff"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

func (e envelope) encode() ([]byte, error) { return json.Marshal(e) }

func decodeEnvelope(raw []byte) (envelope, error) {
	var e envelope
	err := json.Unmarshal(raw, &e)
	return e, err
}

// backoffDelay returns the exponential backoff delay for the given attempt
// number (1-indexed), seeded in the 30-60s range per §4.2.
func backoffDelay(attempt int) time.Duration {
	seed := 30 * time.Second
	d := seed
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	const maxDelay = 30 * time.Minute
	if d > maxDelay {
		d = maxDelay
	}
	return d
}
