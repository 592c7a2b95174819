package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tenantsync/engine/internal/storage/memory"
)

func TestMemoryQueueDeliversJobToHandler(t *testing.T) {
	store := memory.New()
	q := NewMemoryQueue(nil, store, 1)

	var mu sync.Mutex
	var got Job
	done := make(chan struct{})
	q.RegisterHandler(Ingest, "sync-tenant", func(ctx context.Context, job Job) error {
		mu.Lock()
		got = job
		mu.Unlock()
		close(done)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := q.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer q.Stop(context.Background())

	if err := q.Enqueue(ctx, Ingest, "sync-tenant", []byte(`{"tenant":"t1"}`), DefaultOptions()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was never invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	if got.Name != "sync-tenant" || string(got.Payload) != `{"tenant":"t1"}` {
		t.Fatalf("unexpected job delivered: %+v", got)
	}
	if got.Attempt != 1 {
		t.Fatalf("expected first delivery attempt to be 1, got %d", got.Attempt)
	}
}

func TestMemoryQueueDeadLettersAfterMaxAttempts(t *testing.T) {
	store := memory.New()
	q := NewMemoryQueue(nil, store, 1)

	done := make(chan struct{})
	q.RegisterHandler(Ingest, "always-fails", func(ctx context.Context, job Job) error {
		return errors.New("boom")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := q.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer q.Stop(context.Background())

	if err := q.Enqueue(ctx, Ingest, "always-fails", nil, Options{Attempts: 1}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	go func() {
		for {
			entries, _ := store.ListDeadLetters(context.Background(), Ingest)
			if len(entries) > 0 {
				close(done)
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was never dead-lettered")
	}

	entries, err := store.ListDeadLetters(context.Background(), Ingest)
	if err != nil {
		t.Fatalf("list dead letters: %v", err)
	}
	if len(entries) != 1 || entries[0].JobName != "always-fails" {
		t.Fatalf("expected one dead-lettered job, got %+v", entries)
	}
}

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	if d := backoffDelay(1); d != 30*time.Second {
		t.Fatalf("expected first attempt delay of 30s, got %v", d)
	}
	if d := backoffDelay(2); d != 60*time.Second {
		t.Fatalf("expected second attempt delay of 60s, got %v", d)
	}
	if d := backoffDelay(20); d != 30*time.Minute {
		t.Fatalf("expected backoff to cap at 30m, got %v", d)
	}
}
