package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tenantsync/engine/internal/queue"
	"github.com/tenantsync/engine/internal/storage/memory"
)

type fakeQueue struct {
	mu       sync.Mutex
	enqueued []fakeEnqueueCall
}

type fakeEnqueueCall struct {
	queueName, jobName string
}

func (f *fakeQueue) Enqueue(ctx context.Context, queueName, jobName string, payload []byte, opts queue.Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, fakeEnqueueCall{queueName, jobName})
	return nil
}
func (f *fakeQueue) RegisterHandler(queueName, jobName string, h queue.Handler) {}
func (f *fakeQueue) Name() string                                              { return "fake-queue" }
func (f *fakeQueue) Start(ctx context.Context) error                           { return nil }
func (f *fakeQueue) Stop(ctx context.Context) error                            { return nil }

func (f *fakeQueue) calls() []fakeEnqueueCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fakeEnqueueCall, len(f.enqueued))
	copy(out, f.enqueued)
	return out
}

func TestSchedulerStartRegistersEveryEntry(t *testing.T) {
	q := &fakeQueue{}
	store := memory.New()
	s := New(nil, q, store, []Entry{
		{Name: "a", Expr: "* * * * *", Queue: queue.Ingest, Job: "ingest:all-sources"},
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop(context.Background())
	if got := len(s.cron.Entries()); got != 1 {
		t.Fatalf("expected 1 registered cron entry, got %d", got)
	}
}

func TestSchedulerStartWithoutQueueFails(t *testing.T) {
	s := New(nil, nil, nil, nil)
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected starting without a queue to fail")
	}
}

func TestSchedulerCollapsesMissedFireAfterDowntime(t *testing.T) {
	q := &fakeQueue{}
	store := memory.New()
	ctx := context.Background()
	_ = store.SetLastFire(ctx, "a", time.Now().Add(-24*time.Hour).Unix())

	s := New(nil, q, store, []Entry{
		{Name: "a", Expr: "0 3 * * *", Queue: queue.Metrics, Job: "metrics:recompute-all"},
	})
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop(ctx)

	calls := q.calls()
	if len(calls) != 1 || calls[0].jobName != "metrics:recompute-all" {
		t.Fatalf("expected one catch-up enqueue, got %+v", calls)
	}
}

func TestSchedulerDoesNotCollapseRecentFire(t *testing.T) {
	q := &fakeQueue{}
	store := memory.New()
	ctx := context.Background()
	_ = store.SetLastFire(ctx, "a", time.Now().Unix())

	s := New(nil, q, store, []Entry{
		{Name: "a", Expr: "0 3 * * *", Queue: queue.Metrics, Job: "metrics:recompute-all"},
	})
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop(ctx)

	if calls := q.calls(); len(calls) != 0 {
		t.Fatalf("expected no catch-up enqueue for a recent fire, got %+v", calls)
	}
}

func TestMissedTTLTracksEachEntrysOwnInterval(t *testing.T) {
	hourly := Entry{Name: "hourly", Expr: "0 * * * *"}
	daily := Entry{Name: "daily", Expr: "0 3 * * *"}
	if hourly.missedTTL() >= daily.missedTTL() {
		t.Fatalf("expected the hourly entry's TTL (%v) to be shorter than the daily entry's (%v)", hourly.missedTTL(), daily.missedTTL())
	}
	if hourly.missedTTL() > time.Hour {
		t.Fatalf("expected the hourly entry's TTL to be at most an hour, got %v", hourly.missedTTL())
	}
}

func TestMissedTTLFallsBackOnUnparsableExpr(t *testing.T) {
	e := Entry{Name: "bad", Expr: "not a cron expression"}
	if e.missedTTL() != 6*time.Hour {
		t.Fatalf("expected the 6h fallback for an unparsable expression, got %v", e.missedTTL())
	}
}

func TestDefaultEntriesAreWellFormed(t *testing.T) {
	entries := DefaultEntries()
	if len(entries) != 2 {
		t.Fatalf("expected exactly 2 built-in schedule entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Name == "" || e.Expr == "" || e.Queue == "" || e.Job == "" {
			t.Fatalf("incomplete schedule entry: %+v", e)
		}
	}
}
