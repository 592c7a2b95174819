// Package scheduler drives the two built-in cron-expression-driven jobs
// from §4.3 (periodic ingest, daily metrics recompute) via robfig/cron,
// collapsing missed fires after downtime into a single catch-up run.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	tserrors "github.com/tenantsync/engine/internal/errors"
	"github.com/tenantsync/engine/internal/queue"
	"github.com/tenantsync/engine/internal/storage"
	"github.com/tenantsync/engine/pkg/logger"
)

// Entry is one data-driven schedule line: cron expression -> enqueued job.
type Entry struct {
	Name    string // unique schedule name, used as the LastFire key
	Expr    string // cron expression
	Queue   string
	Job     string
	Payload []byte
}

// missedTTL is the downtime threshold past which a schedule's last fire is
// considered missed: the entry's own cron interval, not a single shared
// constant, so a 6-hourly job and a daily job don't share a catch-up window.
func (e Entry) missedTTL() time.Duration {
	sched, err := cron.ParseStandard(e.Expr)
	if err != nil {
		return 6 * time.Hour
	}
	specSched, ok := sched.(*cron.SpecSchedule)
	if !ok {
		return 6 * time.Hour
	}
	next := specSched.Next(time.Now())
	interval := specSched.Next(next).Sub(next)
	if interval <= 0 {
		return 6 * time.Hour
	}
	return interval
}

// DefaultEntries returns the two built-in schedules from §4.3. Schedule
// lines are data, not code.
func DefaultEntries() []Entry {
	return []Entry{
		{Name: "ingest-all-sources", Expr: "0 */6 * * *", Queue: queue.Ingest, Job: "ingest:all-sources"},
		{Name: "metrics-recompute-all", Expr: "0 3 * * *", Queue: queue.Metrics, Job: "metrics:recompute-all"},
	}
}

// Scheduler wraps cron.Cron and feeds the job queue according to Entries.
type Scheduler struct {
	log      *logger.Logger
	cron     *cron.Cron
	q        queue.Queue
	lastFire storage.ScheduleLastFireStore
	entries  []Entry
}

func New(log *logger.Logger, q queue.Queue, lastFire storage.ScheduleLastFireStore, entries []Entry) *Scheduler {
	if entries == nil {
		entries = DefaultEntries()
	}
	return &Scheduler{
		log:      log,
		cron:     cron.New(),
		q:        q,
		lastFire: lastFire,
		entries:  entries,
	}
}

func (s *Scheduler) Name() string { return "scheduler" }

// Start refuses to run without a queue (it does not ping it), catches up any
// missed fires collapsed into a single run, then registers each entry with
// cron and starts it.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.q == nil {
		return tserrors.Config("scheduler_no_queue", "scheduler started without a queue", nil)
	}
	for _, e := range s.entries {
		entry := e
		s.collapseMissedFires(ctx, entry)
		if _, err := s.cron.AddFunc(entry.Expr, func() { s.fire(entry) }); err != nil {
			return tserrors.Config("scheduler_bad_schedule", "invalid cron expression for "+entry.Name, err)
		}
	}
	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	return nil
}

// collapseMissedFires enqueues a single catch-up job if downtime since the
// last recorded fire exceeded the schedule's interval, rather than one job
// per missed tick.
func (s *Scheduler) collapseMissedFires(ctx context.Context, e Entry) {
	if s.lastFire == nil {
		return
	}
	lastUnix, found, err := s.lastFire.GetLastFire(ctx, e.Name)
	if err != nil || !found {
		return
	}
	if time.Since(time.Unix(lastUnix, 0)) > e.missedTTL() {
		if s.log != nil {
			s.log.WithField("schedule", e.Name).Info("collapsing missed fires into one catch-up run")
		}
		s.fire(e)
	}
}

func (s *Scheduler) fire(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.q.Enqueue(ctx, e.Queue, e.Job, e.Payload, queue.DefaultOptions()); err != nil {
		if s.log != nil {
			s.log.WithField("schedule", e.Name).WithError(err).Error("failed to enqueue scheduled job")
		}
		return
	}
	if s.lastFire != nil {
		_ = s.lastFire.SetLastFire(ctx, e.Name, time.Now().Unix())
	}
}
