package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/tenantsync/engine/internal/storage"
)

// ScheduleLastFireStore is the Postgres-backed storage.ScheduleLastFireStore.
type ScheduleLastFireStore struct{ Base }

func NewScheduleLastFireStore(db *sql.DB) *ScheduleLastFireStore { return &ScheduleLastFireStore{Base{DB: db}} }

func (s *ScheduleLastFireStore) GetLastFire(ctx context.Context, scheduleName string) (int64, bool, error) {
	const q = `SELECT fired_at FROM schedule_last_fire WHERE schedule_name = $1`
	var firedAt int64
	err := s.q(ctx).QueryRowContext(ctx, q, scheduleName).Scan(&firedAt)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, classify("schedule_last_fire_query_failed", "query last fire", err)
	}
	return firedAt, true, nil
}

func (s *ScheduleLastFireStore) SetLastFire(ctx context.Context, scheduleName string, firedAtUnix int64) error {
	const q = `INSERT INTO schedule_last_fire (schedule_name, fired_at) VALUES ($1, $2)
		ON CONFLICT (schedule_name) DO UPDATE SET fired_at = EXCLUDED.fired_at`
	_, err := s.q(ctx).ExecContext(ctx, q, scheduleName, firedAtUnix)
	if err != nil {
		return classify("schedule_last_fire_upsert_failed", "set last fire", err)
	}
	return nil
}

// DeadLetterStore is the Postgres-backed storage.DeadLetterStore.
type DeadLetterStore struct{ Base }

func NewDeadLetterStore(db *sql.DB) *DeadLetterStore { return &DeadLetterStore{Base{DB: db}} }

func (s *DeadLetterStore) RecordDeadLetter(ctx context.Context, queueName, jobName string, payload []byte, lastErr string, attempts int) error {
	const q = `INSERT INTO dead_letters (id, queue_name, job_name, payload, last_error, attempts, failed_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`
	_, err := s.q(ctx).ExecContext(ctx, q, uuid.NewString(), queueName, jobName, payload, lastErr, attempts)
	if err != nil {
		return classify("dead_letter_create_failed", "record dead letter", err)
	}
	return nil
}

func (s *DeadLetterStore) ListDeadLetters(ctx context.Context, queueName string) ([]storage.DeadLetterEntry, error) {
	q := `SELECT id, queue_name, job_name, payload, last_error, attempts, extract(epoch from failed_at)::bigint FROM dead_letters`
	args := []any{}
	if queueName != "" {
		q += " WHERE queue_name = $1"
		args = append(args, queueName)
	}
	q += " ORDER BY failed_at DESC"
	rows, err := s.q(ctx).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify("dead_letter_list_failed", "list dead letters", err)
	}
	defer rows.Close()
	var out []storage.DeadLetterEntry
	for rows.Next() {
		var d storage.DeadLetterEntry
		if err := rows.Scan(&d.ID, &d.QueueName, &d.JobName, &d.Payload, &d.LastError, &d.Attempts, &d.FailedAt); err != nil {
			return nil, classify("dead_letter_scan_failed", "scan dead letter", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// AsStores bundles the individual Postgres stores into a storage.Stores value.
func AsStores(db *sql.DB) storage.Stores {
	return storage.Stores{
		Tenants:           NewTenantStore(db),
		Connections:       NewConnectionStore(db),
		IngestionRuns:     NewIngestionRunStore(db),
		SourceRefs:        NewSourceRefStore(db),
		Products:          NewProductStore(db),
		Orders:            NewOrderStore(db),
		InventoryLevels:   NewInventoryLevelStore(db),
		Legislators:       NewLegislatorStore(db),
		Bills:             NewBillStore(db),
		BillMovements:     NewBillMovementStore(db),
		BillAuthors:       NewBillAuthorStore(db),
		VoteEvents:        NewVoteEventStore(db),
		VoteResults:       NewVoteResultStore(db),
		Sessions:          NewSessionStore(db),
		Attendances:       NewAttendanceStore(db),
		Commissions:       NewCommissionStore(db),
		LegislatorMetrics: NewLegislatorMetricStore(db),
		Analyses:          NewAnalysisStore(db),
		FeedPosts:         NewFeedPostStore(db),
		ScheduleLastFire:  NewScheduleLastFireStore(db),
		DeadLetters:       NewDeadLetterStore(db),
	}
}
