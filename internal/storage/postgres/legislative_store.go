package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tenantsync/engine/internal/domain"
	tserrors "github.com/tenantsync/engine/internal/errors"
	"github.com/tenantsync/engine/internal/storage"
)

// LegislatorStore is the Postgres-backed domain.Legislator store.
type LegislatorStore struct{ Base }

func NewLegislatorStore(db *sql.DB) *LegislatorStore { return &LegislatorStore{Base{DB: db}} }

const legislatorColumns = `id, tenant_id, external_id, first_name, last_name, block, province, chamber, active, term_start, term_end, source_ref_id, updated_at`

func (s *LegislatorStore) UpsertLegislator(ctx context.Context, l domain.Legislator) (domain.Legislator, bool, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	q := `INSERT INTO legislators (` + legislatorColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
		ON CONFLICT (tenant_id, external_id) DO UPDATE SET
			first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name, block = EXCLUDED.block,
			province = EXCLUDED.province, chamber = EXCLUDED.chamber, active = EXCLUDED.active,
			term_start = EXCLUDED.term_start, term_end = EXCLUDED.term_end,
			source_ref_id = EXCLUDED.source_ref_id, updated_at = now()
		RETURNING id, (xmax = 0) AS inserted, updated_at`
	var inserted bool
	err := s.q(ctx).QueryRowContext(ctx, q, l.ID, l.TenantID, l.ExternalID, l.FirstName, l.LastName,
		l.Block, l.Province, l.Chamber, l.Active, l.TermStart, l.TermEnd, l.SourceRefID).
		Scan(&l.ID, &inserted, &l.UpdatedAt)
	if err != nil {
		return domain.Legislator{}, false, classify("legislator_upsert_failed", "upsert legislator", err)
	}
	return l, inserted, nil
}

func scanLegislator(row interface{ Scan(...any) error }) (domain.Legislator, error) {
	var l domain.Legislator
	err := row.Scan(&l.ID, &l.TenantID, &l.ExternalID, &l.FirstName, &l.LastName, &l.Block, &l.Province,
		&l.Chamber, &l.Active, &l.TermStart, &l.TermEnd, &l.SourceRefID, &l.UpdatedAt)
	return l, err
}

func (s *LegislatorStore) GetLegislator(ctx context.Context, tenantID, id string) (domain.Legislator, bool, error) {
	q := `SELECT ` + legislatorColumns + ` FROM legislators WHERE tenant_id = $1 AND id = $2`
	l, err := scanLegislator(s.q(ctx).QueryRowContext(ctx, q, tenantID, id))
	if err == sql.ErrNoRows {
		return domain.Legislator{}, false, nil
	}
	if err != nil {
		return domain.Legislator{}, false, classify("legislator_query_failed", "query legislator", err)
	}
	return l, true, nil
}

func (s *LegislatorStore) GetLegislatorByExternalID(ctx context.Context, tenantID, externalID string) (domain.Legislator, bool, error) {
	q := `SELECT ` + legislatorColumns + ` FROM legislators WHERE tenant_id = $1 AND external_id = $2`
	l, err := scanLegislator(s.q(ctx).QueryRowContext(ctx, q, tenantID, externalID))
	if err == sql.ErrNoRows {
		return domain.Legislator{}, false, nil
	}
	if err != nil {
		return domain.Legislator{}, false, classify("legislator_query_failed", "query legislator", err)
	}
	return l, true, nil
}

func (s *LegislatorStore) ListLegislators(ctx context.Context, tenantID string, opts storage.ListOptions) (storage.Page[domain.Legislator], error) {
	where := []string{"tenant_id = $1"}
	args := []any{tenantID}
	addFilter := func(column, key string) {
		if v := opts.Filter[key]; v != "" {
			args = append(args, v)
			where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
		}
	}
	addFilter("block", "blockId")
	addFilter("province", "provinceId")
	if v := opts.Filter["isActive"]; v != "" {
		args = append(args, v == "true")
		where = append(where, fmt.Sprintf("active = $%d", len(args)))
	}
	if opts.Search != "" {
		args = append(args, "%"+strings.ToLower(opts.Search)+"%")
		where = append(where, fmt.Sprintf("lower(first_name || ' ' || last_name) LIKE $%d", len(args)))
	}
	limit, offset := pageBounds(opts)

	countQ := `SELECT count(*) FROM legislators WHERE ` + strings.Join(where, " AND ")
	var total int
	if err := s.q(ctx).QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return storage.Page[domain.Legislator]{}, classify("legislator_count_failed", "count legislators", err)
	}

	listQ := `SELECT ` + legislatorColumns + ` FROM legislators WHERE ` + strings.Join(where, " AND ") +
		fmt.Sprintf(" ORDER BY last_name LIMIT %d OFFSET %d", limit, offset)
	rows, err := s.q(ctx).QueryContext(ctx, listQ, args...)
	if err != nil {
		return storage.Page[domain.Legislator]{}, classify("legislator_list_failed", "list legislators", err)
	}
	defer rows.Close()
	var items []domain.Legislator
	for rows.Next() {
		l, err := scanLegislator(rows)
		if err != nil {
			return storage.Page[domain.Legislator]{}, classify("legislator_scan_failed", "scan legislator", err)
		}
		items = append(items, l)
	}
	return storage.Page[domain.Legislator]{Items: items, Total: total}, rows.Err()
}

func pageBounds(opts storage.ListOptions) (limit, offset int) {
	limit = opts.Limit
	if limit <= 0 {
		limit = 25
	}
	page := opts.Page
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}

// BillStore is the Postgres-backed domain.Bill store.
type BillStore struct{ Base }

func NewBillStore(db *sql.DB) *BillStore { return &BillStore{Base{DB: db}} }

const billColumns = `id, tenant_id, external_id, title, status, type, presented_date, period, source_ref_id, updated_at`

func scanBill(row interface{ Scan(...any) error }) (domain.Bill, error) {
	var b domain.Bill
	var status string
	err := row.Scan(&b.ID, &b.TenantID, &b.ExternalID, &b.Title, &status, &b.Type, &b.PresentedDate,
		&b.Period, &b.SourceRefID, &b.UpdatedAt)
	b.Status = domain.BillStatus(status)
	return b, err
}

// UpsertBill never writes a status column: AdvanceStatus is the sole writer
// of status transitions, so a re-fetch of an existing bill cannot regress it.
func (s *BillStore) UpsertBill(ctx context.Context, b domain.Bill) (domain.Bill, bool, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = domain.BillPresented
	}
	q := `INSERT INTO bills (` + billColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (tenant_id, external_id) DO UPDATE SET
			title = EXCLUDED.title, type = EXCLUDED.type, period = EXCLUDED.period,
			source_ref_id = EXCLUDED.source_ref_id, updated_at = now()
		RETURNING id, status, (xmax = 0) AS inserted, updated_at`
	var inserted bool
	var status string
	err := s.q(ctx).QueryRowContext(ctx, q, b.ID, b.TenantID, b.ExternalID, b.Title, string(b.Status),
		b.Type, b.PresentedDate, b.Period, b.SourceRefID).Scan(&b.ID, &status, &inserted, &b.UpdatedAt)
	if err != nil {
		return domain.Bill{}, false, classify("bill_upsert_failed", "upsert bill", err)
	}
	b.Status = domain.BillStatus(status)
	return b, inserted, nil
}

func (s *BillStore) GetBill(ctx context.Context, tenantID, id string) (domain.Bill, bool, error) {
	q := `SELECT ` + billColumns + ` FROM bills WHERE tenant_id = $1 AND id = $2`
	b, err := scanBill(s.q(ctx).QueryRowContext(ctx, q, tenantID, id))
	if err == sql.ErrNoRows {
		return domain.Bill{}, false, nil
	}
	if err != nil {
		return domain.Bill{}, false, classify("bill_query_failed", "query bill", err)
	}
	return b, true, nil
}

func (s *BillStore) GetBillByExternalID(ctx context.Context, tenantID, externalID string) (domain.Bill, bool, error) {
	q := `SELECT ` + billColumns + ` FROM bills WHERE tenant_id = $1 AND external_id = $2`
	b, err := scanBill(s.q(ctx).QueryRowContext(ctx, q, tenantID, externalID))
	if err == sql.ErrNoRows {
		return domain.Bill{}, false, nil
	}
	if err != nil {
		return domain.Bill{}, false, classify("bill_query_failed", "query bill", err)
	}
	return b, true, nil
}

func (s *BillStore) ListBills(ctx context.Context, tenantID string, opts storage.ListOptions) (storage.Page[domain.Bill], error) {
	where := []string{"tenant_id = $1"}
	args := []any{tenantID}
	addFilter := func(column, key string) {
		if v := opts.Filter[key]; v != "" {
			args = append(args, v)
			where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
		}
	}
	addFilter("status", "status")
	addFilter("type", "type")
	addFilter("period", "period")
	if opts.Search != "" {
		args = append(args, "%"+strings.ToLower(opts.Search)+"%")
		where = append(where, fmt.Sprintf("lower(title) LIKE $%d", len(args)))
	}
	limit, offset := pageBounds(opts)

	countQ := `SELECT count(*) FROM bills WHERE ` + strings.Join(where, " AND ")
	var total int
	if err := s.q(ctx).QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return storage.Page[domain.Bill]{}, classify("bill_count_failed", "count bills", err)
	}
	listQ := `SELECT ` + billColumns + ` FROM bills WHERE ` + strings.Join(where, " AND ") +
		fmt.Sprintf(" ORDER BY presented_date DESC LIMIT %d OFFSET %d", limit, offset)
	rows, err := s.q(ctx).QueryContext(ctx, listQ, args...)
	if err != nil {
		return storage.Page[domain.Bill]{}, classify("bill_list_failed", "list bills", err)
	}
	defer rows.Close()
	var items []domain.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return storage.Page[domain.Bill]{}, classify("bill_scan_failed", "scan bill", err)
		}
		items = append(items, b)
	}
	return storage.Page[domain.Bill]{Items: items, Total: total}, rows.Err()
}

// AdvanceStatus applies domain.BillStatus.Advances inside the update so a
// stale caller can never regress a bill concurrently advanced by another run.
func (s *BillStore) AdvanceStatus(ctx context.Context, billID string, next domain.BillStatus) error {
	const q = `UPDATE bills SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3`
	cur, err := s.currentStatus(ctx, billID)
	if err != nil {
		return err
	}
	if !cur.Advances(next) {
		return nil
	}
	_, err = s.q(ctx).ExecContext(ctx, q, billID, string(next), string(cur))
	if err != nil {
		return classify("bill_update_failed", "advance bill status", err)
	}
	return nil
}

func (s *BillStore) currentStatus(ctx context.Context, billID string) (domain.BillStatus, error) {
	var status string
	err := s.q(ctx).QueryRowContext(ctx, `SELECT status FROM bills WHERE id = $1`, billID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", tserrors.NotFound("bill_not_found", "bill not found", err)
	}
	if err != nil {
		return "", classify("bill_query_failed", "query bill status", err)
	}
	return domain.BillStatus(status), nil
}

// BillMovementStore is the Postgres-backed domain.BillMovement store.
type BillMovementStore struct{ Base }

func NewBillMovementStore(db *sql.DB) *BillMovementStore { return &BillMovementStore{Base{DB: db}} }

func (s *BillMovementStore) AppendMovement(ctx context.Context, m domain.BillMovement) (domain.BillMovement, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	const q = `INSERT INTO bill_movements (id, tenant_id, bill_id, order_index, description, from_status, to_status, moved_at)
		SELECT $1, $2, $3, COALESCE(MAX(order_index) + 1, 0), $4, $5, $6, now()
		FROM bill_movements WHERE bill_id = $3
		RETURNING order_index, moved_at`
	err := s.q(ctx).QueryRowContext(ctx, q, m.ID, m.TenantID, m.BillID, m.Description,
		string(m.FromStatus), string(m.ToStatus)).Scan(&m.OrderIndex, &m.MovedAt)
	if err != nil {
		return domain.BillMovement{}, classify("bill_movement_create_failed", "append bill movement", err)
	}
	return m, nil
}

func (s *BillMovementStore) ListMovements(ctx context.Context, billID string) ([]domain.BillMovement, error) {
	const q = `SELECT id, tenant_id, bill_id, order_index, description, from_status, to_status, moved_at
		FROM bill_movements WHERE bill_id = $1 ORDER BY order_index`
	rows, err := s.q(ctx).QueryContext(ctx, q, billID)
	if err != nil {
		return nil, classify("bill_movement_list_failed", "list bill movements", err)
	}
	defer rows.Close()
	var out []domain.BillMovement
	for rows.Next() {
		var m domain.BillMovement
		var from, to string
		if err := rows.Scan(&m.ID, &m.TenantID, &m.BillID, &m.OrderIndex, &m.Description, &from, &to, &m.MovedAt); err != nil {
			return nil, classify("bill_movement_scan_failed", "scan bill movement", err)
		}
		m.FromStatus, m.ToStatus = domain.BillStatus(from), domain.BillStatus(to)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *BillMovementStore) NextOrderIndex(ctx context.Context, billID string) (int, error) {
	const q = `SELECT COALESCE(MAX(order_index) + 1, 0) FROM bill_movements WHERE bill_id = $1`
	var next int
	err := s.q(ctx).QueryRowContext(ctx, q, billID).Scan(&next)
	if err != nil {
		return 0, classify("bill_movement_query_failed", "next order index", err)
	}
	return next, nil
}

// BillAuthorStore is the Postgres-backed domain.BillAuthor store.
type BillAuthorStore struct{ Base }

func NewBillAuthorStore(db *sql.DB) *BillAuthorStore { return &BillAuthorStore{Base{DB: db}} }

func (s *BillAuthorStore) UpsertBillAuthor(ctx context.Context, a domain.BillAuthor) (domain.BillAuthor, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	const q = `INSERT INTO bill_authors (id, tenant_id, bill_id, legislator_id, role)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (bill_id, legislator_id, role) DO UPDATE SET role = EXCLUDED.role
		RETURNING id`
	err := s.q(ctx).QueryRowContext(ctx, q, a.ID, a.TenantID, a.BillID, a.LegislatorID, string(a.Role)).Scan(&a.ID)
	if err != nil {
		return domain.BillAuthor{}, classify("bill_author_upsert_failed", "upsert bill author", err)
	}
	return a, nil
}

func (s *BillAuthorStore) ListAuthorsByBill(ctx context.Context, billID string) ([]domain.BillAuthor, error) {
	const q = `SELECT id, tenant_id, bill_id, legislator_id, role FROM bill_authors WHERE bill_id = $1`
	rows, err := s.q(ctx).QueryContext(ctx, q, billID)
	if err != nil {
		return nil, classify("bill_author_list_failed", "list bill authors", err)
	}
	defer rows.Close()
	var out []domain.BillAuthor
	for rows.Next() {
		var a domain.BillAuthor
		var role string
		if err := rows.Scan(&a.ID, &a.TenantID, &a.BillID, &a.LegislatorID, &role); err != nil {
			return nil, classify("bill_author_scan_failed", "scan bill author", err)
		}
		a.Role = domain.BillAuthorRole(role)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *BillAuthorStore) ListBillsByLegislator(ctx context.Context, legislatorID string, role domain.BillAuthorRole) ([]domain.Bill, error) {
	q := `SELECT ` + billAliased("b") + ` FROM bills b
		JOIN bill_authors a ON a.bill_id = b.id
		WHERE a.legislator_id = $1 AND a.role = $2`
	rows, err := s.q(ctx).QueryContext(ctx, q, legislatorID, string(role))
	if err != nil {
		return nil, classify("bill_author_join_failed", "list bills by legislator", err)
	}
	defer rows.Close()
	var out []domain.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, classify("bill_scan_failed", "scan bill", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func billAliased(alias string) string {
	cols := strings.Split(billColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

// VoteEventStore is the Postgres-backed domain.VoteEvent store.
type VoteEventStore struct{ Base }

func NewVoteEventStore(db *sql.DB) *VoteEventStore { return &VoteEventStore{Base{DB: db}} }

const voteEventColumns = `id, tenant_id, external_id, session_id, title, affirmative, negative, abstention, absent, result, voted_at, source_ref_id`

func (s *VoteEventStore) UpsertVoteEvent(ctx context.Context, v domain.VoteEvent) (domain.VoteEvent, bool, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	q := `INSERT INTO vote_events (` + voteEventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (tenant_id, external_id) DO UPDATE SET
			title = EXCLUDED.title, affirmative = EXCLUDED.affirmative, negative = EXCLUDED.negative,
			abstention = EXCLUDED.abstention, absent = EXCLUDED.absent, result = EXCLUDED.result,
			source_ref_id = EXCLUDED.source_ref_id
		RETURNING id, (xmax = 0) AS inserted`
	var inserted bool
	err := s.q(ctx).QueryRowContext(ctx, q, v.ID, v.TenantID, v.ExternalID, v.SessionID, v.Title,
		v.Affirmative, v.Negative, v.Abstention, v.Absent, v.Result, v.VotedAt, v.SourceRefID).
		Scan(&v.ID, &inserted)
	if err != nil {
		return domain.VoteEvent{}, false, classify("vote_event_upsert_failed", "upsert vote event", err)
	}
	return v, inserted, nil
}

func (s *VoteEventStore) GetVoteEvent(ctx context.Context, tenantID, id string) (domain.VoteEvent, bool, error) {
	q := `SELECT ` + voteEventColumns + ` FROM vote_events WHERE tenant_id = $1 AND id = $2`
	var v domain.VoteEvent
	err := s.q(ctx).QueryRowContext(ctx, q, tenantID, id).Scan(&v.ID, &v.TenantID, &v.ExternalID,
		&v.SessionID, &v.Title, &v.Affirmative, &v.Negative, &v.Abstention, &v.Absent, &v.Result,
		&v.VotedAt, &v.SourceRefID)
	if err == sql.ErrNoRows {
		return domain.VoteEvent{}, false, nil
	}
	if err != nil {
		return domain.VoteEvent{}, false, classify("vote_event_query_failed", "query vote event", err)
	}
	return v, true, nil
}

func (s *VoteEventStore) GetVoteEventByExternalID(ctx context.Context, tenantID, externalID string) (domain.VoteEvent, bool, error) {
	q := `SELECT ` + voteEventColumns + ` FROM vote_events WHERE tenant_id = $1 AND external_id = $2`
	var v domain.VoteEvent
	err := s.q(ctx).QueryRowContext(ctx, q, tenantID, externalID).Scan(&v.ID, &v.TenantID, &v.ExternalID,
		&v.SessionID, &v.Title, &v.Affirmative, &v.Negative, &v.Abstention, &v.Absent, &v.Result,
		&v.VotedAt, &v.SourceRefID)
	if err == sql.ErrNoRows {
		return domain.VoteEvent{}, false, nil
	}
	if err != nil {
		return domain.VoteEvent{}, false, classify("vote_event_query_failed", "query vote event by external id", err)
	}
	return v, true, nil
}

// VoteResultStore is the Postgres-backed domain.VoteResult store.
type VoteResultStore struct{ Base }

func NewVoteResultStore(db *sql.DB) *VoteResultStore { return &VoteResultStore{Base{DB: db}} }

func (s *VoteResultStore) UpsertVoteResult(ctx context.Context, v domain.VoteResult) (domain.VoteResult, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	const q = `INSERT INTO vote_results (id, tenant_id, vote_event_id, legislator_id, vote)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (vote_event_id, legislator_id) DO UPDATE SET vote = EXCLUDED.vote
		RETURNING id`
	err := s.q(ctx).QueryRowContext(ctx, q, v.ID, v.TenantID, v.VoteEventID, v.LegislatorID, string(v.Vote)).Scan(&v.ID)
	if err != nil {
		return domain.VoteResult{}, classify("vote_result_upsert_failed", "upsert vote result", err)
	}
	return v, nil
}

func (s *VoteResultStore) ListResultsByEvent(ctx context.Context, voteEventID string) ([]domain.VoteResult, error) {
	const q = `SELECT id, tenant_id, vote_event_id, legislator_id, vote FROM vote_results WHERE vote_event_id = $1`
	return s.scanResults(ctx, q, voteEventID)
}

func (s *VoteResultStore) ListResultsByLegislator(ctx context.Context, tenantID, legislatorID, period string) ([]domain.VoteResult, error) {
	q := `SELECT r.id, r.tenant_id, r.vote_event_id, r.legislator_id, r.vote
		FROM vote_results r JOIN vote_events e ON e.id = r.vote_event_id
		WHERE r.tenant_id = $1 AND r.legislator_id = $2`
	args := []any{tenantID, legislatorID}
	if period != "" {
		q += ` AND to_char(e.voted_at, 'YYYY-MM-DD') LIKE $3::text || '%'`
		args = append(args, period)
	}
	return s.scanResults(ctx, q, args...)
}

func (s *VoteResultStore) scanResults(ctx context.Context, q string, args ...any) ([]domain.VoteResult, error) {
	rows, err := s.q(ctx).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify("vote_result_list_failed", "list vote results", err)
	}
	defer rows.Close()
	var out []domain.VoteResult
	for rows.Next() {
		var v domain.VoteResult
		var vote string
		if err := rows.Scan(&v.ID, &v.TenantID, &v.VoteEventID, &v.LegislatorID, &vote); err != nil {
			return nil, classify("vote_result_scan_failed", "scan vote result", err)
		}
		v.Vote = domain.VoteChoice(vote)
		out = append(out, v)
	}
	return out, rows.Err()
}

// SessionStore is the Postgres-backed domain.Session store.
type SessionStore struct{ Base }

func NewSessionStore(db *sql.DB) *SessionStore { return &SessionStore{Base{DB: db}} }

func (s *SessionStore) UpsertSession(ctx context.Context, sess domain.Session) (domain.Session, bool, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	const q = `INSERT INTO sessions (id, tenant_id, external_id, title, held_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, external_id) DO UPDATE SET title = EXCLUDED.title, held_at = EXCLUDED.held_at
		RETURNING id, (xmax = 0) AS inserted`
	var inserted bool
	err := s.q(ctx).QueryRowContext(ctx, q, sess.ID, sess.TenantID, sess.ExternalID, sess.Title, sess.HeldAt).
		Scan(&sess.ID, &inserted)
	if err != nil {
		return domain.Session{}, false, classify("session_upsert_failed", "upsert session", err)
	}
	return sess, inserted, nil
}

func (s *SessionStore) GetSessionByExternalID(ctx context.Context, tenantID, externalID string) (domain.Session, bool, error) {
	const q = `SELECT id, tenant_id, external_id, title, held_at FROM sessions WHERE tenant_id = $1 AND external_id = $2`
	var sess domain.Session
	err := s.q(ctx).QueryRowContext(ctx, q, tenantID, externalID).
		Scan(&sess.ID, &sess.TenantID, &sess.ExternalID, &sess.Title, &sess.HeldAt)
	if err == sql.ErrNoRows {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, classify("session_query_failed", "query session by external id", err)
	}
	return sess, true, nil
}

// AttendanceStore is the Postgres-backed domain.Attendance store.
type AttendanceStore struct{ Base }

func NewAttendanceStore(db *sql.DB) *AttendanceStore { return &AttendanceStore{Base{DB: db}} }

func (s *AttendanceStore) UpsertAttendance(ctx context.Context, a domain.Attendance) (domain.Attendance, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	const q = `INSERT INTO attendances (id, tenant_id, session_id, legislator_id, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, legislator_id) DO UPDATE SET status = EXCLUDED.status
		RETURNING id`
	err := s.q(ctx).QueryRowContext(ctx, q, a.ID, a.TenantID, a.SessionID, a.LegislatorID, string(a.Status)).Scan(&a.ID)
	if err != nil {
		return domain.Attendance{}, classify("attendance_upsert_failed", "upsert attendance", err)
	}
	return a, nil
}

func (s *AttendanceStore) ListAttendanceByLegislator(ctx context.Context, tenantID, legislatorID, period string) ([]domain.Attendance, error) {
	q := `SELECT a.id, a.tenant_id, a.session_id, a.legislator_id, a.status
		FROM attendances a JOIN sessions s ON s.id = a.session_id
		WHERE a.tenant_id = $1 AND a.legislator_id = $2`
	args := []any{tenantID, legislatorID}
	if period != "" {
		q += ` AND to_char(s.held_at, 'YYYY-MM-DD') LIKE $3::text || '%'`
		args = append(args, period)
	}
	rows, err := s.q(ctx).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify("attendance_list_failed", "list attendance", err)
	}
	defer rows.Close()
	var out []domain.Attendance
	for rows.Next() {
		var a domain.Attendance
		var status string
		if err := rows.Scan(&a.ID, &a.TenantID, &a.SessionID, &a.LegislatorID, &status); err != nil {
			return nil, classify("attendance_scan_failed", "scan attendance", err)
		}
		a.Status = domain.AttendanceStatus(status)
		out = append(out, a)
	}
	return out, rows.Err()
}

// CommissionStore is the Postgres-backed domain.Commission store. Decision
// D-3: the schema and store are kept even though no adapter populates them
// from a real source; rows come only from what an operator seeds directly.
type CommissionStore struct{ Base }

func NewCommissionStore(db *sql.DB) *CommissionStore { return &CommissionStore{Base{DB: db}} }

func (s *CommissionStore) UpsertCommission(ctx context.Context, c domain.Commission) (domain.Commission, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	const q = `INSERT INTO commissions (id, tenant_id, external_id, name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, external_id) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`
	err := s.q(ctx).QueryRowContext(ctx, q, c.ID, c.TenantID, c.ExternalID, c.Name).Scan(&c.ID)
	if err != nil {
		return domain.Commission{}, classify("commission_upsert_failed", "upsert commission", err)
	}
	return c, nil
}

func (s *CommissionStore) UpsertMembership(ctx context.Context, m domain.CommissionMembership) (domain.CommissionMembership, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	const q = `INSERT INTO commission_memberships (id, tenant_id, commission_id, legislator_id, role)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (commission_id, legislator_id) DO UPDATE SET role = EXCLUDED.role
		RETURNING id`
	err := s.q(ctx).QueryRowContext(ctx, q, m.ID, m.TenantID, m.CommissionID, m.LegislatorID, m.Role).Scan(&m.ID)
	if err != nil {
		return domain.CommissionMembership{}, classify("commission_membership_upsert_failed", "upsert commission membership", err)
	}
	return m, nil
}

func (s *CommissionStore) CountMembershipsByLegislator(ctx context.Context, legislatorID string) (int, error) {
	const q = `SELECT count(*) FROM commission_memberships WHERE legislator_id = $1`
	var n int
	err := s.q(ctx).QueryRowContext(ctx, q, legislatorID).Scan(&n)
	if err != nil {
		return 0, classify("commission_membership_count_failed", "count commission memberships", err)
	}
	return n, nil
}
