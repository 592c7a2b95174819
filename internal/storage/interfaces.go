// Package storage defines the per-entity store interfaces implemented by
// both the in-memory backend (tests, local dev) and the Postgres backend.
// Read methods that look entities up by tenant take a tenantID, and the
// application middleware guarantees it is never empty for tenant-scoped
// entities (§5 Multi-tenancy); reads keyed by an internal row ID (GetMetric,
// ListMovements, ListAuthorsByBill and similar) take no tenantID.
package storage

import (
	"context"

	"github.com/tenantsync/engine/internal/domain"
)

// ListOptions is the common pagination/filter envelope for list endpoints.
type ListOptions struct {
	Page   int
	Limit  int
	Search string
	Filter map[string]string
}

// Page wraps a list result with its total count for pagination metadata.
type Page[T any] struct {
	Items []T
	Total int
}

// TenantStore persists Tenant rows. Tenants are never hard-deleted.
type TenantStore interface {
	CreateTenant(ctx context.Context, t domain.Tenant) (domain.Tenant, error)
	GetTenant(ctx context.Context, id string) (domain.Tenant, error)
	GetTenantByEmail(ctx context.Context, email string) (domain.Tenant, error)
	// MostRecentOnPlan supports the OAuth soft-match fallback (decision D-2).
	MostRecentOnPlan(ctx context.Context, planTier string) (domain.Tenant, error)
	IncrementSolveCount(ctx context.Context, id string) error
	// ListTenants drives the scheduled all-sources ingest fan-out (§4.3).
	ListTenants(ctx context.Context) ([]domain.Tenant, error)
}

// ConnectionStore persists Connection rows, unique by shop domain.
type ConnectionStore interface {
	UpsertConnection(ctx context.Context, c domain.Connection) (domain.Connection, error)
	GetConnectionByShop(ctx context.Context, shopDomain string) (domain.Connection, error)
	GetConnectionByTenant(ctx context.Context, tenantID, sourceName string) (domain.Connection, error)
	SetSyncStatus(ctx context.Context, id string, status domain.SyncStatus, lastSyncAt *string) error
	RecordSignatureStrike(ctx context.Context, id string) (int, error)
	ClearSignatureStrikes(ctx context.Context, id string) error
}

// IngestionRunStore persists IngestionRun rows.
type IngestionRunStore interface {
	CreateIngestionRun(ctx context.Context, r domain.IngestionRun) (domain.IngestionRun, error)
	CompleteIngestionRun(ctx context.Context, id string, status domain.RunStatus, processed, skipped, errored int, errDetail map[string]any) error
	GetIngestionRun(ctx context.Context, id string) (domain.IngestionRun, error)
}

// SourceRefStore persists the append-only fetch audit trail (C1).
type SourceRefStore interface {
	// LatestByChecksum returns the most recent SourceRef for (sourceKey,
	// checksum), used to detect unchanged fetches.
	LatestByChecksum(ctx context.Context, tenantID, sourceKey, checksum string) (domain.SourceRef, bool, error)
	CreateSourceRef(ctx context.Context, s domain.SourceRef) (domain.SourceRef, error)
	MarkError(ctx context.Context, id string) error
}

// ProductStore persists commerce Product rows, upserted by (tenant, external_id).
type ProductStore interface {
	UpsertProduct(ctx context.Context, p domain.Product) (domain.Product, bool, error)
	ListProducts(ctx context.Context, tenantID string) ([]domain.Product, error)
	GetProductByExternalID(ctx context.Context, tenantID, externalID string) (domain.Product, bool, error)
	// GetProductByAnyExternalID resolves a line item against a product's own
	// external id or any of its variant external ids (decision D-1).
	GetProductByAnyExternalID(ctx context.Context, tenantID, externalID string) (domain.Product, bool, error)
}

// OrderStore persists commerce Order rows, upserted by (tenant, external_id).
type OrderStore interface {
	UpsertOrder(ctx context.Context, o domain.Order) (domain.Order, bool, error)
	ListOrders(ctx context.Context, tenantID string) ([]domain.Order, error)
	CountOrdersByMonth(ctx context.Context, tenantID string) (map[string]int, error)
}

// InventoryLevelStore persists per-variant, per-location stock counts.
type InventoryLevelStore interface {
	UpsertInventoryLevel(ctx context.Context, lvl domain.InventoryLevel) (domain.InventoryLevel, error)
}

// LegislatorStore persists Legislator rows, upserted by (tenant, external_id).
type LegislatorStore interface {
	UpsertLegislator(ctx context.Context, l domain.Legislator) (domain.Legislator, bool, error)
	GetLegislator(ctx context.Context, tenantID, id string) (domain.Legislator, bool, error)
	GetLegislatorByExternalID(ctx context.Context, tenantID, externalID string) (domain.Legislator, bool, error)
	ListLegislators(ctx context.Context, tenantID string, opts ListOptions) (Page[domain.Legislator], error)
}

// BillStore persists Bill rows, upserted by (tenant, external_id).
// AdvanceStatus only advances the bill's current status (it never regresses it).
type BillStore interface {
	UpsertBill(ctx context.Context, b domain.Bill) (domain.Bill, bool, error)
	GetBill(ctx context.Context, tenantID, id string) (domain.Bill, bool, error)
	GetBillByExternalID(ctx context.Context, tenantID, externalID string) (domain.Bill, bool, error)
	ListBills(ctx context.Context, tenantID string, opts ListOptions) (Page[domain.Bill], error)
	AdvanceStatus(ctx context.Context, billID string, next domain.BillStatus) error
}

// BillMovementStore persists the dense, totally-ordered movement history of a bill.
type BillMovementStore interface {
	AppendMovement(ctx context.Context, m domain.BillMovement) (domain.BillMovement, error)
	ListMovements(ctx context.Context, billID string) ([]domain.BillMovement, error)
	NextOrderIndex(ctx context.Context, billID string) (int, error)
}

// BillAuthorStore persists bill-to-legislator authorship links.
type BillAuthorStore interface {
	UpsertBillAuthor(ctx context.Context, a domain.BillAuthor) (domain.BillAuthor, error)
	ListAuthorsByBill(ctx context.Context, billID string) ([]domain.BillAuthor, error)
	ListBillsByLegislator(ctx context.Context, legislatorID string, role domain.BillAuthorRole) ([]domain.Bill, error)
}

// VoteEventStore persists VoteEvent rows, upserted by (tenant, external_id).
type VoteEventStore interface {
	UpsertVoteEvent(ctx context.Context, v domain.VoteEvent) (domain.VoteEvent, bool, error)
	GetVoteEvent(ctx context.Context, tenantID, id string) (domain.VoteEvent, bool, error)
	GetVoteEventByExternalID(ctx context.Context, tenantID, externalID string) (domain.VoteEvent, bool, error)
}

// VoteResultStore persists VoteResult rows, upserted by (legislator, vote_event).
type VoteResultStore interface {
	UpsertVoteResult(ctx context.Context, v domain.VoteResult) (domain.VoteResult, error)
	ListResultsByEvent(ctx context.Context, voteEventID string) ([]domain.VoteResult, error)
	ListResultsByLegislator(ctx context.Context, tenantID, legislatorID, period string) ([]domain.VoteResult, error)
}

// SessionStore persists Session rows, upserted by (tenant, external_id).
type SessionStore interface {
	UpsertSession(ctx context.Context, s domain.Session) (domain.Session, bool, error)
	GetSessionByExternalID(ctx context.Context, tenantID, externalID string) (domain.Session, bool, error)
}

// AttendanceStore persists Attendance rows, upserted by (session, legislator).
type AttendanceStore interface {
	UpsertAttendance(ctx context.Context, a domain.Attendance) (domain.Attendance, error)
	ListAttendanceByLegislator(ctx context.Context, tenantID, legislatorID, period string) ([]domain.Attendance, error)
}

// CommissionStore persists Commission and CommissionMembership rows.
type CommissionStore interface {
	UpsertCommission(ctx context.Context, c domain.Commission) (domain.Commission, error)
	UpsertMembership(ctx context.Context, m domain.CommissionMembership) (domain.CommissionMembership, error)
	CountMembershipsByLegislator(ctx context.Context, legislatorID string) (int, error)
}

// LegislatorMetricStore persists derived per-period productivity metrics,
// upserted by (legislator, period) with last-writer-wins on scalar columns.
type LegislatorMetricStore interface {
	UpsertMetric(ctx context.Context, m domain.LegislatorMetric) (domain.LegislatorMetric, error)
	GetMetric(ctx context.Context, legislatorID, period string) (domain.LegislatorMetric, bool, error)
}

// AnalysisStore persists commerce Analysis rows.
type AnalysisStore interface {
	CreateAnalysis(ctx context.Context, a domain.Analysis) (domain.Analysis, error)
	ListAnalysesByTenant(ctx context.Context, tenantID string, module string) ([]domain.Analysis, error)
}

// FeedPostStore persists the append-only activity feed.
type FeedPostStore interface {
	CreateFeedPost(ctx context.Context, p domain.FeedPost) (domain.FeedPost, error)
	ListFeedPosts(ctx context.Context, tenantID string, opts ListOptions) (Page[domain.FeedPost], error)
	GetFeedPost(ctx context.Context, id string) (domain.FeedPost, bool, error)
}

// ScheduleLastFireStore records the last successful fire time per named
// schedule so a restart after downtime collapses missed runs (§4.3).
type ScheduleLastFireStore interface {
	GetLastFire(ctx context.Context, scheduleName string) (lastFired int64, found bool, err error)
	SetLastFire(ctx context.Context, scheduleName string, firedAtUnix int64) error
}

// DeadLetterStore holds exhausted queue jobs for manual inspection.
type DeadLetterStore interface {
	RecordDeadLetter(ctx context.Context, queueName, jobName string, payload []byte, lastErr string, attempts int) error
	ListDeadLetters(ctx context.Context, queueName string) ([]DeadLetterEntry, error)
}

// DeadLetterEntry is one dead-lettered job.
type DeadLetterEntry struct {
	ID        string
	QueueName string
	JobName   string
	Payload   []byte
	LastError string
	Attempts  int
	FailedAt  int64
}

// Stores bundles every store interface the application depends on. Every
// field is set by the caller; nil fields are not filled with defaults.
type Stores struct {
	Tenants            TenantStore
	Connections        ConnectionStore
	IngestionRuns      IngestionRunStore
	SourceRefs         SourceRefStore
	Products           ProductStore
	Orders             OrderStore
	InventoryLevels    InventoryLevelStore
	Legislators        LegislatorStore
	Bills              BillStore
	BillMovements      BillMovementStore
	BillAuthors        BillAuthorStore
	VoteEvents         VoteEventStore
	VoteResults        VoteResultStore
	Sessions           SessionStore
	Attendances        AttendanceStore
	Commissions        CommissionStore
	LegislatorMetrics  LegislatorMetricStore
	Analyses           AnalysisStore
	FeedPosts          FeedPostStore
	ScheduleLastFire   ScheduleLastFireStore
	DeadLetters        DeadLetterStore
}
