// Package memory implements every storage interface against in-process maps.
// It backs unit tests and DSN-less local runs, mirroring the dual
// in-memory/Postgres implementation pattern used throughout this codebase.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	tserrors "github.com/tenantsync/engine/internal/errors"

	"github.com/tenantsync/engine/internal/domain"
	"github.com/tenantsync/engine/internal/storage"
)

// Store is an in-memory implementation of every storage.* interface.
type Store struct {
	mu sync.RWMutex

	tenants       map[string]domain.Tenant
	connections   map[string]domain.Connection
	ingestRuns    map[string]domain.IngestionRun
	sourceRefs    map[string]domain.SourceRef
	products      map[string]domain.Product // key: tenantID+"/"+externalID
	orders        map[string]domain.Order
	inventory     map[string]domain.InventoryLevel
	legislators   map[string]domain.Legislator
	bills         map[string]domain.Bill
	movements     map[string][]domain.BillMovement // key: billID
	billAuthors   map[string]domain.BillAuthor
	voteEvents    map[string]domain.VoteEvent
	voteResults   map[string]domain.VoteResult
	sessions      map[string]domain.Session
	attendances   map[string]domain.Attendance
	commissions   map[string]domain.Commission
	memberships   map[string]domain.CommissionMembership
	metrics       map[string]domain.LegislatorMetric // key: legislatorID+"/"+period
	analyses      []domain.Analysis
	feedPosts     []domain.FeedPost
	lastFire      map[string]int64
	deadLetters   []storage.DeadLetterEntry
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		tenants:     make(map[string]domain.Tenant),
		connections: make(map[string]domain.Connection),
		ingestRuns:  make(map[string]domain.IngestionRun),
		sourceRefs:  make(map[string]domain.SourceRef),
		products:    make(map[string]domain.Product),
		orders:      make(map[string]domain.Order),
		inventory:   make(map[string]domain.InventoryLevel),
		legislators: make(map[string]domain.Legislator),
		bills:       make(map[string]domain.Bill),
		movements:   make(map[string][]domain.BillMovement),
		billAuthors: make(map[string]domain.BillAuthor),
		voteEvents:  make(map[string]domain.VoteEvent),
		voteResults: make(map[string]domain.VoteResult),
		sessions:    make(map[string]domain.Session),
		attendances: make(map[string]domain.Attendance),
		commissions: make(map[string]domain.Commission),
		memberships: make(map[string]domain.CommissionMembership),
		metrics:     make(map[string]domain.LegislatorMetric),
		lastFire:    make(map[string]int64),
	}
}

func newID() string { return uuid.NewString() }

// --- Tenants ---

func (s *Store) CreateTenant(_ context.Context, t domain.Tenant) (domain.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = newID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	s.tenants[t.ID] = t
	return t, nil
}

func (s *Store) GetTenant(_ context.Context, id string) (domain.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return domain.Tenant{}, tserrors.NotFound("tenant_not_found", "tenant not found", nil)
	}
	return t, nil
}

func (s *Store) GetTenantByEmail(_ context.Context, email string) (domain.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tenants {
		if strings.EqualFold(t.Email, email) {
			return t, nil
		}
	}
	return domain.Tenant{}, tserrors.NotFound("tenant_not_found", "tenant not found", nil)
}

func (s *Store) ListTenants(_ context.Context) ([]domain.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) MostRecentOnPlan(_ context.Context, planTier string) (domain.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best domain.Tenant
	found := false
	for _, t := range s.tenants {
		if t.PlanTier != planTier {
			continue
		}
		if !found || t.CreatedAt.After(best.CreatedAt) {
			best, found = t, true
		}
	}
	if !found {
		return domain.Tenant{}, tserrors.NotFound("tenant_not_found", "no tenant on plan", nil)
	}
	return best, nil
}

func (s *Store) IncrementSolveCount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return tserrors.NotFound("tenant_not_found", "tenant not found", nil)
	}
	t.SolveCount++
	s.tenants[id] = t
	return nil
}

// --- Connections ---

func (s *Store) UpsertConnection(_ context.Context, c domain.Connection) (domain.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.connections {
		if existing.ShopDomain == c.ShopDomain {
			c.ID = id
			c.CreatedAt = existing.CreatedAt
			s.connections[id] = c
			return c, nil
		}
	}
	if c.ID == "" {
		c.ID = newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.connections[c.ID] = c
	return c, nil
}

func (s *Store) GetConnectionByShop(_ context.Context, shopDomain string) (domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.connections {
		if c.ShopDomain == shopDomain {
			return c, nil
		}
	}
	return domain.Connection{}, tserrors.NotFound("connection_not_found", "connection not found", nil)
}

func (s *Store) GetConnectionByTenant(_ context.Context, tenantID, sourceName string) (domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.connections {
		if c.TenantID == tenantID && c.SourceName == sourceName {
			return c, nil
		}
	}
	return domain.Connection{}, tserrors.NotFound("connection_not_found", "connection not found", nil)
}

// SetSyncStatus is the single write path for domain.Connection.SyncStatus: it
// enforces domain.SyncStatus.Transition before writing, matching the
// Postgres backend's behavior.
func (s *Store) SetSyncStatus(_ context.Context, id string, status domain.SyncStatus, lastSyncAt *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[id]
	if !ok {
		return tserrors.NotFound("connection_not_found", "connection not found", nil)
	}
	if !c.SyncStatus.Transition(status) {
		return tserrors.Conflict("sync_status_illegal_transition",
			fmt.Sprintf("cannot move connection sync status from %s to %s", c.SyncStatus, status), nil)
	}
	c.SyncStatus = status
	if lastSyncAt != nil {
		now := time.Now().UTC()
		c.LastSyncAt = &now
	}
	s.connections[id] = c
	return nil
}

func (s *Store) RecordSignatureStrike(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[id]
	if !ok {
		return 0, tserrors.NotFound("connection_not_found", "connection not found", nil)
	}
	c.SignatureStrikes++
	if c.SignatureStrikes >= 3 {
		c.SyncStatus = domain.SyncError
	}
	s.connections[id] = c
	return c.SignatureStrikes, nil
}

func (s *Store) ClearSignatureStrikes(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[id]
	if !ok {
		return tserrors.NotFound("connection_not_found", "connection not found", nil)
	}
	c.SignatureStrikes = 0
	s.connections[id] = c
	return nil
}

// --- IngestionRuns ---

func (s *Store) CreateIngestionRun(_ context.Context, r domain.IngestionRun) (domain.IngestionRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = newID()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = domain.RunRunning
	}
	s.ingestRuns[r.ID] = r
	return r, nil
}

func (s *Store) CompleteIngestionRun(_ context.Context, id string, status domain.RunStatus, processed, skipped, errored int, errDetail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.ingestRuns[id]
	if !ok {
		return tserrors.NotFound("ingestion_run_not_found", "ingestion run not found", nil)
	}
	now := time.Now().UTC()
	r.Status = status
	r.CompletedAt = &now
	r.RecordsProcessed = processed
	r.RecordsSkipped = skipped
	r.RecordsError = errored
	r.ErrorDetail = errDetail
	s.ingestRuns[id] = r
	return nil
}

func (s *Store) GetIngestionRun(_ context.Context, id string) (domain.IngestionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.ingestRuns[id]
	if !ok {
		return domain.IngestionRun{}, tserrors.NotFound("ingestion_run_not_found", "ingestion run not found", nil)
	}
	return r, nil
}

// --- SourceRefs ---

func (s *Store) LatestByChecksum(_ context.Context, tenantID, sourceKey, checksum string) (domain.SourceRef, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best domain.SourceRef
	found := false
	for _, ref := range s.sourceRefs {
		if ref.TenantID != tenantID || ref.SourceKey != sourceKey || ref.Checksum != checksum {
			continue
		}
		if !found || ref.FetchedAt.After(best.FetchedAt) {
			best, found = ref, true
		}
	}
	return best, found, nil
}

func (s *Store) CreateSourceRef(_ context.Context, ref domain.SourceRef) (domain.SourceRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref.ID == "" {
		ref.ID = newID()
	}
	if ref.FetchedAt.IsZero() {
		ref.FetchedAt = time.Now().UTC()
	}
	if ref.Status == "" {
		ref.Status = "ok"
	}
	s.sourceRefs[ref.ID] = ref
	return ref, nil
}

func (s *Store) MarkError(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.sourceRefs[id]
	if !ok {
		return tserrors.NotFound("source_ref_not_found", "source ref not found", nil)
	}
	ref.Status = "error"
	s.sourceRefs[id] = ref
	return nil
}

// --- Products ---

func productKey(tenantID, externalID string) string { return tenantID + "/" + externalID }

func (s *Store) UpsertProduct(_ context.Context, p domain.Product) (domain.Product, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := productKey(p.TenantID, p.ExternalID)
	_, existed := s.products[key]
	if p.ID == "" {
		if existed {
			p.ID = s.products[key].ID
		} else {
			p.ID = newID()
		}
	}
	p.UpdatedAt = time.Now().UTC()
	s.products[key] = p
	return p, !existed, nil
}

func (s *Store) ListProducts(_ context.Context, tenantID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Product
	for _, p := range s.products {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out, nil
}

func (s *Store) GetProductByExternalID(_ context.Context, tenantID, externalID string) (domain.Product, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[productKey(tenantID, externalID)]
	return p, ok, nil
}

func (s *Store) GetProductByAnyExternalID(_ context.Context, tenantID, externalID string) (domain.Product, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.products[productKey(tenantID, externalID)]; ok {
		return p, true, nil
	}
	for _, p := range s.products {
		if p.TenantID != tenantID {
			continue
		}
		for _, v := range p.Variants {
			if v.ExternalID == externalID {
				return p, true, nil
			}
		}
	}
	return domain.Product{}, false, nil
}

// --- Orders ---

func (s *Store) UpsertOrder(_ context.Context, o domain.Order) (domain.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := productKey(o.TenantID, o.ExternalID)
	_, existed := s.orders[key]
	if o.ID == "" {
		if existed {
			o.ID = s.orders[key].ID
		} else {
			o.ID = newID()
		}
	}
	o.UpdatedAt = time.Now().UTC()
	s.orders[key] = o
	return o, !existed, nil
}

func (s *Store) ListOrders(_ context.Context, tenantID string) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.TenantID == tenantID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderDate.Before(out[j].OrderDate) })
	return out, nil
}

func (s *Store) CountOrdersByMonth(_ context.Context, tenantID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int)
	for _, o := range s.orders {
		if o.TenantID != tenantID || o.OrderDate.IsZero() {
			continue
		}
		out[o.OrderDate.Format("2006-01")]++
	}
	return out, nil
}

// --- InventoryLevels ---

func (s *Store) UpsertInventoryLevel(_ context.Context, lvl domain.InventoryLevel) (domain.InventoryLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := lvl.TenantID + "/" + lvl.VariantID + "/" + lvl.LocationID
	if existing, ok := s.inventory[key]; ok && lvl.ID == "" {
		lvl.ID = existing.ID
	}
	if lvl.ID == "" {
		lvl.ID = newID()
	}
	lvl.UpdatedAt = time.Now().UTC()
	s.inventory[key] = lvl
	return lvl, nil
}

// --- Legislators ---

func (s *Store) UpsertLegislator(_ context.Context, l domain.Legislator) (domain.Legislator, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.legislators {
		if existing.TenantID == l.TenantID && existing.ExternalID == l.ExternalID {
			l.ID = id
			l.UpdatedAt = time.Now().UTC()
			s.legislators[id] = l
			return l, false, nil
		}
	}
	if l.ID == "" {
		l.ID = newID()
	}
	l.UpdatedAt = time.Now().UTC()
	s.legislators[l.ID] = l
	return l, true, nil
}

func (s *Store) GetLegislator(_ context.Context, tenantID, id string) (domain.Legislator, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.legislators[id]
	if !ok || l.TenantID != tenantID {
		return domain.Legislator{}, false, nil
	}
	return l, true, nil
}

func (s *Store) GetLegislatorByExternalID(_ context.Context, tenantID, externalID string) (domain.Legislator, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.legislators {
		if l.TenantID == tenantID && l.ExternalID == externalID {
			return l, true, nil
		}
	}
	return domain.Legislator{}, false, nil
}

func (s *Store) ListLegislators(_ context.Context, tenantID string, opts storage.ListOptions) (storage.Page[domain.Legislator], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []domain.Legislator
	for _, l := range s.legislators {
		if l.TenantID != tenantID {
			continue
		}
		if block := opts.Filter["blockId"]; block != "" && l.Block != block {
			continue
		}
		if province := opts.Filter["provinceId"]; province != "" && l.Province != province {
			continue
		}
		if isActive := opts.Filter["isActive"]; isActive != "" && (isActive == "true") != l.Active {
			continue
		}
		if opts.Search != "" && !strings.Contains(strings.ToLower(l.FirstName+" "+l.LastName), strings.ToLower(opts.Search)) {
			continue
		}
		matched = append(matched, l)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].LastName < matched[j].LastName })
	return paginate(matched, opts), nil
}

func paginate[T any](all []T, opts storage.ListOptions) storage.Page[T] {
	limit := opts.Limit
	if limit <= 0 {
		limit = 25
	}
	page := opts.Page
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * limit
	if start > len(all) {
		start = len(all)
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return storage.Page[T]{Items: all[start:end], Total: len(all)}
}

// --- Bills ---

func (s *Store) UpsertBill(_ context.Context, b domain.Bill) (domain.Bill, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.bills {
		if existing.TenantID == b.TenantID && existing.ExternalID == b.ExternalID {
			b.ID = id
			// Upsert never regresses status; AdvanceStatus is the only writer of Status transitions.
			b.Status = existing.Status
			b.UpdatedAt = time.Now().UTC()
			s.bills[id] = b
			return b, false, nil
		}
	}
	if b.ID == "" {
		b.ID = newID()
	}
	if b.Status == "" {
		b.Status = domain.BillPresented
	}
	b.UpdatedAt = time.Now().UTC()
	s.bills[b.ID] = b
	return b, true, nil
}

func (s *Store) GetBill(_ context.Context, tenantID, id string) (domain.Bill, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bills[id]
	if !ok || b.TenantID != tenantID {
		return domain.Bill{}, false, nil
	}
	return b, true, nil
}

func (s *Store) GetBillByExternalID(_ context.Context, tenantID, externalID string) (domain.Bill, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.bills {
		if b.TenantID == tenantID && b.ExternalID == externalID {
			return b, true, nil
		}
	}
	return domain.Bill{}, false, nil
}

func (s *Store) ListBills(_ context.Context, tenantID string, opts storage.ListOptions) (storage.Page[domain.Bill], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []domain.Bill
	for _, b := range s.bills {
		if b.TenantID != tenantID {
			continue
		}
		if status := opts.Filter["status"]; status != "" && string(b.Status) != status {
			continue
		}
		if typ := opts.Filter["type"]; typ != "" && b.Type != typ {
			continue
		}
		if period := opts.Filter["period"]; period != "" && b.Period != period {
			continue
		}
		if opts.Search != "" && !strings.Contains(strings.ToLower(b.Title), strings.ToLower(opts.Search)) {
			continue
		}
		matched = append(matched, b)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].PresentedDate.After(matched[j].PresentedDate) })
	return paginate(matched, opts), nil
}

func (s *Store) AdvanceStatus(_ context.Context, billID string, next domain.BillStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bills[billID]
	if !ok {
		return tserrors.NotFound("bill_not_found", "bill not found", nil)
	}
	if b.Status.Advances(next) {
		b.Status = next
		b.UpdatedAt = time.Now().UTC()
		s.bills[billID] = b
	}
	return nil
}

// --- BillMovements ---

func (s *Store) AppendMovement(_ context.Context, m domain.BillMovement) (domain.BillMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = newID()
	}
	if m.MovedAt.IsZero() {
		m.MovedAt = time.Now().UTC()
	}
	existing := s.movements[m.BillID]
	m.OrderIndex = len(existing)
	s.movements[m.BillID] = append(existing, m)
	return m, nil
}

func (s *Store) ListMovements(_ context.Context, billID string) ([]domain.BillMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.BillMovement, len(s.movements[billID]))
	copy(out, s.movements[billID])
	return out, nil
}

func (s *Store) NextOrderIndex(_ context.Context, billID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.movements[billID]), nil
}

// --- BillAuthors ---

func (s *Store) UpsertBillAuthor(_ context.Context, a domain.BillAuthor) (domain.BillAuthor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := a.BillID + "/" + a.LegislatorID + "/" + string(a.Role)
	if a.ID == "" {
		if existing, ok := s.billAuthors[key]; ok {
			a.ID = existing.ID
		} else {
			a.ID = newID()
		}
	}
	s.billAuthors[key] = a
	return a, nil
}

func (s *Store) ListAuthorsByBill(_ context.Context, billID string) ([]domain.BillAuthor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.BillAuthor
	for _, a := range s.billAuthors {
		if a.BillID == billID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) ListBillsByLegislator(_ context.Context, legislatorID string, role domain.BillAuthorRole) ([]domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Bill
	for _, a := range s.billAuthors {
		if a.LegislatorID != legislatorID || a.Role != role {
			continue
		}
		if b, ok := s.bills[a.BillID]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

// --- VoteEvents / VoteResults ---

func (s *Store) UpsertVoteEvent(_ context.Context, v domain.VoteEvent) (domain.VoteEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.voteEvents {
		if existing.TenantID == v.TenantID && existing.ExternalID == v.ExternalID {
			v.ID = id
			s.voteEvents[id] = v
			return v, false, nil
		}
	}
	if v.ID == "" {
		v.ID = newID()
	}
	s.voteEvents[v.ID] = v
	return v, true, nil
}

func (s *Store) GetVoteEvent(_ context.Context, tenantID, id string) (domain.VoteEvent, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.voteEvents[id]
	if !ok || v.TenantID != tenantID {
		return domain.VoteEvent{}, false, nil
	}
	return v, true, nil
}

func (s *Store) GetVoteEventByExternalID(_ context.Context, tenantID, externalID string) (domain.VoteEvent, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.voteEvents {
		if v.TenantID == tenantID && v.ExternalID == externalID {
			return v, true, nil
		}
	}
	return domain.VoteEvent{}, false, nil
}

func (s *Store) UpsertVoteResult(_ context.Context, v domain.VoteResult) (domain.VoteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := v.VoteEventID + "/" + v.LegislatorID
	if v.ID == "" {
		if existing, ok := s.voteResults[key]; ok {
			v.ID = existing.ID
		} else {
			v.ID = newID()
		}
	}
	s.voteResults[key] = v
	return v, nil
}

func (s *Store) ListResultsByEvent(_ context.Context, voteEventID string) ([]domain.VoteResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.VoteResult
	for _, v := range s.voteResults {
		if v.VoteEventID == voteEventID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *Store) ListResultsByLegislator(_ context.Context, tenantID, legislatorID, period string) ([]domain.VoteResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.VoteResult
	for _, v := range s.voteResults {
		if v.TenantID != tenantID || v.LegislatorID != legislatorID {
			continue
		}
		if event, ok := s.voteEvents[v.VoteEventID]; ok {
			if period != "" && !strings.HasPrefix(event.VotedAt.Format("2006-01-02"), period) {
				continue
			}
		}
		out = append(out, v)
	}
	return out, nil
}

// --- Sessions / Attendance ---

func (s *Store) UpsertSession(_ context.Context, sess domain.Session) (domain.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.sessions {
		if existing.TenantID == sess.TenantID && existing.ExternalID == sess.ExternalID {
			sess.ID = id
			s.sessions[id] = sess
			return sess, false, nil
		}
	}
	if sess.ID == "" {
		sess.ID = newID()
	}
	s.sessions[sess.ID] = sess
	return sess, true, nil
}

func (s *Store) GetSessionByExternalID(_ context.Context, tenantID, externalID string) (domain.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.TenantID == tenantID && sess.ExternalID == externalID {
			return sess, true, nil
		}
	}
	return domain.Session{}, false, nil
}

func (s *Store) UpsertAttendance(_ context.Context, a domain.Attendance) (domain.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := a.SessionID + "/" + a.LegislatorID
	if a.ID == "" {
		if existing, ok := s.attendances[key]; ok {
			a.ID = existing.ID
		} else {
			a.ID = newID()
		}
	}
	s.attendances[key] = a
	return a, nil
}

func (s *Store) ListAttendanceByLegislator(_ context.Context, tenantID, legislatorID, period string) ([]domain.Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Attendance
	for _, a := range s.attendances {
		if a.TenantID != tenantID || a.LegislatorID != legislatorID {
			continue
		}
		if period != "" {
			if sess, ok := s.sessions[a.SessionID]; ok && !strings.HasPrefix(sess.HeldAt.Format("2006-01-02"), period) {
				continue
			}
		}
		out = append(out, a)
	}
	return out, nil
}

// --- Commissions ---

func (s *Store) UpsertCommission(_ context.Context, c domain.Commission) (domain.Commission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.commissions {
		if existing.TenantID == c.TenantID && existing.ExternalID == c.ExternalID {
			c.ID = id
			s.commissions[id] = c
			return c, nil
		}
	}
	if c.ID == "" {
		c.ID = newID()
	}
	s.commissions[c.ID] = c
	return c, nil
}

func (s *Store) UpsertMembership(_ context.Context, m domain.CommissionMembership) (domain.CommissionMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := m.CommissionID + "/" + m.LegislatorID
	if m.ID == "" {
		m.ID = newID()
	}
	s.memberships[key] = m
	return m, nil
}

func (s *Store) CountMembershipsByLegislator(_ context.Context, legislatorID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.memberships {
		if m.LegislatorID == legislatorID {
			n++
		}
	}
	return n, nil
}

// --- LegislatorMetrics ---

func (s *Store) UpsertMetric(_ context.Context, m domain.LegislatorMetric) (domain.LegislatorMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := m.LegislatorID + "/" + m.Period
	if m.ID == "" {
		if existing, ok := s.metrics[key]; ok {
			m.ID = existing.ID
		} else {
			m.ID = newID()
		}
	}
	m.ComputedAt = time.Now().UTC()
	s.metrics[key] = m
	return m, nil
}

func (s *Store) GetMetric(_ context.Context, legislatorID, period string) (domain.LegislatorMetric, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.metrics[legislatorID+"/"+period]
	return m, ok, nil
}

// --- Analyses ---

func (s *Store) CreateAnalysis(_ context.Context, a domain.Analysis) (domain.Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	s.analyses = append(s.analyses, a)
	return a, nil
}

func (s *Store) ListAnalysesByTenant(_ context.Context, tenantID string, module string) ([]domain.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Analysis
	for _, a := range s.analyses {
		if a.TenantID != tenantID {
			continue
		}
		if module != "" && string(a.Module) != module {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// --- FeedPosts ---

func (s *Store) CreateFeedPost(_ context.Context, p domain.FeedPost) (domain.FeedPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = newID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.feedPosts = append(s.feedPosts, p)
	return p, nil
}

func (s *Store) ListFeedPosts(_ context.Context, tenantID string, opts storage.ListOptions) (storage.Page[domain.FeedPost], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []domain.FeedPost
	for _, p := range s.feedPosts {
		if p.TenantID != tenantID {
			continue
		}
		if typ := opts.Filter["type"]; typ != "" && string(p.Type) != typ {
			continue
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	return paginate(matched, opts), nil
}

func (s *Store) GetFeedPost(_ context.Context, id string) (domain.FeedPost, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.feedPosts {
		if p.ID == id {
			return p, true, nil
		}
	}
	return domain.FeedPost{}, false, nil
}

// --- ScheduleLastFire ---

func (s *Store) GetLastFire(_ context.Context, scheduleName string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.lastFire[scheduleName]
	return v, ok, nil
}

func (s *Store) SetLastFire(_ context.Context, scheduleName string, firedAtUnix int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFire[scheduleName] = firedAtUnix
	return nil
}

// --- DeadLetters ---

func (s *Store) RecordDeadLetter(_ context.Context, queueName, jobName string, payload []byte, lastErr string, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadLetters = append(s.deadLetters, storage.DeadLetterEntry{
		ID: newID(), QueueName: queueName, JobName: jobName, Payload: payload,
		LastError: lastErr, Attempts: attempts, FailedAt: time.Now().UTC().Unix(),
	})
	return nil
}

func (s *Store) ListDeadLetters(_ context.Context, queueName string) ([]storage.DeadLetterEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []storage.DeadLetterEntry
	for _, d := range s.deadLetters {
		if queueName == "" || d.QueueName == queueName {
			out = append(out, d)
		}
	}
	return out, nil
}

// AsStores bundles the in-memory store into a storage.Stores value.
func (s *Store) AsStores() storage.Stores {
	return storage.Stores{
		Tenants: s, Connections: s, IngestionRuns: s, SourceRefs: s,
		Products: s, Orders: s, InventoryLevels: s,
		Legislators: s, Bills: s, BillMovements: s, BillAuthors: s,
		VoteEvents: s, VoteResults: s, Sessions: s, Attendances: s,
		Commissions: s, LegislatorMetrics: s, Analyses: s, FeedPosts: s,
		ScheduleLastFire: s, DeadLetters: s,
	}
}
