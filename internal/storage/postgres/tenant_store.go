package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/tenantsync/engine/internal/domain"
	tserrors "github.com/tenantsync/engine/internal/errors"
)

// TenantStore is the Postgres-backed domain.Tenant store.
type TenantStore struct{ Base }

func NewTenantStore(db *sql.DB) *TenantStore { return &TenantStore{Base{DB: db}} }

func (s *TenantStore) CreateTenant(ctx context.Context, t domain.Tenant) (domain.Tenant, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	const q = `INSERT INTO tenants (id, email, name, plan_tier, solve_count, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING created_at`
	err := s.q(ctx).QueryRowContext(ctx, q, t.ID, t.Email, t.Name, t.PlanTier, t.SolveCount).Scan(&t.CreatedAt)
	if err != nil {
		return domain.Tenant{}, classify("tenant_create_failed", "create tenant", err)
	}
	return t, nil
}

func (s *TenantStore) GetTenant(ctx context.Context, id string) (domain.Tenant, error) {
	const q = `SELECT id, email, name, plan_tier, solve_count, created_at FROM tenants WHERE id = $1`
	return s.scanOne(ctx, q, id)
}

func (s *TenantStore) GetTenantByEmail(ctx context.Context, email string) (domain.Tenant, error) {
	const q = `SELECT id, email, name, plan_tier, solve_count, created_at FROM tenants WHERE email = $1`
	return s.scanOne(ctx, q, email)
}

func (s *TenantStore) MostRecentOnPlan(ctx context.Context, planTier string) (domain.Tenant, error) {
	const q = `SELECT id, email, name, plan_tier, solve_count, created_at FROM tenants
		WHERE plan_tier = $1 ORDER BY created_at DESC LIMIT 1`
	return s.scanOne(ctx, q, planTier)
}

func (s *TenantStore) ListTenants(ctx context.Context) ([]domain.Tenant, error) {
	const q = `SELECT id, email, name, plan_tier, solve_count, created_at FROM tenants ORDER BY created_at ASC`
	rows, err := s.q(ctx).QueryContext(ctx, q)
	if err != nil {
		return nil, classify("tenant_list_failed", "list tenants", err)
	}
	defer rows.Close()
	var out []domain.Tenant
	for rows.Next() {
		var t domain.Tenant
		if err := rows.Scan(&t.ID, &t.Email, &t.Name, &t.PlanTier, &t.SolveCount, &t.CreatedAt); err != nil {
			return nil, classify("tenant_scan_failed", "scan tenant row", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *TenantStore) scanOne(ctx context.Context, query string, arg any) (domain.Tenant, error) {
	var t domain.Tenant
	err := s.q(ctx).QueryRowContext(ctx, query, arg).Scan(&t.ID, &t.Email, &t.Name, &t.PlanTier, &t.SolveCount, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.Tenant{}, tserrors.NotFound("tenant_not_found", "tenant not found", err)
	}
	if err != nil {
		return domain.Tenant{}, classify("tenant_query_failed", "query tenant", err)
	}
	return t, nil
}

func (s *TenantStore) IncrementSolveCount(ctx context.Context, id string) error {
	const q = `UPDATE tenants SET solve_count = solve_count + 1 WHERE id = $1`
	res, err := s.q(ctx).ExecContext(ctx, q, id)
	if err != nil {
		return classify("tenant_update_failed", "increment solve count", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tserrors.NotFound("tenant_not_found", "tenant not found", nil)
	}
	return nil
}
