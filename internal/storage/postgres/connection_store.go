package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/tenantsync/engine/internal/domain"
	tserrors "github.com/tenantsync/engine/internal/errors"
)

// ConnectionStore is the Postgres-backed domain.Connection store.
type ConnectionStore struct{ Base }

func NewConnectionStore(db *sql.DB) *ConnectionStore { return &ConnectionStore{Base{DB: db}} }

func (s *ConnectionStore) UpsertConnection(ctx context.Context, c domain.Connection) (domain.Connection, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	const q = `INSERT INTO connections
		(id, tenant_id, source_name, shop_domain, access_token, scopes, sync_status, signature_strikes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (shop_domain) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			access_token = EXCLUDED.access_token,
			scopes = EXCLUDED.scopes,
			sync_status = EXCLUDED.sync_status
		RETURNING id, created_at`
	err := s.q(ctx).QueryRowContext(ctx, q, c.ID, c.TenantID, c.SourceName, c.ShopDomain, c.AccessToken,
		textArray(c.Scopes), string(c.SyncStatus), c.SignatureStrikes).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return domain.Connection{}, classify("connection_upsert_failed", "upsert connection", err)
	}
	return c, nil
}

func (s *ConnectionStore) scanOne(ctx context.Context, query string, arg any) (domain.Connection, error) {
	var c domain.Connection
	var status string
	var lastSync sql.NullTime
	err := s.q(ctx).QueryRowContext(ctx, query, arg).Scan(
		&c.ID, &c.TenantID, &c.SourceName, &c.ShopDomain, &c.AccessToken,
		(*pq.StringArray)(&c.Scopes), &status, &lastSync, &c.SignatureStrikes, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.Connection{}, tserrors.NotFound("connection_not_found", "connection not found", err)
	}
	if err != nil {
		return domain.Connection{}, classify("connection_query_failed", "query connection", err)
	}
	c.SyncStatus = domain.SyncStatus(status)
	c.LastSyncAt = fromNullTime(lastSync)
	return c, nil
}

const connectionColumns = `id, tenant_id, source_name, shop_domain, access_token, scopes, sync_status, last_sync_at, signature_strikes, created_at`

func (s *ConnectionStore) GetConnectionByShop(ctx context.Context, shopDomain string) (domain.Connection, error) {
	q := `SELECT ` + connectionColumns + ` FROM connections WHERE shop_domain = $1`
	return s.scanOne(ctx, q, shopDomain)
}

func (s *ConnectionStore) GetConnectionByTenant(ctx context.Context, tenantID, sourceName string) (domain.Connection, error) {
	const q = `SELECT ` + connectionColumns + ` FROM connections WHERE tenant_id = $1 AND source_name = $2`
	var c domain.Connection
	var status string
	var lastSync sql.NullTime
	err := s.q(ctx).QueryRowContext(ctx, q, tenantID, sourceName).Scan(
		&c.ID, &c.TenantID, &c.SourceName, &c.ShopDomain, &c.AccessToken,
		(*pq.StringArray)(&c.Scopes), &status, &lastSync, &c.SignatureStrikes, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.Connection{}, tserrors.NotFound("connection_not_found", "connection not found", err)
	}
	if err != nil {
		return domain.Connection{}, classify("connection_query_failed", "query connection", err)
	}
	c.SyncStatus = domain.SyncStatus(status)
	c.LastSyncAt = fromNullTime(lastSync)
	return c, nil
}

// SetSyncStatus is the single write path for domain.Connection.SyncStatus
// (§ Connection state machine): it enforces domain.SyncStatus.Transition
// before writing, so an illegal move (e.g. pending -> synced) is rejected
// rather than silently applied.
func (s *ConnectionStore) SetSyncStatus(ctx context.Context, id string, status domain.SyncStatus, lastSyncAt *string) error {
	var current string
	err := s.q(ctx).QueryRowContext(ctx, `SELECT sync_status FROM connections WHERE id = $1`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return tserrors.NotFound("connection_not_found", "connection not found", nil)
	}
	if err != nil {
		return classify("connection_lookup_failed", "load sync status", err)
	}
	if !domain.SyncStatus(current).Transition(status) {
		return tserrors.Conflict("sync_status_illegal_transition",
			fmt.Sprintf("cannot move connection sync status from %s to %s", current, status), nil)
	}

	const q = `UPDATE connections SET sync_status = $2, last_sync_at = CASE WHEN $3::boolean THEN now() ELSE last_sync_at END WHERE id = $1`
	res, err := s.q(ctx).ExecContext(ctx, q, id, string(status), lastSyncAt != nil)
	if err != nil {
		return classify("connection_update_failed", "set sync status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tserrors.NotFound("connection_not_found", "connection not found", nil)
	}
	return nil
}

func (s *ConnectionStore) RecordSignatureStrike(ctx context.Context, id string) (int, error) {
	const q = `UPDATE connections SET signature_strikes = signature_strikes + 1,
		sync_status = CASE WHEN signature_strikes + 1 >= 3 THEN 'error' ELSE sync_status END
		WHERE id = $1 RETURNING signature_strikes`
	var strikes int
	err := s.q(ctx).QueryRowContext(ctx, q, id).Scan(&strikes)
	if err == sql.ErrNoRows {
		return 0, tserrors.NotFound("connection_not_found", "connection not found", err)
	}
	if err != nil {
		return 0, classify("connection_update_failed", "record signature strike", err)
	}
	return strikes, nil
}

func (s *ConnectionStore) ClearSignatureStrikes(ctx context.Context, id string) error {
	const q = `UPDATE connections SET signature_strikes = 0 WHERE id = $1`
	res, err := s.q(ctx).ExecContext(ctx, q, id)
	if err != nil {
		return classify("connection_update_failed", "clear signature strikes", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tserrors.NotFound("connection_not_found", "connection not found", nil)
	}
	return nil
}
