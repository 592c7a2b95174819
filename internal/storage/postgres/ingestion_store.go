package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/tenantsync/engine/internal/domain"
	tserrors "github.com/tenantsync/engine/internal/errors"
)

// IngestionRunStore is the Postgres-backed domain.IngestionRun store.
type IngestionRunStore struct{ Base }

func NewIngestionRunStore(db *sql.DB) *IngestionRunStore { return &IngestionRunStore{Base{DB: db}} }

func (s *IngestionRunStore) CreateIngestionRun(ctx context.Context, r domain.IngestionRun) (domain.IngestionRun, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = domain.RunRunning
	}
	const q = `INSERT INTO ingestion_runs (id, tenant_id, source_name, data_type, status, started_at)
		VALUES ($1, $2, $3, $4, $5, now()) RETURNING started_at`
	err := s.q(ctx).QueryRowContext(ctx, q, r.ID, r.TenantID, r.SourceName, r.DataType, string(r.Status)).Scan(&r.StartedAt)
	if err != nil {
		return domain.IngestionRun{}, classify("ingestion_run_create_failed", "create ingestion run", err)
	}
	return r, nil
}

func (s *IngestionRunStore) CompleteIngestionRun(ctx context.Context, id string, status domain.RunStatus, processed, skipped, errored int, errDetail map[string]any) error {
	payload, err := jsonOf(errDetail)
	if err != nil {
		return tserrors.SourceSchema("ingestion_run_detail_invalid", "encode error detail", err)
	}
	const q = `UPDATE ingestion_runs SET status = $2, completed_at = now(),
		records_processed = $3, records_skipped = $4, records_error = $5, error_detail = $6
		WHERE id = $1`
	res, err := s.q(ctx).ExecContext(ctx, q, id, string(status), processed, skipped, errored, payload)
	if err != nil {
		return classify("ingestion_run_update_failed", "complete ingestion run", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tserrors.NotFound("ingestion_run_not_found", "ingestion run not found", nil)
	}
	return nil
}

func (s *IngestionRunStore) GetIngestionRun(ctx context.Context, id string) (domain.IngestionRun, error) {
	const q = `SELECT id, tenant_id, source_name, data_type, status, started_at, completed_at,
		records_processed, records_skipped, records_error, error_detail FROM ingestion_runs WHERE id = $1`
	var r domain.IngestionRun
	var status string
	var completed sql.NullTime
	var detail []byte
	err := s.q(ctx).QueryRowContext(ctx, q, id).Scan(&r.ID, &r.TenantID, &r.SourceName, &r.DataType, &status,
		&r.StartedAt, &completed, &r.RecordsProcessed, &r.RecordsSkipped, &r.RecordsError, &detail)
	if err == sql.ErrNoRows {
		return domain.IngestionRun{}, tserrors.NotFound("ingestion_run_not_found", "ingestion run not found", err)
	}
	if err != nil {
		return domain.IngestionRun{}, classify("ingestion_run_query_failed", "query ingestion run", err)
	}
	r.Status = domain.RunStatus(status)
	r.CompletedAt = fromNullTime(completed)
	r.ErrorDetail = parseJSONMap(detail)
	return r, nil
}

// SourceRefStore is the Postgres-backed domain.SourceRef store.
type SourceRefStore struct{ Base }

func NewSourceRefStore(db *sql.DB) *SourceRefStore { return &SourceRefStore{Base{DB: db}} }

func (s *SourceRefStore) LatestByChecksum(ctx context.Context, tenantID, sourceKey, checksum string) (domain.SourceRef, bool, error) {
	const q = `SELECT id, tenant_id, ingestion_run_id, source_key, data_type, checksum, blob_location, fetched_at, status
		FROM source_refs WHERE tenant_id = $1 AND source_key = $2 AND checksum = $3
		ORDER BY fetched_at DESC LIMIT 1`
	var ref domain.SourceRef
	err := s.q(ctx).QueryRowContext(ctx, q, tenantID, sourceKey, checksum).Scan(
		&ref.ID, &ref.TenantID, &ref.IngestionRunID, &ref.SourceKey, &ref.DataType, &ref.Checksum,
		&ref.BlobLocation, &ref.FetchedAt, &ref.Status)
	if err == sql.ErrNoRows {
		return domain.SourceRef{}, false, nil
	}
	if err != nil {
		return domain.SourceRef{}, false, classify("source_ref_query_failed", "query source ref", err)
	}
	return ref, true, nil
}

func (s *SourceRefStore) CreateSourceRef(ctx context.Context, ref domain.SourceRef) (domain.SourceRef, error) {
	if ref.ID == "" {
		ref.ID = uuid.NewString()
	}
	if ref.Status == "" {
		ref.Status = "ok"
	}
	const q = `INSERT INTO source_refs (id, tenant_id, ingestion_run_id, source_key, data_type, checksum, blob_location, fetched_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), $8) RETURNING fetched_at`
	err := s.q(ctx).QueryRowContext(ctx, q, ref.ID, ref.TenantID, ref.IngestionRunID, ref.SourceKey,
		ref.DataType, ref.Checksum, ref.BlobLocation, ref.Status).Scan(&ref.FetchedAt)
	if err != nil {
		return domain.SourceRef{}, classify("source_ref_create_failed", "create source ref", err)
	}
	return ref, nil
}

func (s *SourceRefStore) MarkError(ctx context.Context, id string) error {
	const q = `UPDATE source_refs SET status = 'error' WHERE id = $1`
	res, err := s.q(ctx).ExecContext(ctx, q, id)
	if err != nil {
		return classify("source_ref_update_failed", "mark source ref error", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tserrors.NotFound("source_ref_not_found", "source ref not found", nil)
	}
	return nil
}
