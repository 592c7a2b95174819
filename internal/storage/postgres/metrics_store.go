package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/tenantsync/engine/internal/domain"
	tserrors "github.com/tenantsync/engine/internal/errors"
)

// LegislatorMetricStore is the Postgres-backed domain.LegislatorMetric store.
type LegislatorMetricStore struct{ Base }

func NewLegislatorMetricStore(db *sql.DB) *LegislatorMetricStore { return &LegislatorMetricStore{Base{DB: db}} }

const legislatorMetricColumns = `id, tenant_id, legislator_id, period, bills_authored, bills_cosigned,
	bills_with_advancement, advancement_rate, attendance_rate, vote_participation_rate,
	commissions_count, normalised_productivity, computed_at`

func (s *LegislatorMetricStore) UpsertMetric(ctx context.Context, m domain.LegislatorMetric) (domain.LegislatorMetric, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	q := `INSERT INTO legislator_metrics (` + legislatorMetricColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
		ON CONFLICT (legislator_id, period) DO UPDATE SET
			bills_authored = EXCLUDED.bills_authored, bills_cosigned = EXCLUDED.bills_cosigned,
			bills_with_advancement = EXCLUDED.bills_with_advancement, advancement_rate = EXCLUDED.advancement_rate,
			attendance_rate = EXCLUDED.attendance_rate, vote_participation_rate = EXCLUDED.vote_participation_rate,
			commissions_count = EXCLUDED.commissions_count, normalised_productivity = EXCLUDED.normalised_productivity,
			computed_at = now()
		RETURNING id, computed_at`
	err := s.q(ctx).QueryRowContext(ctx, q, m.ID, m.TenantID, m.LegislatorID, m.Period, m.BillsAuthored,
		m.BillsCosigned, m.BillsWithAdvancement, m.AdvancementRate, m.AttendanceRate,
		m.VoteParticipationRate, m.CommissionsCount, m.NormalisedProductivity).Scan(&m.ID, &m.ComputedAt)
	if err != nil {
		return domain.LegislatorMetric{}, classify("legislator_metric_upsert_failed", "upsert legislator metric", err)
	}
	return m, nil
}

func (s *LegislatorMetricStore) GetMetric(ctx context.Context, legislatorID, period string) (domain.LegislatorMetric, bool, error) {
	q := `SELECT ` + legislatorMetricColumns + ` FROM legislator_metrics WHERE legislator_id = $1 AND period = $2`
	var m domain.LegislatorMetric
	err := s.q(ctx).QueryRowContext(ctx, q, legislatorID, period).Scan(&m.ID, &m.TenantID, &m.LegislatorID,
		&m.Period, &m.BillsAuthored, &m.BillsCosigned, &m.BillsWithAdvancement, &m.AdvancementRate,
		&m.AttendanceRate, &m.VoteParticipationRate, &m.CommissionsCount, &m.NormalisedProductivity, &m.ComputedAt)
	if err == sql.ErrNoRows {
		return domain.LegislatorMetric{}, false, nil
	}
	if err != nil {
		return domain.LegislatorMetric{}, false, classify("legislator_metric_query_failed", "query legislator metric", err)
	}
	return m, true, nil
}

// AnalysisStore is the Postgres-backed domain.Analysis store.
type AnalysisStore struct{ Base }

func NewAnalysisStore(db *sql.DB) *AnalysisStore { return &AnalysisStore{Base{DB: db}} }

func (s *AnalysisStore) CreateAnalysis(ctx context.Context, a domain.Analysis) (domain.Analysis, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	input, err := jsonOf(a.Input)
	if err != nil {
		return domain.Analysis{}, tserrors.SourceSchema("analysis_input_invalid", "encode analysis input", err)
	}
	output, err := jsonOf(a.Output)
	if err != nil {
		return domain.Analysis{}, tserrors.SourceSchema("analysis_output_invalid", "encode analysis output", err)
	}
	const q = `INSERT INTO analyses (id, tenant_id, module, input, output, insight, source_tag, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now()) RETURNING created_at`
	err = s.q(ctx).QueryRowContext(ctx, q, a.ID, a.TenantID, string(a.Module), input, output,
		a.Insight, a.SourceTag).Scan(&a.CreatedAt)
	if err != nil {
		return domain.Analysis{}, classify("analysis_create_failed", "create analysis", err)
	}
	return a, nil
}

func (s *AnalysisStore) ListAnalysesByTenant(ctx context.Context, tenantID string, module string) ([]domain.Analysis, error) {
	q := `SELECT id, tenant_id, module, input, output, insight, source_tag, created_at FROM analyses WHERE tenant_id = $1`
	args := []any{tenantID}
	if module != "" {
		q += " AND module = $2"
		args = append(args, module)
	}
	q += " ORDER BY created_at DESC"
	rows, err := s.q(ctx).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify("analysis_list_failed", "list analyses", err)
	}
	defer rows.Close()
	var out []domain.Analysis
	for rows.Next() {
		var a domain.Analysis
		var mod string
		var input, output []byte
		if err := rows.Scan(&a.ID, &a.TenantID, &mod, &input, &output, &a.Insight, &a.SourceTag, &a.CreatedAt); err != nil {
			return nil, classify("analysis_scan_failed", "scan analysis", err)
		}
		a.Module = domain.AnalysisModule(mod)
		a.Input = parseJSONMap(input)
		a.Output = parseJSONMap(output)
		out = append(out, a)
	}
	return out, rows.Err()
}
