package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tenantsync/engine/internal/domain"
	"github.com/tenantsync/engine/internal/metricsengine"
	"github.com/tenantsync/engine/internal/normalize"
)

// ctxType is a local alias kept for readability in handler signatures.
type ctxType = context.Context

func checksumOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func readAll(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, 16<<20))
}

// emitTransitions persists one feed post per feed-worthy transition the
// normalizer detected, and recomputes metrics for affected legislators.
func (s *Server) emitTransitions(ctx ctxType, tenantID, sourceRefID string, res normalize.Result) {
	for _, t := range res.Transitions {
		if _, _, err := s.feed.Emit(ctx, tenantID, sourceRefID, t); err != nil && s.log != nil {
			s.log.WithError(err).Warn("failed to emit feed post")
		}
	}
	for _, ref := range res.Affected {
		if ref.Kind == normalize.EntityLegislator {
			period := ref.Period
			if period == "" {
				period = fmt.Sprintf("%d", time.Now().Year())
			}
			s.recomputeLegislatorMetric(ctx, tenantID, ref.ID, period)
		}
	}
}

// recomputeLegislatorMetric rebuilds one legislator's derived productivity
// metric for the period and upserts it (§4.6.1).
func (s *Server) recomputeLegislatorMetric(ctx ctxType, tenantID, legislatorID, period string) {
	metric, err := s.computeMetric(ctx, tenantID, legislatorID, period)
	if err != nil {
		if s.log != nil {
			s.log.WithError(err).Warn("failed to recompute legislator metric")
		}
		return
	}
	if _, err := s.stores.LegislatorMetrics.UpsertMetric(ctx, metric); err != nil && s.log != nil {
		s.log.WithError(err).Warn("failed to persist legislator metric")
	}
}

// computeMetric gathers one legislator's raw rows for the period and derives
// the metric via the pure metricsengine.Compute function.
func (s *Server) computeMetric(ctx ctxType, tenantID, legislatorID, period string) (domain.LegislatorMetric, error) {
	legislator, found, err := s.stores.Legislators.GetLegislator(ctx, tenantID, legislatorID)
	if err != nil {
		return domain.LegislatorMetric{}, err
	}
	if !found {
		return domain.LegislatorMetric{}, fmt.Errorf("legislator %s not found", legislatorID)
	}
	authored, err := s.stores.BillAuthors.ListBillsByLegislator(ctx, legislatorID, domain.RoleAuthor)
	if err != nil {
		return domain.LegislatorMetric{}, err
	}
	cosigned, err := s.stores.BillAuthors.ListBillsByLegislator(ctx, legislatorID, domain.RoleCoauthor)
	if err != nil {
		return domain.LegislatorMetric{}, err
	}
	attendances, err := s.stores.Attendances.ListAttendanceByLegislator(ctx, tenantID, legislatorID, period)
	if err != nil {
		return domain.LegislatorMetric{}, err
	}
	voteResults, err := s.stores.VoteResults.ListResultsByLegislator(ctx, tenantID, legislatorID, period)
	if err != nil {
		return domain.LegislatorMetric{}, err
	}
	commissionCount, err := s.stores.Commissions.CountMembershipsByLegislator(ctx, legislatorID)
	if err != nil {
		return domain.LegislatorMetric{}, err
	}
	metric := metricsengine.Compute(metricsengine.Inputs{
		LegislatorID: legislatorID, Period: period, TermStart: legislator.TermStart, Now: time.Now(),
		AuthoredBills: authored, CosignedCount: len(cosigned), Attendances: attendances,
		VoteResults: voteResults, CommissionCount: commissionCount,
	})
	metric.TenantID = tenantID
	return metric, nil
}
