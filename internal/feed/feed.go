// Package feed turns normalizer-detected transitions into FeedPost rows per
// the fixed event taxonomy of §4.7.
package feed

import (
	"context"
	"fmt"

	"github.com/tenantsync/engine/internal/domain"
	"github.com/tenantsync/engine/internal/normalize"
	"github.com/tenantsync/engine/internal/storage"
)

// Generator persists one FeedPost per detected transition.
type Generator struct {
	posts storage.FeedPostStore
}

func New(posts storage.FeedPostStore) *Generator { return &Generator{posts: posts} }

var kindToType = map[string]domain.FeedType{
	"BILL_CREATED":      domain.FeedBillCreated,
	"BILL_MOVEMENT":     domain.FeedBillMovement,
	"VOTE_RESULT":       domain.FeedVoteResult,
	"ATTENDANCE_RECORD": domain.FeedAttendanceRecord,
	"ANALYSIS_READY":    domain.FeedAnalysisReady,
}

// Emit persists a FeedPost for one transition. Unrecognised kinds (e.g. the
// commerce-only ORDER_CREATED bookkeeping transition, which has no feed
// entry in the fixed taxonomy) are silently skipped.
func (g *Generator) Emit(ctx context.Context, tenantID, sourceRefID string, t normalize.Transition) (domain.FeedPost, bool, error) {
	feedType, ok := kindToType[t.Kind]
	if !ok {
		return domain.FeedPost{}, false, nil
	}
	post := domain.FeedPost{
		TenantID: tenantID, Type: feedType, Title: t.Title, Body: t.Body,
		Payload: t.Payload, EntityRef: t.EntityRef, Tags: t.Tags,
		SourceRefID: sourceRefID, AutoGenerated: true,
	}
	created, err := g.posts.CreateFeedPost(ctx, post)
	return created, true, err
}

// AnalysisReadyTransition builds the ANALYSIS_READY transition for one
// completed analysis module, per §4.7's "title = module name; body = top
// insights line" rule.
func AnalysisReadyTransition(module domain.AnalysisModule, topInsight string) normalize.Transition {
	return normalize.Transition{
		Kind: "ANALYSIS_READY", Title: string(module),
		Body: topInsight,
	}
}

// AttendanceBody formats the §4.7 "Present P/T (pct%). Absent A" body.
func AttendanceBody(present, total int) string {
	pct := 0.0
	if total > 0 {
		pct = float64(present) / float64(total) * 100
	}
	absent := total - present
	return fmt.Sprintf("Present %d/%d (%.0f%%). Absent %d", present, total, pct, absent)
}
