// Package ingestpipeline implements the fetch -> normalize -> recompute
// sequence (§4.1, §4.2, §4.5, §4.6) as a chain of independently-retryable
// jobs across the four named queues: a fetch fans out over every tenant and
// data type and, for each unchanged-checksum miss, hands off to a
// "normalize" job; normalize then hands off to one "metrics" job per
// affected legislator/period and one "feed" job per detected transition, so
// each stage keeps its own queue's attempt/backoff/dead-letter semantics
// instead of one fetch failure re-running everything downstream of it. The
// OAuth callback's inline initial sync (§4.4 step 3) runs its own copy of
// the fetch+normalize+dispatch sequence synchronously within the HTTP
// request instead, since it must block on the result before redirecting the
// user. When Pipeline.Queue is nil (the batch ingestion CLI's one-shot mode,
// which has no running worker to hand a job off to) every stage below runs
// inline instead of being enqueued, so the CLI still completes its pass
// synchronously.
package ingestpipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tenantsync/engine/internal/adapters"
	"github.com/tenantsync/engine/internal/adapters/commerce"
	"github.com/tenantsync/engine/internal/adapters/legislative"
	service "github.com/tenantsync/engine/internal/app/core/service"
	"github.com/tenantsync/engine/internal/domain"
	tserrors "github.com/tenantsync/engine/internal/errors"
	"github.com/tenantsync/engine/internal/feed"
	"github.com/tenantsync/engine/internal/metricsengine"
	commercenorm "github.com/tenantsync/engine/internal/normalize/commerce"
	legislativenorm "github.com/tenantsync/engine/internal/normalize/legislative"
	"github.com/tenantsync/engine/internal/normalize"
	"github.com/tenantsync/engine/internal/queue"
	"github.com/tenantsync/engine/internal/storage"
	"github.com/tenantsync/engine/pkg/blob"
	"github.com/tenantsync/engine/pkg/logger"

	"crypto/sha256"
	"encoding/hex"
)

var commerceDataTypes = []string{"products", "orders", "inventory_levels"}
var legislativeDataTypes = []string{"legislators", "bills", "bill_movements", "bill_authors", "sessions", "vote_events", "vote_results", "attendance"}

// sourceKind names which adapter/normalizer pair a staged job belongs to.
const (
	sourceKindCommerce    = "commerce"
	sourceKindLegislative = "legislative"
)

// Job names registered on the four queues (§4.2).
const (
	JobNormalizeSourceRef        = "normalize:source-ref"
	JobRecomputeLegislatorMetric = "metrics:recompute-legislator"
	JobEmitFeedTransition        = "feed:emit-transition"
)

// Pipeline bundles every collaborator needed to run one fetch/normalize pass.
type Pipeline struct {
	Stores          storage.Stores
	Commerce        *commerce.Adapter
	Legislative     *legislative.Adapter
	CommerceNorm    *commercenorm.Normalizer
	LegislativeNorm *legislativenorm.Normalizer
	Feed            *feed.Generator
	Blobs           blob.Store
	Log             *logger.Logger
	// Queue, when set, drives the staged fetch->normalize->metrics/feed
	// hand-off described above. Left nil, every stage below runs inline.
	Queue queue.Queue
}

func checksumOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NormalizeJobPayload is the wire payload of a "normalize" queue job: enough
// to re-fetch the raw bytes from blob storage and pick the right normalizer,
// without re-fetching from the source.
type NormalizeJobPayload struct {
	TenantID     string `json:"tenant_id"`
	SourceRefID  string `json:"source_ref_id"`
	SourceKind   string `json:"source_kind"`
	DataType     string `json:"data_type"`
	BlobLocation string `json:"blob_location"`
}

// MetricsJobPayload is the wire payload of a "metrics" recompute-one job.
type MetricsJobPayload struct {
	TenantID     string `json:"tenant_id"`
	LegislatorID string `json:"legislator_id"`
	Period       string `json:"period"`
}

// FeedJobPayload is the wire payload of a "feed" emit-one-transition job.
type FeedJobPayload struct {
	TenantID    string               `json:"tenant_id"`
	SourceRefID string               `json:"source_ref_id"`
	Transition  normalize.Transition `json:"transition"`
}

// IngestAllSources fans out over every tenant's commerce connection and the
// fixed legislative data types, the §4.3 "ingest:all-sources" job body. Each
// fetch that clears the checksum dedupe check hands off to a "normalize" job
// rather than normalizing inline.
func (p *Pipeline) IngestAllSources(ctx context.Context) (enqueued, errored int, err error) {
	tenants, err := p.Stores.Tenants.ListTenants(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, tenant := range tenants {
		if p.Commerce != nil {
			if conn, cerr := p.Stores.Connections.GetConnectionByTenant(ctx, tenant.ID, commerce.SourceName); cerr == nil {
				for _, dataType := range commerceDataTypes {
					ok, ferr := p.fetchAndHandOff(ctx, tenant.ID, p.Commerce, sourceKindCommerce, "commerce:"+dataType, dataType, conn)
					if ferr != nil {
						errored++
						if p.Log != nil {
							p.Log.WithError(ferr).WithField("tenant", tenant.ID).WithField("data_type", dataType).Warn("commerce ingest failed")
						}
						continue
					}
					if ok {
						enqueued++
					}
				}
			}
		}
		if p.Legislative != nil {
			for _, dataType := range legislativeDataTypes {
				ok, ferr := p.fetchAndHandOff(ctx, tenant.ID, p.Legislative, sourceKindLegislative, "legislative:"+dataType, dataType, domain.Connection{TenantID: tenant.ID})
				if ferr != nil {
					errored++
					continue
				}
				if ok {
					enqueued++
				}
			}
		}
	}
	return enqueued, errored, nil
}

// fetchRetryPolicy bounds the extra attempts given to a TransientIoError
// fetch (§7) before it counts against the batch's errored total.
var fetchRetryPolicy = service.RetryPolicy{
	Attempts: 3, InitialBackoff: 200 * time.Millisecond, MaxBackoff: 2 * time.Second, Multiplier: 2,
}

// fetchAndHandOff fetches one (tenant, dataType) payload, dedupes it against
// the last-seen checksum, persists it to blob storage and the SourceRef
// audit trail, then hands normalization off to the "normalize" queue (or, if
// no queue is wired, runs it inline). ok is false when the fetch was skipped
// because the payload is unchanged since the last run.
func (p *Pipeline) fetchAndHandOff(ctx context.Context, tenantID string, adapter adapters.Adapter, kind, sourceKey, dataType string, conn domain.Connection) (bool, error) {
	raw, err := adapter.Fetch(ctx, conn, dataType)
	if err != nil && tserrors.Retryable(err) {
		err = service.Retry(ctx, fetchRetryPolicy, func() error {
			r, ferr := adapter.Fetch(ctx, conn, dataType)
			if ferr == nil {
				raw = r
			}
			return ferr
		})
	}
	if err != nil {
		return false, err
	}
	checksum := checksumOf(raw.Bytes)
	if _, found, err := p.Stores.SourceRefs.LatestByChecksum(ctx, tenantID, sourceKey, checksum); err == nil && found {
		return false, nil
	}
	location, err := p.Blobs.Put(ctx, fmt.Sprintf("%s_%d.json", dataType, time.Now().UnixMilli()), raw.Bytes, raw.ContentType)
	if err != nil {
		return false, err
	}
	ref, err := p.Stores.SourceRefs.CreateSourceRef(ctx, domain.SourceRef{
		TenantID: tenantID, SourceKey: sourceKey, DataType: dataType,
		Checksum: checksum, BlobLocation: location, FetchedAt: raw.FetchedAt, Status: "ok",
	})
	if err != nil {
		return false, err
	}

	payload := NormalizeJobPayload{
		TenantID: tenantID, SourceRefID: ref.ID, SourceKind: kind,
		DataType: dataType, BlobLocation: location,
	}
	if p.Queue != nil {
		body, merr := json.Marshal(payload)
		if merr != nil {
			return false, merr
		}
		if err := p.Queue.Enqueue(ctx, queue.Normalize, JobNormalizeSourceRef, body, queue.DefaultOptions()); err != nil {
			return false, err
		}
		return true, nil
	}
	return true, p.NormalizeSourceRef(ctx, payload)
}

// normalizerFor resolves the typed normalizer behind the shared interface
// both per-vertical normalize packages implement, keyed by sourceKind.
func (p *Pipeline) normalizerFor(kind string) interface {
	Normalize(ctx context.Context, tenantID, sourceRefID, dataType string, raw []byte) (normalize.Result, error)
} {
	if kind == sourceKindCommerce {
		return p.CommerceNorm
	}
	return p.LegislativeNorm
}

// NormalizeSourceRef is the "normalize" queue job body: it loads the raw
// bytes a fetch job staged in blob storage, normalizes them, and hands each
// detected transition off to the "feed" queue and each affected
// legislator/period off to the "metrics" queue (or runs them inline when no
// queue is wired).
func (p *Pipeline) NormalizeSourceRef(ctx context.Context, job NormalizeJobPayload) error {
	raw, err := p.Blobs.Get(ctx, job.BlobLocation)
	if err != nil {
		return err
	}
	res, err := p.normalizerFor(job.SourceKind).Normalize(ctx, job.TenantID, job.SourceRefID, job.DataType, raw)
	if err != nil {
		return err
	}
	return p.dispatchResult(ctx, job.TenantID, job.SourceRefID, res)
}

// dispatchResult hands a normalize Result's transitions and affected
// entities off to the feed/metrics queues, per entity/transition, so a
// single bad transition or recompute can retry and dead-letter on its own
// rather than alongside everything else the batch touched.
func (p *Pipeline) dispatchResult(ctx context.Context, tenantID, sourceRefID string, res normalize.Result) error {
	for _, t := range res.Transitions {
		if err := p.handOffFeedTransition(ctx, tenantID, sourceRefID, t); err != nil && p.Log != nil {
			p.Log.WithError(err).Warn("failed to hand off feed transition")
		}
	}
	seen := map[string]bool{}
	for _, ref := range res.Affected {
		if ref.Kind != normalize.EntityLegislator {
			continue
		}
		period := ref.Period
		if period == "" {
			period = time.Now().Format("2006")
		}
		key := ref.ID + ":" + period
		if seen[key] {
			continue
		}
		seen[key] = true
		if err := p.handOffMetricsRecompute(ctx, tenantID, ref.ID, period); err != nil && p.Log != nil {
			p.Log.WithError(err).Warn("failed to hand off metrics recompute")
		}
	}
	return nil
}

func (p *Pipeline) handOffFeedTransition(ctx context.Context, tenantID, sourceRefID string, t normalize.Transition) error {
	if p.Queue != nil {
		body, err := json.Marshal(FeedJobPayload{TenantID: tenantID, SourceRefID: sourceRefID, Transition: t})
		if err != nil {
			return err
		}
		return p.Queue.Enqueue(ctx, queue.Feed, JobEmitFeedTransition, body, queue.DefaultOptions())
	}
	return p.EmitFeedTransition(ctx, FeedJobPayload{TenantID: tenantID, SourceRefID: sourceRefID, Transition: t})
}

func (p *Pipeline) handOffMetricsRecompute(ctx context.Context, tenantID, legislatorID, period string) error {
	if p.Queue != nil {
		body, err := json.Marshal(MetricsJobPayload{TenantID: tenantID, LegislatorID: legislatorID, Period: period})
		if err != nil {
			return err
		}
		return p.Queue.Enqueue(ctx, queue.Metrics, JobRecomputeLegislatorMetric, body, queue.DefaultOptions())
	}
	return p.RecomputeLegislatorMetric(ctx, tenantID, legislatorID, period)
}

// EmitFeedTransition is the "feed" queue job body.
func (p *Pipeline) EmitFeedTransition(ctx context.Context, job FeedJobPayload) error {
	if p.Feed == nil {
		return nil
	}
	_, _, err := p.Feed.Emit(ctx, job.TenantID, job.SourceRefID, job.Transition)
	return err
}

// RecomputeLegislatorMetric rebuilds and persists one legislator's derived
// metric row for the period (§4.6.1); it is also the "metrics" queue's
// per-legislator job body.
func (p *Pipeline) RecomputeLegislatorMetric(ctx context.Context, tenantID, legislatorID, period string) error {
	legislator, found, err := p.Stores.Legislators.GetLegislator(ctx, tenantID, legislatorID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	authored, err := p.Stores.BillAuthors.ListBillsByLegislator(ctx, legislatorID, domain.RoleAuthor)
	if err != nil {
		return err
	}
	cosigned, err := p.Stores.BillAuthors.ListBillsByLegislator(ctx, legislatorID, domain.RoleCoauthor)
	if err != nil {
		return err
	}
	attendances, err := p.Stores.Attendances.ListAttendanceByLegislator(ctx, tenantID, legislatorID, period)
	if err != nil {
		return err
	}
	voteResults, err := p.Stores.VoteResults.ListResultsByLegislator(ctx, tenantID, legislatorID, period)
	if err != nil {
		return err
	}
	commissionCount, err := p.Stores.Commissions.CountMembershipsByLegislator(ctx, legislatorID)
	if err != nil {
		return err
	}
	metric := metricsengine.Compute(metricsengine.Inputs{
		LegislatorID: legislatorID, Period: period, TermStart: legislator.TermStart, Now: time.Now(),
		AuthoredBills: authored, CosignedCount: len(cosigned), Attendances: attendances,
		VoteResults: voteResults, CommissionCount: commissionCount,
	})
	metric.TenantID = tenantID
	if _, err := p.Stores.LegislatorMetrics.UpsertMetric(ctx, metric); err != nil {
		return err
	}
	return nil
}

// RecomputeAllMetrics rebuilds every legislator's metric for the current
// period, the §4.3 "metrics:recompute-all" job body. It recomputes directly
// rather than fanning out one "metrics" job per legislator, since it already
// runs on the dedicated metrics queue and its failure mode (a single
// legislator's store read failing) doesn't need per-legislator isolation
// the way a source fetch's normalize/feed/metrics chain does.
func (p *Pipeline) RecomputeAllMetrics(ctx context.Context) (int, error) {
	tenants, err := p.Stores.Tenants.ListTenants(ctx)
	if err != nil {
		return 0, err
	}
	period := time.Now().Format("2006")
	count := 0
	for _, tenant := range tenants {
		page, err := p.Stores.Legislators.ListLegislators(ctx, tenant.ID, storage.ListOptions{Page: 1, Limit: 1 << 30})
		if err != nil {
			continue
		}
		for _, l := range page.Items {
			if err := p.RecomputeLegislatorMetric(ctx, tenant.ID, l.ID, period); err != nil && p.Log != nil {
				p.Log.WithError(err).WithField("legislator", l.ID).Warn("metrics recompute failed")
			}
			count++
		}
	}
	return count, nil
}
