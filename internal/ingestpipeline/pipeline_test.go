package ingestpipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tenantsync/engine/internal/adapters/commerce"
	"github.com/tenantsync/engine/internal/adapters/legislative"
	"github.com/tenantsync/engine/internal/domain"
	"github.com/tenantsync/engine/internal/feed"
	commercenorm "github.com/tenantsync/engine/internal/normalize/commerce"
	legislativenorm "github.com/tenantsync/engine/internal/normalize/legislative"
	"github.com/tenantsync/engine/internal/storage"
	"github.com/tenantsync/engine/internal/storage/memory"
	"github.com/tenantsync/engine/pkg/blob"
)

func newTestPipeline(t *testing.T, commerceURL, legislativeURL string) (*Pipeline, *memory.Store) {
	t.Helper()
	store := memory.New()
	blobs, err := blob.New(context.Background(), blob.Config{Driver: "filesystem", Root: t.TempDir()})
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}

	stores := storage.Stores{
		Tenants: store, Connections: store, IngestionRuns: store, SourceRefs: store,
		Products: store, Orders: store, InventoryLevels: store,
		Legislators: store, Bills: store, BillMovements: store, BillAuthors: store,
		VoteEvents: store, VoteResults: store, Sessions: store, Attendances: store,
		Commissions: store, LegislatorMetrics: store, Analyses: store, FeedPosts: store,
		ScheduleLastFire: store, DeadLetters: store,
	}

	var commerceAdapter *commerce.Adapter
	if commerceURL != "" {
		commerceAdapter = commerce.New(commerce.Config{BaseURL: commerceURL}, http.DefaultClient)
	}
	var legislativeAdapter *legislative.Adapter
	if legislativeURL != "" {
		legislativeAdapter = legislative.New(legislative.Config{ResourceURLs: map[string]string{
			"legislators": legislativeURL, "bills": legislativeURL, "bill_movements": legislativeURL,
			"bill_authors": legislativeURL, "sessions": legislativeURL, "vote_events": legislativeURL,
			"vote_results": legislativeURL, "attendance": legislativeURL,
		}}, http.DefaultClient)
	}

	p := &Pipeline{
		Stores:          stores,
		Commerce:        commerceAdapter,
		Legislative:     legislativeAdapter,
		CommerceNorm:    commercenorm.New(store, store, store, store),
		LegislativeNorm: legislativenorm.New(legislativenorm.Stores{
			Legislators: store, Bills: store, Movements: store, Authors: store,
			VoteEvents: store, VoteResults: store, Sessions: store, Attendances: store,
			SourceRefs: store,
		}),
		Feed:  feed.New(store),
		Blobs: blobs,
	}
	return p, store
}

func TestIngestAllSourcesSkipsTenantsWithoutAConnection(t *testing.T) {
	p, store := newTestPipeline(t, "http://example.invalid", "")
	if _, err := store.CreateTenant(context.Background(), domain.Tenant{ID: "t1", Name: "Acme"}); err != nil {
		t.Fatalf("create tenant: %v", err)
	}

	processed, errored, err := p.IngestAllSources(context.Background())
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if processed != 0 || errored != 0 {
		t.Fatalf("expected no work for a tenant without a connection, got processed=%d errored=%d", processed, errored)
	}
}

func TestIngestAllSourcesProcessesCommerceProducts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "products.json") {
			w.Write([]byte(`[{"id":"p1","title":"Widget","variants":[{"id":"v1","title":"Default","price":9.99}]}]`))
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	p, store := newTestPipeline(t, srv.URL, "")
	tenant, err := store.CreateTenant(context.Background(), domain.Tenant{ID: "t1", Name: "Acme"})
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	if _, err := store.UpsertConnection(context.Background(), domain.Connection{TenantID: tenant.ID, SourceName: commerce.SourceName, AccessToken: "tok"}); err != nil {
		t.Fatalf("create connection: %v", err)
	}

	processed, errored, err := p.IngestAllSources(context.Background())
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if errored != 0 {
		t.Fatalf("expected no errored fetches, got %d", errored)
	}
	if processed < 1 {
		t.Fatalf("expected at least the one product to be processed, got %d", processed)
	}

	got, found, err := store.GetProductByAnyExternalID(context.Background(), tenant.ID, "p1")
	if err != nil || !found {
		t.Fatalf("expected product p1 to be upserted, err=%v found=%v", err, found)
	}
	if got.Title != "Widget" {
		t.Fatalf("unexpected product: %+v", got)
	}
}

func TestIngestAllSourcesSkipsReIngestOfUnchangedPayload(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"p1","title":"Widget","variants":[]}]`))
	}))
	defer srv.Close()

	p, store := newTestPipeline(t, srv.URL, "")
	tenant, _ := store.CreateTenant(context.Background(), domain.Tenant{ID: "t1", Name: "Acme"})
	store.UpsertConnection(context.Background(), domain.Connection{TenantID: tenant.ID, SourceName: commerce.SourceName, AccessToken: "tok"})

	if _, _, err := p.IngestAllSources(context.Background()); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	processed, _, err := p.IngestAllSources(context.Background())
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if processed != 0 {
		t.Fatalf("expected a byte-identical re-fetch to be deduped by checksum, got processed=%d", processed)
	}
}

func TestRecomputeLegislatorMetricIsANoOpForUnknownLegislator(t *testing.T) {
	p, _ := newTestPipeline(t, "", "")
	if err := p.RecomputeLegislatorMetric(context.Background(), "t1", "missing-legislator", "2024"); err != nil {
		t.Fatalf("expected no error for an unknown legislator, got %v", err)
	}
}
