package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tenantsync/engine/internal/config"
	"github.com/tenantsync/engine/internal/domain"
	"github.com/tenantsync/engine/internal/feed"
	"github.com/tenantsync/engine/internal/storage"
	"github.com/tenantsync/engine/internal/storage/memory"
)

func newTestServer(apiTokens []string) (*Server, *memory.Store) {
	store := memory.New()
	cfg := &config.Config{
		Server:   config.ServerConfig{Host: "0.0.0.0", Port: 8080},
		Security: config.SecurityConfig{APITokens: apiTokens},
	}
	stores := storage.Stores{
		Tenants: store, Connections: store, IngestionRuns: store, SourceRefs: store,
		Products: store, Orders: store, InventoryLevels: store,
		Legislators: store, Bills: store, BillMovements: store, BillAuthors: store,
		VoteEvents: store, VoteResults: store, Sessions: store, Attendances: store,
		Commissions: store, LegislatorMetrics: store, Analyses: store, FeedPosts: store,
		ScheduleLastFire: store, DeadLetters: store,
	}
	s := NewServer(Deps{Config: cfg, Stores: stores, Feed: feed.New(store)})
	return s, store
}

func TestHandleHealthzIsPublicAndReturnsOK(t *testing.T) {
	s, _ := newTestServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestProtectedRouteRejectsMissingCredential(t *testing.T) {
	s, _ := newTestServer([]string{"svc-token"})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/legislators", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a credential, got %d", rec.Code)
	}
}

func TestProtectedRouteAcceptsValidBearerAPIToken(t *testing.T) {
	s, store := newTestServer([]string{"svc-token"})
	if _, _, err := store.UpsertLegislator(context.Background(), domain.Legislator{TenantID: "t1", ExternalID: "L1", FirstName: "Ana", LastName: "Souza"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/legislators?tenantId=t1", nil)
	req.Header.Set("Authorization", "Bearer svc-token")
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with a valid token, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestProtectedRouteRejectsValidTokenWithoutTenantID(t *testing.T) {
	s, _ := newTestServer([]string{"svc-token"})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/legislators", nil)
	req.Header.Set("Authorization", "Bearer svc-token")
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when a valid token carries no tenantId, got %d", rec.Code)
	}
}

func TestListFeedOnlyReturnsTheRequestingTenantsPosts(t *testing.T) {
	s, store := newTestServer([]string{"svc-token"})
	if _, err := store.CreateFeedPost(context.Background(), domain.FeedPost{TenantID: "t1", Type: domain.FeedBillCreated, Title: "t1 post"}); err != nil {
		t.Fatalf("seed t1 post: %v", err)
	}
	if _, err := store.CreateFeedPost(context.Background(), domain.FeedPost{TenantID: "t2", Type: domain.FeedBillCreated, Title: "t2 post"}); err != nil {
		t.Fatalf("seed t2 post: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/feed?tenantId=t1", nil)
	req.Header.Set("Authorization", "Bearer svc-token")
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var page storage.Page[domain.FeedPost]
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Title != "t1 post" {
		t.Fatalf("expected only t1's post, got %+v", page.Items)
	}
}

func TestGetLegislatorNotFoundReturns404(t *testing.T) {
	s, _ := newTestServer([]string{"svc-token"})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/legislators/missing?tenantId=t1", nil)
	req.Header.Set("Authorization", "Bearer svc-token")
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestWebhookPathIsPublicWithoutCredential(t *testing.T) {
	s, _ := newTestServer([]string{"svc-token"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/shopify", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)
	if rec.Code == http.StatusUnauthorized {
		t.Fatal("expected webhook path to bypass tenant auth, got 401")
	}
}

func TestCORSPreflightReturnsNoContent(t *testing.T) {
	s, _ := newTestServer(nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/legislators", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for an OPTIONS preflight, got %d", rec.Code)
	}
}
