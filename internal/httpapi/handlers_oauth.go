package httpapi

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tenantsync/engine/internal/adapters/commerce"
	"github.com/tenantsync/engine/internal/domain"
	tserrors "github.com/tenantsync/engine/internal/errors"
)

// handleConnect builds the provider authorisation URL and redirects
// (§4.4 step 1, §6 GET /connect).
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	shop := r.URL.Query().Get("shop")
	email := r.URL.Query().Get("email")
	if shop == "" || email == "" {
		http.Redirect(w, r, s.cfg.Server.AppBaseURL+"/legacy/app.html?error=missing_params", http.StatusFound)
		return
	}
	nonce := make([]byte, 16)
	_, _ = rand.Read(nonce)
	state := fmt.Sprintf("%s:%s", base64.RawURLEncoding.EncodeToString(nonce), base64.StdEncoding.EncodeToString([]byte(email)))
	authURL := s.commerce.BuildAuthURL(shop, state)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// handleCallback exchanges the code, upserts the Connection, registers
// webhooks, and performs the inline initial sync (§4.4 steps 2-4).
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code, shop, state := q.Get("code"), q.Get("shop"), q.Get("state")
	redirectBase := s.cfg.Server.AppBaseURL + "/legacy/app.html"

	if code == "" || shop == "" || state == "" {
		http.Redirect(w, r, redirectBase+"?error=missing_params", http.StatusFound)
		return
	}
	parts := strings.SplitN(state, ":", 2)
	if len(parts) != 2 {
		http.Redirect(w, r, redirectBase+"?error=missing_params", http.StatusFound)
		return
	}
	carryEmail, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		http.Redirect(w, r, redirectBase+"?error=missing_params", http.StatusFound)
		return
	}

	ctx := r.Context()
	tenant, found, err := s.lookupTenant(ctx, string(carryEmail))
	if err != nil || !found {
		http.Redirect(w, r, redirectBase+"?error=no_user", http.StatusFound)
		return
	}

	token, err := s.commerce.ExchangeCodeForToken(ctx, shop, code)
	if err != nil {
		http.Redirect(w, r, redirectBase+"?error=auth_failed", http.StatusFound)
		return
	}

	conn, err := s.stores.Connections.UpsertConnection(ctx, domain.Connection{
		TenantID: tenant.ID, SourceName: "commerce", ShopDomain: shop,
		AccessToken: token, SyncStatus: domain.SyncSyncing,
	})
	if err != nil {
		http.Redirect(w, r, redirectBase+"?error=auth_failed", http.StatusFound)
		return
	}

	_, _ = s.commerce.RegisterChangeNotifications(ctx, conn, s.cfg.Server.AppBaseURL)

	products, orders, err := s.inlineSync(ctx, tenant.ID, conn)
	if err != nil {
		_ = s.stores.Connections.SetSyncStatus(ctx, conn.ID, domain.SyncError, nil)
		http.Redirect(w, r, redirectBase+"?error=auth_failed", http.StatusFound)
		return
	}
	now := time.Now().Format(time.RFC3339)
	_ = s.stores.Connections.SetSyncStatus(ctx, conn.ID, domain.SyncSynced, &now)

	dest := fmt.Sprintf("%s?shopify_connected=true&shop=%s&products=%d&orders=%d",
		redirectBase, url.QueryEscape(shop), products, orders)
	http.Redirect(w, r, dest, http.StatusFound)
}

// lookupTenant resolves the OAuth carry value, falling back to the
// soft-match (decision D-2) when enabled.
func (s *Server) lookupTenant(ctx ctxType, carryEmail string) (domain.Tenant, bool, error) {
	tenant, err := s.stores.Tenants.GetTenantByEmail(ctx, carryEmail)
	if err == nil {
		return tenant, true, nil
	}
	if !s.cfg.Security.AllowOAuthSoftMatch {
		return domain.Tenant{}, false, tserrors.Auth("no_user", "no tenant for carry value and soft-match disabled", nil)
	}
	tenant, err = s.stores.Tenants.MostRecentOnPlan(ctx, "pro")
	if err != nil {
		return domain.Tenant{}, false, err
	}
	return tenant, true, nil
}

// inlineSync performs the §4.4-step-3 critical section: fetch products and
// orders synchronously so the user returns to an already-populated app.
func (s *Server) inlineSync(ctx ctxType, tenantID string, conn domain.Connection) (products, orders int, err error) {
	run, err := s.stores.IngestionRuns.CreateIngestionRun(ctx, domain.IngestionRun{
		TenantID: tenantID, SourceName: "commerce", DataType: "products,orders", Status: domain.RunRunning, StartedAt: time.Now(),
	})
	if err != nil {
		return 0, 0, err
	}
	processed, skipped, errored := 0, 0, 0
	for _, dataType := range []string{"products", "orders"} {
		n, serr := s.fetchAndNormalizeCommerce(ctx, tenantID, conn, dataType)
		if serr != nil {
			errored++
			continue
		}
		processed += n
		switch dataType {
		case "products":
			products = n
		case "orders":
			orders = n
		}
	}
	status := domain.RunCompleted
	if errored > 0 {
		status = domain.RunFailed
	}
	_ = s.stores.IngestionRuns.CompleteIngestionRun(ctx, run.ID, status, processed, skipped, errored, nil)
	if errored > 0 {
		return products, orders, tserrors.TransientIO("inline_sync_partial_failure", "one or more data types failed", nil)
	}
	return products, orders, nil
}

// fetchAndNormalizeCommerce runs one adapter fetch + normalize pass,
// skipping unchanged payloads via the checksum dedup (§4.1).
func (s *Server) fetchAndNormalizeCommerce(ctx ctxType, tenantID string, conn domain.Connection, dataType string) (int, error) {
	raw, err := s.commerce.Fetch(ctx, conn, dataType)
	if err != nil {
		return 0, err
	}
	checksum := checksumOf(raw.Bytes)
	if existing, found, err := s.stores.SourceRefs.LatestByChecksum(ctx, tenantID, "commerce:"+dataType, checksum); err == nil && found {
		_ = existing
		return 0, nil
	}
	location, err := s.blobs.Put(ctx, fmt.Sprintf("%s_%d.json", dataType, time.Now().UnixMilli()), raw.Bytes, raw.ContentType)
	if err != nil {
		return 0, err
	}
	ref, err := s.stores.SourceRefs.CreateSourceRef(ctx, domain.SourceRef{
		TenantID: tenantID, SourceKey: "commerce:" + dataType, DataType: dataType,
		Checksum: checksum, BlobLocation: location, FetchedAt: raw.FetchedAt, Status: "ok",
	})
	if err != nil {
		return 0, err
	}
	res, err := s.commerceNorm.Normalize(ctx, tenantID, ref.ID, dataType, raw.Bytes)
	if err != nil {
		return 0, err
	}
	s.emitTransitions(ctx, tenantID, ref.ID, res)
	return res.RecordsProcessed, nil
}

// handleWebhook verifies the HMAC signature under constant time comparison.
// A missing shop-domain header or unreadable body is a 400; a bad signature
// is a 401 and records a signature strike; otherwise strikes are cleared and
// it returns 200. The notification body is not stored and the topic header
// is not inspected.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	shopDomain := r.Header.Get("shop-domain")
	signature := r.Header.Get("hmac-sha256")
	if shopDomain == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing routing headers"})
		return
	}
	body, err := readAll(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad body"})
		return
	}
	if !commerce.VerifyHMAC(body, signature, s.cfg.Source.WebhookSecret) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid HMAC"})
		if conn, err := s.stores.Connections.GetConnectionByShop(r.Context(), shopDomain); err == nil {
			_, _ = s.stores.Connections.RecordSignatureStrike(r.Context(), conn.ID)
		}
		return
	}
	if conn, err := s.stores.Connections.GetConnectionByShop(r.Context(), shopDomain); err == nil {
		_ = s.stores.Connections.ClearSignatureStrikes(r.Context(), conn.ID)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
