// Package commerce implements the Shopify-style OAuth REST adapter (§4.4).
package commerce

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tenantsync/engine/internal/adapters"
	"github.com/tenantsync/engine/internal/domain"
	tserrors "github.com/tenantsync/engine/internal/errors"
	"github.com/tenantsync/engine/pkg/version"
)

const SourceName = "commerce"

// Config holds the OAuth client credentials and scopes for one deployment.
type Config struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	RedirectURI  string
	WebhookSecret string
	// BaseURL lets tests point the adapter at a fake provider; empty means
	// the real "https://%s/admin/api/2024-01" shop-scoped API.
	BaseURL string
}

// Adapter is the commerce OAuth REST adapter.
type Adapter struct {
	cfg    Config
	client adapters.HTTPDoer
}

func New(cfg Config, client adapters.HTTPDoer) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Adapter{cfg: cfg, client: client}
}

func (a *Adapter) SourceName() string { return SourceName }

// BuildAuthURL builds the authorisation-request URL; state already encodes
// the nonce and carry value (§4.4 step 1).
func (a *Adapter) BuildAuthURL(shop, state string) string {
	q := url.Values{}
	q.Set("client_id", a.cfg.ClientID)
	q.Set("scope", strings.Join(a.cfg.Scopes, ","))
	q.Set("redirect_uri", a.cfg.RedirectURI)
	q.Set("state", state)
	return fmt.Sprintf("https://%s/admin/oauth/authorize?%s", shop, q.Encode())
}

// ExchangeCodeForToken exchanges the authorization code for an access token.
func (a *Adapter) ExchangeCodeForToken(ctx context.Context, shop, code string) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"client_id":     a.cfg.ClientID,
		"client_secret": a.cfg.ClientSecret,
		"code":          code,
	})
	endpoint := fmt.Sprintf("https://%s/admin/oauth/access_token", shop)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(body)))
	if err != nil {
		return "", tserrors.TransientIO("token_exchange_request_failed", "build token exchange request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := a.client.Do(req)
	if err != nil {
		return "", tserrors.TransientIO("token_exchange_failed", "token exchange request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", tserrors.Auth("token_exchange_rejected", "provider rejected token exchange", nil)
	}
	var parsed struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", tserrors.SourceSchema("token_exchange_decode_failed", "malformed token exchange response", err)
	}
	if parsed.AccessToken == "" {
		return "", tserrors.Auth("token_exchange_empty", "provider returned no access token", nil)
	}
	return parsed.AccessToken, nil
}

// Fetch retrieves one data type ("products", "orders", "inventory_levels")
// for the connection's shop. The raw JSON array is returned verbatim for
// checksumming and blob storage.
func (a *Adapter) Fetch(ctx context.Context, conn domain.Connection, dataType string) (adapters.RawPayload, error) {
	base := a.cfg.BaseURL
	if base == "" {
		base = fmt.Sprintf("https://%s/admin/api/2024-01", conn.ShopDomain)
	}
	endpoint := fmt.Sprintf("%s/%s.json", strings.TrimRight(base, "/"), dataType)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return adapters.RawPayload{}, tserrors.TransientIO("fetch_request_failed", "build fetch request", err)
	}
	req.Header.Set("X-Shopify-Access-Token", conn.AccessToken)
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := a.client.Do(req)
	if err != nil {
		return adapters.RawPayload{}, tserrors.TransientIO("fetch_failed", "source fetch request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return adapters.RawPayload{}, tserrors.Auth("fetch_unauthorized", "source rejected access token", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return adapters.RawPayload{}, tserrors.TransientIO("fetch_bad_status", fmt.Sprintf("source returned status %d", resp.StatusCode), nil)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return adapters.RawPayload{}, tserrors.TransientIO("fetch_read_failed", "read fetch response body", err)
	}
	return adapters.RawPayload{DataType: dataType, ContentType: "application/json", Bytes: data, FetchedAt: time.Now()}, nil
}

// RegisterChangeNotifications registers webhook subscriptions for the topics
// the normalizer understands.
func (a *Adapter) RegisterChangeNotifications(ctx context.Context, conn domain.Connection, callbackBase string) ([]adapters.ChangeNotificationResult, error) {
	topics := []string{"products/update", "orders/create", "inventory_levels/update"}
	results := make([]adapters.ChangeNotificationResult, 0, len(topics))
	base := a.cfg.BaseURL
	if base == "" {
		base = fmt.Sprintf("https://%s/admin/api/2024-01", conn.ShopDomain)
	}
	for _, topic := range topics {
		body, _ := json.Marshal(map[string]any{
			"webhook": map[string]string{
				"topic":   topic,
				"address": strings.TrimRight(callbackBase, "/") + "/api/v1/webhooks/shopify",
				"format":  "json",
			},
		})
		endpoint := fmt.Sprintf("%s/webhooks.json", strings.TrimRight(base, "/"))
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(body)))
		if err != nil {
			results = append(results, adapters.ChangeNotificationResult{Topic: topic, Succeeded: false, Err: err})
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Shopify-Access-Token", conn.AccessToken)
		req.Header.Set("User-Agent", version.UserAgent())
		resp, err := a.client.Do(req)
		if err != nil {
			results = append(results, adapters.ChangeNotificationResult{Topic: topic, Succeeded: false, Err: err})
			continue
		}
		resp.Body.Close()
		results = append(results, adapters.ChangeNotificationResult{Topic: topic, Succeeded: resp.StatusCode < 300})
	}
	return results, nil
}

// VerifyHMAC checks a change-notification's signature under the shared
// webhook secret, using a constant-time comparison.
func VerifyHMAC(body []byte, signatureBase64, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)
	got, err := base64.StdEncoding.DecodeString(signatureBase64)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(expected, got) == 1
}
