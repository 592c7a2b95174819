package commerce

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tenantsync/engine/internal/domain"
	tserrors "github.com/tenantsync/engine/internal/errors"
)

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifyHMACAcceptsValidSignature(t *testing.T) {
	body := []byte(`{"id":"order-1"}`)
	sig := sign(body, "shh")
	if !VerifyHMAC(body, sig, "shh") {
		t.Fatal("expected a correctly signed webhook body to verify")
	}
}

func TestVerifyHMACRejectsTamperedBody(t *testing.T) {
	sig := sign([]byte(`{"id":"order-1"}`), "shh")
	if VerifyHMAC([]byte(`{"id":"order-2"}`), sig, "shh") {
		t.Fatal("expected a tampered body to fail verification")
	}
}

func TestVerifyHMACRejectsMalformedSignature(t *testing.T) {
	if VerifyHMAC([]byte("body"), "not-base64!!", "shh") {
		t.Fatal("expected a non-base64 signature to fail verification")
	}
}

func TestBuildAuthURLIncludesClientAndState(t *testing.T) {
	a := New(Config{ClientID: "abc", Scopes: []string{"read_products", "read_orders"}, RedirectURI: "https://app.example.com/cb"}, nil)
	url := a.BuildAuthURL("shop.myshopify.com", "nonce-1")
	if !strings.Contains(url, "client_id=abc") || !strings.Contains(url, "state=nonce-1") {
		t.Fatalf("unexpected auth url: %s", url)
	}
}

func TestFetchSetsAuthAndUserAgentHeaders(t *testing.T) {
	var gotToken, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Shopify-Access-Token")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	a := New(Config{BaseURL: srv.URL}, srv.Client())
	_, err := a.Fetch(context.Background(), domain.Connection{AccessToken: "tok-123"}, "products")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotToken != "tok-123" {
		t.Fatalf("expected access token header to be forwarded, got %q", gotToken)
	}
	if gotUA == "" {
		t.Fatal("expected a non-empty User-Agent header")
	}
}

func TestFetchUnauthorizedMapsToAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := New(Config{BaseURL: srv.URL}, srv.Client())
	_, err := a.Fetch(context.Background(), domain.Connection{AccessToken: "bad"}, "products")
	kerr, ok := tserrors.As(err)
	if !ok || kerr.Kind != tserrors.KindAuth {
		t.Fatalf("expected an Auth error on 401, got %v", err)
	}
}
