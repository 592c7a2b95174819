package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewFillsInDefaultsWhenUnset(t *testing.T) {
	rl := New(RateLimitConfig{})
	if rl.limiter.Limit() != 100 {
		t.Fatalf("expected default RequestsPerSecond of 100, got %v", rl.limiter.Limit())
	}
	if rl.limiter.Burst() != 200 {
		t.Fatalf("expected default burst of 200, got %d", rl.limiter.Burst())
	}
}

func TestLimitExceededAllowsBurstThenRejects(t *testing.T) {
	rl := New(RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	if rl.LimitExceeded() {
		t.Fatal("expected the first request within burst to be allowed")
	}
	if !rl.LimitExceeded() {
		t.Fatal("expected the second immediate request to exceed the limit")
	}
}

func TestRateLimitedClientForwardsToUnderlyingClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewRateLimitedClient(srv.Client(), RateLimitConfig{RequestsPerSecond: 100, Burst: 10})
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
