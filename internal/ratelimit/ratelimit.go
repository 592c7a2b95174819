// Package ratelimit provides a token-bucket limiter used two ways: guarding
// the inbound HTTP API against abusive callers (§4.4), and throttling
// outbound fetches so a tenant's ingest doesn't trip a source provider's own
// rate limit.
package ratelimit

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

func DefaultConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             200,
	}
}

// RateLimiter wraps golang.org/x/time/rate with the two shapes callers need:
// a non-blocking check (LimitExceeded, for the inbound middleware) and a
// blocking wait (Wait, for RateLimitedClient's outbound calls).
type RateLimiter struct {
	limiter *rate.Limiter
}

func New(cfg RateLimitConfig) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 100
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond * 2)
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)}
}

func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// LimitExceeded reports whether the next request should be rejected.
func (r *RateLimiter) LimitExceeded() bool {
	return !r.limiter.Allow()
}

// RateLimitedClient wraps an *http.Client so outbound source fetches queue
// behind the limiter instead of bursting past the provider's own quota.
type RateLimitedClient struct {
	client  *http.Client
	limiter *RateLimiter
}

func NewRateLimitedClient(client *http.Client, cfg RateLimitConfig) *RateLimitedClient {
	return &RateLimitedClient{client: client, limiter: New(cfg)}
}

func (c *RateLimitedClient) Do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return c.client.Do(req)
}
