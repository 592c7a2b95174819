// Package adapters defines the uniform Fetch -> RawPayload contract (§4.4)
// implemented by each per-source driver.
package adapters

import (
	"context"
	"net/http"
	"time"

	"github.com/tenantsync/engine/internal/domain"
)

// HTTPDoer is the minimal surface an adapter needs from its transport. A
// plain *http.Client satisfies it, as does a *ratelimit.RateLimitedClient
// wrapping one to keep source fetches under the provider's own rate limit.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RawPayload is one adapter fetch result, ready for checksumming and
// blob storage by the caller.
type RawPayload struct {
	DataType    string
	ContentType string
	Bytes       []byte
	FetchedAt   time.Time
}

// ChangeNotificationResult reports the outcome of registering one webhook
// topic with the external provider.
type ChangeNotificationResult struct {
	Topic     string
	Succeeded bool
	Err       error
}

// Adapter is the uniform per-source fetch driver contract.
type Adapter interface {
	SourceName() string
	Fetch(ctx context.Context, conn domain.Connection, dataType string) (RawPayload, error)
	RegisterChangeNotifications(ctx context.Context, conn domain.Connection, callbackBase string) ([]ChangeNotificationResult, error)
}

// OAuthAdapter is implemented by sources using the OAuth authorization-code
// flow (§4.4 OAuth flow).
type OAuthAdapter interface {
	Adapter
	BuildAuthURL(shop, state string) string
	ExchangeCodeForToken(ctx context.Context, shop, code string) (token string, err error)
}
