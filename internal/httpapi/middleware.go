package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/tenantsync/engine/internal/ratelimit"
	"github.com/tenantsync/engine/pkg/logger"
	"github.com/tenantsync/engine/pkg/metrics"
)

type ctxKey string

const tenantIDKey ctxKey = "tenant_id"

// tenantIDFrom returns the authenticated tenant id carried by tenantAuth,
// enforcing the every-read-query-has-a-tenant-predicate rule at the edge.
func tenantIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(tenantIDKey).(string)
	return v
}

// recovery converts a panicking handler into a 500 instead of crashing the
// worker goroutine, mirroring the fixed recovery-first middleware order.
func recovery(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if log != nil {
						log.WithField("panic", rec).Error("recovered from panic in handler")
					}
					writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// publicPaths never require tenant authentication: the OAuth handshake,
// webhooks (authenticated by HMAC instead), and ops endpoints.
var publicPaths = map[string]bool{
	"/connect": true, "/callback": true,
	"/healthz": true, "/metrics": true,
	"/api/v1/auth/identity": true,
}

func isPublic(path string) bool {
	if publicPaths[path] {
		return true
	}
	return strings.HasPrefix(path, "/api/v1/webhooks/")
}

// tenantAuth accepts either a bearer API token (service-to-service / cron)
// or a JWT, and stores the resolved tenant id in the request context.
func tenantAuth(apiTokens []string, verifyJWT func(token string) (tenantID string, err error)) func(http.Handler) http.Handler {
	tokenSet := make(map[string]bool, len(apiTokens))
	for _, t := range apiTokens {
		tokenSet[t] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			auth := r.Header.Get("Authorization")
			var token string
			if strings.HasPrefix(auth, "Bearer ") {
				token = strings.TrimPrefix(auth, "Bearer ")
			}
			if token != "" && tokenSet[token] {
				tenantID := r.URL.Query().Get("tenantId")
				if tenantID == "" {
					writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing_tenant", "message": "tenantId query parameter is required"})
					return
				}
				r = r.WithContext(context.WithValue(r.Context(), tenantIDKey, tenantID))
				next.ServeHTTP(w, r)
				return
			}
			if token != "" && verifyJWT != nil {
				if tenantID, err := verifyJWT(token); err == nil {
					r = r.WithContext(context.WithValue(r.Context(), tenantIDKey, tenantID))
					next.ServeHTTP(w, r)
					return
				}
			}
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "auth_error", "message": "missing or invalid credential"})
		})
	}
}

// audit logs every request's method, path, status and tenant for the
// compliance trail; it never blocks the request.
func audit(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			if log != nil {
				log.WithField("method", r.Method).WithField("path", r.URL.Path).
					WithField("tenant_id", tenantIDFrom(r.Context())).Info("request handled")
			}
		})
	}
}

// inboundThrottle is a defensive per-process request limiter, distinct from
// the Connection-scoped sync cooldown (§4.4), which the /sync handler
// enforces directly against Connection.LastSyncAt.
func inboundThrottle(limiter *ratelimit.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil && limiter.LimitExceeded() {
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate_limited", "message": "too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// chain composes middleware in the fixed order: recovery -> CORS ->
// tenant-auth -> rate-limit -> audit -> Prometheus instrumentation.
func chain(handler http.Handler, log *logger.Logger, apiTokens []string, verifyJWT func(string) (string, error), limiter *ratelimit.RateLimiter) http.Handler {
	h := handler
	h = metrics.InstrumentHandler(h)
	h = audit(log)(h)
	h = inboundThrottle(limiter)(h)
	h = tenantAuth(apiTokens, verifyJWT)(h)
	h = cors(h)
	h = recovery(log)(h)
	return h
}
