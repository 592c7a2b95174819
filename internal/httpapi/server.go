// Package httpapi exposes the tenant-facing REST surface (§4.7, §6): the
// OAuth handshake, the legislator/bill/feed read endpoints, and the
// sync/analyze/reindex/webhook action endpoints, behind the fixed
// middleware chain.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tenantsync/engine/internal/adapters/commerce"
	"github.com/tenantsync/engine/internal/adapters/legislative"
	"github.com/tenantsync/engine/internal/analysis"
	core "github.com/tenantsync/engine/internal/app/core/service"
	commercenorm "github.com/tenantsync/engine/internal/normalize/commerce"
	legislativenorm "github.com/tenantsync/engine/internal/normalize/legislative"

	"github.com/tenantsync/engine/internal/config"
	"github.com/tenantsync/engine/internal/feed"
	"github.com/tenantsync/engine/internal/ratelimit"
	"github.com/tenantsync/engine/internal/runtime"
	"github.com/tenantsync/engine/internal/storage"
	"github.com/tenantsync/engine/pkg/blob"
	"github.com/tenantsync/engine/pkg/logger"
	"github.com/tenantsync/engine/pkg/metrics"
	"github.com/tenantsync/engine/pkg/version"
)

// Deps bundles every collaborator the HTTP layer needs. It is assembled by
// the application wiring layer, not constructed here.
type Deps struct {
	Config          *config.Config
	Log             *logger.Logger
	Stores          storage.Stores
	Commerce        *commerce.Adapter
	Legislative     *legislative.Adapter
	CommerceNorm    *commercenorm.Normalizer
	LegislativeNorm *legislativenorm.Normalizer
	Feed            *feed.Generator
	Blobs           blob.Store
	Limiter         *ratelimit.RateLimiter
	VerifyJWT       func(token string) (tenantID string, err error)
}

// Server is the long-running HTTP listener; it implements system.Service.
type Server struct {
	cfg             *config.Config
	log             *logger.Logger
	stores          storage.Stores
	commerce        *commerce.Adapter
	legislative     *legislative.Adapter
	commerceNorm    *commercenorm.Normalizer
	legislativeNorm *legislativenorm.Normalizer
	feed            *feed.Generator
	blobs           blob.Store
	limiter         *ratelimit.RateLimiter
	verifyJWT       func(token string) (string, error)

	httpServer *http.Server
}

func NewServer(d Deps) *Server {
	return &Server{
		cfg: d.Config, log: d.Log, stores: d.Stores, commerce: d.Commerce,
		legislative: d.Legislative, commerceNorm: d.CommerceNorm, legislativeNorm: d.LegislativeNorm,
		feed: d.Feed, blobs: d.Blobs, limiter: d.Limiter, verifyJWT: d.VerifyJWT,
	}
}

func (s *Server) Name() string { return "httpapi.server" }

// Descriptor advertises the HTTP layer's placement to anything collecting
// system.DescriptorProvider metadata (§4.7: it is the ingress layer).
func (s *Server) Descriptor() core.Descriptor {
	return core.Descriptor{Name: s.Name(), Domain: "tenantsync", Layer: core.LayerIngress}.
		WithCapabilities("oauth", "sync", "analyze", "reindex", "feed", "webhooks")
}

func (s *Server) router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/connect", s.handleConnect).Methods(http.MethodGet)
	r.HandleFunc("/callback", s.handleCallback).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auth/identity", s.handleAuthIdentity).Methods(http.MethodPost)

	api.HandleFunc("/legislators", s.handleListLegislators).Methods(http.MethodGet)
	api.HandleFunc("/legislators/{id}", s.handleGetLegislator).Methods(http.MethodGet)
	api.HandleFunc("/legislators/{id}/metrics", s.handleLegislatorMetrics).Methods(http.MethodGet)
	api.HandleFunc("/legislators/{id}/activity", s.handleLegislatorActivity).Methods(http.MethodGet)

	api.HandleFunc("/bills", s.handleListBills).Methods(http.MethodGet)
	api.HandleFunc("/bills/{id}", s.handleGetBill).Methods(http.MethodGet)

	api.HandleFunc("/feed", s.handleListFeed).Methods(http.MethodGet)
	api.HandleFunc("/feed/{id}", s.handleGetFeedPost).Methods(http.MethodGet)

	api.HandleFunc("/sync", s.handleSync).Methods(http.MethodPost)
	api.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost)
	api.HandleFunc("/reindex", s.handleReindex).Methods(http.MethodPost)

	api.HandleFunc("/webhooks/{provider}", s.handleWebhook).Methods(http.MethodPost)

	return chain(r, s.log, s.cfg.Security.APITokens, s.verifyJWT, s.limiter)
}

func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-time.After(200 * time.Millisecond):
		if s.log != nil {
			s.log.WithField("addr", addr).Info("http server listening")
		}
		return nil
	}
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
		"env":     string(runtime.Env()),
	})
}

func (s *Server) handleAuthIdentity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// analysisEngineCompute is a thin forwarder to analysis.Compute used by the
// analysis handler.
var analysisEngineCompute = analysis.Compute
