package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tenantsync/engine/internal/analysis"
	service "github.com/tenantsync/engine/internal/app/core/service"
	"github.com/tenantsync/engine/internal/domain"
	tserrors "github.com/tenantsync/engine/internal/errors"
	"github.com/tenantsync/engine/internal/storage"
)

func (s *Server) listOptions(r *http.Request) storage.ListOptions {
	limit := service.ClampLimit(pageParam(r, "limit", service.DefaultListLimit), service.DefaultListLimit, service.MaxListLimit)
	return storage.ListOptions{
		Page:   pageParam(r, "page", 1),
		Limit:  limit,
		Search: r.URL.Query().Get("search"),
	}
}

func (s *Server) handleListLegislators(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantIDFrom(r.Context())
	page, err := s.stores.Legislators.ListLegislators(r.Context(), tenantID, s.listOptions(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetLegislator(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantIDFrom(r.Context())
	id := mux.Vars(r)["id"]
	legislator, found, err := s.stores.Legislators.GetLegislator(r.Context(), tenantID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeError(w, tserrors.NotFound("legislator_not_found", "no such legislator", nil))
		return
	}
	writeJSON(w, http.StatusOK, legislator)
}

func (s *Server) handleLegislatorMetrics(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantIDFrom(r.Context())
	id := mux.Vars(r)["id"]
	period := r.URL.Query().Get("period")
	if period == "" {
		period = time.Now().Format("2006")
	}
	metric, found, err := s.stores.LegislatorMetrics.GetMetric(r.Context(), id, period)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		computed, cerr := s.computeMetric(r.Context(), tenantID, id, period)
		if cerr != nil {
			writeError(w, tserrors.NotFound("metric_not_found", "no metric for legislator/period", cerr))
			return
		}
		metric = computed
	}
	writeJSON(w, http.StatusOK, metric)
}

func (s *Server) handleLegislatorActivity(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantIDFrom(r.Context())
	id := mux.Vars(r)["id"]
	period := r.URL.Query().Get("period")
	votes, err := s.stores.VoteResults.ListResultsByLegislator(r.Context(), tenantID, id, period)
	if err != nil {
		writeError(w, err)
		return
	}
	attendance, err := s.stores.Attendances.ListAttendanceByLegislator(r.Context(), tenantID, id, period)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"votes": votes, "attendance": attendance})
}

func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantIDFrom(r.Context())
	page, err := s.stores.Bills.ListBills(r.Context(), tenantID, s.listOptions(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetBill(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantIDFrom(r.Context())
	id := mux.Vars(r)["id"]
	bill, found, err := s.stores.Bills.GetBill(r.Context(), tenantID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeError(w, tserrors.NotFound("bill_not_found", "no such bill", nil))
		return
	}
	movements, err := s.stores.BillMovements.ListMovements(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bill": bill, "movements": movements})
}

func (s *Server) handleListFeed(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantIDFrom(r.Context())
	page, err := s.stores.FeedPosts.ListFeedPosts(r.Context(), tenantID, s.listOptions(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetFeedPost(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	post, found, err := s.stores.FeedPosts.GetFeedPost(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeError(w, tserrors.NotFound("feed_post_not_found", "no such feed post", nil))
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// syncCooldown is the §4.4 user-triggered rate limit: one sync per Connection
// every 5 minutes, checked directly against Connection.LastSyncAt rather than
// the generic inboundThrottle limiter.
const syncCooldown = 5 * time.Minute

type syncRequest struct {
	Shop  string `json:"shop"`
	Email string `json:"email"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, tserrors.SourceSchema("bad_request_body", "malformed sync request", err))
		return
	}
	ctx := r.Context()
	conn, err := s.stores.Connections.GetConnectionByShop(ctx, req.Shop)
	if err != nil {
		writeError(w, tserrors.NotFound("connection_not_found", "no connection for shop", err))
		return
	}
	if conn.LastSyncAt != nil && time.Since(*conn.LastSyncAt) < syncCooldown {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error": "rate_limited", "last_sync": conn.LastSyncAt.Format(time.RFC3339),
		})
		return
	}
	if err := s.stores.Connections.SetSyncStatus(ctx, conn.ID, domain.SyncSyncing, nil); err != nil {
		writeError(w, err)
		return
	}
	products, orders, err := s.inlineSync(ctx, conn.TenantID, conn)
	if err != nil {
		_ = s.stores.Connections.SetSyncStatus(ctx, conn.ID, domain.SyncError, nil)
		writeError(w, err)
		return
	}
	now := time.Now().Format(time.RFC3339)
	_ = s.stores.Connections.SetSyncStatus(ctx, conn.ID, domain.SyncSynced, &now)
	writeJSON(w, http.StatusOK, map[string]any{
		"last_sync": now,
		"synced":    map[string]int{"products": products, "orders": orders, "inventory": 0},
	})
}

type analyzeRequest struct {
	StoreID    string             `json:"store_id"`
	UserID     string             `json:"user_id"`
	Modules    []string           `json:"modules"`
	UserCosts  *analysisCostsBody `json:"user_costs"`
}

type analysisCostsBody struct {
	OrderingCost   *float64 `json:"ordering_cost"`
	HoldingCostPct *float64 `json:"holding_cost_pct"`
	FixedCosts     float64  `json:"fixed_costs"`
	OpeningBalance float64  `json:"opening_balance"`
	LeadTime       *float64 `json:"lead_time"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, tserrors.SourceSchema("bad_request_body", "malformed analyze request", err))
		return
	}
	ctx := r.Context()
	tenantID := tenantIDFrom(ctx)
	products, err := s.stores.Products.ListProducts(ctx, tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	monthly, err := s.stores.Orders.CountOrdersByMonth(ctx, tenantID)
	if err != nil {
		writeError(w, err)
		return
	}

	snapshots := make([]analysis.ProductSnapshot, 0, len(products))
	for _, p := range products {
		snapshots = append(snapshots, analysis.ProductSnapshot{
			Name: p.Title, Price: p.Price, CostPerItem: p.UnitCost, InventoryQuantity: p.InventoryQuantity,
		})
	}
	costs := analysis.Costs{}
	if req.UserCosts != nil {
		costs = analysis.Costs{
			OrderingCost: req.UserCosts.OrderingCost, HoldingCostPct: req.UserCosts.HoldingCostPct,
			FixedCosts: req.UserCosts.FixedCosts, OpeningBalance: req.UserCosts.OpeningBalance, LeadTime: req.UserCosts.LeadTime,
		}
	}

	bundle := analysisEngineCompute(analysis.Inputs{Products: snapshots, MonthlyOrderQty: monthly, Costs: costs})

	for module, result := range bundle.Modules {
		if !result.Applicable {
			continue
		}
		topInsight := ""
		if len(result.Insights) > 0 {
			topInsight = result.Insights[0]
		}
		record := domain.Analysis{
			TenantID: tenantID, Module: module, Input: result.Inputs,
			Output:    map[string]any{"priority": result.Priority, "confidence": result.Confidence, "insights": result.Insights, "needs": result.Needs},
			Insight:   topInsight, SourceTag: "auto", CreatedAt: time.Now(),
		}
		if _, err := s.stores.Analyses.CreateAnalysis(ctx, record); err != nil && s.log != nil {
			s.log.WithError(err).Warn("failed to persist analysis record")
		}
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantIDFrom(r.Context())
	legislators, err := s.stores.Legislators.ListLegislators(r.Context(), tenantID, storage.ListOptions{Page: 1, Limit: 1 << 30})
	if err != nil {
		writeError(w, err)
		return
	}
	bills, err := s.stores.Bills.ListBills(r.Context(), tenantID, storage.ListOptions{Page: 1, Limit: 1 << 30})
	if err != nil {
		writeError(w, err)
		return
	}
	for _, l := range legislators.Items {
		s.recomputeLegislatorMetric(r.Context(), tenantID, l.ID, time.Now().Format("2006"))
	}
	writeJSON(w, http.StatusOK, map[string]int{"legislators": legislators.Total, "bills": bills.Total})
}
