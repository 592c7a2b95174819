// Package analysis computes the commerce recommendation bundle of §4.6.2 as
// a pure function over a snapshot of the tenant's current raw state plus
// tenant-supplied cost parameters. No I/O happens inside Compute.
package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tenantsync/engine/internal/domain"
)

// ProductSnapshot is one product's current state plus derived sales figures.
type ProductSnapshot struct {
	Name              string
	Price             *float64
	CostPerItem       *float64
	InventoryQuantity int
	UnitsSold         int
	Revenue           float64
}

// Costs holds the tenant-wide overrides §4.6.2 names.
type Costs struct {
	OrderingCost   *float64
	HoldingCostPct *float64
	FixedCosts     float64
	OpeningBalance float64
	LeadTime       *float64
}

// Inputs bundles everything Compute needs for one tenant's analysis run.
type Inputs struct {
	Products        []ProductSnapshot
	MonthlyOrderQty map[string]int // "YYYY-MM" -> order count, for the FORECAST threshold
	Costs           Costs
}

func Compute(in Inputs) domain.AnalysisBundle {
	bundle := domain.AnalysisBundle{Modules: make(map[domain.AnalysisModule]domain.AnalysisModuleResult)}

	bundle.Modules[domain.ModuleMargin] = margin(in)
	bundle.Modules[domain.ModuleStock] = stock(in)
	bundle.Modules[domain.ModuleForecast] = forecast(in)
	bundle.Modules[domain.ModuleCashflow] = cashflow(in)

	bundle.GeneralInsights = generalInsights(in)
	bundle.Recommendations = recommendations(in)
	bundle.MissingData = missingData(in)
	return bundle
}

func margin(in Inputs) domain.AnalysisModuleResult {
	hasPrice := false
	hasCost := false
	items := make([]map[string]any, 0, len(in.Products))
	for _, p := range in.Products {
		if p.Price != nil {
			hasPrice = true
		}
		if p.CostPerItem != nil {
			hasCost = true
		}
		items = append(items, map[string]any{"name": p.Name, "price": p.Price, "cost": p.CostPerItem, "volume": p.UnitsSold})
	}
	if !hasPrice {
		return domain.AnalysisModuleResult{Applicable: false}
	}
	priority := "medium"
	confidence := 0.6
	if hasCost {
		priority = "high"
		confidence = 0.9
	}
	return domain.AnalysisModuleResult{
		Applicable: true, Priority: priority, Confidence: confidence,
		Inputs:   map[string]any{"products": items, "fixed_costs": in.Costs.FixedCosts},
		Insights: []string{fmt.Sprintf("%d products analysed for margin", len(in.Products))},
	}
}

func stock(in Inputs) domain.AnalysisModuleResult {
	if len(in.Products) == 0 {
		return domain.AnalysisModuleResult{Applicable: false}
	}
	top := topInventoryProduct(in.Products)
	demand := estimateAnnualDemand(top)

	var needs []string
	if in.Costs.OrderingCost == nil {
		needs = append(needs, "ordering_cost")
	}
	if in.Costs.HoldingCostPct == nil {
		needs = append(needs, "holding_cost_pct")
	}
	if len(needs) > 0 {
		return domain.AnalysisModuleResult{
			Applicable: true, Priority: "medium", Confidence: 0.5, Needs: needs,
			Insights: []string{"stock reorder analysis needs ordering and holding cost inputs"},
		}
	}

	unitCost := 0.0
	if top.CostPerItem != nil {
		unitCost = *top.CostPerItem
	}
	leadTime := 1.0
	if in.Costs.LeadTime != nil {
		leadTime = *in.Costs.LeadTime
	}
	return domain.AnalysisModuleResult{
		Applicable: true, Priority: "high", Confidence: 0.85,
		Inputs: map[string]any{
			"D": demand, "K": *in.Costs.OrderingCost, "h": *in.Costs.HoldingCostPct * unitCost,
			"L": leadTime, "product_name": top.Name,
		},
		Insights: []string{fmt.Sprintf("reorder analysis based on %s", top.Name)},
	}
}

func forecast(in Inputs) domain.AnalysisModuleResult {
	months := len(in.MonthlyOrderQty)
	if months < 3 {
		return domain.AnalysisModuleResult{
			Applicable: true, Priority: "low", Confidence: 0.3,
			Inputs:   map[string]any{"months_available": months},
			Insights: []string{"fewer than 3 months of order history; forecast confidence is low"},
		}
	}
	series := make([]int, 0, months)
	keys := make([]string, 0, months)
	for k := range in.MonthlyOrderQty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		series = append(series, in.MonthlyOrderQty[k])
	}
	return domain.AnalysisModuleResult{
		Applicable: true, Priority: "medium", Confidence: 0.7,
		Inputs:   map[string]any{"monthly_series": series, "method": "auto"},
		Insights: []string{fmt.Sprintf("%d months of order history available", months)},
	}
}

func cashflow(in Inputs) domain.AnalysisModuleResult {
	if len(in.Products) == 0 {
		return domain.AnalysisModuleResult{Applicable: false}
	}
	avgRevenue := 0.0
	for _, p := range in.Products {
		avgRevenue += p.Revenue
	}
	if len(in.Products) > 0 {
		avgRevenue /= float64(len(in.Products))
	}
	return domain.AnalysisModuleResult{
		Applicable: true, Priority: "medium", Confidence: 0.6,
		Inputs: map[string]any{
			"opening_balance": in.Costs.OpeningBalance, "periods": 6,
			"inflows": []float64{avgRevenue}, "outflows": []float64{in.Costs.FixedCosts},
		},
		Insights: []string{"6-period cashflow projection from average sales"},
	}
}

// topInventoryProduct returns the product with the highest current stock,
// used as the STOCK module's representative SKU.
func topInventoryProduct(products []ProductSnapshot) ProductSnapshot {
	top := products[0]
	for _, p := range products[1:] {
		if p.InventoryQuantity > top.InventoryQuantity {
			top = p
		}
	}
	return top
}

// estimateAnnualDemand prefers observed sales velocity; falls back to a
// lower bound derived from current stock when no sales are observed.
func estimateAnnualDemand(p ProductSnapshot) int {
	if p.UnitsSold > 0 {
		return p.UnitsSold * 12
	}
	return p.InventoryQuantity * 4
}

func generalInsights(in Inputs) string {
	invValue := 0.0
	totalSold := 0
	for _, p := range in.Products {
		if p.CostPerItem != nil {
			invValue += *p.CostPerItem * float64(p.InventoryQuantity)
		}
		totalSold += p.UnitsSold
	}
	return fmt.Sprintf("Catalog of %d products, inventory value %.2f, %d units sold.", len(in.Products), invValue, totalSold)
}

func recommendations(in Inputs) []string {
	var outOfStock []string
	for _, p := range in.Products {
		if p.InventoryQuantity == 0 {
			outOfStock = append(outOfStock, p.Name)
		}
	}
	var recs []string
	if len(outOfStock) > 0 {
		recs = append(recs, fmt.Sprintf("%d products out of stock: %s", len(outOfStock), strings.Join(outOfStock, ", ")))
	}
	return recs
}

func missingData(in Inputs) []domain.MissingDataEntry {
	var out []domain.MissingDataEntry
	missingCost := false
	for _, p := range in.Products {
		if p.CostPerItem == nil {
			missingCost = true
			break
		}
	}
	if missingCost {
		out = append(out, domain.MissingDataEntry{Field: "cost_per_item", Modules: []domain.AnalysisModule{domain.ModuleMargin, domain.ModuleStock}})
	}
	if in.Costs.OrderingCost == nil {
		out = append(out, domain.MissingDataEntry{Field: "ordering_cost", Modules: []domain.AnalysisModule{domain.ModuleStock}})
	}
	if in.Costs.HoldingCostPct == nil {
		out = append(out, domain.MissingDataEntry{Field: "holding_cost_pct", Modules: []domain.AnalysisModule{domain.ModuleStock}})
	}
	return out
}
