package analysis

import (
	"testing"

	"github.com/tenantsync/engine/internal/domain"
)

func floatPtr(f float64) *float64 { return &f }

func TestComputeMarginNotApplicableWithoutPrice(t *testing.T) {
	bundle := Compute(Inputs{Products: []ProductSnapshot{{Name: "widget"}}})
	result := bundle.Modules[domain.ModuleMargin]
	if result.Applicable {
		t.Fatalf("expected margin module to be inapplicable without any price data")
	}
}

func TestComputeMarginConfidenceIncreasesWithCost(t *testing.T) {
	bundle := Compute(Inputs{Products: []ProductSnapshot{
		{Name: "widget", Price: floatPtr(10), CostPerItem: floatPtr(4)},
	}})
	result := bundle.Modules[domain.ModuleMargin]
	if !result.Applicable || result.Priority != "high" || result.Confidence != 0.9 {
		t.Fatalf("expected high-priority, 0.9-confidence margin result, got %+v", result)
	}
}

func TestComputeStockNeedsCostInputs(t *testing.T) {
	bundle := Compute(Inputs{Products: []ProductSnapshot{
		{Name: "widget", InventoryQuantity: 10, UnitsSold: 5},
	}})
	result := bundle.Modules[domain.ModuleStock]
	if !result.Applicable || len(result.Needs) != 2 {
		t.Fatalf("expected stock module to flag both missing cost inputs, got %+v", result)
	}
}

func TestComputeStockWithFullInputsPicksHighestInventoryProduct(t *testing.T) {
	bundle := Compute(Inputs{
		Products: []ProductSnapshot{
			{Name: "a", InventoryQuantity: 5, UnitsSold: 10, CostPerItem: floatPtr(2)},
			{Name: "b", InventoryQuantity: 50, UnitsSold: 0, CostPerItem: floatPtr(3)},
		},
		Costs: Costs{OrderingCost: floatPtr(20), HoldingCostPct: floatPtr(0.1)},
	})
	result := bundle.Modules[domain.ModuleStock]
	if !result.Applicable || result.Priority != "high" {
		t.Fatalf("expected a high-priority stock result, got %+v", result)
	}
	if result.Inputs["product_name"] != "b" {
		t.Fatalf("expected product b (highest inventory) to be selected, got %v", result.Inputs["product_name"])
	}
}

func TestComputeForecastLowConfidenceUnderThreeMonths(t *testing.T) {
	bundle := Compute(Inputs{MonthlyOrderQty: map[string]int{"2024-01": 5, "2024-02": 7}})
	result := bundle.Modules[domain.ModuleForecast]
	if result.Priority != "low" || result.Confidence != 0.3 {
		t.Fatalf("expected low-confidence forecast under 3 months of history, got %+v", result)
	}
}

func TestComputeForecastWithEnoughHistorySortsSeriesByMonth(t *testing.T) {
	bundle := Compute(Inputs{MonthlyOrderQty: map[string]int{
		"2024-03": 9, "2024-01": 5, "2024-02": 7,
	}})
	result := bundle.Modules[domain.ModuleForecast]
	series, ok := result.Inputs["monthly_series"].([]int)
	if !ok {
		t.Fatalf("expected monthly_series to be []int, got %T", result.Inputs["monthly_series"])
	}
	if len(series) != 3 || series[0] != 5 || series[1] != 7 || series[2] != 9 {
		t.Fatalf("expected series ordered by month (5,7,9), got %v", series)
	}
}

func TestComputeCashflowNotApplicableWithoutProducts(t *testing.T) {
	bundle := Compute(Inputs{})
	if bundle.Modules[domain.ModuleCashflow].Applicable {
		t.Fatalf("expected cashflow to be inapplicable with no products")
	}
}

func TestComputeRecommendationsFlagsOutOfStock(t *testing.T) {
	bundle := Compute(Inputs{Products: []ProductSnapshot{
		{Name: "sold-out", InventoryQuantity: 0},
		{Name: "in-stock", InventoryQuantity: 5},
	}})
	if len(bundle.Recommendations) != 1 {
		t.Fatalf("expected exactly one recommendation, got %v", bundle.Recommendations)
	}
}

func TestComputeMissingDataReportsAbsentCostFields(t *testing.T) {
	bundle := Compute(Inputs{Products: []ProductSnapshot{{Name: "widget"}}})
	found := map[string]bool{}
	for _, entry := range bundle.MissingData {
		found[entry.Field] = true
	}
	for _, field := range []string{"cost_per_item", "ordering_cost", "holding_cost_pct"} {
		if !found[field] {
			t.Fatalf("expected missing data to include %q, got %+v", field, bundle.MissingData)
		}
	}
}

func TestEstimateAnnualDemandPrefersObservedSales(t *testing.T) {
	if got := estimateAnnualDemand(ProductSnapshot{UnitsSold: 10, InventoryQuantity: 100}); got != 120 {
		t.Fatalf("expected 120 (10*12), got %d", got)
	}
	if got := estimateAnnualDemand(ProductSnapshot{UnitsSold: 0, InventoryQuantity: 25}); got != 100 {
		t.Fatalf("expected 100 (25*4) fallback, got %d", got)
	}
}
