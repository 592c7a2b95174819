package domain

import "time"

// Variant is one purchasable option of a Product.
type Variant struct {
	ExternalID string
	Title      string
	Price      *float64
	UnitCost   *float64
	Quantity   int
}

// Product is a commerce catalogue entry, upserted by (tenant, external_id).
type Product struct {
	ID                string
	TenantID          string
	ExternalID        string
	Title             string
	Vendor            string
	UnitCost          *float64
	Price             *float64
	InventoryQuantity int
	Tags              []string
	Variants          []Variant
	SourceRefID       string
	UpdatedAt         time.Time
}

// ExternalIDs returns the product's own external id plus every variant
// external id, used to resolve order line items against either (decision D-1).
func (p Product) ExternalIDs() []string {
	ids := make([]string, 0, len(p.Variants)+1)
	ids = append(ids, p.ExternalID)
	for _, v := range p.Variants {
		if v.ExternalID != "" {
			ids = append(ids, v.ExternalID)
		}
	}
	return ids
}

// LineItem is one order line, referencing a product by external id (and,
// per decision D-1, possibly by a variant external id instead).
type LineItem struct {
	ProductExternalID string
	VariantExternalID string
	Quantity          int
	Price             float64
}

// Order is a commerce transaction, upserted by (tenant, external_id).
type Order struct {
	ID             string
	TenantID       string
	ExternalID     string
	Ordinal        int
	Status         string
	Total          float64
	CustomerEmail  string
	OrderDate      time.Time
	LineItems      []LineItem
	SourceRefID    string
	UpdatedAt      time.Time
}

// InventoryLevel is the quantity of one variant at one warehouse location.
type InventoryLevel struct {
	ID          string
	TenantID    string
	VariantID   string
	LocationID  string
	Quantity    int
	SourceRefID string
	UpdatedAt   time.Time
}

// AnalysisModuleResult is one module's recommendation bundle (§4.6.2).
type AnalysisModuleResult struct {
	Applicable bool
	Priority   string // high | medium | low
	Confidence float64
	Inputs     map[string]any
	Insights   []string
	Needs      []string // missing required fields, when not applicable at full priority
}

// Analysis is a derived per-tenant recommendation, one row per applicable
// module, replayable from its input/output snapshot.
type Analysis struct {
	ID         string
	TenantID   string
	Module     AnalysisModule
	Input      map[string]any
	Output     map[string]any
	Insight    string
	SourceTag  string // manual | auto | manual-with-source
	CreatedAt  time.Time
}

// AnalysisBundle is the full output of one /analyze invocation.
type AnalysisBundle struct {
	Modules          map[AnalysisModule]AnalysisModuleResult
	GeneralInsights  string
	Recommendations  []string
	MissingData      []MissingDataEntry
}

// MissingDataEntry names a required field and the modules it unblocks.
type MissingDataEntry struct {
	Field   string
	Modules []AnalysisModule
}
