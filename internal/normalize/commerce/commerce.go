// Package commerce normalizes raw Shopify-shaped payloads into the
// relational model (§4.5), upserting by (tenant, external_id) and emitting
// the affected-entity and feed-transition sets for the caller to enqueue.
package commerce

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tenantsync/engine/internal/domain"
	tserrors "github.com/tenantsync/engine/internal/errors"
	"github.com/tenantsync/engine/internal/normalize"
	"github.com/tenantsync/engine/internal/storage"
)

// Typed payload structs: no any-typed passthroughs (§9 Design Notes).

type variantPayload struct {
	ExternalID string   `json:"id"`
	Title      string   `json:"title"`
	Price      *float64 `json:"price"`
	UnitCost   *float64 `json:"cost_per_item"`
	Quantity   int      `json:"inventory_quantity"`
}

type productPayload struct {
	ExternalID string           `json:"id"`
	Title      string           `json:"title"`
	Vendor     string           `json:"vendor"`
	Tags       []string         `json:"tags"`
	Variants   []variantPayload `json:"variants"`
}

type lineItemPayload struct {
	ProductExternalID string  `json:"product_id"`
	VariantExternalID string  `json:"variant_id"`
	Quantity          int     `json:"quantity"`
	Price             float64 `json:"price"`
}

type orderPayload struct {
	ExternalID    string            `json:"id"`
	Ordinal       int               `json:"order_number"`
	Status        string            `json:"financial_status"`
	Total         float64           `json:"total_price"`
	CustomerEmail string            `json:"email"`
	OrderDate     string            `json:"created_at"`
	LineItems     []lineItemPayload `json:"line_items"`
}

type inventoryLevelPayload struct {
	VariantID  string `json:"inventory_item_id"`
	LocationID string `json:"location_id"`
	Available  int    `json:"available"`
}

// Normalizer holds the store dependencies for commerce normalize.
type Normalizer struct {
	products   storage.ProductStore
	orders     storage.OrderStore
	inventory  storage.InventoryLevelStore
	sourceRefs storage.SourceRefStore
}

func New(products storage.ProductStore, orders storage.OrderStore, inventory storage.InventoryLevelStore, sourceRefs storage.SourceRefStore) *Normalizer {
	return &Normalizer{products: products, orders: orders, inventory: inventory, sourceRefs: sourceRefs}
}

// Normalize dispatches on dataType. Structural decode failures mark the
// SourceRef error and return a SourceSchemaError without partial upsert.
func (n *Normalizer) Normalize(ctx context.Context, tenantID, sourceRefID, dataType string, raw []byte) (normalize.Result, error) {
	switch dataType {
	case "products":
		return n.normalizeProducts(ctx, tenantID, sourceRefID, raw)
	case "orders":
		return n.normalizeOrders(ctx, tenantID, sourceRefID, raw)
	case "inventory_levels":
		return n.normalizeInventoryLevels(ctx, tenantID, sourceRefID, raw)
	default:
		return normalize.Result{}, tserrors.SourceSchema("unknown_data_type", fmt.Sprintf("unrecognised commerce data type %q", dataType), nil)
	}
}

func (n *Normalizer) fail(ctx context.Context, sourceRefID string, err error) (normalize.Result, error) {
	if n.sourceRefs != nil {
		_ = n.sourceRefs.MarkError(ctx, sourceRefID)
	}
	return normalize.Result{}, err
}

func (n *Normalizer) normalizeProducts(ctx context.Context, tenantID, sourceRefID string, raw []byte) (normalize.Result, error) {
	var payloads []productPayload
	if err := json.Unmarshal(raw, &payloads); err != nil {
		return n.fail(ctx, sourceRefID, tserrors.SourceSchema("bad_product_payload", "products payload does not match declared schema", err))
	}
	var res normalize.Result
	for _, p := range payloads {
		variants := make([]domain.Variant, 0, len(p.Variants))
		total := 0
		for _, v := range p.Variants {
			variants = append(variants, domain.Variant{ExternalID: v.ExternalID, Title: v.Title, Price: v.Price, UnitCost: v.UnitCost, Quantity: v.Quantity})
			total += v.Quantity
		}
		var unitCost, price *float64
		if len(variants) > 0 {
			unitCost, price = variants[0].UnitCost, variants[0].Price
		}
		product := domain.Product{
			TenantID: tenantID, ExternalID: p.ExternalID, Title: p.Title, Vendor: p.Vendor,
			UnitCost: unitCost, Price: price, InventoryQuantity: total, Tags: p.Tags,
			Variants: variants, SourceRefID: sourceRefID,
		}
		if _, _, err := n.products.UpsertProduct(ctx, product); err != nil {
			res.RecordsErrored++
			continue
		}
		res.RecordsProcessed++
	}
	res.Affected = append(res.Affected, normalize.EntityRef{Kind: normalize.EntityTenant, ID: tenantID})
	return res, nil
}

func (n *Normalizer) normalizeOrders(ctx context.Context, tenantID, sourceRefID string, raw []byte) (normalize.Result, error) {
	var payloads []orderPayload
	if err := json.Unmarshal(raw, &payloads); err != nil {
		return n.fail(ctx, sourceRefID, tserrors.SourceSchema("bad_order_payload", "orders payload does not match declared schema", err))
	}
	var res normalize.Result
	for _, p := range payloads {
		items := make([]domain.LineItem, 0, len(p.LineItems))
		for _, li := range p.LineItems {
			items = append(items, domain.LineItem{ProductExternalID: li.ProductExternalID, VariantExternalID: li.VariantExternalID, Quantity: li.Quantity, Price: li.Price})
		}
		order := domain.Order{
			TenantID: tenantID, ExternalID: p.ExternalID, Ordinal: p.Ordinal, Status: p.Status,
			Total: p.Total, CustomerEmail: p.CustomerEmail, LineItems: items, SourceRefID: sourceRefID,
		}
		_, created, err := n.orders.UpsertOrder(ctx, order)
		if err != nil {
			res.RecordsErrored++
			continue
		}
		res.RecordsProcessed++
		if created {
			res.Transitions = append(res.Transitions, normalize.Transition{
				Kind: "ORDER_CREATED", EntityRef: p.ExternalID,
				Title: fmt.Sprintf("Order %s", p.ExternalID),
				Body:  fmt.Sprintf("New order totalling %.2f", p.Total),
			})
		}
	}
	res.Affected = append(res.Affected, normalize.EntityRef{Kind: normalize.EntityTenant, ID: tenantID})
	return res, nil
}

func (n *Normalizer) normalizeInventoryLevels(ctx context.Context, tenantID, sourceRefID string, raw []byte) (normalize.Result, error) {
	var payloads []inventoryLevelPayload
	if err := json.Unmarshal(raw, &payloads); err != nil {
		return n.fail(ctx, sourceRefID, tserrors.SourceSchema("bad_inventory_payload", "inventory_levels payload does not match declared schema", err))
	}
	var res normalize.Result
	for _, p := range payloads {
		lvl := domain.InventoryLevel{TenantID: tenantID, VariantID: p.VariantID, LocationID: p.LocationID, Quantity: p.Available, SourceRefID: sourceRefID}
		if _, err := n.inventory.UpsertInventoryLevel(ctx, lvl); err != nil {
			res.RecordsErrored++
			continue
		}
		res.RecordsProcessed++
	}
	res.Affected = append(res.Affected, normalize.EntityRef{Kind: normalize.EntityTenant, ID: tenantID})
	return res, nil
}
