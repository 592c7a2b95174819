package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/tenantsync/engine/internal/domain"
	tserrors "github.com/tenantsync/engine/internal/errors"
)

// ProductStore is the Postgres-backed domain.Product store.
type ProductStore struct{ Base }

func NewProductStore(db *sql.DB) *ProductStore { return &ProductStore{Base{DB: db}} }

func (s *ProductStore) UpsertProduct(ctx context.Context, p domain.Product) (domain.Product, bool, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	variants, err := json.Marshal(p.Variants)
	if err != nil {
		return domain.Product{}, false, tserrors.SourceSchema("product_variants_invalid", "encode variants", err)
	}
	const q = `INSERT INTO products (id, tenant_id, external_id, title, vendor, unit_cost, price, inventory_quantity, tags, variants, source_ref_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		ON CONFLICT (tenant_id, external_id) DO UPDATE SET
			title = EXCLUDED.title, vendor = EXCLUDED.vendor, unit_cost = EXCLUDED.unit_cost,
			price = EXCLUDED.price, inventory_quantity = EXCLUDED.inventory_quantity,
			tags = EXCLUDED.tags, variants = EXCLUDED.variants, source_ref_id = EXCLUDED.source_ref_id,
			updated_at = now()
		RETURNING id, (xmax = 0) AS inserted, updated_at`
	var inserted bool
	err = s.q(ctx).QueryRowContext(ctx, q, p.ID, p.TenantID, p.ExternalID, p.Title, p.Vendor,
		p.UnitCost, p.Price, p.InventoryQuantity, pq.StringArray(p.Tags), variants, p.SourceRefID).
		Scan(&p.ID, &inserted, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, false, classify("product_upsert_failed", "upsert product", err)
	}
	return p, inserted, nil
}

const productColumns = `id, tenant_id, external_id, title, vendor, unit_cost, price, inventory_quantity, tags, variants, source_ref_id, updated_at`

func scanProduct(row *sql.Row) (domain.Product, error) {
	var p domain.Product
	var tags pq.StringArray
	var variants []byte
	err := row.Scan(&p.ID, &p.TenantID, &p.ExternalID, &p.Title, &p.Vendor, &p.UnitCost, &p.Price,
		&p.InventoryQuantity, &tags, &variants, &p.SourceRefID, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	p.Tags = []string(tags)
	_ = json.Unmarshal(variants, &p.Variants)
	return p, nil
}

func (s *ProductStore) ListProducts(ctx context.Context, tenantID string) ([]domain.Product, error) {
	q := `SELECT ` + productColumns + ` FROM products WHERE tenant_id = $1 ORDER BY external_id`
	rows, err := s.q(ctx).QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, classify("product_list_failed", "list products", err)
	}
	defer rows.Close()
	var out []domain.Product
	for rows.Next() {
		var p domain.Product
		var tags pq.StringArray
		var variants []byte
		if err := rows.Scan(&p.ID, &p.TenantID, &p.ExternalID, &p.Title, &p.Vendor, &p.UnitCost, &p.Price,
			&p.InventoryQuantity, &tags, &variants, &p.SourceRefID, &p.UpdatedAt); err != nil {
			return nil, classify("product_scan_failed", "scan product", err)
		}
		p.Tags = []string(tags)
		_ = json.Unmarshal(variants, &p.Variants)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *ProductStore) GetProductByExternalID(ctx context.Context, tenantID, externalID string) (domain.Product, bool, error) {
	q := `SELECT ` + productColumns + ` FROM products WHERE tenant_id = $1 AND external_id = $2`
	p, err := scanProduct(s.q(ctx).QueryRowContext(ctx, q, tenantID, externalID))
	if err == sql.ErrNoRows {
		return domain.Product{}, false, nil
	}
	if err != nil {
		return domain.Product{}, false, classify("product_query_failed", "query product", err)
	}
	return p, true, nil
}

// GetProductByAnyExternalID matches a product's own external id first, then
// falls back to a JSON containment search over its variants (decision D-1).
func (s *ProductStore) GetProductByAnyExternalID(ctx context.Context, tenantID, externalID string) (domain.Product, bool, error) {
	if p, ok, err := s.GetProductByExternalID(ctx, tenantID, externalID); ok || err != nil {
		return p, ok, err
	}
	q := `SELECT ` + productColumns + ` FROM products
		WHERE tenant_id = $1 AND variants @> $2::jsonb LIMIT 1`
	needle, _ := json.Marshal([]map[string]string{{"ExternalID": externalID}})
	p, err := scanProduct(s.q(ctx).QueryRowContext(ctx, q, tenantID, needle))
	if err == sql.ErrNoRows {
		return domain.Product{}, false, nil
	}
	if err != nil {
		return domain.Product{}, false, classify("product_query_failed", "query product by variant", err)
	}
	return p, true, nil
}

// OrderStore is the Postgres-backed domain.Order store.
type OrderStore struct{ Base }

func NewOrderStore(db *sql.DB) *OrderStore { return &OrderStore{Base{DB: db}} }

func (s *OrderStore) UpsertOrder(ctx context.Context, o domain.Order) (domain.Order, bool, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	items, err := json.Marshal(o.LineItems)
	if err != nil {
		return domain.Order{}, false, tserrors.SourceSchema("order_line_items_invalid", "encode line items", err)
	}
	const q = `INSERT INTO orders (id, tenant_id, external_id, ordinal, status, total, customer_email, order_date, line_items, source_ref_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (tenant_id, external_id) DO UPDATE SET
			status = EXCLUDED.status, total = EXCLUDED.total, customer_email = EXCLUDED.customer_email,
			line_items = EXCLUDED.line_items, source_ref_id = EXCLUDED.source_ref_id, updated_at = now()
		RETURNING id, (xmax = 0) AS inserted, updated_at`
	var inserted bool
	err = s.q(ctx).QueryRowContext(ctx, q, o.ID, o.TenantID, o.ExternalID, o.Ordinal, o.Status, o.Total,
		o.CustomerEmail, o.OrderDate, items, o.SourceRefID).Scan(&o.ID, &inserted, &o.UpdatedAt)
	if err != nil {
		return domain.Order{}, false, classify("order_upsert_failed", "upsert order", err)
	}
	return o, inserted, nil
}

func (s *OrderStore) ListOrders(ctx context.Context, tenantID string) ([]domain.Order, error) {
	const q = `SELECT id, tenant_id, external_id, ordinal, status, total, customer_email, order_date, line_items, source_ref_id, updated_at
		FROM orders WHERE tenant_id = $1 ORDER BY order_date`
	rows, err := s.q(ctx).QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, classify("order_list_failed", "list orders", err)
	}
	defer rows.Close()
	var out []domain.Order
	for rows.Next() {
		var o domain.Order
		var items []byte
		if err := rows.Scan(&o.ID, &o.TenantID, &o.ExternalID, &o.Ordinal, &o.Status, &o.Total,
			&o.CustomerEmail, &o.OrderDate, &items, &o.SourceRefID, &o.UpdatedAt); err != nil {
			return nil, classify("order_scan_failed", "scan order", err)
		}
		_ = json.Unmarshal(items, &o.LineItems)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *OrderStore) CountOrdersByMonth(ctx context.Context, tenantID string) (map[string]int, error) {
	const q = `SELECT to_char(order_date, 'YYYY-MM') AS month, count(*) FROM orders
		WHERE tenant_id = $1 GROUP BY month`
	rows, err := s.q(ctx).QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, classify("order_aggregate_failed", "count orders by month", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var month string
		var n int
		if err := rows.Scan(&month, &n); err != nil {
			return nil, classify("order_scan_failed", "scan order count", err)
		}
		out[month] = n
	}
	return out, rows.Err()
}

// InventoryLevelStore is the Postgres-backed domain.InventoryLevel store.
type InventoryLevelStore struct{ Base }

func NewInventoryLevelStore(db *sql.DB) *InventoryLevelStore { return &InventoryLevelStore{Base{DB: db}} }

func (s *InventoryLevelStore) UpsertInventoryLevel(ctx context.Context, lvl domain.InventoryLevel) (domain.InventoryLevel, error) {
	if lvl.ID == "" {
		lvl.ID = uuid.NewString()
	}
	const q = `INSERT INTO inventory_levels (id, tenant_id, variant_id, location_id, quantity, source_ref_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (tenant_id, variant_id, location_id) DO UPDATE SET
			quantity = EXCLUDED.quantity, source_ref_id = EXCLUDED.source_ref_id, updated_at = now()
		RETURNING id, updated_at`
	err := s.q(ctx).QueryRowContext(ctx, q, lvl.ID, lvl.TenantID, lvl.VariantID, lvl.LocationID, lvl.Quantity, lvl.SourceRefID).
		Scan(&lvl.ID, &lvl.UpdatedAt)
	if err != nil {
		return domain.InventoryLevel{}, classify("inventory_upsert_failed", "upsert inventory level", err)
	}
	return lvl, nil
}
