package commerce

import (
	"context"
	"testing"

	"github.com/tenantsync/engine/internal/domain"
	tserrors "github.com/tenantsync/engine/internal/errors"
	"github.com/tenantsync/engine/internal/storage/memory"
)

func newNormalizer(store *memory.Store) *Normalizer {
	return New(store, store, store, store)
}

func TestNormalizeProductsUpsertsEachProduct(t *testing.T) {
	store := memory.New()
	n := newNormalizer(store)
	raw := []byte(`[
		{"id":"p1","title":"Widget","vendor":"Acme","tags":["a","b"],
		 "variants":[{"id":"v1","title":"Default","price":9.99,"cost_per_item":4,"inventory_quantity":10}]}
	]`)

	res, err := n.Normalize(context.Background(), "tenant-1", "ref-1", "products", raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if res.RecordsProcessed != 1 || res.RecordsErrored != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Affected) != 1 || res.Affected[0].Kind != "tenant" {
		t.Fatalf("expected tenant affected-entity, got %+v", res.Affected)
	}

	got, found, err := store.GetProductByAnyExternalID(context.Background(), "tenant-1", "p1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if !found {
		t.Fatal("expected product p1 to be found")
	}
	if got.Title != "Widget" || got.InventoryQuantity != 10 {
		t.Fatalf("unexpected stored product: %+v", got)
	}
}

func TestNormalizeProductsMalformedPayloadMarksSourceRefError(t *testing.T) {
	store := memory.New()
	n := newNormalizer(store)
	ref, err := store.CreateSourceRef(context.Background(), domain.SourceRef{TenantID: "t1", SourceKey: "commerce", DataType: "products"})
	if err != nil {
		t.Fatalf("create source ref: %v", err)
	}

	_, err = n.Normalize(context.Background(), "t1", ref.ID, "products", []byte(`not json`))
	kerr, ok := tserrors.As(err)
	if !ok || kerr.Kind != tserrors.KindSourceSchema {
		t.Fatalf("expected a SourceSchema error, got %v", err)
	}
	got, found, _ := store.LatestByChecksum(context.Background(), "t1", "commerce", "")
	if !found || got.Status != "error" {
		t.Fatalf("expected the source ref to be marked error, got %+v found=%v", got, found)
	}
}

func TestNormalizeOrdersEmitsOrderCreatedTransitionOnlyOnCreate(t *testing.T) {
	store := memory.New()
	n := newNormalizer(store)
	raw := []byte(`[{"id":"o1","order_number":1001,"financial_status":"paid","total_price":19.98,"email":"buyer@example.com","line_items":[]}]`)

	res, err := n.Normalize(context.Background(), "t1", "ref-1", "orders", raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if res.RecordsProcessed != 1 {
		t.Fatalf("expected 1 processed order, got %+v", res)
	}
	if len(res.Transitions) != 1 || res.Transitions[0].Kind != "ORDER_CREATED" {
		t.Fatalf("expected one ORDER_CREATED transition, got %+v", res.Transitions)
	}

	res2, err := n.Normalize(context.Background(), "t1", "ref-1", "orders", raw)
	if err != nil {
		t.Fatalf("re-normalize: %v", err)
	}
	if len(res2.Transitions) != 0 {
		t.Fatalf("expected no transition on an idempotent re-ingest of the same order, got %+v", res2.Transitions)
	}
}

func TestNormalizeUnknownDataTypeFails(t *testing.T) {
	store := memory.New()
	n := newNormalizer(store)
	_, err := n.Normalize(context.Background(), "t1", "ref-1", "coupons", []byte(`[]`))
	kerr, ok := tserrors.As(err)
	if !ok || kerr.Kind != tserrors.KindSourceSchema {
		t.Fatalf("expected a SourceSchema error for an unrecognised data type, got %v", err)
	}
}

func TestNormalizeInventoryLevelsUpserts(t *testing.T) {
	store := memory.New()
	n := newNormalizer(store)
	raw := []byte(`[{"inventory_item_id":"v1","location_id":"loc1","available":42}]`)
	res, err := n.Normalize(context.Background(), "t1", "ref-1", "inventory_levels", raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if res.RecordsProcessed != 1 {
		t.Fatalf("expected 1 processed inventory level, got %+v", res)
	}
}
