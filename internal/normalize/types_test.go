package normalize

import "testing"

func TestDedupeEntitiesPreservesFirstSeenOrder(t *testing.T) {
	in := []EntityRef{
		{Kind: EntityLegislator, ID: "l1", Period: "2024"},
		{Kind: EntityLegislator, ID: "l2", Period: "2024"},
		{Kind: EntityLegislator, ID: "l1", Period: "2024"},
		{Kind: EntityTenant, ID: "l1", Period: "2024"},
	}
	got := DedupeEntities(in)
	if len(got) != 3 {
		t.Fatalf("expected 3 unique entries, got %d: %+v", len(got), got)
	}
	if got[0].ID != "l1" || got[1].ID != "l2" || got[2].Kind != EntityTenant {
		t.Fatalf("unexpected dedupe order: %+v", got)
	}
}

func TestDedupeEntitiesDistinguishesByPeriod(t *testing.T) {
	in := []EntityRef{
		{Kind: EntityLegislator, ID: "l1", Period: "2023"},
		{Kind: EntityLegislator, ID: "l1", Period: "2024"},
	}
	if got := DedupeEntities(in); len(got) != 2 {
		t.Fatalf("expected periods to be treated as distinct keys, got %+v", got)
	}
}

func TestDedupeEntitiesEmptyInput(t *testing.T) {
	if got := DedupeEntities(nil); len(got) != 0 {
		t.Fatalf("expected empty output for nil input, got %+v", got)
	}
}
