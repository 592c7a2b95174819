package legislative

import (
	"context"
	"testing"

	"github.com/tenantsync/engine/internal/domain"
	"github.com/tenantsync/engine/internal/storage/memory"
)

func newStores(store *memory.Store) Stores {
	return Stores{
		Legislators: store, Bills: store, Movements: store, Authors: store,
		VoteEvents: store, VoteResults: store, Sessions: store, Attendances: store,
		SourceRefs: store,
	}
}

func TestNormalizeLegislatorsSkipsRowsWithoutExternalID(t *testing.T) {
	store := memory.New()
	n := New(newStores(store))
	csv := "external_id,first_name,last_name\nL1,Ana,Souza\n,No,ExternalID\n"

	res, err := n.Normalize(context.Background(), "t1", "ref1", "legislators", []byte(csv))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if res.RecordsProcessed != 1 || res.RecordsErrored != 1 {
		t.Fatalf("expected 1 processed and 1 errored, got %+v", res)
	}
}

func TestNormalizeBillsEmitsCreatedTransitionOnlyOnce(t *testing.T) {
	store := memory.New()
	n := New(newStores(store))
	csv := "external_id,title,status,type,presented_date,period\nB1,Tax Reform,PRESENTED,ordinary,2024-01-10,2024\n"

	res, err := n.Normalize(context.Background(), "t1", "ref1", "bills", []byte(csv))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(res.Transitions) != 1 || res.Transitions[0].Kind != "BILL_CREATED" {
		t.Fatalf("expected one BILL_CREATED transition, got %+v", res.Transitions)
	}

	res2, err := n.Normalize(context.Background(), "t1", "ref1", "bills", []byte(csv))
	if err != nil {
		t.Fatalf("re-normalize: %v", err)
	}
	if len(res2.Transitions) != 0 {
		t.Fatalf("expected no transition on re-ingest of an unchanged bill, got %+v", res2.Transitions)
	}
}

func TestNormalizeBillMovementsSkipsUnknownBill(t *testing.T) {
	store := memory.New()
	n := New(newStores(store))
	csv := "bill_external_id,from_status,to_status,description,moved_at\nMISSING,PRESENTED,IN_COMMITTEE,sent to committee,2024-01-11\n"

	res, err := n.Normalize(context.Background(), "t1", "ref1", "bill_movements", []byte(csv))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if res.RecordsErrored != 1 || res.RecordsProcessed != 0 {
		t.Fatalf("expected the movement referencing an unknown bill to error, got %+v", res)
	}
}

func TestNormalizeBillMovementsAdvancesStatusAndEmitsTransition(t *testing.T) {
	store := memory.New()
	n := New(newStores(store))
	billsCSV := "external_id,title,status,type,presented_date,period\nB1,Tax Reform,PRESENTED,ordinary,2024-01-10,2024\n"
	if _, err := n.Normalize(context.Background(), "t1", "ref1", "bills", []byte(billsCSV)); err != nil {
		t.Fatalf("seed bill: %v", err)
	}
	author, _, err := store.UpsertLegislator(context.Background(), domain.Legislator{TenantID: "t1", ExternalID: "L1"})
	if err != nil {
		t.Fatalf("seed legislator: %v", err)
	}
	seeded, found, err := store.GetBillByExternalID(context.Background(), "t1", "B1")
	if err != nil || !found {
		t.Fatalf("expected seeded bill to be found, err=%v found=%v", err, found)
	}
	if _, err := store.UpsertBillAuthor(context.Background(), domain.BillAuthor{TenantID: "t1", BillID: seeded.ID, LegislatorID: author.ID, Role: domain.RoleAuthor}); err != nil {
		t.Fatalf("seed bill author: %v", err)
	}

	movementsCSV := "bill_external_id,from_status,to_status,description,moved_at\nB1,PRESENTED,IN_COMMITTEE,sent to committee,2024-01-11\n"
	res, err := n.Normalize(context.Background(), "t1", "ref1", "bill_movements", []byte(movementsCSV))
	if err != nil {
		t.Fatalf("normalize movements: %v", err)
	}
	if res.RecordsProcessed != 1 {
		t.Fatalf("expected 1 processed movement, got %+v", res)
	}
	if len(res.Transitions) != 1 || res.Transitions[0].Kind != "BILL_MOVEMENT" {
		t.Fatalf("expected a BILL_MOVEMENT transition on advancement, got %+v", res.Transitions)
	}
	if len(res.Affected) != 1 || res.Affected[0].ID != author.ID {
		t.Fatalf("expected the bill's author to be marked affected, got %+v", res.Affected)
	}

	bill, found, err := store.GetBillByExternalID(context.Background(), "t1", "B1")
	if err != nil || !found {
		t.Fatalf("expected bill to be found, err=%v found=%v", err, found)
	}
	if bill.Status != "IN_COMMITTEE" {
		t.Fatalf("expected bill status to advance to IN_COMMITTEE, got %s", bill.Status)
	}
}

func TestNormalizeAttendanceRequiresLegislatorAndSession(t *testing.T) {
	store := memory.New()
	n := New(newStores(store))
	csv := "legislator_external_id,session_external_id,status\nMISSING,MISSING,PRESENT\n"

	res, err := n.Normalize(context.Background(), "t1", "ref1", "attendance", []byte(csv))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if res.RecordsErrored != 1 || res.RecordsProcessed != 0 {
		t.Fatalf("expected missing-reference attendance row to error, got %+v", res)
	}
}

func TestNormalizeAttendanceTransitionBodyReportsPresentOverTotal(t *testing.T) {
	store := memory.New()
	n := New(newStores(store))
	if _, _, err := store.UpsertLegislator(context.Background(), domain.Legislator{TenantID: "t1", ExternalID: "L1", FirstName: "Ana", LastName: "Souza"}); err != nil {
		t.Fatalf("seed legislator: %v", err)
	}
	if _, _, err := store.UpsertSession(context.Background(), domain.Session{TenantID: "t1", ExternalID: "S1"}); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	if _, _, err := store.UpsertSession(context.Background(), domain.Session{TenantID: "t1", ExternalID: "S2"}); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	csv1 := "legislator_external_id,session_external_id,status\nL1,S1,PRESENT\n"
	if _, err := n.Normalize(context.Background(), "t1", "ref1", "attendance", []byte(csv1)); err != nil {
		t.Fatalf("normalize first attendance row: %v", err)
	}

	csv2 := "legislator_external_id,session_external_id,status\nL1,S2,ABSENT\n"
	res, err := n.Normalize(context.Background(), "t1", "ref1", "attendance", []byte(csv2))
	if err != nil {
		t.Fatalf("normalize second attendance row: %v", err)
	}
	if len(res.Transitions) != 1 {
		t.Fatalf("expected one transition, got %+v", res.Transitions)
	}
	want := "Present 1/2 (50%). Absent 1"
	if res.Transitions[0].Body != want {
		t.Fatalf("expected body %q, got %q", want, res.Transitions[0].Body)
	}
}

func TestNormalizeUnknownDataTypeFails(t *testing.T) {
	store := memory.New()
	n := New(newStores(store))
	_, err := n.Normalize(context.Background(), "t1", "ref1", "unknown", []byte("a,b\n1,2\n"))
	if err == nil {
		t.Fatal("expected an error for an unrecognised data type")
	}
}

func TestNormalizeMalformedCSVMarksSourceRefError(t *testing.T) {
	store := memory.New()
	n := New(newStores(store))
	ref, err := store.CreateSourceRef(context.Background(), domain.SourceRef{TenantID: "t1", SourceKey: "legislative", DataType: "bills"})
	if err != nil {
		t.Fatalf("create source ref: %v", err)
	}
	_, err = n.Normalize(context.Background(), "t1", ref.ID, "bills", []byte(""))
	if err == nil {
		t.Fatal("expected an empty payload to fail CSV parsing")
	}
	got, found, _ := store.LatestByChecksum(context.Background(), "t1", "legislative", "")
	if !found || got.Status != "error" {
		t.Fatalf("expected the source ref to be marked error, got %+v found=%v", got, found)
	}
}
