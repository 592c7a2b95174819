package feed

import (
	"context"
	"testing"

	"github.com/tenantsync/engine/internal/domain"
	"github.com/tenantsync/engine/internal/normalize"
	"github.com/tenantsync/engine/internal/storage/memory"
)

func TestEmitCreatesFeedPostForRecognisedKind(t *testing.T) {
	store := memory.New()
	g := New(store)

	created, emitted, err := g.Emit(context.Background(), "t1", "ref1", normalize.Transition{
		Kind: "BILL_CREATED", EntityRef: "bill-1", Title: "Tax Reform", Body: "filed",
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if !emitted {
		t.Fatal("expected BILL_CREATED to be emitted")
	}
	if created.Type != domain.FeedBillCreated || created.AutoGenerated != true {
		t.Fatalf("unexpected feed post: %+v", created)
	}
}

func TestEmitSkipsUnrecognisedKind(t *testing.T) {
	store := memory.New()
	g := New(store)

	_, emitted, err := g.Emit(context.Background(), "t1", "ref1", normalize.Transition{Kind: "ORDER_CREATED"})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if emitted {
		t.Fatal("expected ORDER_CREATED to be silently skipped, it has no entry in the fixed feed taxonomy")
	}
}

func TestAttendanceBodyFormatsPercentageAndAbsentCount(t *testing.T) {
	got := AttendanceBody(3, 4)
	want := "Present 3/4 (75%). Absent 1"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestAttendanceBodyHandlesZeroTotal(t *testing.T) {
	got := AttendanceBody(0, 0)
	want := "Present 0/0 (0%). Absent 0"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestAnalysisReadyTransitionUsesModuleNameAsTitle(t *testing.T) {
	tr := AnalysisReadyTransition(domain.ModuleMargin, "3 products need cost data")
	if tr.Kind != "ANALYSIS_READY" || tr.Title != "MARGIN" || tr.Body != "3 products need cost data" {
		t.Fatalf("unexpected transition: %+v", tr)
	}
}
