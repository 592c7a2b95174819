package metricsengine

import (
	"testing"
	"time"

	"github.com/tenantsync/engine/internal/domain"
)

func TestComputeRates(t *testing.T) {
	termStart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	in := Inputs{
		LegislatorID:  "leg-1",
		Period:        "2024",
		TermStart:     termStart,
		Now:           now,
		CosignedCount: 2,
		AuthoredBills: []domain.Bill{
			{Status: domain.BillPresented},
			{Status: domain.BillApproved},
			{Status: domain.BillRejected},
		},
		Attendances: []domain.Attendance{
			{Status: domain.AttendancePresent},
			{Status: domain.AttendancePresent},
			{Status: domain.AttendanceAbsent},
		},
		VoteResults: []domain.VoteResult{
			{Vote: domain.VoteAffirm},
			{Vote: domain.VoteAbsent},
		},
		CommissionCount: 1,
	}

	got := Compute(in)

	if got.BillsAuthored != 3 {
		t.Fatalf("expected 3 authored bills, got %d", got.BillsAuthored)
	}
	if got.BillsWithAdvancement != 2 {
		t.Fatalf("expected 2 bills with advancement, got %d", got.BillsWithAdvancement)
	}
	if got.AdvancementRate != 0.6667 {
		t.Fatalf("expected advancement rate 0.6667, got %v", got.AdvancementRate)
	}
	if got.AttendanceRate != 0.6667 {
		t.Fatalf("expected attendance rate 0.6667, got %v", got.AttendanceRate)
	}
	if got.VoteParticipationRate != 0.5 {
		t.Fatalf("expected vote participation 0.5, got %v", got.VoteParticipationRate)
	}
	if got.CommissionsCount != 1 {
		t.Fatalf("expected commission count 1, got %d", got.CommissionsCount)
	}
}

func TestComputeZeroDenominatorsDoNotDivideByZero(t *testing.T) {
	in := Inputs{
		LegislatorID: "leg-2",
		Period:       "2024",
		TermStart:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:          time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	}

	got := Compute(in)

	if got.AdvancementRate != 0 || got.AttendanceRate != 0 || got.VoteParticipationRate != 0 {
		t.Fatalf("expected all rates to be 0 with no inputs, got %+v", got)
	}
	if got.NormalisedProductivity != 0 {
		t.Fatalf("expected 0 productivity with no authored bills, got %v", got.NormalisedProductivity)
	}
}

func TestComputeNormalisedProductivityFloorsMonthsAtOne(t *testing.T) {
	in := Inputs{
		LegislatorID:  "leg-3",
		Period:        "2024",
		TermStart:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Now:           time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
		AuthoredBills: []domain.Bill{{Status: domain.BillApproved}, {Status: domain.BillApproved}},
	}

	got := Compute(in)

	if got.NormalisedProductivity != 2 {
		t.Fatalf("expected productivity of 2 bills/month with a sub-month term, got %v", got.NormalisedProductivity)
	}
}

func TestMonthsBetween(t *testing.T) {
	cases := []struct {
		name       string
		start, end time.Time
		want       int
	}{
		{"same day", date(2024, 1, 15), date(2024, 1, 15), 0},
		{"exact year", date(2023, 1, 15), date(2024, 1, 15), 12},
		{"partial month rounds down", date(2024, 1, 20), date(2024, 2, 10), 0},
		{"end before start", date(2024, 2, 1), date(2024, 1, 1), 0},
		{"zero start", time.Time{}, date(2024, 1, 1), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := monthsBetween(tc.start, tc.end); got != tc.want {
				t.Fatalf("monthsBetween(%v, %v) = %d, want %d", tc.start, tc.end, got, tc.want)
			}
		})
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
