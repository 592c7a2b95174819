// Package metricsengine computes the legislative productivity metrics of
// §4.6.1 as a pure function of the legislator's raw rows for one period.
// No I/O happens inside Compute; the caller (a queue handler) gathers the
// inputs and persists the result via storage.LegislatorMetricStore.
package metricsengine

import (
	"math"
	"time"

	"github.com/tenantsync/engine/internal/domain"
)

// Inputs bundles everything Compute needs for one (legislator, period) row.
type Inputs struct {
	LegislatorID    string
	Period          string
	TermStart       time.Time
	Now             time.Time
	AuthoredBills   []domain.Bill            // bills where the legislator has role AUTHOR
	CosignedCount   int                      // bills where the legislator has role COAUTHOR
	Attendances     []domain.Attendance
	VoteResults     []domain.VoteResult
	CommissionCount int
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}

func ratio(numerator, denominator int) float64 {
	if denominator == 0 {
		return 0
	}
	return round4(float64(numerator) / float64(denominator))
}

// Compute derives the full LegislatorMetric row for one period, per §4.6.1.
func Compute(in Inputs) domain.LegislatorMetric {
	billsAuthored := len(in.AuthoredBills)
	withAdvancement := 0
	for _, b := range in.AuthoredBills {
		if b.Status != domain.BillPresented {
			withAdvancement++
		}
	}

	present := 0
	for _, a := range in.Attendances {
		if a.Status == domain.AttendancePresent {
			present++
		}
	}

	votedNonAbsent := 0
	for _, v := range in.VoteResults {
		if v.Vote != domain.VoteAbsent {
			votedNonAbsent++
		}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	months := monthsBetween(in.TermStart, now)
	if months < 1 {
		months = 1
	}

	return domain.LegislatorMetric{
		LegislatorID:           in.LegislatorID,
		Period:                 in.Period,
		BillsAuthored:          billsAuthored,
		BillsCosigned:          in.CosignedCount,
		BillsWithAdvancement:   withAdvancement,
		AdvancementRate:        ratio(withAdvancement, billsAuthored),
		AttendanceRate:         ratio(present, len(in.Attendances)),
		VoteParticipationRate:  ratio(votedNonAbsent, len(in.VoteResults)),
		CommissionsCount:       in.CommissionCount,
		NormalisedProductivity: round4(float64(billsAuthored) / float64(months)),
		ComputedAt:             now,
	}
}

func monthsBetween(start, end time.Time) int {
	if start.IsZero() || end.Before(start) {
		return 0
	}
	years := end.Year() - start.Year()
	months := int(end.Month()) - int(start.Month())
	total := years*12 + months
	if end.Day() < start.Day() {
		total--
	}
	return total
}
