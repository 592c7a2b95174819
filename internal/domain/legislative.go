package domain

import "time"

// Legislator is a member of the legislative body.
type Legislator struct {
	ID         string
	TenantID   string
	ExternalID string
	FirstName  string
	LastName   string
	Block      string
	Province   string
	Chamber    string
	Active     bool
	TermStart  time.Time
	TermEnd    time.Time
	SourceRefID string
	UpdatedAt  time.Time
}

// Bill is a piece of legislation tracked through its status lifecycle.
type Bill struct {
	ID            string
	TenantID      string
	ExternalID    string
	Title         string
	Status        BillStatus
	Type          string
	PresentedDate time.Time
	Period        string
	SourceRefID   string
	UpdatedAt     time.Time
}

// BillMovement is one append-only step in a bill's status history, totally
// ordered within the bill by OrderIndex (dense, starting at 0).
type BillMovement struct {
	ID          string
	TenantID    string
	BillID      string
	OrderIndex  int
	Description string
	FromStatus  BillStatus
	ToStatus    BillStatus
	MovedAt     time.Time
}

// BillAuthor links a Bill to a Legislator with a role (author or co-signer).
type BillAuthor struct {
	ID           string
	TenantID     string
	BillID       string
	LegislatorID string
	Role         BillAuthorRole
}

// VoteEvent is one recorded vote, whose tallies are authoritative from the
// source payload (not recomputed locally from VoteResults).
type VoteEvent struct {
	ID          string
	TenantID    string
	ExternalID  string
	SessionID   string
	Title       string
	Affirmative int
	Negative    int
	Abstention  int
	Absent      int
	Result      string
	VotedAt     time.Time
	SourceRefID string
}

// VoteResult is one legislator's cast vote within a VoteEvent, upserted by
// (legislator, vote_event).
type VoteResult struct {
	ID           string
	TenantID     string
	VoteEventID  string
	LegislatorID string
	Vote         VoteChoice
}

// Session is one sitting of the legislative chamber.
type Session struct {
	ID         string
	TenantID   string
	ExternalID string
	Title      string
	HeldAt     time.Time
}

// Attendance records one legislator's attendance at one Session, upserted by
// (session, legislator).
type Attendance struct {
	ID           string
	TenantID     string
	SessionID    string
	LegislatorID string
	Status       AttendanceStatus
}

// Commission is a legislative committee. Decision D-3: schema retained, no
// adapter populates it from a real source; rows come only from what an
// operator seeds directly.
type Commission struct {
	ID         string
	TenantID   string
	ExternalID string
	Name       string
}

// CommissionMembership links a Legislator to a Commission.
type CommissionMembership struct {
	ID           string
	TenantID     string
	CommissionID string
	LegislatorID string
	Role         string
}

// LegislatorMetric is one (legislator, period) row of derived productivity
// metrics (§4.6.1).
type LegislatorMetric struct {
	ID                     string
	TenantID               string
	LegislatorID           string
	Period                 string
	BillsAuthored          int
	BillsCosigned          int
	BillsWithAdvancement   int
	AdvancementRate        float64
	AttendanceRate         float64
	VoteParticipationRate  float64
	CommissionsCount       int
	NormalisedProductivity float64
	ComputedAt             time.Time
}
