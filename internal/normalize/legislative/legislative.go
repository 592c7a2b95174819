// Package legislative normalizes raw CKAN/CSV payloads into the relational
// model (§4.5). A missing referenced legislator or bill silently skips the
// dependent row and increments the error counter; the entity is expected to
// arrive in a later sync.
package legislative

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/tenantsync/engine/internal/domain"
	tserrors "github.com/tenantsync/engine/internal/errors"
	"github.com/tenantsync/engine/internal/feed"
	"github.com/tenantsync/engine/internal/normalize"
	"github.com/tenantsync/engine/internal/storage"
)

// Stores bundles every legislative store the normalizer depends on.
type Stores struct {
	Legislators storage.LegislatorStore
	Bills       storage.BillStore
	Movements   storage.BillMovementStore
	Authors     storage.BillAuthorStore
	VoteEvents  storage.VoteEventStore
	VoteResults storage.VoteResultStore
	Sessions    storage.SessionStore
	Attendances storage.AttendanceStore
	SourceRefs  storage.SourceRefStore
}

type Normalizer struct{ s Stores }

func New(s Stores) *Normalizer { return &Normalizer{s: s} }

func (n *Normalizer) Normalize(ctx context.Context, tenantID, sourceRefID, dataType string, raw []byte) (normalize.Result, error) {
	rows, header, err := readCSV(raw)
	if err != nil {
		if n.s.SourceRefs != nil {
			_ = n.s.SourceRefs.MarkError(ctx, sourceRefID)
		}
		return normalize.Result{}, tserrors.SourceSchema("bad_csv_payload", fmt.Sprintf("%s payload is not valid CSV", dataType), err)
	}
	idx := columnIndex(header)
	switch dataType {
	case "legislators":
		return n.normalizeLegislators(ctx, tenantID, sourceRefID, rows, idx)
	case "bills":
		return n.normalizeBills(ctx, tenantID, sourceRefID, rows, idx)
	case "bill_movements":
		return n.normalizeBillMovements(ctx, tenantID, rows, idx)
	case "bill_authors":
		return n.normalizeBillAuthors(ctx, tenantID, rows, idx)
	case "sessions":
		return n.normalizeSessions(ctx, tenantID, sourceRefID, rows, idx)
	case "vote_events":
		return n.normalizeVoteEvents(ctx, tenantID, sourceRefID, rows, idx)
	case "vote_results":
		return n.normalizeVoteResults(ctx, tenantID, rows, idx)
	case "attendance":
		return n.normalizeAttendance(ctx, tenantID, rows, idx)
	default:
		return normalize.Result{}, tserrors.SourceSchema("unknown_data_type", fmt.Sprintf("unrecognised legislative data type %q", dataType), nil)
	}
}

func readCSV(raw []byte) (rows [][]string, header []string, err error) {
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, io.ErrUnexpectedEOF
	}
	return all[1:], all[0], nil
}

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.ToLower(h))] = i
	}
	return idx
}

func col(row []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseDate(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func parseIntCol(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func (n *Normalizer) normalizeLegislators(ctx context.Context, tenantID, sourceRefID string, rows [][]string, idx map[string]int) (normalize.Result, error) {
	var res normalize.Result
	for _, row := range rows {
		l := domain.Legislator{
			TenantID: tenantID, ExternalID: col(row, idx, "external_id"),
			FirstName: col(row, idx, "first_name"), LastName: col(row, idx, "last_name"),
			Block: col(row, idx, "block"), Province: col(row, idx, "province"), Chamber: col(row, idx, "chamber"),
			Active: strings.EqualFold(col(row, idx, "active"), "true"),
			TermStart: parseDate(col(row, idx, "term_start")), TermEnd: parseDate(col(row, idx, "term_end")),
			SourceRefID: sourceRefID,
		}
		if l.ExternalID == "" {
			res.RecordsErrored++
			continue
		}
		if _, _, err := n.s.Legislators.UpsertLegislator(ctx, l); err != nil {
			res.RecordsErrored++
			continue
		}
		res.RecordsProcessed++
	}
	return res, nil
}

func (n *Normalizer) normalizeBills(ctx context.Context, tenantID, sourceRefID string, rows [][]string, idx map[string]int) (normalize.Result, error) {
	var res normalize.Result
	for _, row := range rows {
		b := domain.Bill{
			TenantID: tenantID, ExternalID: col(row, idx, "external_id"), Title: col(row, idx, "title"),
			Status: domain.BillStatus(col(row, idx, "status")), Type: col(row, idx, "type"),
			PresentedDate: parseDate(col(row, idx, "presented_date")), Period: col(row, idx, "period"),
			SourceRefID: sourceRefID,
		}
		if b.ExternalID == "" {
			res.RecordsErrored++
			continue
		}
		bill, created, err := n.s.Bills.UpsertBill(ctx, b)
		if err != nil {
			res.RecordsErrored++
			continue
		}
		res.RecordsProcessed++
		if created {
			res.Transitions = append(res.Transitions, normalize.Transition{
				Kind: "BILL_CREATED", EntityRef: bill.ID,
				Title: bill.ExternalID,
				Body:  fmt.Sprintf("%s filed", bill.Title),
			})
		}
	}
	return res, nil
}

func (n *Normalizer) normalizeBillMovements(ctx context.Context, tenantID string, rows [][]string, idx map[string]int) (normalize.Result, error) {
	var res normalize.Result
	for _, row := range rows {
		billExternalID := col(row, idx, "bill_external_id")
		bill, found, err := n.s.Bills.GetBillByExternalID(ctx, tenantID, billExternalID)
		if err != nil || !found {
			res.RecordsErrored++
			continue
		}
		from := domain.BillStatus(col(row, idx, "from_status"))
		to := domain.BillStatus(col(row, idx, "to_status"))
		movement := domain.BillMovement{
			TenantID: tenantID, BillID: bill.ID, Description: col(row, idx, "description"),
			FromStatus: from, ToStatus: to, MovedAt: parseDate(col(row, idx, "moved_at")),
		}
		if _, err := n.s.Movements.AppendMovement(ctx, movement); err != nil {
			res.RecordsErrored++
			continue
		}
		res.RecordsProcessed++
		if bill.Status.Advances(to) {
			if err := n.s.Bills.AdvanceStatus(ctx, bill.ID, to); err == nil {
				if authors, aerr := n.s.Authors.ListAuthorsByBill(ctx, bill.ID); aerr == nil {
					for _, a := range authors {
						res.Affected = append(res.Affected, normalize.EntityRef{Kind: normalize.EntityLegislator, ID: a.LegislatorID, Period: bill.Period})
					}
				}
				res.Transitions = append(res.Transitions, normalize.Transition{
					Kind: "BILL_MOVEMENT", EntityRef: bill.ID,
					Title: bill.Title,
					Body:  fmt.Sprintf("%s; now %s", movement.Description, to),
				})
			}
		}
	}
	return res, nil
}

func (n *Normalizer) normalizeBillAuthors(ctx context.Context, tenantID string, rows [][]string, idx map[string]int) (normalize.Result, error) {
	var res normalize.Result
	for _, row := range rows {
		bill, found, err := n.s.Bills.GetBillByExternalID(ctx, tenantID, col(row, idx, "bill_external_id"))
		if err != nil || !found {
			res.RecordsErrored++
			continue
		}
		legislator, found, err := n.s.Legislators.GetLegislatorByExternalID(ctx, tenantID, col(row, idx, "legislator_external_id"))
		if err != nil || !found {
			res.RecordsErrored++
			continue
		}
		a := domain.BillAuthor{TenantID: tenantID, BillID: bill.ID, LegislatorID: legislator.ID, Role: domain.BillAuthorRole(col(row, idx, "role"))}
		if _, err := n.s.Authors.UpsertBillAuthor(ctx, a); err != nil {
			res.RecordsErrored++
			continue
		}
		res.RecordsProcessed++
		res.Affected = append(res.Affected, normalize.EntityRef{Kind: normalize.EntityLegislator, ID: legislator.ID, Period: bill.Period})
	}
	return res, nil
}

func (n *Normalizer) normalizeSessions(ctx context.Context, tenantID, sourceRefID string, rows [][]string, idx map[string]int) (normalize.Result, error) {
	var res normalize.Result
	for _, row := range rows {
		s := domain.Session{TenantID: tenantID, ExternalID: col(row, idx, "external_id"), Title: col(row, idx, "title"), HeldAt: parseDate(col(row, idx, "held_at"))}
		if s.ExternalID == "" {
			res.RecordsErrored++
			continue
		}
		if _, _, err := n.s.Sessions.UpsertSession(ctx, s); err != nil {
			res.RecordsErrored++
			continue
		}
		res.RecordsProcessed++
	}
	return res, nil
}

func (n *Normalizer) normalizeVoteEvents(ctx context.Context, tenantID, sourceRefID string, rows [][]string, idx map[string]int) (normalize.Result, error) {
	var res normalize.Result
	for _, row := range rows {
		v := domain.VoteEvent{
			TenantID: tenantID, ExternalID: col(row, idx, "external_id"), Title: col(row, idx, "title"),
			Affirmative: parseIntCol(col(row, idx, "affirmative")), Negative: parseIntCol(col(row, idx, "negative")),
			Abstention: parseIntCol(col(row, idx, "abstention")), Absent: parseIntCol(col(row, idx, "absent")),
			Result: col(row, idx, "result"), VotedAt: parseDate(col(row, idx, "voted_at")), SourceRefID: sourceRefID,
		}
		event, created, err := n.s.VoteEvents.UpsertVoteEvent(ctx, v)
		if err != nil {
			res.RecordsErrored++
			continue
		}
		res.RecordsProcessed++
		if created {
			res.Transitions = append(res.Transitions, normalize.Transition{
				Kind: "VOTE_RESULT", EntityRef: event.ID, Title: event.Title,
				Body: fmt.Sprintf("%d/%d/%d/%d", event.Affirmative, event.Negative, event.Abstention, event.Absent),
			})
		}
	}
	return res, nil
}

func (n *Normalizer) normalizeVoteResults(ctx context.Context, tenantID string, rows [][]string, idx map[string]int) (normalize.Result, error) {
	var res normalize.Result
	for _, row := range rows {
		event, found, err := n.s.VoteEvents.GetVoteEventByExternalID(ctx, tenantID, col(row, idx, "vote_event_external_id"))
		if err != nil || !found {
			res.RecordsErrored++
			continue
		}
		legislator, found, err := n.s.Legislators.GetLegislatorByExternalID(ctx, tenantID, col(row, idx, "legislator_external_id"))
		if err != nil || !found {
			res.RecordsErrored++
			continue
		}
		vr := domain.VoteResult{TenantID: tenantID, VoteEventID: event.ID, LegislatorID: legislator.ID, Vote: domain.VoteChoice(col(row, idx, "vote"))}
		if _, err := n.s.VoteResults.UpsertVoteResult(ctx, vr); err != nil {
			res.RecordsErrored++
			continue
		}
		res.RecordsProcessed++
		res.Affected = append(res.Affected, normalize.EntityRef{Kind: normalize.EntityLegislator, ID: legislator.ID})
	}
	return res, nil
}

func (n *Normalizer) normalizeAttendance(ctx context.Context, tenantID string, rows [][]string, idx map[string]int) (normalize.Result, error) {
	var res normalize.Result
	for _, row := range rows {
		legislator, found, err := n.s.Legislators.GetLegislatorByExternalID(ctx, tenantID, col(row, idx, "legislator_external_id"))
		if err != nil || !found {
			res.RecordsErrored++
			continue
		}
		sessionExternalID := col(row, idx, "session_external_id")
		session, found, err := n.s.Sessions.GetSessionByExternalID(ctx, tenantID, sessionExternalID)
		if err != nil || !found {
			res.RecordsErrored++
			continue
		}
		a := domain.Attendance{TenantID: tenantID, SessionID: session.ID, LegislatorID: legislator.ID, Status: domain.AttendanceStatus(col(row, idx, "status"))}
		if _, err := n.s.Attendances.UpsertAttendance(ctx, a); err != nil {
			res.RecordsErrored++
			continue
		}
		res.RecordsProcessed++
		res.Affected = append(res.Affected, normalize.EntityRef{Kind: normalize.EntityLegislator, ID: legislator.ID})
		present, total := 0, 0
		if history, herr := n.s.Attendances.ListAttendanceByLegislator(ctx, tenantID, legislator.ID, ""); herr == nil {
			total = len(history)
			for _, h := range history {
				if h.Status == domain.AttendancePresent {
					present++
				}
			}
		}
		res.Transitions = append(res.Transitions, normalize.Transition{
			Kind: "ATTENDANCE_RECORD", EntityRef: legislator.ID,
			Title: fmt.Sprintf("Attendance: %s", sessionExternalID),
			Body:  feed.AttendanceBody(present, total),
		})
	}
	return res, nil
}
