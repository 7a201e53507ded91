// Package facts reads attendance joined with session and member attributes
// for the statistics aggregator.
package facts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rollcall/internal/attendance/models"
	id "rollcall/pkg/domain"
	"rollcall/pkg/platform/sentinel"
)

type recordSnapshot interface {
	All() []*models.AttendanceRecord
}

type sessionFinder interface {
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.AttendanceSession, error)
}

type directorySnapshot interface {
	Branches() map[id.BranchID]models.Branch
	Members() map[id.MemberID]models.Member
}

// InMemorySource joins the in-memory record, session and directory stores.
type InMemorySource struct {
	records   recordSnapshot
	sessions  sessionFinder
	directory directorySnapshot
}

func NewInMemory(records recordSnapshot, sessions sessionFinder, directory directorySnapshot) *InMemorySource {
	return &InMemorySource{records: records, sessions: sessions, directory: directory}
}

// inScope matches the gathering's organisation and branch.
func inScope(session *models.AttendanceSession, scope models.Scope) bool {
	if scope.OrganisationID != nil && session.OrganisationID != *scope.OrganisationID {
		return false
	}
	if scope.BranchID != nil && (session.BranchID == nil || *session.BranchID != *scope.BranchID) {
		return false
	}
	return true
}

func (s *InMemorySource) Facts(ctx context.Context, q models.FactQuery) ([]models.AttendanceFact, error) {
	from, to := models.DateOnly(q.From), models.DateOnly(q.To)
	branches := s.directory.Branches()
	members := s.directory.Members()
	sessions := make(map[id.SessionID]*models.AttendanceSession)

	out := make([]models.AttendanceFact, 0)
	for _, r := range s.records.All() {
		session, ok := sessions[r.SessionID]
		if !ok {
			var err error
			session, err = s.sessions.FindByID(ctx, r.SessionID)
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("loading session %s: %w", r.SessionID, err)
			}
			sessions[r.SessionID] = session
		}
		if !inScope(session, q.Scope) || session.Date.Before(from) || session.Date.After(to) {
			continue
		}
		f := models.AttendanceFact{
			RecordID:     r.ID,
			SessionID:    r.SessionID,
			SessionDate:  session.Date,
			SessionType:  session.Type,
			MemberID:     r.MemberID,
			VisitorName:  r.VisitorName,
			VisitorEmail: r.VisitorEmail,
			VisitorPhone: r.VisitorPhone,
			CheckInTime:  r.CheckInTime,
		}
		if r.BranchID != nil {
			f.BranchName = branches[*r.BranchID].Name
		}
		if r.MemberID != nil {
			if m, ok := members[*r.MemberID]; ok {
				f.MemberGender = m.Gender
				f.MemberBirth = m.DateOfBirth
			}
		}
		out = append(out, f)
	}
	return out, nil
}

func (s *InMemorySource) VisitorsBefore(ctx context.Context, scope models.Scope, before time.Time) ([]models.Visitor, error) {
	before = models.DateOnly(before)
	out := make([]models.Visitor, 0)
	for _, r := range s.records.All() {
		if r.VisitorName == nil {
			continue
		}
		session, err := s.sessions.FindByID(ctx, r.SessionID)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("loading session %s: %w", r.SessionID, err)
		}
		if !inScope(session, scope) || !session.Date.Before(before) {
			continue
		}
		out = append(out, models.Visitor{Name: *r.VisitorName, Email: r.VisitorEmail, Phone: r.VisitorPhone})
	}
	return out, nil
}
