package service

import (
	"cmp"
	"context"
	"slices"
	"time"

	"rollcall/internal/attendance/models"
	id "rollcall/pkg/domain"
	dErrors "rollcall/pkg/domain-errors"
)

// FindAbsent lists the active members of a branch whose latest check-in, over
// all time, is older than thresholdDays or who never attended. Members who
// never attended come first, then oldest attendance first.
func (s *Service) FindAbsent(ctx context.Context, branchID id.BranchID, thresholdDays int) ([]models.AbsentMember, error) {
	if s.metrics != nil {
		defer s.metrics.ObserveAbsence(time.Now())
	}
	if thresholdDays < 1 {
		return nil, dErrors.New(dErrors.CodeValidation, "threshold_days must be at least 1")
	}
	if branchID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "branch_id is required")
	}
	if _, err := s.directory.FindBranch(ctx, branchID); err != nil {
		return nil, wrapStoreErr(err, "branch")
	}

	members, err := s.directory.ListActiveMembersByBranch(ctx, branchID)
	if err != nil {
		return nil, wrapStoreErr(err, "member")
	}
	if len(members) == 0 {
		return []models.AbsentMember{}, nil
	}
	ids := make([]id.MemberID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	lastSeen, err := s.records.LastCheckIns(ctx, ids)
	if err != nil {
		return nil, wrapStoreErr(err, "attendance record")
	}

	now := s.now(ctx)
	cutoff := now.AddDate(0, 0, -thresholdDays)
	absent := make([]models.AbsentMember, 0)
	for _, m := range members {
		if !m.IsActive() {
			continue
		}
		last, ok := lastSeen[m.ID]
		if !ok {
			absent = append(absent, models.AbsentMember{Member: m})
			continue
		}
		if !last.Before(cutoff) {
			continue
		}
		days := int(now.Sub(last).Hours() / 24)
		absent = append(absent, models.AbsentMember{Member: m, LastAttendance: &last, DaysAbsent: &days})
	}

	slices.SortFunc(absent, compareAbsent)
	return absent, nil
}

// compareAbsent orders never-attended first, then by last attendance, then by
// last name, first name and ID so output is stable.
func compareAbsent(a, b models.AbsentMember) int {
	switch {
	case a.LastAttendance == nil && b.LastAttendance != nil:
		return -1
	case a.LastAttendance != nil && b.LastAttendance == nil:
		return 1
	case a.LastAttendance != nil && b.LastAttendance != nil:
		if c := a.LastAttendance.Compare(*b.LastAttendance); c != 0 {
			return c
		}
	}
	if c := cmp.Compare(a.Member.LastName, b.Member.LastName); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Member.FirstName, b.Member.FirstName); c != 0 {
		return c
	}
	return cmp.Compare(a.Member.ID.String(), b.Member.ID.String())
}
