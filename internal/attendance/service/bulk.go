package service

import (
	"context"
	"strconv"
	"time"

	"rollcall/internal/attendance/events"
	"rollcall/internal/attendance/models"
	dErrors "rollcall/pkg/domain-errors"
)

// RecordBulk records either a batch of individual entries or one anonymous
// headcount summary.
//
// Entries are all resolved and validated before anything is written, then
// created in one transaction: one bad entry fails the whole batch.
//
// For a headcount the returned Count is the headcount itself while exactly
// one summary row is stored.
func (s *Service) RecordBulk(ctx context.Context, req *models.BulkAttendanceRequest) (*models.BulkResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	session, err := s.loadSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session.OrganisationID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "session is missing its organisation")
	}

	if req.Headcount != nil {
		return s.recordHeadcount(ctx, session, req)
	}
	return s.recordEntries(ctx, session, req)
}

func (s *Service) recordHeadcount(ctx context.Context, session *models.AttendanceSession, req *models.BulkAttendanceRequest) (*models.BulkResult, error) {
	now := s.now(ctx)
	params := s.recordParams(ctx, session, models.MethodManual, req.CheckInTime, req.Notes, nil, now)
	record, err := models.NewHeadcountRecord(params, *req.Headcount)
	if err != nil {
		return nil, invariantToValidation(err)
	}
	err = s.tx.RunInTx(WithLockKey(ctx, session.ID.String()), func(txCtx context.Context) error {
		return s.records.Create(txCtx, record)
	})
	if err != nil {
		return nil, wrapStoreErr(err, "attendance record")
	}
	record.Session = session

	s.countRecords(record.Method, 1)
	s.countBulk("headcount")
	s.logger.InfoContext(ctx, "headcount recorded",
		"session_id", session.ID.String(),
		"headcount", *req.Headcount,
	)
	s.publish(ctx, events.Event{
		Type:       events.TypeHeadcountRecorded,
		SessionID:  session.ID,
		RecordID:   &record.ID,
		Count:      *req.Headcount,
		OccurredAt: now,
	})
	return &models.BulkResult{Count: *req.Headcount, Records: []*models.AttendanceRecord{record}}, nil
}

func (s *Service) recordEntries(ctx context.Context, session *models.AttendanceSession, req *models.BulkAttendanceRequest) (*models.BulkResult, error) {
	now := s.now(ctx)
	records := make([]*models.AttendanceRecord, 0, len(req.Entries))
	for i, entry := range req.Entries {
		record, err := s.buildEntry(ctx, session, req, entry, now)
		if err != nil {
			code := dErrors.CodeOf(err)
			if code == dErrors.CodeInternal {
				return nil, err
			}
			return nil, dErrors.Wrap(err, code, "entry "+strconv.Itoa(i))
		}
		records = append(records, record)
	}

	err := s.tx.RunInTx(WithLockKey(ctx, session.ID.String()), func(txCtx context.Context) error {
		return s.records.CreateMany(txCtx, records)
	})
	if err != nil {
		return nil, wrapStoreErr(err, "attendance record")
	}

	byMethod := make(map[models.CheckInMethod]int)
	for _, r := range records {
		byMethod[r.Method]++
	}
	for method, n := range byMethod {
		s.countRecords(method, n)
	}
	s.countBulk("entries")
	s.logger.InfoContext(ctx, "bulk attendance recorded",
		"session_id", session.ID.String(),
		"count", len(records),
	)
	s.publish(ctx, events.Event{
		Type:       events.TypeBulkRecorded,
		SessionID:  session.ID,
		Count:      len(records),
		OccurredAt: now,
	})
	return &models.BulkResult{Count: len(records), Records: records}, nil
}

func (s *Service) buildEntry(ctx context.Context, session *models.AttendanceSession, req *models.BulkAttendanceRequest, entry models.BulkEntry, now time.Time) (*models.AttendanceRecord, error) {
	identity, err := s.resolveDirect(ctx, entry.MemberID, entry.Visitor)
	if err != nil {
		return nil, err
	}
	if err := s.checkBranch(ctx, session.OrganisationID, entry.BranchID); err != nil {
		return nil, err
	}
	checkIn := entry.CheckInTime
	if checkIn == nil {
		checkIn = req.CheckInTime
	}
	notes := entry.Notes
	if notes == nil {
		notes = req.Notes
	}
	params := s.recordParams(ctx, session, entry.Method, checkIn, notes, entry.BranchID, now)
	record, err := newRecordFor(params, identity)
	if err != nil {
		return nil, invariantToValidation(err)
	}
	record.Session = session
	record.Member = identity.Member
	return record, nil
}

func (s *Service) countBulk(form string) {
	if s.metrics != nil {
		s.metrics.IncrementBulkRecorded(form)
	}
}
