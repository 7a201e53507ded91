package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/attendance/events"
	"rollcall/internal/attendance/models"
	id "rollcall/pkg/domain"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/requestcontext"
)

// RecordAttendance records one manual, mobile or QR check-in.
//
// This path never looks for an existing open record: repeated manual entries
// for the same person create separate records. Only card scans toggle.
func (s *Service) RecordAttendance(ctx context.Context, req *models.RecordAttendanceRequest) (*models.AttendanceRecord, error) {
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

	identity, err := s.ResolveIdentity(ctx, req.Method, IdentityInput{
		SessionID: session.ID,
		MemberID:  req.MemberID,
		Visitor:   req.Visitor,
		QRToken:   req.QRToken,
	})
	if err != nil {
		return nil, err
	}
	if err := s.checkBranch(ctx, session.OrganisationID, req.BranchID); err != nil {
		return nil, err
	}

	now := s.now(ctx)
	params := s.recordParams(ctx, session, req.Method, req.CheckInTime, req.Notes, req.BranchID, now)
	record, err := newRecordFor(params, identity)
	if err != nil {
		return nil, invariantToValidation(err)
	}
	if err := s.records.Create(ctx, record); err != nil {
		return nil, wrapStoreErr(err, "attendance record")
	}
	record.Session = session
	record.Member = identity.Member

	s.countRecords(record.Method, 1)
	s.logger.InfoContext(ctx, "attendance recorded",
		"session_id", session.ID.String(),
		"record_id", record.ID.String(),
		"method", string(record.Method),
		"identity", string(identity.Kind),
	)
	s.publish(ctx, events.Event{
		Type:       events.TypeCheckedIn,
		SessionID:  session.ID,
		RecordID:   &record.ID,
		MemberID:   record.MemberID,
		Method:     string(record.Method),
		OccurredAt: now,
	})
	return record, nil
}

// ProcessCardScan toggles a member's presence from an RFID or NFC tap:
//
//	no record      -> create, CHECKED_IN
//	open record    -> set checkout on it, CHECKED_OUT
//	closed record  -> Conflict, nothing written
//
// The read and write happen inside one serialized unit per (session, member).
func (s *Service) ProcessCardScan(ctx context.Context, req *models.CardScanRequest) (*models.CardScanResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	session, err := s.loadSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	member, err := s.resolveCard(ctx, session.OrganisationID, req.CardID)
	if err != nil {
		return nil, err
	}

	now := s.now(ctx)
	scanTime := now
	if req.ScanTime != nil {
		scanTime = *req.ScanTime
	}

	var transition models.ScanTransition
	var record *models.AttendanceRecord
	// set when the pair already has a closed record
	var completed bool
	lockKey := session.ID.String() + ":" + member.ID.String()
	err = s.tx.RunInTx(WithLockKey(ctx, lockKey), func(txCtx context.Context) error {
		r, err := s.records.ExecuteScan(txCtx, session.ID, member.ID,
			func(latest *models.AttendanceRecord) (models.ScanDecision, error) {
				next, err := models.NextScanTransition(latest)
				if err != nil {
					completed = true
					return models.ScanDecision{}, err
				}
				transition = next
				if next == models.ScanCheckedOut {
					if scanTime.Before(latest.CheckInTime) {
						return models.ScanDecision{}, dErrors.New(dErrors.CodeValidation, "scan time precedes check-in time")
					}
					return models.ScanDecision{Transition: next, CheckOut: scanTime}, nil
				}
				params := s.recordParams(txCtx, session, req.Method, &scanTime, nil, nil, now)
				created, err := models.NewMemberRecord(params, member.ID)
				if err != nil {
					return models.ScanDecision{}, invariantToValidation(err)
				}
				return models.ScanDecision{Transition: next, Create: created}, nil
			},
		)
		if err != nil {
			return err
		}
		record = r
		return nil
	})
	if err != nil {
		if completed && dErrors.HasCode(err, dErrors.CodeConflict) {
			s.countScan("conflict")
			return nil, err
		}
		err = wrapStoreErr(err, "attendance record")
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			s.countScan("conflict")
			s.logger.WarnContext(ctx, "card scan lost a race",
				"session_id", session.ID.String(),
				"member_id", member.ID.String(),
				"error", err,
			)
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "another scan for this member was processed concurrently, retry")
		}
		return nil, err
	}
	record.Session = session
	record.Member = member

	s.countScan(string(transition))
	eventType := events.TypeCheckedIn
	if transition == models.ScanCheckedIn {
		s.countRecords(record.Method, 1)
	} else {
		eventType = events.TypeCheckedOut
	}
	s.logger.InfoContext(ctx, "card scan processed",
		"session_id", session.ID.String(),
		"member_id", member.ID.String(),
		"transition", string(transition),
	)
	s.publish(ctx, events.Event{
		Type:       eventType,
		SessionID:  session.ID,
		RecordID:   &record.ID,
		MemberID:   &member.ID,
		Method:     string(record.Method),
		OccurredAt: now,
	})
	return &models.CardScanResult{Transition: transition, Record: record}, nil
}

// ListSessionRecords returns every record of a session in check-in order.
func (s *Service) ListSessionRecords(ctx context.Context, sessionID id.SessionID) ([]*models.AttendanceRecord, error) {
	if _, err := s.loadSession(ctx, sessionID); err != nil {
		return nil, err
	}
	records, err := s.records.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, wrapStoreErr(err, "attendance record")
	}
	return records, nil
}

func (s *Service) recordParams(ctx context.Context, session *models.AttendanceSession, method models.CheckInMethod,
	checkIn *time.Time, notes *string, branchID *id.BranchID, now time.Time,
) models.RecordParams {
	p := models.RecordParams{
		ID:          id.RecordID(uuid.New()),
		Session:     session,
		BranchID:    branchID,
		Method:      method,
		CheckInTime: now,
		Notes:       notes,
		CreatedAt:   now,
	}
	if checkIn != nil {
		p.CheckInTime = *checkIn
	}
	if staffID := requestcontext.StaffID(ctx); !staffID.IsNil() {
		p.RecordedBy = &staffID
	}
	return p
}

func newRecordFor(p models.RecordParams, identity models.ResolvedIdentity) (*models.AttendanceRecord, error) {
	if identity.Kind == models.IdentityMember {
		return models.NewMemberRecord(p, identity.Member.ID)
	}
	return models.NewVisitorRecord(p, *identity.Visitor)
}

func (s *Service) countRecords(method models.CheckInMethod, n int) {
	if s.metrics != nil {
		s.metrics.IncrementRecordsCreated(string(method), n)
	}
}

func (s *Service) countScan(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementCardScan(outcome)
	}
}
