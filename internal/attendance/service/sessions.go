package service

import (
	"context"

	"github.com/google/uuid"

	"rollcall/internal/attendance/events"
	"rollcall/internal/attendance/models"
	id "rollcall/pkg/domain"
	dErrors "rollcall/pkg/domain-errors"
)

// CreateSession schedules a PLANNED session after checking the organisation
// exists and any branch belongs to it.
func (s *Service) CreateSession(ctx context.Context, req *models.CreateSessionRequest) (*models.AttendanceSession, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	details, err := req.Details()
	if err != nil {
		return nil, err
	}

	if _, err := s.directory.FindOrganisation(ctx, req.OrganisationID); err != nil {
		return nil, wrapStoreErr(err, "organisation")
	}
	if err := s.checkBranch(ctx, req.OrganisationID, req.BranchID); err != nil {
		return nil, err
	}

	session, err := models.NewSession(id.SessionID(uuid.New()), req.OrganisationID, req.BranchID, details, s.now(ctx))
	if err != nil {
		return nil, invariantToValidation(err)
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, wrapStoreErr(err, "session")
	}

	s.logger.InfoContext(ctx, "session created",
		"session_id", session.ID.String(),
		"organisation_id", session.OrganisationID.String(),
	)
	return session, nil
}

func (s *Service) checkBranch(ctx context.Context, orgID id.OrganisationID, branchID *id.BranchID) error {
	if branchID == nil {
		return nil
	}
	branch, err := s.directory.FindBranch(ctx, *branchID)
	if err != nil {
		return wrapStoreErr(err, "branch")
	}
	if branch.OrganisationID != orgID {
		return dErrors.New(dErrors.CodeValidation, "branch does not belong to the session's organisation")
	}
	return nil
}

func (s *Service) GetSession(ctx context.Context, sessionID id.SessionID) (*models.AttendanceSession, error) {
	return s.loadSession(ctx, sessionID)
}

// ListSessions returns an organisation's sessions ordered by date then start time.
func (s *Service) ListSessions(ctx context.Context, filter models.SessionFilter) ([]*models.AttendanceSession, error) {
	if filter.OrganisationID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "organisation_id is required")
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown session status")
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, dErrors.New(dErrors.CodeValidation, "to must not precede from")
	}
	sessions, err := s.sessions.List(ctx, filter)
	if err != nil {
		return nil, wrapStoreErr(err, "session")
	}
	return sessions, nil
}

// UpdateSession changes descriptive metadata. Status moves only through
// TransitionSession.
func (s *Service) UpdateSession(ctx context.Context, sessionID id.SessionID, req *models.UpdateSessionRequest) (*models.AttendanceSession, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := s.now(ctx)
	var details models.SessionDetails
	session, err := s.sessions.Execute(ctx, sessionID,
		func(sess *models.AttendanceSession) error {
			d, err := req.Apply(sess.Details())
			if err != nil {
				return err
			}
			// Dry run on a copy so invariant failures leave the stored row alone.
			probe := *sess
			if err := probe.ApplyDetails(d, now); err != nil {
				return invariantToValidation(err)
			}
			details = d
			return nil
		},
		func(sess *models.AttendanceSession) {
			_ = sess.ApplyDetails(details, now)
		},
	)
	if err != nil {
		return nil, wrapStoreErr(err, "session")
	}
	return session, nil
}

// TransitionSession moves a session along PLANNED -> ACTIVE -> COMPLETED, or
// to CANCELLED from PLANNED or ACTIVE.
//
// Uses the Execute callback pattern so the status check and the write happen
// under the same lock (mutex or FOR UPDATE).
func (s *Service) TransitionSession(ctx context.Context, sessionID id.SessionID, next models.SessionStatus) (*models.AttendanceSession, error) {
	if !next.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown session status")
	}
	now := s.now(ctx)
	var previous models.SessionStatus
	session, err := s.sessions.Execute(ctx, sessionID,
		func(sess *models.AttendanceSession) error {
			if err := sess.CanTransitionTo(next); err != nil {
				if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
					return dErrors.New(dErrors.CodeConflict, err.Error())
				}
				return err
			}
			previous = sess.Status
			return nil
		},
		func(sess *models.AttendanceSession) {
			sess.ApplyTransition(next, now)
		},
	)
	if err != nil {
		return nil, wrapStoreErr(err, "session")
	}

	s.logger.InfoContext(ctx, "session status changed",
		"session_id", session.ID.String(),
		"from", string(previous),
		"to", string(next),
	)
	s.publish(ctx, events.Event{
		Type:       events.TypeSessionStatus,
		SessionID:  session.ID,
		Status:     string(next),
		OccurredAt: now,
	})
	return session, nil
}

// DeleteSession removes a session permanently. It is rejected while attendance
// records or live tokens reference the session.
func (s *Service) DeleteSession(ctx context.Context, sessionID id.SessionID) error {
	if _, err := s.loadSession(ctx, sessionID); err != nil {
		return err
	}
	now := s.now(ctx)
	err := s.tx.RunInTx(WithLockKey(ctx, sessionID.String()), func(txCtx context.Context) error {
		records, err := s.records.CountBySession(txCtx, sessionID)
		if err != nil {
			return wrapStoreErr(err, "attendance record")
		}
		if records > 0 {
			return dErrors.New(dErrors.CodeConflict, "session has attendance records")
		}
		tokens, err := s.tokens.CountBySession(txCtx, sessionID, now)
		if err != nil {
			return wrapStoreErr(err, "qr token")
		}
		if tokens > 0 {
			return dErrors.New(dErrors.CodeConflict, "session has outstanding qr tokens")
		}
		if err := s.sessions.Delete(txCtx, sessionID); err != nil {
			return wrapStoreErr(err, "session")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "session deleted", "session_id", sessionID.String())
	return nil
}
