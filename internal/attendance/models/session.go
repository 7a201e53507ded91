package models

import (
	"strings"
	"time"

	id "rollcall/pkg/domain"
	dErrors "rollcall/pkg/domain-errors"
)

// SessionType classifies a gathering.
type SessionType string

const (
	SessionTypeRegularService SessionType = "REGULAR_SERVICE"
	SessionTypeSpecialEvent   SessionType = "SPECIAL_EVENT"
	SessionTypeBibleStudy     SessionType = "BIBLE_STUDY"
	SessionTypePrayerMeeting  SessionType = "PRAYER_MEETING"
	SessionTypeOther          SessionType = "OTHER"
)

func (t SessionType) IsValid() bool {
	switch t {
	case SessionTypeRegularService, SessionTypeSpecialEvent, SessionTypeBibleStudy,
		SessionTypePrayerMeeting, SessionTypeOther:
		return true
	}
	return false
}

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionStatusPlanned   SessionStatus = "PLANNED"
	SessionStatusActive    SessionStatus = "ACTIVE"
	SessionStatusCompleted SessionStatus = "COMPLETED"
	SessionStatusCancelled SessionStatus = "CANCELLED"
)

func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionStatusPlanned, SessionStatusActive, SessionStatusCompleted, SessionStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo encodes PLANNED -> ACTIVE -> COMPLETED, with CANCELLED
// reachable from PLANNED or ACTIVE. COMPLETED and CANCELLED are terminal.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	switch s {
	case SessionStatusPlanned:
		return next == SessionStatusActive || next == SessionStatusCancelled
	case SessionStatusActive:
		return next == SessionStatusCompleted || next == SessionStatusCancelled
	default:
		return false
	}
}

const maxSessionNameLength = 200

// AttendanceSession is a scheduled gathering attendance is recorded against.
//
// Invariants:
//   - OrganisationID is always set
//   - a BranchID, when present, belongs to OrganisationID (checked by the service
//     against the directory, since the model cannot see branches)
//   - Date is a calendar day at UTC midnight
//   - EndTime, when present, is not before StartTime
//   - Status only moves along CanTransitionTo
type AttendanceSession struct {
	ID             id.SessionID      `json:"id"`
	OrganisationID id.OrganisationID `json:"organisation_id"`
	BranchID       *id.BranchID      `json:"branch_id,omitempty"`
	Name           string            `json:"name"`
	Description    *string           `json:"description,omitempty"`
	Date           time.Time         `json:"date"`
	StartTime      time.Time         `json:"start_time"`
	EndTime        *time.Time        `json:"end_time,omitempty"`
	Type           SessionType       `json:"type"`
	Status         SessionStatus     `json:"status"`
	Location       *string           `json:"location,omitempty"`
	Latitude       *float64          `json:"latitude,omitempty"`
	Longitude      *float64          `json:"longitude,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// SessionDetails groups the mutable descriptive fields of a session.
type SessionDetails struct {
	Name        string
	Description *string
	Date        time.Time
	StartTime   time.Time
	EndTime     *time.Time
	Type        SessionType
	Location    *string
	Latitude    *float64
	Longitude   *float64
}

// NewSession builds a PLANNED session after checking its invariants.
func NewSession(sessionID id.SessionID, orgID id.OrganisationID, branchID *id.BranchID, d SessionDetails, now time.Time) (*AttendanceSession, error) {
	if orgID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "session requires an organisation")
	}
	s := &AttendanceSession{
		ID:             sessionID,
		OrganisationID: orgID,
		BranchID:       branchID,
		Status:         SessionStatusPlanned,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.applyDetails(d); err != nil {
		return nil, err
	}
	return s, nil
}

// ApplyDetails replaces the descriptive fields, re-checking invariants.
// The session is left untouched when validation fails.
func (s *AttendanceSession) ApplyDetails(d SessionDetails, now time.Time) error {
	candidate := *s
	if err := candidate.applyDetails(d); err != nil {
		return err
	}
	candidate.UpdatedAt = now
	*s = candidate
	return nil
}

func (s *AttendanceSession) applyDetails(d SessionDetails) error {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "session name cannot be empty")
	}
	if len(name) > maxSessionNameLength {
		return dErrors.New(dErrors.CodeInvariantViolation, "session name must be 200 characters or less")
	}
	if d.Date.IsZero() {
		return dErrors.New(dErrors.CodeInvariantViolation, "session date is required")
	}
	if d.StartTime.IsZero() {
		return dErrors.New(dErrors.CodeInvariantViolation, "session start time is required")
	}
	if d.EndTime != nil && d.EndTime.Before(d.StartTime) {
		return dErrors.New(dErrors.CodeInvariantViolation, "session end time must not precede start time")
	}
	if !d.Type.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "unknown session type")
	}
	if d.Latitude != nil && (*d.Latitude < -90 || *d.Latitude > 90) {
		return dErrors.New(dErrors.CodeInvariantViolation, "latitude must be between -90 and 90")
	}
	if d.Longitude != nil && (*d.Longitude < -180 || *d.Longitude > 180) {
		return dErrors.New(dErrors.CodeInvariantViolation, "longitude must be between -180 and 180")
	}

	s.Name = name
	s.Description = d.Description
	s.Date = DateOnly(d.Date)
	s.StartTime = d.StartTime
	s.EndTime = d.EndTime
	s.Type = d.Type
	s.Location = d.Location
	s.Latitude = d.Latitude
	s.Longitude = d.Longitude
	return nil
}

// Details returns the descriptive fields for partial updates.
func (s *AttendanceSession) Details() SessionDetails {
	return SessionDetails{
		Name:        s.Name,
		Description: s.Description,
		Date:        s.Date,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		Type:        s.Type,
		Location:    s.Location,
		Latitude:    s.Latitude,
		Longitude:   s.Longitude,
	}
}

// CanTransitionTo checks a status change without applying it.
// Use with ApplyTransition in Execute callbacks.
func (s *AttendanceSession) CanTransitionTo(next SessionStatus) error {
	if !next.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "unknown session status")
	}
	if !s.Status.CanTransitionTo(next) {
		return dErrors.New(dErrors.CodeInvariantViolation,
			"session cannot move from "+string(s.Status)+" to "+string(next))
	}
	return nil
}

// ApplyTransition sets the new status. Call CanTransitionTo first.
func (s *AttendanceSession) ApplyTransition(next SessionStatus, now time.Time) {
	s.Status = next
	s.UpdatedAt = now
}

// DateOnly keeps the calendar day of t (in its own location) at UTC midnight.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
