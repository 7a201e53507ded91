package models

import (
	"strconv"
	"strings"
	"time"

	id "rollcall/pkg/domain"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/platform/validation"
)

const DateLayout = "2006-01-02"

// CreateSessionRequest is the input for scheduling a session.
type CreateSessionRequest struct {
	OrganisationID id.OrganisationID `json:"organisation_id" validate:"required"`
	BranchID       *id.BranchID      `json:"branch_id,omitempty"`
	Name           string            `json:"name" validate:"required,max=200"`
	Description    *string           `json:"description,omitempty" validate:"omitempty,max=2000"`
	Date           string            `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime      time.Time         `json:"start_time" validate:"required"`
	EndTime        *time.Time        `json:"end_time,omitempty"`
	Type           SessionType       `json:"type" validate:"required,oneof=REGULAR_SERVICE SPECIAL_EVENT BIBLE_STUDY PRAYER_MEETING OTHER"`
	Location       *string           `json:"location,omitempty" validate:"omitempty,max=500"`
	Latitude       *float64          `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude      *float64          `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
}

func (r *CreateSessionRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Date = strings.TrimSpace(r.Date)
	r.Type = SessionType(strings.ToUpper(strings.TrimSpace(string(r.Type))))
	if r.BranchID != nil && r.BranchID.IsNil() {
		r.BranchID = nil
	}
}

func (r *CreateSessionRequest) Validate() error {
	return validation.Struct(r)
}

// Details converts the request into model details. Call Validate first.
func (r *CreateSessionRequest) Details() (SessionDetails, error) {
	date, err := time.Parse(DateLayout, r.Date)
	if err != nil {
		return SessionDetails{}, dErrors.New(dErrors.CodeValidation, "date must match layout 2006-01-02")
	}
	return SessionDetails{
		Name:        r.Name,
		Description: r.Description,
		Date:        date,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		Type:        r.Type,
		Location:    r.Location,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
	}, nil
}

// UpdateSessionRequest changes session metadata. Nil fields are left alone.
type UpdateSessionRequest struct {
	Name        *string      `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string      `json:"description,omitempty" validate:"omitempty,max=2000"`
	Date        *string      `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	StartTime   *time.Time   `json:"start_time,omitempty"`
	EndTime     *time.Time   `json:"end_time,omitempty"`
	Type        *SessionType `json:"type,omitempty" validate:"omitempty,oneof=REGULAR_SERVICE SPECIAL_EVENT BIBLE_STUDY PRAYER_MEETING OTHER"`
	Location    *string      `json:"location,omitempty" validate:"omitempty,max=500"`
	Latitude    *float64     `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude   *float64     `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
}

func (r *UpdateSessionRequest) Validate() error {
	return validation.Struct(r)
}

// Apply overlays the request onto d.
func (r *UpdateSessionRequest) Apply(d SessionDetails) (SessionDetails, error) {
	if r.Name != nil {
		d.Name = *r.Name
	}
	if r.Description != nil {
		d.Description = r.Description
	}
	if r.Date != nil {
		date, err := time.Parse(DateLayout, *r.Date)
		if err != nil {
			return d, dErrors.New(dErrors.CodeValidation, "date must match layout 2006-01-02")
		}
		d.Date = date
	}
	if r.StartTime != nil {
		d.StartTime = *r.StartTime
	}
	if r.EndTime != nil {
		d.EndTime = r.EndTime
	}
	if r.Type != nil {
		d.Type = *r.Type
	}
	if r.Location != nil {
		d.Location = r.Location
	}
	if r.Latitude != nil {
		d.Latitude = r.Latitude
	}
	if r.Longitude != nil {
		d.Longitude = r.Longitude
	}
	return d, nil
}

// SessionFilter narrows ListSessions.
type SessionFilter struct {
	OrganisationID id.OrganisationID
	BranchID       *id.BranchID
	From           *time.Time
	To             *time.Time
	Status         *SessionStatus
}

// RecordAttendanceRequest records one manual, mobile or QR check-in.
// Exactly one of MemberID or Visitor must be given.
type RecordAttendanceRequest struct {
	SessionID   id.SessionID  `json:"session_id" validate:"required"`
	MemberID    *id.MemberID  `json:"member_id,omitempty"`
	Visitor     *Visitor      `json:"visitor,omitempty"`
	Method      CheckInMethod `json:"check_in_method" validate:"omitempty,oneof=MANUAL MOBILE QR_CODE"`
	QRToken     string        `json:"qr_token,omitempty" validate:"omitempty,hexadecimal,max=128"`
	CheckInTime *time.Time    `json:"check_in_time,omitempty"`
	Notes       *string       `json:"notes,omitempty" validate:"omitempty,max=1000"`
	BranchID    *id.BranchID  `json:"branch_id,omitempty"`
}

func (r *RecordAttendanceRequest) Normalize() {
	r.Method = CheckInMethod(strings.ToUpper(strings.TrimSpace(string(r.Method))))
	if r.Method == "" {
		if r.QRToken != "" {
			r.Method = MethodQRCode
		} else {
			r.Method = MethodManual
		}
	}
	r.QRToken = strings.TrimSpace(r.QRToken)
	if r.MemberID != nil && r.MemberID.IsNil() {
		r.MemberID = nil
	}
	if r.Visitor != nil && strings.TrimSpace(r.Visitor.Name) == "" && r.Visitor.Email == nil && r.Visitor.Phone == nil {
		r.Visitor = nil
	}
}

func (r *RecordAttendanceRequest) Validate() error {
	if r.Method.IsCard() {
		return dErrors.New(dErrors.CodeValidation, "card check-ins must use the card scan operation")
	}
	if err := validation.Struct(r); err != nil {
		return err
	}
	if r.Method == MethodQRCode && r.QRToken == "" {
		return dErrors.New(dErrors.CodeValidation, "qr_token is required for QR_CODE check-ins")
	}
	return validateIdentity(r.MemberID, r.Visitor)
}

// CardScanRequest is a single proximity-card tap.
type CardScanRequest struct {
	SessionID id.SessionID  `json:"session_id" validate:"required"`
	CardID    string        `json:"card_id" validate:"required,max=128"`
	Method    CheckInMethod `json:"method" validate:"omitempty,oneof=RFID NFC"`
	ScanTime  *time.Time    `json:"scan_time,omitempty"`
}

func (r *CardScanRequest) Normalize() {
	r.CardID = strings.TrimSpace(r.CardID)
	r.Method = CheckInMethod(strings.ToUpper(strings.TrimSpace(string(r.Method))))
	if r.Method == "" {
		r.Method = MethodRFID
	}
}

func (r *CardScanRequest) Validate() error {
	return validation.Struct(r)
}

// BulkEntry is one individual entry of a bulk recording.
type BulkEntry struct {
	MemberID    *id.MemberID  `json:"member_id,omitempty"`
	Visitor     *Visitor      `json:"visitor,omitempty"`
	Method      CheckInMethod `json:"check_in_method,omitempty" validate:"omitempty,oneof=MANUAL MOBILE"`
	CheckInTime *time.Time    `json:"check_in_time,omitempty"`
	Notes       *string       `json:"notes,omitempty" validate:"omitempty,max=1000"`
	BranchID    *id.BranchID  `json:"branch_id,omitempty"`
}

// BulkAttendanceRequest carries either individual entries or a headcount,
// never both.
type BulkAttendanceRequest struct {
	SessionID   id.SessionID `json:"session_id" validate:"required"`
	Entries     []BulkEntry  `json:"entries,omitempty" validate:"omitempty,max=1000,dive"`
	Headcount   *int         `json:"headcount,omitempty" validate:"omitempty,min=1"`
	CheckInTime *time.Time   `json:"check_in_time,omitempty"`
	Notes       *string      `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

func (r *BulkAttendanceRequest) Normalize() {
	for i := range r.Entries {
		e := &r.Entries[i]
		e.Method = CheckInMethod(strings.ToUpper(strings.TrimSpace(string(e.Method))))
		if e.Method == "" {
			e.Method = MethodManual
		}
		if e.MemberID != nil && e.MemberID.IsNil() {
			e.MemberID = nil
		}
	}
}

func (r *BulkAttendanceRequest) Validate() error {
	hasEntries := len(r.Entries) > 0
	hasHeadcount := r.Headcount != nil
	if hasEntries == hasHeadcount {
		return dErrors.New(dErrors.CodeValidation, "provide either entries or headcount, not both or neither")
	}
	if err := validation.Struct(r); err != nil {
		return err
	}
	for i := range r.Entries {
		if err := validateIdentity(r.Entries[i].MemberID, r.Entries[i].Visitor); err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "entry "+strconv.Itoa(i))
		}
	}
	return nil
}

func validateIdentity(memberID *id.MemberID, visitor *Visitor) error {
	hasVisitor := visitor != nil && strings.TrimSpace(visitor.Name) != ""
	switch {
	case memberID != nil && visitor != nil:
		return dErrors.New(dErrors.CodeValidation, "provide either member_id or visitor, not both")
	case memberID == nil && !hasVisitor:
		return dErrors.New(dErrors.CodeValidation, "member_id or visitor name is required")
	}
	if visitor != nil {
		if err := validation.Struct(visitorInput{Name: visitor.Name, Email: visitor.Email, Phone: visitor.Phone}); err != nil {
			return err
		}
	}
	return nil
}

type visitorInput struct {
	Name  string  `json:"name" validate:"required,max=200"`
	Email *string `json:"email" validate:"omitempty,email,max=320"`
	Phone *string `json:"phone" validate:"omitempty,max=40"`
}
