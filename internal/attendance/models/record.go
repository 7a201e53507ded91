package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	id "rollcall/pkg/domain"
	dErrors "rollcall/pkg/domain-errors"
)

// CheckInMethod is the channel through which a record was captured.
type CheckInMethod string

const (
	MethodManual CheckInMethod = "MANUAL"
	MethodMobile CheckInMethod = "MOBILE"
	MethodRFID   CheckInMethod = "RFID"
	MethodNFC    CheckInMethod = "NFC"
	MethodQRCode CheckInMethod = "QR_CODE"
)

func (m CheckInMethod) IsValid() bool {
	switch m {
	case MethodManual, MethodMobile, MethodRFID, MethodNFC, MethodQRCode:
		return true
	}
	return false
}

// IsCard reports whether m is a proximity-card channel.
func (m CheckInMethod) IsCard() bool {
	return m == MethodRFID || m == MethodNFC
}

// AttendanceRecord is one presence entry at a session.
//
// Invariants:
//   - exactly one of MemberID or VisitorName is set, except headcount
//     summaries which carry neither and encode the count in Notes
//   - CheckOutTime, once set, is never changed again
//   - nothing else changes after creation
//
// Session and Member are resolved associations filled in by the service for
// callers; stores never persist them.
type AttendanceRecord struct {
	ID             id.RecordID       `json:"id"`
	SessionID      id.SessionID      `json:"session_id"`
	OrganisationID id.OrganisationID `json:"organisation_id"`
	BranchID       *id.BranchID      `json:"branch_id,omitempty"`
	MemberID       *id.MemberID      `json:"member_id,omitempty"`
	VisitorName    *string           `json:"visitor_name,omitempty"`
	VisitorEmail   *string           `json:"visitor_email,omitempty"`
	VisitorPhone   *string           `json:"visitor_phone,omitempty"`
	CheckInTime    time.Time         `json:"check_in_time"`
	CheckOutTime   *time.Time        `json:"check_out_time,omitempty"`
	Method         CheckInMethod     `json:"check_in_method"`
	Notes          *string           `json:"notes,omitempty"`
	RecordedBy     *id.StaffID       `json:"recorded_by,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`

	Session *AttendanceSession `json:"session,omitempty"`
	Member  *Member            `json:"member,omitempty"`
}

// IsOpen reports whether the record has no checkout yet.
func (r *AttendanceRecord) IsOpen() bool {
	return r.CheckOutTime == nil
}

// IsHeadcount reports whether the record is an anonymous headcount summary.
func (r *AttendanceRecord) IsHeadcount() bool {
	return r.MemberID == nil && r.VisitorName == nil
}

// Attendees is the number of people the record stands for: the encoded
// count for a headcount summary, one otherwise.
func (r *AttendanceRecord) Attendees() int {
	if !r.IsHeadcount() || r.Notes == nil {
		return 1
	}
	if n, ok := parseHeadcount(*r.Notes); ok {
		return n
	}
	return 1
}

// Visitor carries the identifying fields of an unregistered attendee.
type Visitor struct {
	Name  string  `json:"name"`
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

// RecordParams are the inputs shared by all record constructors.
type RecordParams struct {
	ID          id.RecordID
	Session     *AttendanceSession
	BranchID    *id.BranchID
	Method      CheckInMethod
	CheckInTime time.Time
	Notes       *string
	RecordedBy  *id.StaffID
	CreatedAt   time.Time
}

func (p RecordParams) base() (*AttendanceRecord, error) {
	if p.Session == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "record requires a session")
	}
	if !p.Method.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown check-in method")
	}
	if p.CheckInTime.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "check-in time is required")
	}
	branchID := p.BranchID
	if branchID == nil {
		branchID = p.Session.BranchID
	}
	return &AttendanceRecord{
		ID:             p.ID,
		SessionID:      p.Session.ID,
		OrganisationID: p.Session.OrganisationID,
		BranchID:       branchID,
		CheckInTime:    p.CheckInTime,
		Method:         p.Method,
		Notes:          trimmedOrNil(p.Notes),
		RecordedBy:     p.RecordedBy,
		CreatedAt:      p.CreatedAt,
	}, nil
}

// NewMemberRecord builds a record for a registered member.
func NewMemberRecord(p RecordParams, memberID id.MemberID) (*AttendanceRecord, error) {
	if memberID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "member record requires a member id")
	}
	r, err := p.base()
	if err != nil {
		return nil, err
	}
	r.MemberID = &memberID
	return r, nil
}

// NewVisitorRecord builds a record for an anonymous visitor.
func NewVisitorRecord(p RecordParams, v Visitor) (*AttendanceRecord, error) {
	name := strings.TrimSpace(v.Name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "visitor record requires a name")
	}
	r, err := p.base()
	if err != nil {
		return nil, err
	}
	r.VisitorName = &name
	r.VisitorEmail = trimmedOrNil(v.Email)
	r.VisitorPhone = trimmedOrNil(v.Phone)
	return r, nil
}

// NewHeadcountRecord builds the single summary row for an aggregate headcount.
func NewHeadcountRecord(p RecordParams, count int) (*AttendanceRecord, error) {
	if count < 1 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "headcount must be at least 1")
	}
	note := HeadcountNote(count)
	if p.Notes != nil && strings.TrimSpace(*p.Notes) != "" {
		note = note + " - " + strings.TrimSpace(*p.Notes)
	}
	p.Notes = &note
	return p.base()
}

const headcountPrefix = "Headcount: "

// HeadcountNote encodes a headcount in the notes field.
func HeadcountNote(count int) string {
	return fmt.Sprintf("%s%d", headcountPrefix, count)
}

// parseHeadcount extracts the count from a headcount note.
func parseHeadcount(notes string) (int, bool) {
	rest, ok := strings.CutPrefix(notes, headcountPrefix)
	if !ok {
		return 0, false
	}
	digits, _, _ := strings.Cut(rest, " ")
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

// ScanTransition names the state change a card scan produced.
type ScanTransition string

const (
	ScanCheckedIn  ScanTransition = "CHECKED_IN"
	ScanCheckedOut ScanTransition = "CHECKED_OUT"
)

// NextScanTransition decides what a card scan does given the latest record
// for the (session, member) pair:
//
//	none              -> CHECKED_IN  (create)
//	open record       -> CHECKED_OUT (set checkout on that record)
//	closed record     -> conflict, terminal
func NextScanTransition(latest *AttendanceRecord) (ScanTransition, error) {
	if latest == nil {
		return ScanCheckedIn, nil
	}
	if latest.IsOpen() {
		return ScanCheckedOut, nil
	}
	return "", dErrors.New(dErrors.CodeConflict, "already checked in and out for this session")
}

// ScanDecision is what a card scan should do to the store. Exactly one of
// Create or CheckOut is meaningful, selected by Transition.
type ScanDecision struct {
	Transition ScanTransition
	Create     *AttendanceRecord
	CheckOut   time.Time
}
