// Package domain holds the typed identifiers shared across rollcall packages.
//
// Every aggregate gets its own ID type so that a MemberID can never be passed
// where a SessionID is expected. Parse functions are the trust boundary for
// identifiers arriving from transport layers.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "rollcall/pkg/domain-errors"
)

type (
	OrganisationID uuid.UUID
	BranchID       uuid.UUID
	MemberID       uuid.UUID
	SessionID      uuid.UUID
	RecordID       uuid.UUID
	StaffID        uuid.UUID
)

func (id OrganisationID) String() string { return uuid.UUID(id).String() }
func (id BranchID) String() string       { return uuid.UUID(id).String() }
func (id MemberID) String() string       { return uuid.UUID(id).String() }
func (id SessionID) String() string      { return uuid.UUID(id).String() }
func (id RecordID) String() string       { return uuid.UUID(id).String() }
func (id StaffID) String() string        { return uuid.UUID(id).String() }

func (id OrganisationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id BranchID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id MemberID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id RecordID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id StaffID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }

// MarshalText lets typed IDs appear as plain UUID strings in JSON.
func (id OrganisationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id BranchID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id MemberID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id SessionID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }
func (id RecordID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id StaffID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }

func (id *OrganisationID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *BranchID) UnmarshalText(b []byte) error       { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *MemberID) UnmarshalText(b []byte) error       { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *SessionID) UnmarshalText(b []byte) error      { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *RecordID) UnmarshalText(b []byte) error       { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *StaffID) UnmarshalText(b []byte) error        { return (*uuid.UUID)(id).UnmarshalText(b) }

func ParseOrganisationID(s string) (OrganisationID, error) {
	u, err := parseUUID(s, "organisation id")
	return OrganisationID(u), err
}

func ParseBranchID(s string) (BranchID, error) {
	u, err := parseUUID(s, "branch id")
	return BranchID(u), err
}

func ParseMemberID(s string) (MemberID, error) {
	u, err := parseUUID(s, "member id")
	return MemberID(u), err
}

func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s, "session id")
	return SessionID(u), err
}

func ParseRecordID(s string) (RecordID, error) {
	u, err := parseUUID(s, "record id")
	return RecordID(u), err
}

func ParseStaffID(s string) (StaffID, error) {
	u, err := parseUUID(s, "staff id")
	return StaffID(u), err
}

// parseUUID rejects empty, malformed and nil UUIDs with CodeInvalidInput.
func parseUUID(s, label string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" must not be nil")
	}
	return u, nil
}
