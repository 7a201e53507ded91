package models

import (
	"strings"
	"time"

	id "rollcall/pkg/domain"
)

// Gender as held by the member directory. Empty means unknown.
type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
	GenderOther  Gender = "OTHER"
)

type MemberStatus string

const (
	MemberStatusActive   MemberStatus = "ACTIVE"
	MemberStatusInactive MemberStatus = "INACTIVE"
)

// Member is a read-only view of a directory member.
//
// RFIDCardID is the one canonical card identifier; RFID and NFC scans both
// resolve against it.
type Member struct {
	ID             id.MemberID       `json:"id"`
	OrganisationID id.OrganisationID `json:"organisation_id"`
	BranchID       *id.BranchID      `json:"branch_id,omitempty"`
	FirstName      string            `json:"first_name"`
	LastName       string            `json:"last_name"`
	Email          *string           `json:"email,omitempty"`
	Gender         Gender            `json:"gender,omitempty"`
	DateOfBirth    *time.Time        `json:"date_of_birth,omitempty"`
	RFIDCardID     *string           `json:"rfid_card_id,omitempty"`
	Status         MemberStatus      `json:"status"`
}

func (m *Member) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

func (m *Member) IsActive() bool {
	return m.Status == MemberStatusActive
}

// Branch is a read-only view of a directory branch.
type Branch struct {
	ID             id.BranchID       `json:"id"`
	OrganisationID id.OrganisationID `json:"organisation_id"`
	Name           string            `json:"name"`
}

// Organisation is a read-only view of a directory organisation.
type Organisation struct {
	ID   id.OrganisationID `json:"id"`
	Name string            `json:"name"`
}
