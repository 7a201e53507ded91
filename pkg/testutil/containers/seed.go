//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

// SeedOrganisation inserts a directory organisation and returns its ID.
func (p *PostgresContainer) SeedOrganisation(t *testing.T, name string) uuid.UUID {
	t.Helper()
	orgID := uuid.New()
	_, err := p.DB.ExecContext(context.Background(),
		`INSERT INTO organisations (id, name) VALUES ($1, $2)`, orgID, name)
	if err != nil {
		t.Fatalf("seed organisation: %v", err)
	}
	return orgID
}

// SeedBranch inserts a branch of orgID and returns its ID.
func (p *PostgresContainer) SeedBranch(t *testing.T, orgID uuid.UUID, name string) uuid.UUID {
	t.Helper()
	branchID := uuid.New()
	_, err := p.DB.ExecContext(context.Background(),
		`INSERT INTO branches (id, organisation_id, name) VALUES ($1, $2, $3)`, branchID, orgID, name)
	if err != nil {
		t.Fatalf("seed branch: %v", err)
	}
	return branchID
}

// MemberSeed describes a directory member row. Empty strings are stored as NULL
// for the optional columns.
type MemberSeed struct {
	OrganisationID uuid.UUID
	BranchID       *uuid.UUID
	FirstName      string
	LastName       string
	Gender         string
	DateOfBirth    string
	CardID         string
	Status         string
}

// SeedMember inserts a member and returns its ID.
func (p *PostgresContainer) SeedMember(t *testing.T, m MemberSeed) uuid.UUID {
	t.Helper()
	memberID := uuid.New()
	if m.Status == "" {
		m.Status = "ACTIVE"
	}
	_, err := p.DB.ExecContext(context.Background(), `
		INSERT INTO members (id, organisation_id, branch_id, first_name, last_name, gender, date_of_birth, rfid_card_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, '')::date, NULLIF($8, ''), $9)
	`, memberID, m.OrganisationID, m.BranchID, m.FirstName, m.LastName, m.Gender, m.DateOfBirth, m.CardID, m.Status)
	if err != nil {
		t.Fatalf("seed member: %v", err)
	}
	return memberID
}
