package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"rollcall/internal/attendance/models"
	"rollcall/internal/platform/postgres"
	id "rollcall/pkg/domain"
	"rollcall/pkg/platform/sentinel"
	"rollcall/pkg/platform/tx"
)

// PostgresStore reads the membership directory tables. It never writes.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindOrganisation(ctx context.Context, orgID id.OrganisationID) (*models.Organisation, error) {
	var (
		o     models.Organisation
		rawID uuid.UUID
	)
	err := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT id, name FROM organisations WHERE id = $1`, uuid.UUID(orgID),
	).Scan(&rawID, &o.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("organisation not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find organisation: %w", err)
	}
	o.ID = id.OrganisationID(rawID)
	return &o, nil
}

func (s *PostgresStore) FindBranch(ctx context.Context, branchID id.BranchID) (*models.Branch, error) {
	var (
		b     models.Branch
		rawID uuid.UUID
		orgID uuid.UUID
	)
	err := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT id, organisation_id, name FROM branches WHERE id = $1`, uuid.UUID(branchID),
	).Scan(&rawID, &orgID, &b.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("branch not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find branch: %w", err)
	}
	b.ID = id.BranchID(rawID)
	b.OrganisationID = id.OrganisationID(orgID)
	return &b, nil
}

const memberColumns = `id, organisation_id, branch_id, first_name, last_name, email, gender,
	date_of_birth, rfid_card_id, status`

func (s *PostgresStore) FindMember(ctx context.Context, memberID id.MemberID) (*models.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = $1`
	m, err := scanMember(tx.Exec(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(memberID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("member not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find member: %w", err)
	}
	return m, nil
}

// FindMemberByCardID matches rfid_card_id, the canonical card column.
func (s *PostgresStore) FindMemberByCardID(ctx context.Context, orgID id.OrganisationID, cardID string) (*models.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE organisation_id = $1 AND rfid_card_id = $2`
	m, err := scanMember(tx.Exec(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(orgID), cardID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("member with card not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find member by card: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) ListActiveMembersByBranch(ctx context.Context, branchID id.BranchID) ([]*models.Member, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM members
		WHERE branch_id = $1 AND status = 'ACTIVE'
		ORDER BY last_name, first_name, id
	`
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, query, uuid.UUID(branchID))
	if err != nil {
		return nil, fmt.Errorf("list branch members: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Member, 0)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*models.Member, error) {
	var (
		m        models.Member
		memberID uuid.UUID
		orgID    uuid.UUID
		branchID uuid.NullUUID
		email    sql.NullString
		gender   string
		birth    sql.NullTime
		card     sql.NullString
		status   string
	)
	err := row.Scan(&memberID, &orgID, &branchID, &m.FirstName, &m.LastName, &email, &gender, &birth, &card, &status)
	if err != nil {
		return nil, err
	}
	m.ID = id.MemberID(memberID)
	m.OrganisationID = id.OrganisationID(orgID)
	m.BranchID = postgres.IDFromNull[id.BranchID](branchID)
	m.Email = postgres.StringFromNull(email)
	m.Gender = models.Gender(gender)
	m.DateOfBirth = postgres.TimeFromNull(birth)
	m.RFIDCardID = postgres.StringFromNull(card)
	m.Status = models.MemberStatus(status)
	return &m, nil
}
