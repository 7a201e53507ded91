package facts

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/attendance/models"
	"rollcall/internal/platform/postgres"
	id "rollcall/pkg/domain"
	"rollcall/pkg/platform/tx"
)

// PostgresSource reads facts with one fixed statement per scope filter
// combination. Scope matches the session's organisation and branch.
type PostgresSource struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

type scopeFilter int

const (
	scopeOrg scopeFilter = iota
	scopeBranch
	scopeOrgBranch
)

// scopeArgs picks the statement variant for scope and its leading arguments.
func scopeArgs(scope models.Scope) (scopeFilter, []any, error) {
	switch {
	case scope.OrganisationID != nil && scope.BranchID != nil:
		return scopeOrgBranch, []any{uuid.UUID(*scope.OrganisationID), uuid.UUID(*scope.BranchID)}, nil
	case scope.OrganisationID != nil:
		return scopeOrg, []any{uuid.UUID(*scope.OrganisationID)}, nil
	case scope.BranchID != nil:
		return scopeBranch, []any{uuid.UUID(*scope.BranchID)}, nil
	}
	return 0, nil, fmt.Errorf("scope needs an organisation or a branch")
}

const factSelect = `
	SELECT r.id, r.session_id, s.session_date, s.session_type, COALESCE(b.name, ''),
		r.member_id, r.visitor_name, r.visitor_email, r.visitor_phone, r.check_in_time,
		COALESCE(m.gender, ''), m.date_of_birth
	FROM attendance_records r
	JOIN attendance_sessions s ON s.id = r.session_id
	LEFT JOIN branches b ON b.id = r.branch_id
	LEFT JOIN members m ON m.id = r.member_id
`

const factOrder = `
	ORDER BY s.session_date, r.check_in_time, r.id
`

var factQueries = map[scopeFilter]string{
	scopeOrg: factSelect + `
	WHERE s.organisation_id = $1 AND s.session_date BETWEEN $2 AND $3` + factOrder,
	scopeBranch: factSelect + `
	WHERE s.branch_id = $1 AND s.session_date BETWEEN $2 AND $3` + factOrder,
	scopeOrgBranch: factSelect + `
	WHERE s.organisation_id = $1 AND s.branch_id = $2 AND s.session_date BETWEEN $3 AND $4` + factOrder,
}

const visitorSelect = `
	SELECT r.visitor_name, r.visitor_email, r.visitor_phone
	FROM attendance_records r
	JOIN attendance_sessions s ON s.id = r.session_id
`

var visitorQueries = map[scopeFilter]string{
	scopeOrg: visitorSelect + `
	WHERE s.organisation_id = $1 AND s.session_date < $2 AND r.visitor_name IS NOT NULL`,
	scopeBranch: visitorSelect + `
	WHERE s.branch_id = $1 AND s.session_date < $2 AND r.visitor_name IS NOT NULL`,
	scopeOrgBranch: visitorSelect + `
	WHERE s.organisation_id = $1 AND s.branch_id = $2 AND s.session_date < $3 AND r.visitor_name IS NOT NULL`,
}

func (s *PostgresSource) Facts(ctx context.Context, q models.FactQuery) ([]models.AttendanceFact, error) {
	filter, args, err := scopeArgs(q.Scope)
	if err != nil {
		return nil, err
	}
	args = append(args, models.DateOnly(q.From), models.DateOnly(q.To))

	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, factQueries[filter], args...)
	if err != nil {
		return nil, fmt.Errorf("query attendance facts: %w", err)
	}
	defer rows.Close()

	out := make([]models.AttendanceFact, 0)
	for rows.Next() {
		var (
			f            models.AttendanceFact
			recordID     uuid.UUID
			sessionID    uuid.UUID
			sessionType  string
			memberID     uuid.NullUUID
			visitorName  sql.NullString
			visitorEmail sql.NullString
			visitorPhone sql.NullString
			gender       string
			birth        sql.NullTime
		)
		err := rows.Scan(
			&recordID,
			&sessionID,
			&f.SessionDate,
			&sessionType,
			&f.BranchName,
			&memberID,
			&visitorName,
			&visitorEmail,
			&visitorPhone,
			&f.CheckInTime,
			&gender,
			&birth,
		)
		if err != nil {
			return nil, fmt.Errorf("scan attendance fact: %w", err)
		}
		f.RecordID = id.RecordID(recordID)
		f.SessionID = id.SessionID(sessionID)
		f.SessionDate = models.DateOnly(f.SessionDate)
		f.SessionType = models.SessionType(sessionType)
		f.MemberID = postgres.IDFromNull[id.MemberID](memberID)
		f.VisitorName = postgres.StringFromNull(visitorName)
		f.VisitorEmail = postgres.StringFromNull(visitorEmail)
		f.VisitorPhone = postgres.StringFromNull(visitorPhone)
		f.MemberGender = models.Gender(gender)
		f.MemberBirth = postgres.TimeFromNull(birth)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance facts: %w", err)
	}
	return out, nil
}

func (s *PostgresSource) VisitorsBefore(ctx context.Context, scope models.Scope, before time.Time) ([]models.Visitor, error) {
	filter, args, err := scopeArgs(scope)
	if err != nil {
		return nil, err
	}
	args = append(args, models.DateOnly(before))

	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, visitorQueries[filter], args...)
	if err != nil {
		return nil, fmt.Errorf("query historical visitors: %w", err)
	}
	defer rows.Close()

	out := make([]models.Visitor, 0)
	for rows.Next() {
		var (
			name         string
			email, phone sql.NullString
		)
		if err := rows.Scan(&name, &email, &phone); err != nil {
			return nil, fmt.Errorf("scan historical visitor: %w", err)
		}
		out = append(out, models.Visitor{
			Name:  name,
			Email: postgres.StringFromNull(email),
			Phone: postgres.StringFromNull(phone),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate historical visitors: %w", err)
	}
	return out, nil
}
