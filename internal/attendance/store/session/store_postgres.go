package session

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

// PostgresStore persists sessions in PostgreSQL.
// It is pure I/O; status rules live in the model and service.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const sessionColumns = `id, organisation_id, branch_id, name, description, session_date, start_time,
	end_time, session_type, status, location, latitude, longitude, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, session *models.AttendanceSession) error {
	query := `
		INSERT INTO attendance_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(session.ID),
		uuid.UUID(session.OrganisationID),
		postgres.NullID(session.BranchID),
		session.Name,
		session.Description,
		session.Date,
		session.StartTime,
		session.EndTime,
		string(session.Type),
		string(session.Status),
		session.Location,
		session.Latitude,
		session.Longitude,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("session %s already exists: %w", session.ID, sentinel.ErrConflict)
		}
		if postgres.IsForeignKeyViolation(err) {
			return fmt.Errorf("session references unknown organisation or branch: %w", sentinel.ErrNotFound)
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, sessionID id.SessionID) (*models.AttendanceSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM attendance_sessions WHERE id = $1`
	session, err := scanSession(tx.Exec(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(sessionID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return session, nil
}

// List uses one fixed statement; absent filters are passed as NULL.
func (s *PostgresStore) List(ctx context.Context, filter models.SessionFilter) ([]*models.AttendanceSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM attendance_sessions
		WHERE organisation_id = $1
		  AND ($2::uuid IS NULL OR branch_id = $2)
		  AND ($3::date IS NULL OR session_date >= $3)
		  AND ($4::date IS NULL OR session_date <= $4)
		  AND ($5::text IS NULL OR status = $5)
		ORDER BY session_date, start_time, id
	`
	var from, to any
	if filter.From != nil {
		from = models.DateOnly(*filter.From)
	}
	if filter.To != nil {
		to = models.DateOnly(*filter.To)
	}
	var status any
	if filter.Status != nil {
		status = string(*filter.Status)
	}
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, query,
		uuid.UUID(filter.OrganisationID),
		postgres.NullID(filter.BranchID),
		from,
		to,
		status,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]*models.AttendanceSession, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// Execute locks the row with FOR UPDATE, validates, mutates and writes back
// within one transaction.
func (s *PostgresStore) Execute(ctx context.Context, sessionID id.SessionID,
	validate func(*models.AttendanceSession) error,
	mutate func(*models.AttendanceSession),
) (*models.AttendanceSession, error) {
	var result *models.AttendanceSession
	err := tx.Run(ctx, s.db, func(ctx context.Context, sqlTx *sql.Tx) error {
		query := `SELECT ` + sessionColumns + ` FROM attendance_sessions WHERE id = $1 FOR UPDATE`
		session, err := scanSession(sqlTx.QueryRowContext(ctx, query, uuid.UUID(sessionID)))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
			}
			return fmt.Errorf("lock session: %w", err)
		}
		if err := validate(session); err != nil {
			return err
		}
		mutate(session)

		update := `
			UPDATE attendance_sessions SET
				name = $2, description = $3, session_date = $4, start_time = $5, end_time = $6,
				session_type = $7, status = $8, location = $9, latitude = $10, longitude = $11,
				updated_at = $12
			WHERE id = $1
		`
		_, err = sqlTx.ExecContext(ctx, update,
			uuid.UUID(session.ID),
			session.Name,
			session.Description,
			session.Date,
			session.StartTime,
			session.EndTime,
			string(session.Type),
			string(session.Status),
			session.Location,
			session.Latitude,
			session.Longitude,
			session.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		result = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PostgresStore) Delete(ctx context.Context, sessionID id.SessionID) error {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, `DELETE FROM attendance_sessions WHERE id = $1`, uuid.UUID(sessionID))
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return fmt.Errorf("session has dependent records: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.AttendanceSession, error) {
	var (
		session     models.AttendanceSession
		sessionID   uuid.UUID
		orgID       uuid.UUID
		branchID    uuid.NullUUID
		description sql.NullString
		endTime     sql.NullTime
		sessionType string
		status      string
		location    sql.NullString
		latitude    sql.NullFloat64
		longitude   sql.NullFloat64
	)
	err := row.Scan(
		&sessionID,
		&orgID,
		&branchID,
		&session.Name,
		&description,
		&session.Date,
		&session.StartTime,
		&endTime,
		&sessionType,
		&status,
		&location,
		&latitude,
		&longitude,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	session.ID = id.SessionID(sessionID)
	session.OrganisationID = id.OrganisationID(orgID)
	session.BranchID = postgres.IDFromNull[id.BranchID](branchID)
	session.Description = postgres.StringFromNull(description)
	session.Date = models.DateOnly(session.Date)
	session.EndTime = postgres.TimeFromNull(endTime)
	session.Type = models.SessionType(sessionType)
	session.Status = models.SessionStatus(status)
	session.Location = postgres.StringFromNull(location)
	session.Latitude = postgres.FloatFromNull(latitude)
	session.Longitude = postgres.FloatFromNull(longitude)
	return &session, nil
}
