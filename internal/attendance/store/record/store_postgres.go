package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"rollcall/internal/attendance/models"
	"rollcall/internal/platform/postgres"
	id "rollcall/pkg/domain"
	"rollcall/pkg/platform/sentinel"
	"rollcall/pkg/platform/tx"
)

// PostgresStore persists attendance records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `id, session_id, organisation_id, branch_id, member_id, visitor_name, visitor_email,
	visitor_phone, check_in_time, check_out_time, check_in_method, notes, recorded_by, created_at`

const insertRecord = `
	INSERT INTO attendance_records (` + recordColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
`

func (s *PostgresStore) Create(ctx context.Context, record *models.AttendanceRecord) error {
	return insert(ctx, tx.Exec(ctx, s.db), record)
}

// CreateMany inserts every record in one transaction, joining the caller's
// transaction when there is one.
func (s *PostgresStore) CreateMany(ctx context.Context, records []*models.AttendanceRecord) error {
	return tx.Run(ctx, s.db, func(ctx context.Context, sqlTx *sql.Tx) error {
		for _, r := range records {
			if err := insert(ctx, sqlTx, r); err != nil {
				return err
			}
		}
		return nil
	})
}

func insert(ctx context.Context, exec tx.Executor, r *models.AttendanceRecord) error {
	_, err := exec.ExecContext(ctx, insertRecord,
		uuid.UUID(r.ID),
		uuid.UUID(r.SessionID),
		uuid.UUID(r.OrganisationID),
		postgres.NullID(r.BranchID),
		postgres.NullID(r.MemberID),
		r.VisitorName,
		r.VisitorEmail,
		r.VisitorPhone,
		r.CheckInTime,
		r.CheckOutTime,
		string(r.Method),
		r.Notes,
		postgres.NullID(r.RecordedBy),
		r.CreatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("open card-scan record already exists: %w", sentinel.ErrConflict)
		}
		if postgres.IsForeignKeyViolation(err) {
			return fmt.Errorf("record references unknown session, member or branch: %w", sentinel.ErrNotFound)
		}
		return fmt.Errorf("create attendance record: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBySession(ctx context.Context, sessionID id.SessionID) ([]*models.AttendanceRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM attendance_records
		WHERE session_id = $1
		ORDER BY check_in_time, created_at, id
	`
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, query, uuid.UUID(sessionID))
	if err != nil {
		return nil, fmt.Errorf("list attendance records: %w", err)
	}
	defer rows.Close()

	out := make([]*models.AttendanceRecord, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendance record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance records: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CountBySession(ctx context.Context, sessionID id.SessionID) (int, error) {
	var n int
	err := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attendance_records WHERE session_id = $1`, uuid.UUID(sessionID),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count attendance records: %w", err)
	}
	return n, nil
}

// ExecuteScan serializes scans for one (session, member) pair with a
// transaction-scoped advisory lock, then row-locks the latest record. The
// checkout is a compare-and-set on check_out_time IS NULL, and the partial
// unique index on open card-scan records backs the insert path.
func (s *PostgresStore) ExecuteScan(ctx context.Context, sessionID id.SessionID, memberID id.MemberID,
	decide func(latest *models.AttendanceRecord) (models.ScanDecision, error),
) (*models.AttendanceRecord, error) {
	var result *models.AttendanceRecord
	err := tx.Run(ctx, s.db, func(ctx context.Context, sqlTx *sql.Tx) error {
		lockKey := "scan:" + sessionID.String() + ":" + memberID.String()
		if _, err := sqlTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
			return fmt.Errorf("acquire scan lock: %w", err)
		}

		latestQuery := `
			SELECT ` + recordColumns + `
			FROM attendance_records
			WHERE session_id = $1 AND member_id = $2
			ORDER BY check_in_time DESC, created_at DESC
			LIMIT 1
			FOR UPDATE
		`
		latest, err := scanRecord(sqlTx.QueryRowContext(ctx, latestQuery, uuid.UUID(sessionID), uuid.UUID(memberID)))
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("load latest attendance record: %w", err)
		}

		decision, err := decide(latest)
		if err != nil {
			return err
		}

		switch decision.Transition {
		case models.ScanCheckedIn:
			if decision.Create == nil {
				return fmt.Errorf("check-in decision without a record: %w", sentinel.ErrInvalidState)
			}
			if err := insert(ctx, sqlTx, decision.Create); err != nil {
				return err
			}
			created := *decision.Create
			created.Session = nil
			created.Member = nil
			result = &created
			return nil
		case models.ScanCheckedOut:
			if latest == nil {
				return fmt.Errorf("no open record to close: %w", sentinel.ErrConflict)
			}
			update := `
				UPDATE attendance_records
				SET check_out_time = $2
				WHERE id = $1 AND check_out_time IS NULL
				RETURNING ` + recordColumns
			closed, err := scanRecord(sqlTx.QueryRowContext(ctx, update, uuid.UUID(latest.ID), decision.CheckOut))
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("record already closed: %w", sentinel.ErrConflict)
				}
				return fmt.Errorf("close attendance record: %w", err)
			}
			result = closed
			return nil
		default:
			return fmt.Errorf("unknown scan transition %q: %w", decision.Transition, sentinel.ErrInvalidState)
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PostgresStore) LastCheckIns(ctx context.Context, memberIDs []id.MemberID) (map[id.MemberID]time.Time, error) {
	out := make(map[id.MemberID]time.Time, len(memberIDs))
	if len(memberIDs) == 0 {
		return out, nil
	}
	ids := make([]string, 0, len(memberIDs))
	for _, m := range memberIDs {
		ids = append(ids, m.String())
	}
	query := `
		SELECT member_id, MAX(check_in_time)
		FROM attendance_records
		WHERE member_id = ANY($1::uuid[])
		GROUP BY member_id
	`
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("last check-ins: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			memberID uuid.UUID
			last     time.Time
		)
		if err := rows.Scan(&memberID, &last); err != nil {
			return nil, fmt.Errorf("scan last check-in: %w", err)
		}
		out[id.MemberID(memberID)] = last
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate last check-ins: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.AttendanceRecord, error) {
	var (
		r            models.AttendanceRecord
		recordID     uuid.UUID
		sessionID    uuid.UUID
		orgID        uuid.UUID
		branchID     uuid.NullUUID
		memberID     uuid.NullUUID
		visitorName  sql.NullString
		visitorEmail sql.NullString
		visitorPhone sql.NullString
		checkOut     sql.NullTime
		method       string
		notes        sql.NullString
		recordedBy   uuid.NullUUID
	)
	err := row.Scan(
		&recordID,
		&sessionID,
		&orgID,
		&branchID,
		&memberID,
		&visitorName,
		&visitorEmail,
		&visitorPhone,
		&r.CheckInTime,
		&checkOut,
		&method,
		&notes,
		&recordedBy,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.ID = id.RecordID(recordID)
	r.SessionID = id.SessionID(sessionID)
	r.OrganisationID = id.OrganisationID(orgID)
	r.BranchID = postgres.IDFromNull[id.BranchID](branchID)
	r.MemberID = postgres.IDFromNull[id.MemberID](memberID)
	r.VisitorName = postgres.StringFromNull(visitorName)
	r.VisitorEmail = postgres.StringFromNull(visitorEmail)
	r.VisitorPhone = postgres.StringFromNull(visitorPhone)
	r.CheckOutTime = postgres.TimeFromNull(checkOut)
	r.Method = models.CheckInMethod(method)
	r.Notes = postgres.StringFromNull(notes)
	r.RecordedBy = postgres.IDFromNull[id.StaffID](recordedBy)
	return &r, nil
}
