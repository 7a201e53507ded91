package token

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/attendance/models"
	"rollcall/internal/platform/postgres"
	id "rollcall/pkg/domain"
	"rollcall/pkg/platform/sentinel"
	"rollcall/pkg/platform/tx"
)

// PostgresStore persists QR tokens in the qr_code_tokens table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, token *models.QRCodeToken) error {
	query := `
		INSERT INTO qr_code_tokens (token, session_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, query,
		token.Token,
		uuid.UUID(token.SessionID),
		token.ExpiresAt,
		token.CreatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("qr token already exists: %w", sentinel.ErrConflict)
		}
		if postgres.IsForeignKeyViolation(err) {
			return fmt.Errorf("qr token session missing: %w", sentinel.ErrNotFound)
		}
		return fmt.Errorf("save qr token: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, value string) (*models.QRCodeToken, error) {
	query := `SELECT token, session_id, expires_at, created_at FROM qr_code_tokens WHERE token = $1`
	var (
		token     models.QRCodeToken
		sessionID uuid.UUID
	)
	err := tx.Exec(ctx, s.db).QueryRowContext(ctx, query, value).Scan(
		&token.Token, &sessionID, &token.ExpiresAt, &token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("qr token not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find qr token: %w", err)
	}
	token.SessionID = id.SessionID(sessionID)
	return &token, nil
}

func (s *PostgresStore) CountBySession(ctx context.Context, sessionID id.SessionID, now time.Time) (int, error) {
	var n int
	err := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM qr_code_tokens WHERE session_id = $1 AND expires_at > $2`,
		uuid.UUID(sessionID), now,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count qr tokens: %w", err)
	}
	return n, nil
}

// DeleteExpired removes tokens that expired before cutoff.
func (s *PostgresStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, `DELETE FROM qr_code_tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired qr tokens: %w", err)
	}
	return res.RowsAffected()
}
