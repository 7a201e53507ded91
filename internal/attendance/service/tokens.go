package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"rollcall/internal/attendance/events"
	"rollcall/internal/attendance/models"
	id "rollcall/pkg/domain"
	dErrors "rollcall/pkg/domain-errors"
)

const tokenBytes = 32

func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// IssueToken creates a QR capability for sessionID. ttlMinutes of 0 means the
// 60 minute default.
func (s *Service) IssueToken(ctx context.Context, sessionID id.SessionID, ttlMinutes int) (*models.QRCodeToken, error) {
	if ttlMinutes == 0 {
		ttlMinutes = models.DefaultTokenTTLMinutes
	}
	if ttlMinutes < 1 || ttlMinutes > models.MaxTokenTTLMinutes {
		return nil, dErrors.New(dErrors.CodeValidation, "ttl_minutes must be between 1 and 1440")
	}
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	value, err := s.tokenGen()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate qr token")
	}
	now := s.now(ctx)
	token := &models.QRCodeToken{
		Token:     value,
		SessionID: session.ID,
		ExpiresAt: now.Add(time.Duration(ttlMinutes) * time.Minute),
		CreatedAt: now,
	}
	if err := s.tokens.Save(ctx, token); err != nil {
		return nil, wrapStoreErr(err, "qr token")
	}

	if s.metrics != nil {
		s.metrics.IncrementTokenIssued()
	}
	s.publish(ctx, events.Event{
		Type:       events.TypeQRTokenIssued,
		SessionID:  session.ID,
		OccurredAt: now,
	})
	return token, nil
}

// ValidateToken returns the session a token is bound to. The token is not
// consumed; it stays usable until it expires.
func (s *Service) ValidateToken(ctx context.Context, value string) (*models.AttendanceSession, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "qr_token is required")
	}
	token, err := s.tokens.Find(ctx, value)
	if err != nil {
		err = wrapStoreErr(err, "qr token")
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			s.countValidation("unknown")
		}
		return nil, err
	}
	if token.IsExpired(s.now(ctx)) {
		s.countValidation("expired")
		return nil, dErrors.New(dErrors.CodeExpired, "qr token has expired, request a new one")
	}
	session, err := s.loadSession(ctx, token.SessionID)
	if err != nil {
		return nil, err
	}
	s.countValidation("valid")
	return session, nil
}

func (s *Service) countValidation(result string) {
	if s.metrics != nil {
		s.metrics.IncrementTokenValidation(result)
	}
}
