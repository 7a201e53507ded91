package models

import (
	"time"

	id "rollcall/pkg/domain"
)

const (
	DefaultTokenTTLMinutes = 60
	MaxTokenTTLMinutes     = 24 * 60
)

// QRCodeToken is a bearer capability allowing check-ins to a session until it
// expires. Presenting it does not consume it.
type QRCodeToken struct {
	Token     string       `json:"token"`
	SessionID id.SessionID `json:"session_id"`
	ExpiresAt time.Time    `json:"expires_at"`
	CreatedAt time.Time    `json:"created_at"`
}

// IsExpired reports whether the token is unusable at now. A token is usable
// only strictly before ExpiresAt.
func (t *QRCodeToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
