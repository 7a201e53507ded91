package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rollcall/internal/attendance/models"
	id "rollcall/pkg/domain"
	"rollcall/pkg/platform/sentinel"
)

// InMemoryStore keeps QR tokens in memory. Expired tokens are kept so that
// validation can report them as expired rather than unknown.
type InMemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]*models.QRCodeToken
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{tokens: make(map[string]*models.QRCodeToken)}
}

func (s *InMemoryStore) Save(_ context.Context, token *models.QRCodeToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tokens[token.Token]; exists {
		return fmt.Errorf("qr token already exists: %w", sentinel.ErrConflict)
	}
	cp := *token
	s.tokens[token.Token] = &cp
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, value string) (*models.QRCodeToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[value]
	if !ok {
		return nil, fmt.Errorf("qr token not found: %w", sentinel.ErrNotFound)
	}
	cp := *token
	return &cp, nil
}

// CountBySession counts the session's tokens still usable at now.
func (s *InMemoryStore) CountBySession(_ context.Context, sessionID id.SessionID, now time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.tokens {
		if t.SessionID == sessionID && !t.IsExpired(now) {
			n++
		}
	}
	return n, nil
}

// DeleteExpired removes tokens that expired before cutoff.
func (s *InMemoryStore) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for value, t := range s.tokens {
		if t.ExpiresAt.Before(cutoff) {
			delete(s.tokens, value)
			n++
		}
	}
	return n, nil
}
