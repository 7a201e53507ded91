package session

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"rollcall/internal/attendance/models"
	id "rollcall/pkg/domain"
	"rollcall/pkg/platform/sentinel"
)

// Error Contract:
// - ErrNotFound when the session does not exist
// - errors returned by Execute's validate callback pass through unchanged

// InMemoryStore keeps sessions in memory for tests and local runs.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]*models.AttendanceSession
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[id.SessionID]*models.AttendanceSession)}
}

func (s *InMemoryStore) Create(_ context.Context, session *models.AttendanceSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists: %w", session.ID, sentinel.ErrConflict)
	}
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, sessionID id.SessionID) (*models.AttendanceSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	cp := *session
	return &cp, nil
}

func (s *InMemoryStore) List(_ context.Context, filter models.SessionFilter) ([]*models.AttendanceSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.AttendanceSession, 0)
	for _, session := range s.sessions {
		if matches(session, filter) {
			cp := *session
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, compareSessions)
	return out, nil
}

func matches(session *models.AttendanceSession, f models.SessionFilter) bool {
	if session.OrganisationID != f.OrganisationID {
		return false
	}
	if f.BranchID != nil && (session.BranchID == nil || *session.BranchID != *f.BranchID) {
		return false
	}
	if f.From != nil && session.Date.Before(models.DateOnly(*f.From)) {
		return false
	}
	if f.To != nil && session.Date.After(models.DateOnly(*f.To)) {
		return false
	}
	if f.Status != nil && session.Status != *f.Status {
		return false
	}
	return true
}

func compareSessions(a, b *models.AttendanceSession) int {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c
	}
	if c := a.StartTime.Compare(b.StartTime); c != 0 {
		return c
	}
	return cmp.Compare(a.ID.String(), b.ID.String())
}

// Execute validates and mutates a session while holding the write lock.
func (s *InMemoryStore) Execute(_ context.Context, sessionID id.SessionID,
	validate func(*models.AttendanceSession) error,
	mutate func(*models.AttendanceSession),
) (*models.AttendanceSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	cp := *session
	if err := validate(&cp); err != nil {
		return nil, err
	}
	mutate(&cp)
	s.sessions[sessionID] = &cp
	out := cp
	return &out, nil
}

func (s *InMemoryStore) Delete(_ context.Context, sessionID id.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	delete(s.sessions, sessionID)
	return nil
}
