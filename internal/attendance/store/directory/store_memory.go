package directory

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

// InMemoryStore is a directory seeded by tests and local runs. Attendance
// code only reads it; the Add methods exist for seeding.
type InMemoryStore struct {
	mu            sync.RWMutex
	organisations map[id.OrganisationID]*models.Organisation
	branches      map[id.BranchID]*models.Branch
	members       map[id.MemberID]*models.Member
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		organisations: make(map[id.OrganisationID]*models.Organisation),
		branches:      make(map[id.BranchID]*models.Branch),
		members:       make(map[id.MemberID]*models.Member),
	}
}

func (s *InMemoryStore) AddOrganisation(o models.Organisation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.organisations[o.ID] = &o
}

func (s *InMemoryStore) AddBranch(b models.Branch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.branches[b.ID] = &b
}

func (s *InMemoryStore) AddMember(m models.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.ID] = &m
}

func (s *InMemoryStore) FindOrganisation(_ context.Context, orgID id.OrganisationID) (*models.Organisation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.organisations[orgID]
	if !ok {
		return nil, fmt.Errorf("organisation not found: %w", sentinel.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (s *InMemoryStore) FindBranch(_ context.Context, branchID id.BranchID) (*models.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.branches[branchID]
	if !ok {
		return nil, fmt.Errorf("branch not found: %w", sentinel.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

// Branches returns every branch keyed by ID.
func (s *InMemoryStore) Branches() map[id.BranchID]models.Branch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.BranchID]models.Branch, len(s.branches))
	for k, b := range s.branches {
		out[k] = *b
	}
	return out
}

func (s *InMemoryStore) FindMember(_ context.Context, memberID id.MemberID) (*models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[memberID]
	if !ok {
		return nil, fmt.Errorf("member not found: %w", sentinel.ErrNotFound)
	}
	cp := *m
	return &cp, nil
}

func (s *InMemoryStore) FindMemberByCardID(_ context.Context, orgID id.OrganisationID, cardID string) (*models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.members {
		if m.OrganisationID == orgID && m.RFIDCardID != nil && *m.RFIDCardID == cardID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("member with card not found: %w", sentinel.ErrNotFound)
}

// ListActiveMembersByBranch returns active members ordered by last name,
// first name and ID.
func (s *InMemoryStore) ListActiveMembersByBranch(_ context.Context, branchID id.BranchID) ([]*models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Member, 0)
	for _, m := range s.members {
		if m.BranchID != nil && *m.BranchID == branchID && m.IsActive() {
			cp := *m
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *models.Member) int {
		if c := cmp.Compare(a.LastName, b.LastName); c != 0 {
			return c
		}
		if c := cmp.Compare(a.FirstName, b.FirstName); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return out, nil
}

// Members returns a snapshot of every member keyed by ID.
func (s *InMemoryStore) Members() map[id.MemberID]models.Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.MemberID]models.Member, len(s.members))
	for k, m := range s.members {
		out[k] = *m
	}
	return out
}
