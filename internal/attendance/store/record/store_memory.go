package record

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"rollcall/internal/attendance/models"
	id "rollcall/pkg/domain"
	"rollcall/pkg/platform/sentinel"
)

// InMemoryStore keeps attendance records in memory. A single mutex makes
// ExecuteScan's read-decide-write one critical section.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.RecordID]*models.AttendanceRecord
	order   []id.RecordID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.RecordID]*models.AttendanceRecord)}
}

func (s *InMemoryStore) Create(_ context.Context, record *models.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(record)
}

// CreateMany inserts all records or none.
func (s *InMemoryStore) CreateMany(_ context.Context, records []*models.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[id.RecordID]struct{}, len(records))
	for _, r := range records {
		if _, dup := s.records[r.ID]; dup {
			return fmt.Errorf("record %s already exists: %w", r.ID, sentinel.ErrConflict)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("record %s repeated in batch: %w", r.ID, sentinel.ErrConflict)
		}
		seen[r.ID] = struct{}{}
	}
	for _, r := range records {
		if err := s.insertLocked(r); err != nil {
			return err
		}
	}
	return nil
}

func (s *InMemoryStore) insertLocked(record *models.AttendanceRecord) error {
	if _, exists := s.records[record.ID]; exists {
		return fmt.Errorf("record %s already exists: %w", record.ID, sentinel.ErrConflict)
	}
	s.records[record.ID] = detach(record)
	s.order = append(s.order, record.ID)
	return nil
}

// detach copies a record without its resolved associations.
func detach(r *models.AttendanceRecord) *models.AttendanceRecord {
	cp := *r
	cp.Session = nil
	cp.Member = nil
	return &cp
}

func (s *InMemoryStore) ListBySession(_ context.Context, sessionID id.SessionID) ([]*models.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.AttendanceRecord, 0)
	for _, rid := range s.order {
		r := s.records[rid]
		if r.SessionID == sessionID {
			out = append(out, detach(r))
		}
	}
	slices.SortStableFunc(out, func(a, b *models.AttendanceRecord) int {
		return a.CheckInTime.Compare(b.CheckInTime)
	})
	return out, nil
}

func (s *InMemoryStore) CountBySession(_ context.Context, sessionID id.SessionID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.records {
		if r.SessionID == sessionID {
			n++
		}
	}
	return n, nil
}

// ExecuteScan holds the write lock across lookup, decision and write.
func (s *InMemoryStore) ExecuteScan(_ context.Context, sessionID id.SessionID, memberID id.MemberID,
	decide func(latest *models.AttendanceRecord) (models.ScanDecision, error),
) (*models.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := s.latestLocked(sessionID, memberID)
	var view *models.AttendanceRecord
	if latest != nil {
		view = detach(latest)
	}
	decision, err := decide(view)
	if err != nil {
		return nil, err
	}

	switch decision.Transition {
	case models.ScanCheckedIn:
		if decision.Create == nil {
			return nil, fmt.Errorf("check-in decision without a record: %w", sentinel.ErrInvalidState)
		}
		if err := s.insertLocked(decision.Create); err != nil {
			return nil, err
		}
		return detach(decision.Create), nil
	case models.ScanCheckedOut:
		if latest == nil || !latest.IsOpen() {
			return nil, fmt.Errorf("record already closed: %w", sentinel.ErrConflict)
		}
		checkOut := decision.CheckOut
		latest.CheckOutTime = &checkOut
		return detach(latest), nil
	default:
		return nil, fmt.Errorf("unknown scan transition %q: %w", decision.Transition, sentinel.ErrInvalidState)
	}
}

// latestLocked picks the record with the latest check-in, breaking ties by
// insertion order.
func (s *InMemoryStore) latestLocked(sessionID id.SessionID, memberID id.MemberID) *models.AttendanceRecord {
	var latest *models.AttendanceRecord
	for _, rid := range s.order {
		r := s.records[rid]
		if r.SessionID != sessionID || r.MemberID == nil || *r.MemberID != memberID {
			continue
		}
		if latest == nil || !r.CheckInTime.Before(latest.CheckInTime) {
			latest = r
		}
	}
	return latest
}

func (s *InMemoryStore) LastCheckIns(_ context.Context, memberIDs []id.MemberID) (map[id.MemberID]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[id.MemberID]struct{}, len(memberIDs))
	for _, m := range memberIDs {
		wanted[m] = struct{}{}
	}
	out := make(map[id.MemberID]time.Time)
	for _, r := range s.records {
		if r.MemberID == nil {
			continue
		}
		if _, ok := wanted[*r.MemberID]; !ok {
			continue
		}
		if last, ok := out[*r.MemberID]; !ok || r.CheckInTime.After(last) {
			out[*r.MemberID] = r.CheckInTime
		}
	}
	return out, nil
}

// All returns every stored record in insertion order. The in-memory fact
// source reads from it.
func (s *InMemoryStore) All() []*models.AttendanceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.AttendanceRecord, 0, len(s.order))
	for _, rid := range s.order {
		out = append(out, detach(s.records[rid]))
	}
	return out
}
