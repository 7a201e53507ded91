// Package service implements attendance capture: the session registry,
// identity resolution, QR capability tokens, the check-in/out engine, bulk
// and headcount recording, and absence detection.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"rollcall/internal/attendance/events"
	"rollcall/internal/attendance/metrics"
	"rollcall/internal/attendance/models"
	id "rollcall/pkg/domain"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/platform/sentinel"
	"rollcall/pkg/requestcontext"
)

type SessionStore interface {
	Create(ctx context.Context, session *models.AttendanceSession) error
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.AttendanceSession, error)
	List(ctx context.Context, filter models.SessionFilter) ([]*models.AttendanceSession, error)
	// Execute loads the session under a lock, runs validate, then mutate, and
	// persists the result. Nothing is written when validate fails.
	Execute(ctx context.Context, sessionID id.SessionID,
		validate func(*models.AttendanceSession) error,
		mutate func(*models.AttendanceSession),
	) (*models.AttendanceSession, error)
	Delete(ctx context.Context, sessionID id.SessionID) error
}

type RecordStore interface {
	Create(ctx context.Context, record *models.AttendanceRecord) error
	CreateMany(ctx context.Context, records []*models.AttendanceRecord) error
	ListBySession(ctx context.Context, sessionID id.SessionID) ([]*models.AttendanceRecord, error)
	CountBySession(ctx context.Context, sessionID id.SessionID) (int, error)
	// ExecuteScan serializes card scans per (session, member). decide sees the
	// most recent record for the pair (nil when none) and the store applies
	// the decision atomically: insert for CHECKED_IN, conditional checkout
	// for CHECKED_OUT.
	ExecuteScan(ctx context.Context, sessionID id.SessionID, memberID id.MemberID,
		decide func(latest *models.AttendanceRecord) (models.ScanDecision, error),
	) (*models.AttendanceRecord, error)
	LastCheckIns(ctx context.Context, memberIDs []id.MemberID) (map[id.MemberID]time.Time, error)
}

type TokenStore interface {
	Save(ctx context.Context, token *models.QRCodeToken) error
	Find(ctx context.Context, token string) (*models.QRCodeToken, error)
	CountBySession(ctx context.Context, sessionID id.SessionID, now time.Time) (int, error)
}

// Directory is the read-only organisation, branch and member directory.
type Directory interface {
	FindOrganisation(ctx context.Context, orgID id.OrganisationID) (*models.Organisation, error)
	FindBranch(ctx context.Context, branchID id.BranchID) (*models.Branch, error)
	FindMember(ctx context.Context, memberID id.MemberID) (*models.Member, error)
	FindMemberByCardID(ctx context.Context, orgID id.OrganisationID, cardID string) (*models.Member, error)
	ListActiveMembersByBranch(ctx context.Context, branchID id.BranchID) ([]*models.Member, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, e events.Event) error
}

// Service orchestrates attendance capture.
type Service struct {
	sessions  SessionStore
	records   RecordStore
	tokens    TokenStore
	directory Directory
	tx        StoreTx
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	clock     func() time.Time
	tokenGen  func() (string, error)
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithClock overrides the request clock. Tests use it to simulate elapsed time.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func WithTx(tx StoreTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func withTokenGenerator(gen func() (string, error)) Option {
	return func(s *Service) {
		s.tokenGen = gen
	}
}

// New constructs a Service. Without WithTx an in-memory sharded lock is used.
func New(sessions SessionStore, records RecordStore, tokens TokenStore, directory Directory, opts ...Option) *Service {
	s := &Service{
		sessions:  sessions,
		records:   records,
		tokens:    tokens,
		directory: directory,
		tokenGen:  generateToken,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = NewInMemoryStoreTx()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

func (s *Service) now(ctx context.Context) time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return requestcontext.Now(ctx)
}

// publish emits e and logs failures. Events never fail the operation.
func (s *Service) publish(ctx context.Context, e events.Event) {
	if s.publisher == nil {
		return
	}
	if e.RequestID == "" {
		e.RequestID = requestcontext.RequestID(ctx)
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "failed to publish domain event",
			"event_type", string(e.Type),
			"session_id", e.SessionID.String(),
			"error", err,
		)
	}
}

func (s *Service) loadSession(ctx context.Context, sessionID id.SessionID) (*models.AttendanceSession, error) {
	if sessionID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "session_id is required")
	}
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, wrapStoreErr(err, "session")
	}
	return session, nil
}

func (s *Service) loadMember(ctx context.Context, memberID id.MemberID) (*models.Member, error) {
	member, err := s.directory.FindMember(ctx, memberID)
	if err != nil {
		return nil, wrapStoreErr(err, "member")
	}
	return member, nil
}

// wrapStoreErr translates store sentinels into coded errors for entity.
func wrapStoreErr(err error, entity string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, entity+" not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, entity+" conflict")
	case errors.Is(err, sentinel.ErrExpired):
		return dErrors.New(dErrors.CodeExpired, entity+" expired")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "operation aborted")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to access "+entity)
}

// invariantToValidation maps model invariant violations to validation errors
// for callers.
func invariantToValidation(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, err.Error())
	}
	return err
}
