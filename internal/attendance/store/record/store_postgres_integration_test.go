//go:build integration

package record_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"rollcall/internal/attendance/models"
	"rollcall/internal/attendance/store/record"
	"rollcall/internal/attendance/store/session"
	id "rollcall/pkg/domain"
	"rollcall/pkg/platform/sentinel"
	"rollcall/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *record.PostgresStore
	sessions *session.PostgresStore

	session *models.AttendanceSession
	member  id.MemberID
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = record.NewPostgres(s.postgres.DB)
	s.sessions = session.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "attendance_records", "qr_code_tokens", "attendance_sessions", "members", "branches", "organisations")
	s.Require().NoError(err)

	org := s.postgres.SeedOrganisation(s.T(), "Grace")
	branch := s.postgres.SeedBranch(s.T(), org, "Central")
	s.member = id.MemberID(s.postgres.SeedMember(s.T(), containers.MemberSeed{
		OrganisationID: org,
		BranchID:       &branch,
		FirstName:      "Ada",
		LastName:       "Lovelace",
		CardID:         "CARD-1",
	}))

	start := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	branchID := id.BranchID(branch)
	sess, err := models.NewSession(id.SessionID(uuid.New()), id.OrganisationID(org), &branchID, models.SessionDetails{
		Name:      "Sunday Service",
		Date:      start,
		StartTime: start,
		Type:      models.SessionTypeRegularService,
	}, start)
	s.Require().NoError(err)
	s.Require().NoError(s.sessions.Create(ctx, sess))
	s.session = sess
}

func (s *PostgresStoreSuite) newRecord(at time.Time) *models.AttendanceRecord {
	r, err := models.NewMemberRecord(models.RecordParams{
		ID:          id.RecordID(uuid.New()),
		Session:     s.session,
		Method:      models.MethodRFID,
		CheckInTime: at,
		CreatedAt:   at,
	}, s.member)
	s.Require().NoError(err)
	return r
}

func (s *PostgresStoreSuite) scanDecision(at time.Time) func(*models.AttendanceRecord) (models.ScanDecision, error) {
	return func(latest *models.AttendanceRecord) (models.ScanDecision, error) {
		next, err := models.NextScanTransition(latest)
		if err != nil {
			return models.ScanDecision{}, err
		}
		if next == models.ScanCheckedOut {
			return models.ScanDecision{Transition: next, CheckOut: at}, nil
		}
		return models.ScanDecision{Transition: next, Create: s.newRecord(at)}, nil
	}
}

func (s *PostgresStoreSuite) TestCreateAndList() {
	ctx := context.Background()
	r := s.newRecord(s.session.StartTime)
	s.Require().NoError(s.store.Create(ctx, r))

	got, err := s.store.ListBySession(ctx, s.session.ID)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(r.ID, got[0].ID)
	s.Equal(s.member, *got[0].MemberID)
	s.True(got[0].CheckInTime.Equal(r.CheckInTime))
	s.Equal(*s.session.BranchID, *got[0].BranchID)
}

func (s *PostgresStoreSuite) TestCreateManyRollsBack() {
	ctx := context.Background()
	first := s.newRecord(s.session.StartTime)
	dup := *first
	err := s.store.CreateMany(ctx, []*models.AttendanceRecord{first, &dup})
	s.Require().Error(err)

	n, err := s.store.CountBySession(ctx, s.session.ID)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *PostgresStoreSuite) TestExecuteScanToggle() {
	ctx := context.Background()
	start := s.session.StartTime

	in, err := s.store.ExecuteScan(ctx, s.session.ID, s.member, s.scanDecision(start))
	s.Require().NoError(err)
	s.True(in.IsOpen())

	out, err := s.store.ExecuteScan(ctx, s.session.ID, s.member, s.scanDecision(start.Add(time.Hour)))
	s.Require().NoError(err)
	s.Equal(in.ID, out.ID)
	s.Require().NotNil(out.CheckOutTime)

	_, err = s.store.ExecuteScan(ctx, s.session.ID, s.member, s.scanDecision(start.Add(2*time.Hour)))
	s.Require().Error(err)
}

// TestConcurrentScans checks the advisory lock: concurrent taps for one pair
// produce one check-in and one check-out, never two open records.
func (s *PostgresStoreSuite) TestConcurrentScans() {
	ctx := context.Background()
	const goroutines = 20
	var wg sync.WaitGroup
	var checkedIn, checkedOut, rejected atomic.Int32

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := s.store.ExecuteScan(ctx, s.session.ID, s.member, s.scanDecision(s.session.StartTime.Add(time.Minute)))
			switch {
			case err != nil:
				rejected.Add(1)
			case r.IsOpen():
				checkedIn.Add(1)
			default:
				checkedOut.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), checkedIn.Load())
	s.Equal(int32(1), checkedOut.Load())
	s.Equal(int32(goroutines-2), rejected.Load())
	n, err := s.store.CountBySession(ctx, s.session.ID)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *PostgresStoreSuite) TestLastCheckIns() {
	ctx := context.Background()
	at := s.session.StartTime.Add(5 * time.Minute)
	s.Require().NoError(s.store.Create(ctx, s.newRecord(at)))

	got, err := s.store.LastCheckIns(ctx, []id.MemberID{s.member, id.MemberID(uuid.New())})
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.True(got[s.member].Equal(at))
}

func (s *PostgresStoreSuite) TestSessionDeleteRestricted() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, s.newRecord(s.session.StartTime)))
	err := s.sessions.Delete(ctx, s.session.ID)
	s.ErrorIs(err, sentinel.ErrConflict)
}
