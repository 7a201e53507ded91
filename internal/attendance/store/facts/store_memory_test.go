package facts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"rollcall/internal/attendance/models"
	"rollcall/internal/attendance/store/directory"
	"rollcall/internal/attendance/store/record"
	"rollcall/internal/attendance/store/session"
	id "rollcall/pkg/domain"
)

type InMemorySourceSuite struct {
	suite.Suite
	ctx       context.Context
	records   *record.InMemoryStore
	sessions  *session.InMemoryStore
	directory *directory.InMemoryStore
	source    *InMemorySource

	org    id.OrganisationID
	north  id.BranchID
	south  id.BranchID
	member models.Member
}

func TestInMemorySourceSuite(t *testing.T) {
	suite.Run(t, new(InMemorySourceSuite))
}

func (s *InMemorySourceSuite) SetupTest() {
	s.ctx = context.Background()
	s.records = record.NewInMemory()
	s.sessions = session.NewInMemory()
	s.directory = directory.NewInMemory()
	s.source = NewInMemory(s.records, s.sessions, s.directory)

	s.org = id.OrganisationID(uuid.New())
	s.north = id.BranchID(uuid.New())
	s.south = id.BranchID(uuid.New())
	s.directory.AddOrganisation(models.Organisation{ID: s.org, Name: "Grace"})
	s.directory.AddBranch(models.Branch{ID: s.north, OrganisationID: s.org, Name: "North"})
	s.directory.AddBranch(models.Branch{ID: s.south, OrganisationID: s.org, Name: "South"})

	birth := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
	s.member = models.Member{
		ID:             id.MemberID(uuid.New()),
		OrganisationID: s.org,
		BranchID:       &s.north,
		FirstName:      "Ada",
		LastName:       "Lovelace",
		Gender:         models.GenderFemale,
		DateOfBirth:    &birth,
		Status:         models.MemberStatusActive,
	}
	s.directory.AddMember(s.member)
}

func (s *InMemorySourceSuite) addSession(branch id.BranchID, date time.Time) *models.AttendanceSession {
	start := date.Add(9 * time.Hour)
	sess, err := models.NewSession(id.SessionID(uuid.New()), s.org, &branch, models.SessionDetails{
		Name:      "Service",
		Date:      date,
		StartTime: start,
		Type:      models.SessionTypeRegularService,
	}, start)
	s.Require().NoError(err)
	s.Require().NoError(s.sessions.Create(s.ctx, sess))
	return sess
}

func (s *InMemorySourceSuite) params(sess *models.AttendanceSession) models.RecordParams {
	return models.RecordParams{
		ID:          id.RecordID(uuid.New()),
		Session:     sess,
		Method:      models.MethodManual,
		CheckInTime: sess.StartTime,
		CreatedAt:   sess.StartTime,
	}
}

func (s *InMemorySourceSuite) TestFactsJoinSessionAndMember() {
	sess := s.addSession(s.north, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	r, err := models.NewMemberRecord(s.params(sess), s.member.ID)
	s.Require().NoError(err)
	s.Require().NoError(s.records.Create(s.ctx, r))

	got, err := s.source.Facts(s.ctx, models.FactQuery{
		From:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		To:    time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		Scope: models.Scope{OrganisationID: &s.org},
	})
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(r.ID, got[0].RecordID)
	s.Equal("North", got[0].BranchName)
	s.Equal(models.GenderFemale, got[0].MemberGender)
	s.Equal(s.member.DateOfBirth, got[0].MemberBirth)
	s.Equal(models.SessionTypeRegularService, got[0].SessionType)
}

func (s *InMemorySourceSuite) TestFactsFilterByBranchAndDate() {
	northSess := s.addSession(s.north, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	southSess := s.addSession(s.south, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	lateSess := s.addSession(s.north, time.Date(2024, 4, 7, 0, 0, 0, 0, time.UTC))
	for _, sess := range []*models.AttendanceSession{northSess, southSess, lateSess} {
		r, err := models.NewVisitorRecord(s.params(sess), models.Visitor{Name: "Guest"})
		s.Require().NoError(err)
		s.Require().NoError(s.records.Create(s.ctx, r))
	}

	got, err := s.source.Facts(s.ctx, models.FactQuery{
		From:  time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		To:    time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		Scope: models.Scope{OrganisationID: &s.org, BranchID: &s.north},
	})
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(northSess.ID, got[0].SessionID)
}

func (s *InMemorySourceSuite) TestVisitorsBeforeExcludesFromDay() {
	early := s.addSession(s.north, time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC))
	onDay := s.addSession(s.north, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	email := "jane@example.com"
	for _, sess := range []*models.AttendanceSession{early, onDay} {
		r, err := models.NewVisitorRecord(s.params(sess), models.Visitor{Name: "Jane", Email: &email})
		s.Require().NoError(err)
		s.Require().NoError(s.records.Create(s.ctx, r))
	}

	got, err := s.source.VisitorsBefore(s.ctx, models.Scope{BranchID: &s.north}, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal("Jane", got[0].Name)
}

func TestScopeArgs(t *testing.T) {
	org := id.OrganisationID(uuid.New())
	branch := id.BranchID(uuid.New())

	filter, args, err := scopeArgs(models.Scope{OrganisationID: &org, BranchID: &branch})
	require.NoError(t, err)
	assert.Equal(t, scopeOrgBranch, filter)
	assert.Len(t, args, 2)

	filter, _, err = scopeArgs(models.Scope{BranchID: &branch})
	require.NoError(t, err)
	assert.Equal(t, scopeBranch, filter)

	_, _, err = scopeArgs(models.Scope{})
	assert.Error(t, err)
}
