package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks SessionStore,RecordStore,TokenStore,Directory,EventPublisher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"rollcall/internal/attendance/models"
	"rollcall/internal/attendance/service/mocks"
	"rollcall/internal/attendance/statistics"
	"rollcall/internal/attendance/store/directory"
	"rollcall/internal/attendance/store/facts"
	"rollcall/internal/attendance/store/record"
	"rollcall/internal/attendance/store/session"
	"rollcall/internal/attendance/store/token"
	id "rollcall/pkg/domain"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/platform/sentinel"
	"rollcall/pkg/testutil"
)

// ServiceSuite runs the service against the in-memory stores with a
// controllable clock and a mocked event publisher.
type ServiceSuite struct {
	suite.Suite
	ctx       context.Context
	ctrl      *gomock.Controller
	publisher *mocks.MockEventPublisher
	sessions  *session.InMemoryStore
	records   *record.InMemoryStore
	tokens    *token.InMemoryStore
	directory *directory.InMemoryStore
	service   *Service
	now       time.Time

	org      id.OrganisationID
	otherOrg id.OrganisationID
	branch   id.BranchID
	alice    models.Member
	bob      models.Member
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.publisher = mocks.NewMockEventPublisher(s.ctrl)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	s.sessions = session.NewInMemory()
	s.records = record.NewInMemory()
	s.tokens = token.NewInMemory()
	s.directory = directory.NewInMemory()
	s.now = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	s.service = New(s.sessions, s.records, s.tokens, s.directory,
		WithClock(func() time.Time { return s.now }),
		WithEventPublisher(s.publisher),
	)

	s.org = id.OrganisationID(uuid.New())
	s.otherOrg = id.OrganisationID(uuid.New())
	s.branch = id.BranchID(uuid.New())
	s.directory.AddOrganisation(models.Organisation{ID: s.org, Name: "Grace Church"})
	s.directory.AddOrganisation(models.Organisation{ID: s.otherOrg, Name: "Hope Church"})
	s.directory.AddBranch(models.Branch{ID: s.branch, OrganisationID: s.org, Name: "Central"})

	s.alice = s.addMember("Alice", "Adams", strPtr("CARD-1"))
	s.bob = s.addMember("Bob", "Brown", nil)
}

func strPtr(v string) *string { return &v }

func (s *ServiceSuite) addMember(first, last string, card *string) models.Member {
	m := models.Member{
		ID:             id.MemberID(uuid.New()),
		OrganisationID: s.org,
		BranchID:       &s.branch,
		FirstName:      first,
		LastName:       last,
		RFIDCardID:     card,
		Status:         models.MemberStatusActive,
	}
	s.directory.AddMember(m)
	return m
}

func (s *ServiceSuite) createSession() *models.AttendanceSession {
	sess, err := s.service.CreateSession(s.ctx, &models.CreateSessionRequest{
		OrganisationID: s.org,
		BranchID:       &s.branch,
		Name:           "Sunday Service",
		Date:           "2024-03-10",
		StartTime:      s.now,
		Type:           models.SessionTypeRegularService,
	})
	s.Require().NoError(err)
	return sess
}

func (s *ServiceSuite) requireCode(err error, code dErrors.Code) {
	s.T().Helper()
	s.Require().Error(err)
	s.Equal(code, dErrors.CodeOf(err), err.Error())
}

func (s *ServiceSuite) TestCreateSession() {
	s.Run("starts planned", func() {
		sess := s.createSession()
		s.Equal(models.SessionStatusPlanned, sess.Status)
		s.Equal(s.branch, *sess.BranchID)
	})

	s.Run("unknown organisation", func() {
		_, err := s.service.CreateSession(s.ctx, &models.CreateSessionRequest{
			OrganisationID: id.OrganisationID(uuid.New()),
			Name:           "Orphan",
			Date:           "2024-03-10",
			StartTime:      s.now,
			Type:           models.SessionTypeOther,
		})
		s.requireCode(err, dErrors.CodeNotFound)
	})

	s.Run("branch of another organisation", func() {
		_, err := s.service.CreateSession(s.ctx, &models.CreateSessionRequest{
			OrganisationID: s.otherOrg,
			BranchID:       &s.branch,
			Name:           "Borrowed",
			Date:           "2024-03-10",
			StartTime:      s.now,
			Type:           models.SessionTypeOther,
		})
		s.requireCode(err, dErrors.CodeValidation)
	})
}

func (s *ServiceSuite) TestListSessions() {
	s.createSession()
	s.createSession()

	got, err := s.service.ListSessions(s.ctx, models.SessionFilter{OrganisationID: s.org})
	s.Require().NoError(err)
	s.Len(got, 2)

	_, err = s.service.ListSessions(s.ctx, models.SessionFilter{})
	s.requireCode(err, dErrors.CodeValidation)
}

func (s *ServiceSuite) TestUpdateSession() {
	sess := s.createSession()
	name := "Evening Service"
	updated, err := s.service.UpdateSession(s.ctx, sess.ID, &models.UpdateSessionRequest{Name: &name})
	s.Require().NoError(err)
	s.Equal(name, updated.Name)

	before := s.now.Add(-time.Hour)
	_, err = s.service.UpdateSession(s.ctx, sess.ID, &models.UpdateSessionRequest{EndTime: &before})
	s.requireCode(err, dErrors.CodeValidation)

	stored, err := s.service.GetSession(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Nil(stored.EndTime)
}

func (s *ServiceSuite) TestTransitionSession() {
	sess := s.createSession()

	active, err := s.service.TransitionSession(s.ctx, sess.ID, models.SessionStatusActive)
	s.Require().NoError(err)
	s.Equal(models.SessionStatusActive, active.Status)

	_, err = s.service.TransitionSession(s.ctx, sess.ID, models.SessionStatusPlanned)
	s.requireCode(err, dErrors.CodeConflict)

	_, err = s.service.TransitionSession(s.ctx, id.SessionID(uuid.New()), models.SessionStatusActive)
	s.requireCode(err, dErrors.CodeNotFound)
}

func (s *ServiceSuite) TestDeleteSession() {
	s.Run("rejected while records exist", func() {
		sess := s.createSession()
		_, err := s.service.RecordAttendance(s.ctx, &models.RecordAttendanceRequest{SessionID: sess.ID, MemberID: &s.bob.ID})
		s.Require().NoError(err)
		s.requireCode(s.service.DeleteSession(s.ctx, sess.ID), dErrors.CodeConflict)
	})

	s.Run("rejected while a token is live", func() {
		sess := s.createSession()
		_, err := s.service.IssueToken(s.ctx, sess.ID, 5)
		s.Require().NoError(err)
		s.requireCode(s.service.DeleteSession(s.ctx, sess.ID), dErrors.CodeConflict)

		s.now = s.now.Add(6 * time.Minute)
		s.Require().NoError(s.service.DeleteSession(s.ctx, sess.ID))
		_, err = s.service.GetSession(s.ctx, sess.ID)
		s.requireCode(err, dErrors.CodeNotFound)
	})
}

func (s *ServiceSuite) TestIssueToken() {
	sess := s.createSession()

	tok, err := s.service.IssueToken(s.ctx, sess.ID, 0)
	s.Require().NoError(err)
	s.Len(tok.Token, 64)
	s.Equal(s.now.Add(60*time.Minute), tok.ExpiresAt)

	_, err = s.service.IssueToken(s.ctx, sess.ID, models.MaxTokenTTLMinutes+1)
	s.requireCode(err, dErrors.CodeValidation)

	_, err = s.service.IssueToken(s.ctx, id.SessionID(uuid.New()), 10)
	s.requireCode(err, dErrors.CodeNotFound)
}

func (s *ServiceSuite) TestTokenExpiry() {
	sess := s.createSession()
	tok, err := s.service.IssueToken(s.ctx, sess.ID, 1)
	s.Require().NoError(err)

	s.now = s.now.Add(59 * time.Second)
	got, err := s.service.ValidateToken(s.ctx, tok.Token)
	s.Require().NoError(err)
	s.Equal(sess.ID, got.ID)

	// validation does not consume the token
	_, err = s.service.ValidateToken(s.ctx, tok.Token)
	s.Require().NoError(err)

	s.now = s.now.Add(2 * time.Second)
	_, err = s.service.ValidateToken(s.ctx, tok.Token)
	s.requireCode(err, dErrors.CodeExpired)

	_, err = s.service.ValidateToken(s.ctx, "deadbeef")
	s.requireCode(err, dErrors.CodeNotFound)
}

func (s *ServiceSuite) TestResolveIdentity() {
	sess := s.createSession()
	other := s.createSession()
	tok, err := s.service.IssueToken(s.ctx, sess.ID, 10)
	s.Require().NoError(err)
	unknown := id.MemberID(uuid.New())

	s.Run("manual member", func() {
		got, err := s.service.ResolveIdentity(s.ctx, models.MethodManual, IdentityInput{MemberID: &s.bob.ID})
		s.Require().NoError(err)
		s.Equal(models.IdentityMember, got.Kind)
		s.Equal(s.bob.ID, got.Member.ID)
		s.Nil(got.Visitor)
	})
	s.Run("mobile visitor", func() {
		got, err := s.service.ResolveIdentity(s.ctx, models.MethodMobile, IdentityInput{Visitor: &models.Visitor{Name: "Guest"}})
		s.Require().NoError(err)
		s.Equal(models.IdentityVisitor, got.Kind)
		s.Equal("Guest", got.Visitor.Name)
	})
	s.Run("manual rejects both and neither", func() {
		_, err := s.service.ResolveIdentity(s.ctx, models.MethodManual, IdentityInput{MemberID: &s.bob.ID, Visitor: &models.Visitor{Name: "Guest"}})
		s.requireCode(err, dErrors.CodeValidation)
		_, err = s.service.ResolveIdentity(s.ctx, models.MethodManual, IdentityInput{})
		s.requireCode(err, dErrors.CodeValidation)
	})
	s.Run("unknown member", func() {
		_, err := s.service.ResolveIdentity(s.ctx, models.MethodManual, IdentityInput{MemberID: &unknown})
		s.requireCode(err, dErrors.CodeNotFound)
	})
	s.Run("card channels share the card attribute", func() {
		for _, method := range []models.CheckInMethod{models.MethodRFID, models.MethodNFC} {
			got, err := s.service.ResolveIdentity(s.ctx, method, IdentityInput{SessionID: sess.ID, CardID: "CARD-1"})
			s.Require().NoError(err)
			s.Equal(s.alice.ID, got.Member.ID)
		}
		_, err := s.service.ResolveIdentity(s.ctx, models.MethodRFID, IdentityInput{SessionID: sess.ID, CardID: "CARD-404"})
		s.requireCode(err, dErrors.CodeNotFound)
	})
	s.Run("qr token bound to session", func() {
		got, err := s.service.ResolveIdentity(s.ctx, models.MethodQRCode, IdentityInput{SessionID: sess.ID, QRToken: tok.Token, MemberID: &s.bob.ID})
		s.Require().NoError(err)
		s.Equal(s.bob.ID, got.Member.ID)

		_, err = s.service.ResolveIdentity(s.ctx, models.MethodQRCode, IdentityInput{SessionID: other.ID, QRToken: tok.Token, MemberID: &s.bob.ID})
		s.requireCode(err, dErrors.CodeValidation)
	})
}

func (s *ServiceSuite) TestRecordAttendance() {
	sess := s.createSession()

	s.Run("member defaults to manual", func() {
		r, err := s.service.RecordAttendance(s.ctx, &models.RecordAttendanceRequest{SessionID: sess.ID, MemberID: &s.alice.ID})
		s.Require().NoError(err)
		s.Equal(models.MethodManual, r.Method)
		s.Equal(s.alice.ID, *r.MemberID)
		s.Equal(s.now, r.CheckInTime)
		s.Equal(s.branch, *r.BranchID)
	})

	s.Run("repeated manual entries are separate records", func() {
		_, err := s.service.RecordAttendance(s.ctx, &models.RecordAttendanceRequest{SessionID: sess.ID, MemberID: &s.alice.ID})
		s.Require().NoError(err)
		records, err := s.service.ListSessionRecords(s.ctx, sess.ID)
		s.Require().NoError(err)
		s.Len(records, 2)
	})

	s.Run("visitor", func() {
		r, err := s.service.RecordAttendance(s.ctx, &models.RecordAttendanceRequest{
			SessionID: sess.ID,
			Method:    models.MethodMobile,
			Visitor:   &models.Visitor{Name: " Jane Doe ", Email: strPtr("jane@example.com")},
		})
		s.Require().NoError(err)
		s.Nil(r.MemberID)
		s.Equal("Jane Doe", *r.VisitorName)
	})

	s.Run("recorded by the authenticated staff member", func() {
		ctx, staffID := testutil.StaffContext(s.ctx)
		r, err := s.service.RecordAttendance(ctx, &models.RecordAttendanceRequest{SessionID: sess.ID, MemberID: &s.bob.ID})
		s.Require().NoError(err)
		s.Require().NotNil(r.RecordedBy)
		s.Equal(staffID, *r.RecordedBy)

		anonymous, err := s.service.RecordAttendance(s.ctx, &models.RecordAttendanceRequest{SessionID: sess.ID, MemberID: &s.bob.ID})
		s.Require().NoError(err)
		s.Nil(anonymous.RecordedBy)
	})

	s.Run("neither member nor visitor", func() {
		_, err := s.service.RecordAttendance(s.ctx, &models.RecordAttendanceRequest{SessionID: sess.ID})
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("unknown member", func() {
		ghost := id.MemberID(uuid.New())
		_, err := s.service.RecordAttendance(s.ctx, &models.RecordAttendanceRequest{SessionID: sess.ID, MemberID: &ghost})
		s.requireCode(err, dErrors.CodeNotFound)
	})

	s.Run("unknown session", func() {
		_, err := s.service.RecordAttendance(s.ctx, &models.RecordAttendanceRequest{SessionID: id.SessionID(uuid.New()), MemberID: &s.alice.ID})
		s.requireCode(err, dErrors.CodeNotFound)
	})
}

func (s *ServiceSuite) TestRecordAttendanceWithQRToken() {
	sess := s.createSession()
	other := s.createSession()
	tok, err := s.service.IssueToken(s.ctx, sess.ID, 1)
	s.Require().NoError(err)

	r, err := s.service.RecordAttendance(s.ctx, &models.RecordAttendanceRequest{SessionID: sess.ID, MemberID: &s.bob.ID, QRToken: tok.Token})
	s.Require().NoError(err)
	s.Equal(models.MethodQRCode, r.Method)

	_, err = s.service.RecordAttendance(s.ctx, &models.RecordAttendanceRequest{SessionID: other.ID, MemberID: &s.bob.ID, QRToken: tok.Token})
	s.requireCode(err, dErrors.CodeValidation)

	s.now = s.now.Add(61 * time.Second)
	_, err = s.service.RecordAttendance(s.ctx, &models.RecordAttendanceRequest{SessionID: sess.ID, MemberID: &s.bob.ID, QRToken: tok.Token})
	s.requireCode(err, dErrors.CodeExpired)
}

func (s *ServiceSuite) TestCardScanSequence() {
	sess := s.createSession()
	scan := func() (*models.CardScanResult, error) {
		return s.service.ProcessCardScan(s.ctx, &models.CardScanRequest{SessionID: sess.ID, CardID: "CARD-1"})
	}

	first, err := scan()
	s.Require().NoError(err)
	s.Equal(models.ScanCheckedIn, first.Transition)
	s.Equal(models.MethodRFID, first.Record.Method)
	s.True(first.Record.IsOpen())

	s.now = s.now.Add(90 * time.Minute)
	second, err := scan()
	s.Require().NoError(err)
	s.Equal(models.ScanCheckedOut, second.Transition)
	s.Equal(first.Record.ID, second.Record.ID)
	s.Require().NotNil(second.Record.CheckOutTime)
	s.Equal(s.now, *second.Record.CheckOutTime)

	_, err = scan()
	s.requireCode(err, dErrors.CodeConflict)

	records, err := s.service.ListSessionRecords(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Len(records, 1)
}

func (s *ServiceSuite) TestCheckInsFeedStatistics() {
	sess := s.createSession()
	cara := s.addMember("Cara", "Clark", nil)

	for _, req := range []*models.RecordAttendanceRequest{
		{SessionID: sess.ID, MemberID: &s.bob.ID},
		{SessionID: sess.ID, MemberID: &cara.ID},
		{SessionID: sess.ID, Visitor: &models.Visitor{Name: "Jane Doe"}},
	} {
		_, err := s.service.RecordAttendance(s.ctx, req)
		s.Require().NoError(err)
	}
	in, err := s.service.ProcessCardScan(s.ctx, &models.CardScanRequest{SessionID: sess.ID, CardID: "CARD-1"})
	s.Require().NoError(err)
	s.Equal(models.ScanCheckedIn, in.Transition)
	s.now = s.now.Add(time.Hour)
	out, err := s.service.ProcessCardScan(s.ctx, &models.CardScanRequest{SessionID: sess.ID, CardID: "CARD-1"})
	s.Require().NoError(err)
	s.Equal(models.ScanCheckedOut, out.Transition)

	agg := statistics.New(facts.NewInMemory(s.records, s.sessions, s.directory),
		statistics.WithClock(func() time.Time { return s.now }))
	report, err := agg.Generate(s.ctx, models.StatisticsRequest{
		From:   sess.Date,
		To:     sess.Date,
		Scope:  models.Scope{OrganisationID: &s.org},
		Period: models.PeriodDaily,
		Kinds:  []models.StatisticKind{models.StatTotalAttendance, models.StatUniqueMembers, models.StatVisitors},
	})
	s.Require().NoError(err)

	want := map[models.StatisticKind]float64{
		models.StatTotalAttendance: 4,
		models.StatUniqueMembers:   3,
		models.StatVisitors:        1,
	}
	s.Require().Len(report.Series, len(want))
	for _, sr := range report.Series {
		s.Require().Len(sr.Values, 1, sr.Kind)
		s.Equal("2024-03-10", sr.Values[0].Period)
		s.Equal(want[sr.Kind], sr.Values[0].Value, sr.Kind)
	}
}

func (s *ServiceSuite) TestCardScanRejections() {
	sess := s.createSession()

	_, err := s.service.ProcessCardScan(s.ctx, &models.CardScanRequest{SessionID: sess.ID, CardID: "NOPE"})
	s.requireCode(err, dErrors.CodeNotFound)

	stranger := models.Member{
		ID:             id.MemberID(uuid.New()),
		OrganisationID: s.otherOrg,
		FirstName:      "Carl",
		LastName:       "Cole",
		RFIDCardID:     strPtr("CARD-9"),
		Status:         models.MemberStatusActive,
	}
	s.directory.AddMember(stranger)
	_, err = s.service.ProcessCardScan(s.ctx, &models.CardScanRequest{SessionID: sess.ID, CardID: "CARD-9", Method: models.MethodNFC})
	s.requireCode(err, dErrors.CodeNotFound)

	_, err = s.service.ProcessCardScan(s.ctx, &models.CardScanRequest{SessionID: sess.ID, CardID: "CARD-1", Method: models.MethodQRCode})
	s.requireCode(err, dErrors.CodeValidation)
}

func (s *ServiceSuite) TestCardScanBeforeCheckInRejected() {
	sess := s.createSession()
	_, err := s.service.ProcessCardScan(s.ctx, &models.CardScanRequest{SessionID: sess.ID, CardID: "CARD-1"})
	s.Require().NoError(err)

	early := s.now.Add(-time.Minute)
	_, err = s.service.ProcessCardScan(s.ctx, &models.CardScanRequest{SessionID: sess.ID, CardID: "CARD-1", ScanTime: &early})
	s.requireCode(err, dErrors.CodeValidation)
}

func (s *ServiceSuite) TestConcurrentCardScans() {
	sess := s.createSession()
	const scans = 10

	type outcome struct {
		result *models.CardScanResult
		err    error
	}
	results := make(chan outcome, scans)
	start := make(chan struct{})
	for range scans {
		go func() {
			<-start
			r, err := s.service.ProcessCardScan(s.ctx, &models.CardScanRequest{SessionID: sess.ID, CardID: "CARD-1"})
			results <- outcome{r, err}
		}()
	}
	close(start)

	var in, out, conflicts int
	for range scans {
		o := <-results
		switch {
		case o.err != nil:
			s.Equal(dErrors.CodeConflict, dErrors.CodeOf(o.err))
			conflicts++
		case o.result.Transition == models.ScanCheckedIn:
			in++
		case o.result.Transition == models.ScanCheckedOut:
			out++
		}
	}
	s.Equal(1, in)
	s.Equal(1, out)
	s.Equal(scans-2, conflicts)

	records, err := s.service.ListSessionRecords(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Len(records, 1)
}

func (s *ServiceSuite) TestBulkHeadcount() {
	sess := s.createSession()
	headcount := 50

	res, err := s.service.RecordBulk(s.ctx, &models.BulkAttendanceRequest{SessionID: sess.ID, Headcount: &headcount})
	s.Require().NoError(err)
	s.Equal(50, res.Count)
	s.Require().Len(res.Records, 1)
	s.True(res.Records[0].IsHeadcount())
	s.Equal("Headcount: 50", *res.Records[0].Notes)

	records, err := s.service.ListSessionRecords(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Len(records, 1)
}

func (s *ServiceSuite) TestBulkEntries() {
	sess := s.createSession()

	res, err := s.service.RecordBulk(s.ctx, &models.BulkAttendanceRequest{
		SessionID: sess.ID,
		Entries: []models.BulkEntry{
			{MemberID: &s.alice.ID},
			{Visitor: &models.Visitor{Name: "Guest"}},
		},
	})
	s.Require().NoError(err)
	s.Equal(2, res.Count)
	s.Len(res.Records, 2)
}

func (s *ServiceSuite) TestBulkIsAllOrNothing() {
	sess := s.createSession()
	ghost := id.MemberID(uuid.New())

	_, err := s.service.RecordBulk(s.ctx, &models.BulkAttendanceRequest{
		SessionID: sess.ID,
		Entries: []models.BulkEntry{
			{MemberID: &s.alice.ID},
			{MemberID: &ghost},
		},
	})
	s.requireCode(err, dErrors.CodeNotFound)
	s.Contains(err.Error(), "entry 1")

	records, err := s.service.ListSessionRecords(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Empty(records)
}

func (s *ServiceSuite) TestFindAbsent() {
	carol := s.addMember("Carol", "Clark", nil)
	dave := s.addMember("Dave", "Davis", nil)
	inactive := s.addMember("Eve", "Evans", nil)
	inactive.Status = models.MemberStatusInactive
	s.directory.AddMember(inactive)

	attend := func(m models.Member, daysAgo int) {
		at := s.now.AddDate(0, 0, -daysAgo)
		sess, err := s.service.CreateSession(s.ctx, &models.CreateSessionRequest{
			OrganisationID: s.org,
			BranchID:       &s.branch,
			Name:           "Midweek",
			Date:           at.Format(models.DateLayout),
			StartTime:      at,
			Type:           models.SessionTypeBibleStudy,
		})
		s.Require().NoError(err)
		_, err = s.service.RecordAttendance(s.ctx, &models.RecordAttendanceRequest{SessionID: sess.ID, MemberID: &m.ID, CheckInTime: &at})
		s.Require().NoError(err)
	}
	attend(s.alice, 40)
	attend(carol, 10)
	attend(dave, 45)

	absent, err := s.service.FindAbsent(s.ctx, s.branch, 30)
	s.Require().NoError(err)
	s.Require().Len(absent, 3)
	s.Equal(s.bob.ID, absent[0].Member.ID)
	s.Nil(absent[0].LastAttendance)
	s.Nil(absent[0].DaysAbsent)
	s.Equal(dave.ID, absent[1].Member.ID)
	s.Equal(45, *absent[1].DaysAbsent)
	s.Equal(s.alice.ID, absent[2].Member.ID)

	_, err = s.service.FindAbsent(s.ctx, s.branch, 0)
	s.requireCode(err, dErrors.CodeValidation)
	_, err = s.service.FindAbsent(s.ctx, id.BranchID(uuid.New()), 30)
	s.requireCode(err, dErrors.CodeNotFound)
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	ctrl := gomock.NewController(t)
	publisher := mocks.NewMockEventPublisher(ctrl)
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

	sessions := session.NewInMemory()
	dir := directory.NewInMemory()
	org := id.OrganisationID(uuid.New())
	dir.AddOrganisation(models.Organisation{ID: org, Name: "Grace"})
	svc := New(sessions, record.NewInMemory(), token.NewInMemory(), dir, WithEventPublisher(publisher))

	ctx := context.Background()
	sess, err := svc.CreateSession(ctx, &models.CreateSessionRequest{
		OrganisationID: org,
		Name:           "Service",
		Date:           "2024-03-10",
		StartTime:      time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC),
		Type:           models.SessionTypeRegularService,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.TransitionSession(ctx, sess.ID, models.SessionStatusActive); err != nil {
		t.Fatalf("transition failed: %v", err)
	}
}

func TestStoreFailuresAreInternal(t *testing.T) {
	ctrl := gomock.NewController(t)
	sessions := mocks.NewMockSessionStore(ctrl)
	records := mocks.NewMockRecordStore(ctrl)
	sid := id.SessionID(uuid.New())

	sessions.EXPECT().FindByID(gomock.Any(), sid).Return(&models.AttendanceSession{ID: sid}, nil)
	records.EXPECT().ListBySession(gomock.Any(), sid).Return(nil, errors.New("connection refused"))

	svc := New(sessions, records, mocks.NewMockTokenStore(ctrl), mocks.NewMockDirectory(ctrl))
	_, err := svc.ListSessionRecords(context.Background(), sid)
	if !dErrors.HasCode(err, dErrors.CodeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestCardScanStoreConflictKeepsItsOwnMessage(t *testing.T) {
	ctrl := gomock.NewController(t)
	sessions := mocks.NewMockSessionStore(ctrl)
	records := mocks.NewMockRecordStore(ctrl)
	dir := mocks.NewMockDirectory(ctrl)
	org := id.OrganisationID(uuid.New())
	sid := id.SessionID(uuid.New())
	member := &models.Member{ID: id.MemberID(uuid.New()), OrganisationID: org, Status: models.MemberStatusActive}

	sessions.EXPECT().FindByID(gomock.Any(), sid).Return(&models.AttendanceSession{ID: sid, OrganisationID: org}, nil).Times(2)
	dir.EXPECT().FindMemberByCardID(gomock.Any(), org, "CARD-1").Return(member, nil).Times(2)
	gomock.InOrder(
		// the open-record unique index rejected the insert
		records.EXPECT().ExecuteScan(gomock.Any(), sid, member.ID, gomock.Any()).
			Return(nil, fmt.Errorf("open card-scan record exists: %w", sentinel.ErrConflict)),
		// the pair is already closed
		records.EXPECT().ExecuteScan(gomock.Any(), sid, member.ID, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.SessionID, _ id.MemberID,
				decide func(*models.AttendanceRecord) (models.ScanDecision, error),
			) (*models.AttendanceRecord, error) {
				out := time.Now()
				_, err := decide(&models.AttendanceRecord{CheckInTime: out.Add(-time.Hour), CheckOutTime: &out})
				return nil, err
			}),
	)

	svc := New(sessions, records, mocks.NewMockTokenStore(ctrl), dir)
	req := func() *models.CardScanRequest { return &models.CardScanRequest{SessionID: sid, CardID: "CARD-1"} }

	_, err := svc.ProcessCardScan(context.Background(), req())
	require.True(t, dErrors.HasCode(err, dErrors.CodeConflict), "got %v", err)
	assert.NotContains(t, err.Error(), "already checked in and out")
	assert.ErrorIs(t, err, sentinel.ErrConflict)

	_, err = svc.ProcessCardScan(context.Background(), req())
	require.True(t, dErrors.HasCode(err, dErrors.CodeConflict), "got %v", err)
	assert.Contains(t, err.Error(), "already checked in and out for this session")
}

func TestTimeoutsAreCoded(t *testing.T) {
	ctrl := gomock.NewController(t)
	sessions := mocks.NewMockSessionStore(ctrl)
	sid := id.SessionID(uuid.New())
	sessions.EXPECT().FindByID(gomock.Any(), sid).Return(nil, context.DeadlineExceeded)

	svc := New(sessions, mocks.NewMockRecordStore(ctrl), mocks.NewMockTokenStore(ctrl), mocks.NewMockDirectory(ctrl))
	_, err := svc.GetSession(context.Background(), sid)
	if !dErrors.HasCode(err, dErrors.CodeTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}
