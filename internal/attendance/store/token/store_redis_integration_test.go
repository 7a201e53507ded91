//go:build integration

package token_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"rollcall/internal/attendance/models"
	"rollcall/internal/attendance/store/token"
	id "rollcall/pkg/domain"
	"rollcall/pkg/platform/sentinel"
	"rollcall/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *token.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.store = token.NewRedis(s.redis.Client, token.WithRetention(time.Hour))
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func newToken(sid id.SessionID, expiresAt time.Time) *models.QRCodeToken {
	return &models.QRCodeToken{
		Token:     uuid.NewString(),
		SessionID: sid,
		ExpiresAt: expiresAt.UTC().Truncate(time.Millisecond),
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func (s *RedisStoreSuite) TestSaveAndFind() {
	ctx := context.Background()
	tok := newToken(id.SessionID(uuid.New()), time.Now().Add(time.Hour))
	s.Require().NoError(s.store.Save(ctx, tok))

	got, err := s.store.Find(ctx, tok.Token)
	s.Require().NoError(err)
	s.Equal(tok.SessionID, got.SessionID)
	s.True(got.ExpiresAt.Equal(tok.ExpiresAt))

	s.ErrorIs(s.store.Save(ctx, tok), sentinel.ErrConflict)
}

func (s *RedisStoreSuite) TestFindUnknown() {
	_, err := s.store.Find(context.Background(), "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestExpiredTokenStillFound keeps expired tokens readable during retention so
// callers can tell Expired apart from NotFound.
func (s *RedisStoreSuite) TestExpiredTokenStillFound() {
	ctx := context.Background()
	tok := newToken(id.SessionID(uuid.New()), time.Now().Add(-time.Minute))
	s.Require().NoError(s.store.Save(ctx, tok))

	got, err := s.store.Find(ctx, tok.Token)
	s.Require().NoError(err)
	s.True(got.IsExpired(time.Now()))

	ttl, err := s.redis.Client.TTL(ctx, "rollcall:qr:"+tok.Token).Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
}

func (s *RedisStoreSuite) TestCountBySession() {
	ctx := context.Background()
	sid := id.SessionID(uuid.New())
	now := time.Now()
	s.Require().NoError(s.store.Save(ctx, newToken(sid, now.Add(time.Hour))))
	s.Require().NoError(s.store.Save(ctx, newToken(sid, now.Add(2*time.Hour))))
	s.Require().NoError(s.store.Save(ctx, newToken(sid, now.Add(-time.Minute))))
	s.Require().NoError(s.store.Save(ctx, newToken(id.SessionID(uuid.New()), now.Add(time.Hour))))

	n, err := s.store.CountBySession(ctx, sid, now)
	s.Require().NoError(err)
	s.Equal(2, n)
}
