package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"rollcall/internal/attendance/models"
	id "rollcall/pkg/domain"
	"rollcall/pkg/platform/sentinel"
)

const (
	tokenKeyPrefix   = "rollcall:qr:"
	sessionKeyPrefix = "rollcall:qr:session:"

	// DefaultRetention keeps a token's key around after it expires so that
	// validation still answers Expired instead of NotFound.
	DefaultRetention = 24 * time.Hour
)

// RedisStore keeps QR tokens in Redis as JSON, with a per-session sorted set
// scored by expiry for counting live tokens.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
}

type RedisStoreOption func(*RedisStore)

// WithRetention overrides how long keys outlive token expiry.
func WithRetention(d time.Duration) RedisStoreOption {
	return func(s *RedisStore) {
		s.retention = d
	}
}

func NewRedis(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{client: client, retention: DefaultRetention}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

type redisToken struct {
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Save writes the token with SET NX so a value is never overwritten, and
// indexes it under its session in the same pipeline.
func (s *RedisStore) Save(ctx context.Context, token *models.QRCodeToken) error {
	body, err := json.Marshal(redisToken{
		SessionID: token.SessionID.String(),
		ExpiresAt: token.ExpiresAt,
		CreatedAt: token.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode qr token: %w", err)
	}
	ttl := time.Until(token.ExpiresAt) + s.retention
	if ttl <= 0 {
		ttl = s.retention
	}

	ok, err := s.client.SetNX(ctx, tokenKeyPrefix+token.Token, body, ttl).Result()
	if err != nil {
		return fmt.Errorf("save qr token: %w", err)
	}
	if !ok {
		return fmt.Errorf("qr token already exists: %w", sentinel.ErrConflict)
	}

	sessionKey := sessionKeyPrefix + token.SessionID.String()
	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, sessionKey, redis.Z{Score: float64(token.ExpiresAt.UnixMilli()), Member: token.Token})
	// NX sets the first TTL, GT only ever extends it.
	pipe.ExpireNX(ctx, sessionKey, ttl)
	pipe.ExpireGT(ctx, sessionKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("index qr token: %w", err)
	}
	return nil
}

func (s *RedisStore) Find(ctx context.Context, value string) (*models.QRCodeToken, error) {
	raw, err := s.client.Get(ctx, tokenKeyPrefix+value).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("qr token not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find qr token: %w", err)
	}
	var stored redisToken
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode qr token: %w", err)
	}
	sessionID, err := id.ParseSessionID(stored.SessionID)
	if err != nil {
		return nil, fmt.Errorf("decode qr token session: %w", err)
	}
	return &models.QRCodeToken{
		Token:     value,
		SessionID: sessionID,
		ExpiresAt: stored.ExpiresAt,
		CreatedAt: stored.CreatedAt,
	}, nil
}

// CountBySession counts index entries whose expiry is after now.
func (s *RedisStore) CountBySession(ctx context.Context, sessionID id.SessionID, now time.Time) (int, error) {
	minScore := "(" + strconv.FormatInt(now.UnixMilli(), 10)
	n, err := s.client.ZCount(ctx, sessionKeyPrefix+sessionID.String(), minScore, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("count qr tokens: %w", err)
	}
	return int(n), nil
}
