package revocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"passq/internal/vault/models"
)

const revokedKeyPrefix = "revoked:"

// revokedJSON is the JSON-serializable representation of a RevokedToken.
type revokedJSON struct {
	JTI       string `json:"jti"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	TokenType string `json:"token_type"`
	Reason    string `json:"reason"`
	RevokedAt int64  `json:"revoked_at"` // Unix nano
	ExpiresAt int64  `json:"expires_at"` // Unix nano
}

// RedisStore is the production revocation list. Tombstones carry a TTL of
// the token's remaining life plus the retention window, so Redis handles
// expiry and DeleteExpired is a no-op.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedis constructs a Redis-backed revocation list.
func NewRedis(client *redis.Client, retention time.Duration) *RedisStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisStore{client: client, retention: retention}
}

func revokedKey(jti string) string {
	return revokedKeyPrefix + jti
}

func (s *RedisStore) Revoke(ctx context.Context, token *models.RevokedToken) error {
	data, err := json.Marshal(revokedJSON{
		JTI:       token.JTI,
		UserID:    token.UserID,
		SessionID: token.SessionID,
		TokenType: token.TokenType,
		Reason:    token.Reason,
		RevokedAt: token.RevokedAt.UnixNano(),
		ExpiresAt: token.ExpiresAt.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("marshal revoked token: %w", err)
	}

	ttl := time.Until(token.ExpiresAt) + s.retention
	if ttl <= 0 {
		ttl = s.retention
	}
	if err := s.client.Set(ctx, revokedKey(token.JTI), data, ttl).Err(); err != nil {
		return fmt.Errorf("store revoked token: %w", err)
	}
	return nil
}

func (s *RedisStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	exists, err := s.client.Exists(ctx, revokedKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("check token revocation: %w", err)
	}
	return exists > 0, nil
}

func (s *RedisStore) Find(ctx context.Context, jti string) (*models.RevokedToken, error) {
	data, err := s.client.Get(ctx, revokedKey(jti)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find revoked token: %w", err)
	}

	var j revokedJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("unmarshal revoked token: %w", err)
	}
	return &models.RevokedToken{
		JTI:       j.JTI,
		UserID:    j.UserID,
		SessionID: j.SessionID,
		TokenType: j.TokenType,
		Reason:    j.Reason,
		RevokedAt: time.Unix(0, j.RevokedAt),
		ExpiresAt: time.Unix(0, j.ExpiresAt),
	}, nil
}

// DeleteExpired is a no-op: Redis expires tombstones via TTL.
func (s *RedisStore) DeleteExpired(_ context.Context, _ time.Time, _ time.Duration) (int, error) {
	return 0, nil
}

var _ Store = (*RedisStore)(nil)
