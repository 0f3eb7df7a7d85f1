package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrTokenInvalid = errors.New("reset token is invalid or expired")

const (
	revokedPrefix     = "session:revoked:"
	userRevokedPrefix = "session:user_revoked_before:"
	resetPrefix       = "session:reset:"
)

// Store keeps sign-out revocations and password reset tokens in redis.
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Revoke marks a session id as signed out until the token would have expired anyway.
func (s *Store) Revoke(ctx context.Context, sessionID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if sessionID == "" || ttl <= 0 {
		return nil
	}
	return s.rdb.Set(ctx, revokedPrefix+sessionID, 1, ttl).Err()
}

func (s *Store) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, nil
	}
	n, err := s.rdb.Exists(ctx, revokedPrefix+sessionID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RevokeUser ends every session of userID issued up to now. ttl should cover
// the longest token lifetime.
func (s *Store) RevokeUser(ctx context.Context, userID string, ttl time.Duration) error {
	if userID == "" {
		return nil
	}
	return s.rdb.Set(ctx, userRevokedPrefix+userID, time.Now().UnixMilli(), ttl).Err()
}

// IsUserRevoked reports whether a token issued at issuedAt predates the last
// RevokeUser call for userID.
func (s *Store) IsUserRevoked(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	if userID == "" {
		return false, nil
	}
	before, err := s.rdb.Get(ctx, userRevokedPrefix+userID).Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return issuedAt.UnixMilli() <= before, nil
}

// IssueReset stores a single-use password reset token for userID.
func (s *Store) IssueReset(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)
	if err := s.rdb.Set(ctx, resetPrefix+token, userID, ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// ConsumeReset returns the user id bound to token and deletes the token.
func (s *Store) ConsumeReset(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrTokenInvalid
	}
	userID, err := s.rdb.GetDel(ctx, resetPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrTokenInvalid
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}
