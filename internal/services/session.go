package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "sess:"

var ErrSessionNotFound = errors.New("session not found")

// SessionService owns server-side login state in redis. A session is a random
// 128-bit identifier mapped to a user id with a sliding TTL; the identifier is
// what goes into the HTTP-only cookie.
type SessionService struct {
	Redis *redis.Client
	TTL   time.Duration
}

func NewSessionService(redisClient *redis.Client, ttl time.Duration) *SessionService {
	return &SessionService{Redis: redisClient, TTL: ttl}
}

func (s *SessionService) Create(ctx context.Context, userID uuid.UUID) (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	sessionID := hex.EncodeToString(raw)

	if err := s.Redis.Set(ctx, sessionKeyPrefix+sessionID, userID.String(), s.TTL).Err(); err != nil {
		return "", err
	}

	return sessionID, nil
}

// Lookup resolves a session id to its user and refreshes the sliding TTL.
func (s *SessionService) Lookup(ctx context.Context, sessionID string) (uuid.UUID, error) {
	value, err := s.Redis.Get(ctx, sessionKeyPrefix+sessionID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, ErrSessionNotFound
		}
		return uuid.Nil, err
	}

	userID, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, ErrSessionNotFound
	}

	s.Redis.Expire(ctx, sessionKeyPrefix+sessionID, s.TTL)
	return userID, nil
}

// Destroy removes a session. Destroying a session that no longer exists is a
// no-op so that logout stays idempotent.
func (s *SessionService) Destroy(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.Redis.Del(ctx, sessionKeyPrefix+sessionID).Err()
}
