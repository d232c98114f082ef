package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrAttemptNotFound is returned when no attempt exists for the state,
	// either because it was never issued, already consumed, or expired.
	ErrAttemptNotFound = errors.New("authorization attempt not found")
	// ErrAttemptRedisUnavailable is returned when the store cannot be reached.
	ErrAttemptRedisUnavailable = errors.New("attempt redis unavailable")
)

// AttemptStore keeps per-attempt PKCE verifiers keyed by the state value,
// scoping the verifier/challenge pair to one authorization attempt instead
// of engine-instance fields. Concurrent authorization requests never share
// state through the engine.
type AttemptStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewAttemptStore creates an attempt store. Attempts expire after ttl; a
// callback arriving later is treated as unknown.
func NewAttemptStore(redisClient redis.UniversalClient, prefix string, ttl time.Duration) *AttemptStore {
	if prefix == "" {
		prefix = "pa"
	}
	return &AttemptStore{redis: redisClient, prefix: prefix, ttl: ttl}
}

// Put records the verifier for a freshly issued state.
func (s *AttemptStore) Put(ctx context.Context, state, verifier string) error {
	if err := s.redis.Set(ctx, s.key(state), verifier, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrAttemptRedisUnavailable, err)
	}
	return nil
}

// Consume atomically retrieves and deletes the verifier for a state. A
// second consume of the same state fails with ErrAttemptNotFound.
func (s *AttemptStore) Consume(ctx context.Context, state string) (string, error) {
	verifier, err := s.redis.GetDel(ctx, s.key(state)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrAttemptNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAttemptRedisUnavailable, err)
	}
	return verifier, nil
}

func (s *AttemptStore) key(state string) string {
	return s.prefix + ":" + state
}
