// Package denylist implements the refresh-token revocation ledger: a
// Redis-keyed store with per-entry TTL, shared by all service replicas.
//
// Entries are keyed by a SHA-256 digest of the presented token, never the
// raw token string, so the ledger holds no secret material. TTLs equal the
// token's remaining lifetime at revocation time, which bounds the ledger to
// currently-valid-but-revoked tokens.
package denylist

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable is returned when the backing store cannot be reached.
var ErrUnavailable = errors.New("denylist unavailable")

// ErrInvalidTTL is returned for non-positive TTLs; a token with no remaining
// lifetime cannot be usefully revoked.
var ErrInvalidTTL = errors.New("denylist ttl must be > 0")

const sentinel = "revoked"

// Store is the revocation ledger. All operations are single-key and rely on
// Redis atomicity; no cross-key coordination is required.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a ledger using the given key prefix (e.g. "rl").
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "rl"
	}
	return &Store{redis: redisClient, prefix: prefix}
}

// Put records a revoked token for ttl. The entry self-expires exactly when
// the token would have expired naturally.
func (s *Store) Put(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	if err := s.redis.Set(ctx, s.key(token), sentinel, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Has reports whether the token is currently revoked.
func (s *Store) Has(ctx context.Context, token string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

func (s *Store) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return s.prefix + ":" + hex.EncodeToString(sum[:])
}
