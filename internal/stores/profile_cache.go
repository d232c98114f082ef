package stores

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrProfileRedisUnavailable is returned when the cache cannot be reached.
var ErrProfileRedisUnavailable = errors.New("profile cache redis unavailable")

// CachedProfile is the identity-provider profile held briefly between the
// token exchange and the profile lookup. It is never persisted beyond the
// cache TTL.
type CachedProfile struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// ProfileCache avoids redundant provider profile lookups within a short
// window. Entries are keyed by a SHA-256 digest of the provider access
// token.
type ProfileCache struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewProfileCache creates a profile cache with the given entry TTL.
func NewProfileCache(redisClient redis.UniversalClient, prefix string, ttl time.Duration) *ProfileCache {
	if prefix == "" {
		prefix = "pc"
	}
	return &ProfileCache{redis: redisClient, prefix: prefix, ttl: ttl}
}

// Get returns the cached profile for the provider token, or (nil, nil) on a
// cache miss.
func (c *ProfileCache) Get(ctx context.Context, providerToken string) (*CachedProfile, error) {
	raw, err := c.redis.Get(ctx, c.key(providerToken)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileRedisUnavailable, err)
	}

	profile := &CachedProfile{}
	if err := json.Unmarshal(raw, profile); err != nil {
		// Corrupt entries count as misses; the caller re-fetches.
		return nil, nil
	}
	return profile, nil
}

// Put caches a freshly fetched profile for the TTL window.
func (c *ProfileCache) Put(ctx context.Context, providerToken string, profile CachedProfile) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	if err := c.redis.Set(ctx, c.key(providerToken), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrProfileRedisUnavailable, err)
	}
	return nil
}

func (c *ProfileCache) key(providerToken string) string {
	sum := sha256.Sum256([]byte(providerToken))
	return c.prefix + ":" + hex.EncodeToString(sum[:])
}
