package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	MaxAuthAttempts     int
	AuthWindow          time.Duration
	MaxRefreshAttempts  int
	RefreshWindow       time.Duration
	RefreshLockout      time.Duration
	MaxExchangeAttempts int
	ExchangeWindow      time.Duration
}

// Limiter enforces per-IP budgets for auth, refresh, and code-exchange
// operations using Redis counters. Counters are shared across service
// replicas; all operations are single-key.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckAuth records one general auth-endpoint attempt for the IP and
// enforces the general budget.
func (l *Limiter) CheckAuth(ctx context.Context, ip string) error {
	if ip == "" {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, authKey(ip), l.config.AuthWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxAuthAttempts) {
		return ErrRateLimited
	}

	return nil
}

// CheckRefresh records one refresh attempt for the IP. Exceeding the refresh
// budget arms a lockout marker; while the marker lives, every attempt is
// rejected without touching the counting window.
func (l *Limiter) CheckRefresh(ctx context.Context, ip string) error {
	if ip == "" {
		return nil
	}

	locked, err := l.redis.Exists(ctx, refreshLockKey(ip)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if locked > 0 {
		return ErrRateLimited
	}

	count, err := l.incrementWithTTL(ctx, refreshKey(ip), l.config.RefreshWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxRefreshAttempts) {
		if err := l.redis.Set(ctx, refreshLockKey(ip), "1", l.config.RefreshLockout).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return ErrRateLimited
	}

	return nil
}

// ResetRefresh clears the refresh counter for the IP. Called after a
// successful refresh so legitimate clients do not accumulate toward lockout.
func (l *Limiter) ResetRefresh(ctx context.Context, ip string) error {
	if ip == "" {
		return nil
	}
	if err := l.redis.Del(ctx, refreshKey(ip)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// CheckExchange records one authorization-code exchange attempt for the IP
// within the rolling exchange window.
func (l *Limiter) CheckExchange(ctx context.Context, ip string) error {
	if ip == "" {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, exchangeKey(ip), l.config.ExchangeWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxExchangeAttempts) {
		return ErrRateLimited
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func authKey(ip string) string        { return "aa:" + ip }
func refreshKey(ip string) string     { return "ar:" + ip }
func refreshLockKey(ip string) string { return "arl:" + ip }
func exchangeKey(ip string) string    { return "ax:" + ip }
