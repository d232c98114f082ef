package benchmark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable is returned when neither the cache nor the source can
// produce a report.
var ErrUnavailable = errors.New("benchmark source unavailable")

// DefaultTTL is how long a compiled report is served from cache.
const DefaultTTL = 5 * time.Minute

// Source produces a compiled benchmark report for a company.
type Source interface {
	Compile(ctx context.Context, companyID string) (json.RawMessage, error)
}

// Service caches Source output in Redis keyed by company.
type Service struct {
	redis  redis.UniversalClient
	source Source
	prefix string
	ttl    time.Duration
}

// NewService creates a Service. A non-positive ttl falls back to DefaultTTL.
func NewService(redisClient redis.UniversalClient, source Source, prefix string, ttl time.Duration) *Service {
	if prefix == "" {
		prefix = "bm"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		redis:  redisClient,
		source: source,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Report returns the benchmark report for companyID and whether it came from
// cache. Cache read failures fall through to the source; cache write
// failures are ignored.
func (s *Service) Report(ctx context.Context, companyID string) (json.RawMessage, bool, error) {
	key := s.key(companyID)

	cached, err := s.redis.Get(ctx, key).Bytes()
	if err == nil && json.Valid(cached) {
		return cached, true, nil
	}

	report, err := s.source.Compile(ctx, companyID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	_ = s.redis.Set(ctx, key, []byte(report), s.ttl).Err()

	return report, false, nil
}

func (s *Service) key(companyID string) string {
	return s.prefix + ":" + companyID
}
