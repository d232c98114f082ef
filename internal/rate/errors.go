package rate

import "errors"

var (
	// ErrRateLimited is returned when an attempt budget is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable is returned when the counter store cannot be reached.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
