package rate

import "errors"

var (
	// ErrRateLimited is returned once an identifier or IP exhausts its window.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps counter backend failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
