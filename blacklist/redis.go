package blacklist

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keeps entries as "<prefix>:bl:<sha256(token)>" holding the expiry in
// unix milliseconds, with a PX TTL matching the remaining lifetime.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedis creates a Redis-backed Cache. now may be nil.
func NewRedis(client redis.UniversalClient, prefix string, now func() time.Time) *Redis {
	if prefix == "" {
		prefix = "la"
	}
	if now == nil {
		now = time.Now
	}
	return &Redis{
		redis:  client,
		prefix: prefix,
		now:    now,
	}
}

// Add revokes token until expiresAt.
func (b *Redis) Add(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := ttlUntil(expiresAt, b.now())
	value := strconv.FormatInt(expiresAt.UnixMilli(), 10)

	if err := b.redis.Set(ctx, b.key(token), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// IsBlacklisted reports whether token has a live entry.
func (b *Redis) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	expiresAtMs, err := b.redis.Get(ctx, b.key(token)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return b.now().UnixMilli() < expiresAtMs, nil
}

func (b *Redis) key(token string) string {
	return b.prefix + ":bl:" + tokenDigest(token)
}
