package refresh

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const rotateScript = `
local old = redis.call("HGET", KEYS[1], "digest")
if old and old ~= ARGV[2] then
  redis.call("DEL", ARGV[5] .. old)
end
redis.call("HSET", KEYS[1], "digest", ARGV[2], "exp", ARGV[3])
redis.call("PEXPIRE", KEYS[1], ARGV[4])
redis.call("SET", KEYS[2], ARGV[1] .. "|" .. ARGV[3], "PX", ARGV[4])
return 1
`

const deleteIfMatchScript = `
redis.call("DEL", KEYS[2])
local cur = redis.call("HGET", KEYS[1], "digest")
if cur == ARGV[1] then
  redis.call("DEL", KEYS[1])
  return 1
end
return 0
`

const deleteByUserScript = `
local cur = redis.call("HGET", KEYS[1], "digest")
if cur then
  redis.call("DEL", ARGV[1] .. cur)
end
return redis.call("DEL", KEYS[1])
`

var (
	rotateLua        = redis.NewScript(rotateScript)
	deleteIfMatchLua = redis.NewScript(deleteIfMatchScript)
	deleteByUserLua  = redis.NewScript(deleteByUserScript)
)

// Redis stores a hash per user ("<prefix>:rt:u:<userID>") holding the digest
// of the current value and an index key per value
// ("<prefix>:rt:v:<digest>") pointing back at the user. Both expire with the
// record. Values themselves are never written.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedis creates a Redis-backed Store. now may be nil.
func NewRedis(client redis.UniversalClient, prefix string, now func() time.Time) *Redis {
	if prefix == "" {
		prefix = "la"
	}
	if now == nil {
		now = time.Now
	}
	return &Redis{redis: client, prefix: prefix, now: now}
}

func (s *Redis) Rotate(ctx context.Context, rec Record) error {
	digest := valueDigest(rec.Value)
	ttl := rec.ExpiresAt.Sub(s.now())
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}

	err := rotateLua.Run(
		ctx,
		s.redis,
		[]string{s.userKey(rec.UserID), s.valueKeyPrefix() + digest},
		rec.UserID,
		digest,
		strconv.FormatInt(rec.ExpiresAt.UnixMilli(), 10),
		strconv.FormatInt(ttl.Milliseconds(), 10),
		s.valueKeyPrefix(),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Redis) FindByValue(ctx context.Context, value string) (Record, error) {
	raw, err := s.redis.Get(ctx, s.valueKeyPrefix()+valueDigest(value)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	userID, expRaw, ok := strings.Cut(raw, "|")
	if !ok || userID == "" {
		return Record{}, ErrNotFound
	}
	expMs, err := strconv.ParseInt(expRaw, 10, 64)
	if err != nil {
		return Record{}, ErrNotFound
	}

	return Record{
		UserID:    userID,
		Value:     value,
		ExpiresAt: time.UnixMilli(expMs),
	}, nil
}

func (s *Redis) DeleteIfMatch(ctx context.Context, userID, value string) (bool, error) {
	digest := valueDigest(value)
	deleted, err := deleteIfMatchLua.Run(
		ctx,
		s.redis,
		[]string{s.userKey(userID), s.valueKeyPrefix() + digest},
		digest,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return deleted == 1, nil
}

func (s *Redis) DeleteByUser(ctx context.Context, userID string) error {
	if err := deleteByUserLua.Run(ctx, s.redis, []string{s.userKey(userID)}, s.valueKeyPrefix()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Redis) userKey(userID string) string {
	return s.prefix + ":rt:u:" + userID
}

func (s *Redis) valueKeyPrefix() string {
	return s.prefix + ":rt:v:"
}

func valueDigest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
