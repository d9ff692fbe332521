package blacklist

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// ErrUnavailable wraps backend failures. Callers must treat it as a denial.
var ErrUnavailable = errors.New("blacklist backend unavailable")

// minTTL is used for entries whose expiry has already passed.
const minTTL = time.Millisecond

// Cache is the revocation store consulted by the authentication gate.
type Cache interface {
	Add(ctx context.Context, token string, expiresAt time.Time) error
	IsBlacklisted(ctx context.Context, token string) (bool, error)
}

func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func ttlUntil(expiresAt, now time.Time) time.Duration {
	ttl := expiresAt.Sub(now)
	if ttl < minTTL {
		return minTTL
	}
	return ttl
}
