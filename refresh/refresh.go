package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no record matches the presented value.
	ErrNotFound = errors.New("refresh record not found")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("refresh store unavailable")
)

// Record is the persisted refresh credential of one user.
type Record struct {
	UserID    string
	Value     string
	ExpiresAt time.Time
}

// Expired reports whether r is unusable at now. A record whose expiry equals
// now is expired.
func (r Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// Store persists one record per user.
type Store interface {
	// Rotate replaces the user's record, inserting it when absent.
	Rotate(ctx context.Context, rec Record) error
	// FindByValue returns the record currently holding value, or ErrNotFound.
	FindByValue(ctx context.Context, value string) (Record, error)
	// DeleteIfMatch removes the user's record only while it still holds value.
	DeleteIfMatch(ctx context.Context, userID, value string) (bool, error)
	// DeleteByUser removes the user's record, if any.
	DeleteByUser(ctx context.Context, userID string) error
}

// Generate creates a fresh record for userID expiring exactly ttl after now.
func Generate(userID string, now time.Time, ttl time.Duration) (Record, error) {
	if userID == "" {
		return Record{}, errors.New("refresh record requires a user id")
	}
	if ttl <= 0 {
		return Record{}, errors.New("refresh ttl must be > 0")
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return Record{}, fmt.Errorf("generate refresh value: %w", err)
	}
	return Record{
		UserID:    userID,
		Value:     id.String(),
		ExpiresAt: now.Add(ttl),
	}, nil
}
