package leaseAuth

import (
	"context"
	"io"
	"time"

	"github.com/leasehub/leaseAuth/account"
	internalaudit "github.com/leasehub/leaseAuth/internal/audit"
)

// UserDirectory is the read-only user lookup the gate and login depend on.
// A miss must be reported as [ErrUserNotFound] (directly or wrapped).
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (account.User, error)
}

// UserByIDFinder is needed by Refresh to re-read the owner of a refresh
// record. Directories that do not implement it make Build fail.
type UserByIDFinder interface {
	FindByID(ctx context.Context, id string) (account.User, error)
}

// PasswordUpdater is optional. When the directory implements it, legacy
// password hashes are rewritten with the primary scheme after a successful
// login.
type PasswordUpdater interface {
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
}

// Principal is the request-scoped authenticated identity.
type Principal = account.Principal

// Event is an auth event delivered to an [EventSink].
type Event = internalaudit.Event

// EventSink receives auth events from the engine's async dispatcher.
type EventSink = internalaudit.Sink

// NoOpSink discards events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink forwards events to a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// MultiSink fans an event out to several sinks.
type MultiSink = internalaudit.MultiSink

// Event types.
const (
	EventLoginSuccess   = internalaudit.TypeLoginSuccess
	EventLoginFailure   = internalaudit.TypeLoginFailure
	EventRefreshSuccess = internalaudit.TypeRefreshSuccess
	EventRefreshFailure = internalaudit.TypeRefreshFailure
	EventLogout         = internalaudit.TypeLogout
	EventUserRevoked    = internalaudit.TypeUserRevoked
	EventUserPurged     = internalaudit.TypeUserPurged
)

// NewEvent returns an event with a fresh id and UTC timestamp.
func NewEvent(eventType string, now time.Time) Event {
	return internalaudit.NewEvent(eventType, now)
}

// NewChannelSink creates a sink backed by a channel of the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a sink that writes events to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// LoginResult is what a successful login hands back to the transport.
// Tokens are returned raw, without the "Bearer " prefix.
type LoginResult struct {
	UserID           string
	Email            string
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}
