package flows

import (
	"context"
	"errors"
	"time"

	"github.com/leasehub/leaseAuth/account"
	"github.com/leasehub/leaseAuth/refresh"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureNotReady
	RefreshFailureNotFound
	RefreshFailureExpired
	RefreshFailureUserGone
	RefreshFailureAccountNotActive
	RefreshFailureBackend
	RefreshFailureIssueAccess
)

// RefreshResult carries either the new access token or failure metadata.
type RefreshResult struct {
	Failure     RefreshFailureKind
	Err         error
	UserID      string
	User        account.User
	AccessToken string
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Now          func() time.Time
	Warn         func(string, ...any)
	RefreshStore refresh.Store
	FindUserByID func(ctx context.Context, userID string) (account.User, error)
	UserNotFound error
	IssueAccess  func(email string, role account.Role, status string) (string, error)
}

// RunRefresh mints a new access token for the holder of value. The refresh
// value itself is not rotated. An expired record is removed with a
// compare-and-delete so a record written by a concurrent login survives.
func RunRefresh(ctx context.Context, value string, deps RefreshDeps) RefreshResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.RefreshStore == nil || deps.FindUserByID == nil || deps.IssueAccess == nil {
		return RefreshResult{Failure: RefreshFailureNotReady}
	}
	if value == "" {
		return RefreshResult{Failure: RefreshFailureNotFound}
	}

	rec, err := deps.RefreshStore.FindByValue(ctx, value)
	if err != nil {
		if errors.Is(err, refresh.ErrNotFound) {
			return RefreshResult{Failure: RefreshFailureNotFound, Err: err}
		}
		return RefreshResult{Failure: RefreshFailureBackend, Err: err}
	}

	if rec.Expired(deps.Now()) {
		if _, err := deps.RefreshStore.DeleteIfMatch(ctx, rec.UserID, value); err != nil {
			deps.Warn("leaseAuth: expired refresh record delete failed", "error", err)
		}
		return RefreshResult{Failure: RefreshFailureExpired, UserID: rec.UserID}
	}

	user, err := deps.FindUserByID(ctx, rec.UserID)
	if err != nil {
		if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
			return RefreshResult{Failure: RefreshFailureUserGone, Err: err, UserID: rec.UserID}
		}
		return RefreshResult{Failure: RefreshFailureBackend, Err: err, UserID: rec.UserID}
	}
	if user.Status != account.StatusActive {
		return RefreshResult{Failure: RefreshFailureAccountNotActive, UserID: rec.UserID, User: user}
	}

	access, err := deps.IssueAccess(user.Email, user.Role, string(user.Verification))
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssueAccess, Err: err, UserID: rec.UserID, User: user}
	}

	return RefreshResult{
		UserID:      rec.UserID,
		User:        user,
		AccessToken: access,
	}
}
