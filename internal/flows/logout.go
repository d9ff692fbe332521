package flows

import (
	"context"
	"time"

	"github.com/leasehub/leaseAuth/blacklist"
	"github.com/leasehub/leaseAuth/jwt"
)

// LogoutFailureKind classifies logout flow failures for root-level mapping.
type LogoutFailureKind int

const (
	LogoutFailureNone LogoutFailureKind = iota
	LogoutFailureNotReady
	LogoutFailureMissingBearer
	LogoutFailureInvalidToken
	LogoutFailureBackend
)

// LogoutResult reports what was blacklisted. AlreadyExpired is set when the
// token had lapsed and nothing was written.
type LogoutResult struct {
	Failure        LogoutFailureKind
	Err            error
	Email          string
	ExpiresAt      time.Time
	AlreadyExpired bool
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Now                 func() time.Time
	ParseIgnoringExpiry func(string) (*jwt.AccessClaims, error)
	Blacklist           blacklist.Cache
}

// RunLogout blacklists the presented access token until its own exp.
func RunLogout(ctx context.Context, authorizationHeader string, deps LogoutDeps) LogoutResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ParseIgnoringExpiry == nil || deps.Blacklist == nil {
		return LogoutResult{Failure: LogoutFailureNotReady}
	}

	token, ok := BearerToken(authorizationHeader)
	if !ok {
		return LogoutResult{Failure: LogoutFailureMissingBearer}
	}

	claims, err := deps.ParseIgnoringExpiry(token)
	if err != nil {
		return LogoutResult{Failure: LogoutFailureInvalidToken, Err: err}
	}

	exp := claims.ExpiresAt.Time
	if !exp.After(deps.Now()) {
		return LogoutResult{Email: claims.Email, ExpiresAt: exp, AlreadyExpired: true}
	}

	if err := deps.Blacklist.Add(ctx, token, exp); err != nil {
		return LogoutResult{Failure: LogoutFailureBackend, Err: err, Email: claims.Email, ExpiresAt: exp}
	}
	return LogoutResult{Email: claims.Email, ExpiresAt: exp}
}
