package leaseAuth

import (
	"errors"

	"github.com/leasehub/leaseAuth/account"
)

var (
	// ErrUnauthenticated is returned by the gate and by policy checks when no
	// trustworthy principal exists. Transport adapters map it to 401.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrAccessDenied is returned when an authenticated principal lacks the
	// right to act. Transport adapters map it to 403.
	ErrAccessDenied = errors.New("access denied")
	// ErrConfiguration is returned by Build and Config.Validate.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrInvalidToken covers malformed, tampered and wrong-algorithm tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when a token is presented at or after exp.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned by the gate for a blacklisted access token.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrInvalidRefreshToken is returned for unknown, superseded or expired
	// refresh values.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrInvalidCredentials hides whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountNotActive is returned when the account status is not ACTIVE.
	ErrAccountNotActive = errors.New("account not active")
	// ErrLoginRateLimited is returned once the failed-login budget is spent.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrBackendUnavailable wraps store and directory failures.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrEngineNotReady is returned by a zero or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidUserID is returned by RevokeUser for an empty id.
	ErrInvalidUserID = errors.New("invalid user id")
	// ErrUserNotFound is the directory miss sentinel. UserDirectory
	// implementations return it (or wrap it) when no user matches.
	ErrUserNotFound = account.ErrUserNotFound
)

// IsUnauthenticated reports whether err should be answered with 401.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}

// IsAccessDenied reports whether err should be answered with 403.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}
