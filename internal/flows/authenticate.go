package flows

import (
	"context"
	"errors"
	"time"

	"github.com/leasehub/leaseAuth/account"
	"github.com/leasehub/leaseAuth/blacklist"
	"github.com/leasehub/leaseAuth/jwt"
)

// AuthenticateFailureKind classifies gate failures for root-level mapping.
type AuthenticateFailureKind int

const (
	AuthenticateFailureNone AuthenticateFailureKind = iota
	AuthenticateFailureNotReady
	AuthenticateFailureInvalidToken
	AuthenticateFailureExpired
	AuthenticateFailureUserNotFound
	AuthenticateFailureBlacklisted
	AuthenticateFailureLookup
)

// AuthenticateResult is the gate outcome. Anonymous requests carry neither a
// failure nor a principal. AlreadyBound reports that the context held a
// principal and no lookups were made.
type AuthenticateResult struct {
	Failure      AuthenticateFailureKind
	Err          error
	Anonymous    bool
	AlreadyBound bool
	Claims       *jwt.AccessClaims
	Principal    *account.Principal
}

// AuthenticateDeps captures gate dependencies.
type AuthenticateDeps struct {
	ParseAccess   func(string) (*jwt.AccessClaims, error)
	Bound         func(context.Context) *account.Principal
	FindUser      func(ctx context.Context, email string) (account.User, error)
	UserNotFound  error
	Blacklist     blacklist.Cache
	LookupTimeout time.Duration
}

// RunAuthenticate runs the ordered, fail-closed gate: bearer extraction,
// token validation, existing binding, directory lookup, blacklist check. Both
// lookups share one LookupTimeout budget.
func RunAuthenticate(ctx context.Context, authorizationHeader string, deps AuthenticateDeps) AuthenticateResult {
	if deps.ParseAccess == nil || deps.FindUser == nil || deps.Blacklist == nil {
		return AuthenticateResult{Failure: AuthenticateFailureNotReady}
	}

	token, ok := BearerToken(authorizationHeader)
	if !ok {
		return AuthenticateResult{Anonymous: true}
	}

	claims, err := deps.ParseAccess(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return AuthenticateResult{Failure: AuthenticateFailureExpired, Err: err}
		}
		return AuthenticateResult{Failure: AuthenticateFailureInvalidToken, Err: err}
	}

	if deps.Bound != nil {
		if p := deps.Bound(ctx); p != nil {
			return AuthenticateResult{AlreadyBound: true, Claims: claims, Principal: p}
		}
	}

	lookupCtx := ctx
	if deps.LookupTimeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, deps.LookupTimeout)
		defer cancel()
	}

	user, err := deps.FindUser(lookupCtx, claims.Email)
	if err != nil {
		if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
			return AuthenticateResult{Failure: AuthenticateFailureUserNotFound, Err: err, Claims: claims}
		}
		return AuthenticateResult{Failure: AuthenticateFailureLookup, Err: err, Claims: claims}
	}

	listed, err := deps.Blacklist.IsBlacklisted(lookupCtx, token)
	if err != nil {
		return AuthenticateResult{Failure: AuthenticateFailureLookup, Err: err, Claims: claims}
	}
	if listed {
		return AuthenticateResult{Failure: AuthenticateFailureBlacklisted, Claims: claims}
	}

	return AuthenticateResult{
		Claims:    claims,
		Principal: account.NewPrincipal(user.Email, user.Role),
	}
}
