package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/leasehub/leaseAuth/account"
	"github.com/leasehub/leaseAuth/refresh"
)

// LoginFailureKind classifies login flow failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureNotReady
	LoginFailureRateLimited
	LoginFailureInvalidCredentials
	LoginFailureAccountNotActive
	LoginFailureBackend
	LoginFailureIssueAccess
	LoginFailureRotate
)

// LoginResult carries either the issued pair or failure metadata. Reason is a
// short machine tag used in event metadata.
type LoginResult struct {
	Failure      LoginFailureKind
	Err          error
	Reason       string
	User         account.User
	AccessToken  string
	Refresh      refresh.Record
	HashUpgraded bool
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	Now      func() time.Time
	ClientIP func(context.Context) string
	Warn     func(string, ...any)

	CheckLoginRate     func(ctx context.Context, identifier, ip string) error
	IncrementLoginRate func(ctx context.Context, identifier, ip string) error
	ResetLoginRate     func(ctx context.Context, identifier, ip string) error
	RateLimited        error

	FindUser     func(ctx context.Context, email string) (account.User, error)
	UserNotFound error

	VerifyPassword     func(password, hash string) (bool, error)
	NeedsUpgrade       func(hash string) bool
	HashPassword       func(password string) (string, error)
	UpdatePasswordHash func(ctx context.Context, userID, hash string) error

	IssueAccess  func(email string, role account.Role, status string) (string, error)
	RefreshTTL   time.Duration
	RefreshStore refresh.Store
}

// RunLogin checks credentials, requires an ACTIVE account, issues an access
// token and rotates the user's single refresh record.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) LoginResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ClientIP == nil {
		deps.ClientIP = func(context.Context) string { return "" }
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.FindUser == nil || deps.VerifyPassword == nil || deps.IssueAccess == nil || deps.RefreshStore == nil {
		return LoginResult{Failure: LoginFailureNotReady}
	}

	email = strings.TrimSpace(email)
	ip := deps.ClientIP(ctx)

	if deps.CheckLoginRate != nil {
		if err := deps.CheckLoginRate(ctx, email, ip); err != nil {
			return rateFailure(err, deps)
		}
	}

	fail := func(reason string, user account.User) LoginResult {
		if deps.IncrementLoginRate != nil {
			if err := deps.IncrementLoginRate(ctx, email, ip); err != nil {
				if deps.RateLimited != nil && errors.Is(err, deps.RateLimited) {
					return LoginResult{Failure: LoginFailureRateLimited, Err: err, Reason: reason, User: user}
				}
				deps.Warn("leaseAuth: login throttle increment failed", "error", err)
			}
		}
		return LoginResult{Failure: LoginFailureInvalidCredentials, Reason: reason, User: user}
	}

	if email == "" || password == "" {
		return fail("empty_credentials", account.User{})
	}

	user, err := deps.FindUser(ctx, email)
	if err != nil {
		if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
			return fail("user_not_found", account.User{})
		}
		return LoginResult{Failure: LoginFailureBackend, Err: err, Reason: "directory"}
	}

	ok, err := deps.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return fail("password_mismatch", user)
	}

	if user.Status != account.StatusActive {
		return LoginResult{Failure: LoginFailureAccountNotActive, Reason: "account_status", User: user}
	}

	upgraded := false
	if deps.NeedsUpgrade != nil && deps.HashPassword != nil && deps.UpdatePasswordHash != nil && deps.NeedsUpgrade(user.PasswordHash) {
		if next, err := deps.HashPassword(password); err == nil {
			if err := deps.UpdatePasswordHash(ctx, user.ID, next); err != nil {
				deps.Warn("leaseAuth: password hash upgrade update failed", "error", err)
			} else {
				upgraded = true
			}
		} else {
			deps.Warn("leaseAuth: password hash upgrade generation failed", "error", err)
		}
	}
	password = ""

	access, err := deps.IssueAccess(user.Email, user.Role, string(user.Verification))
	if err != nil {
		return LoginResult{Failure: LoginFailureIssueAccess, Err: err, Reason: "issue_access", User: user}
	}

	rec, err := refresh.Generate(user.ID, deps.Now(), deps.RefreshTTL)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssueAccess, Err: err, Reason: "issue_refresh", User: user}
	}
	if err := deps.RefreshStore.Rotate(ctx, rec); err != nil {
		return LoginResult{Failure: LoginFailureRotate, Err: err, Reason: "rotate_refresh", User: user}
	}

	if deps.ResetLoginRate != nil {
		if err := deps.ResetLoginRate(ctx, email, ip); err != nil {
			deps.Warn("leaseAuth: login throttle reset failed", "error", err)
		}
	}

	return LoginResult{
		User:         user,
		AccessToken:  access,
		Refresh:      rec,
		HashUpgraded: upgraded,
	}
}

func rateFailure(err error, deps LoginDeps) LoginResult {
	if deps.RateLimited != nil && errors.Is(err, deps.RateLimited) {
		return LoginResult{Failure: LoginFailureRateLimited, Err: err, Reason: "rate_limited"}
	}
	return LoginResult{Failure: LoginFailureBackend, Err: err, Reason: "throttle"}
}
