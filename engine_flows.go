package leaseAuth

import (
	"context"

	internalflows "github.com/leasehub/leaseAuth/internal/flows"
	"github.com/leasehub/leaseAuth/internal/rate"
)

func (e *Engine) buildFlows() internalflows.Service {
	warn := e.logger.Sugar().Warnw

	login := internalflows.LoginDeps{
		Now:            e.now,
		ClientIP:       clientIPFromContext,
		Warn:           warn,
		FindUser:       e.directory.FindByEmail,
		UserNotFound:   ErrUserNotFound,
		VerifyPassword: e.passwords.Verify,
		IssueAccess:    e.jwtManager.CreateAccess,
		RefreshTTL:     e.config.JWT.RefreshTTL,
		RefreshStore:   e.refreshStore,
	}
	if e.rateLimiter != nil {
		login.CheckLoginRate = e.rateLimiter.CheckLogin
		login.IncrementLoginRate = e.rateLimiter.IncrementLogin
		login.ResetLoginRate = e.rateLimiter.ResetLogin
		login.RateLimited = rate.ErrRateLimited
	}
	if e.updater != nil {
		login.NeedsUpgrade = e.passwords.NeedsUpgrade
		login.HashPassword = e.passwords.Hash
		login.UpdatePasswordHash = e.updater.UpdatePasswordHash
	}

	return internalflows.New(internalflows.Deps{
		Login: login,
		Refresh: internalflows.RefreshDeps{
			Now:          e.now,
			Warn:         warn,
			RefreshStore: e.refreshStore,
			FindUserByID: e.byID.FindByID,
			UserNotFound: ErrUserNotFound,
			IssueAccess:  e.jwtManager.CreateAccess,
		},
		Logout: internalflows.LogoutDeps{
			Now:                 e.now,
			ParseIgnoringExpiry: e.jwtManager.ParseAccessIgnoringExpiry,
			Blacklist:           e.blacklist,
		},
		Authenticate: internalflows.AuthenticateDeps{
			ParseAccess:   e.jwtManager.ParseAccess,
			Bound:         PrincipalFromContext,
			FindUser:      e.directory.FindByEmail,
			UserNotFound:  ErrUserNotFound,
			Blacklist:     e.blacklist,
			LookupTimeout: e.config.Gate.LookupTimeout,
		},
		Revoke: internalflows.RevokeDeps{
			DeleteRefresh: e.refreshStore.DeleteByUser,
		},
	})
}

// LoginAttempts reports the failed-login count recorded for identifier.
// It returns 0 when the throttle is disabled.
func (e *Engine) LoginAttempts(ctx context.Context, identifier string) (int, error) {
	if e == nil || e.rateLimiter == nil {
		return 0, nil
	}
	return e.rateLimiter.LoginAttempts(ctx, identifier)
}
