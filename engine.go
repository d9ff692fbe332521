package leaseAuth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leasehub/leaseAuth/account"
	"github.com/leasehub/leaseAuth/blacklist"
	internalaudit "github.com/leasehub/leaseAuth/internal/audit"
	internalflows "github.com/leasehub/leaseAuth/internal/flows"
	"github.com/leasehub/leaseAuth/internal/rate"
	"github.com/leasehub/leaseAuth/jwt"
	"github.com/leasehub/leaseAuth/password"
	"github.com/leasehub/leaseAuth/refresh"
	"go.uber.org/zap"
)

// Engine is the auth core. Build it with [New]; the zero value reports
// [ErrEngineNotReady] from every method.
type Engine struct {
	config         Config
	directory      UserDirectory
	byID           UserByIDFinder
	updater        PasswordUpdater
	refreshStore   refresh.Store
	blacklist      blacklist.Cache
	ownedBlacklist *blacklist.Memory
	rateLimiter    *rate.Limiter
	passwords      password.Hasher
	jwtManager     *jwt.Manager
	events         *internalaudit.Dispatcher
	metrics        *Metrics
	logger         *zap.Logger
	now            func() time.Time
	flows          internalflows.Service
}

// Close flushes queued events and stops the in-memory blacklist sweeper if
// the engine created one.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.events != nil {
		e.events.Close()
	}
	if e.ownedBlacklist != nil {
		e.ownedBlacklist.Close()
	}
}

// EventsDropped reports events lost to dispatcher backpressure.
func (e *Engine) EventsDropped() uint64 {
	if e == nil || e.events == nil {
		return 0
	}
	return e.events.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Login checks credentials, requires an ACTIVE account, mints an access
// token and rotates the user's single refresh record.
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if e == nil || !e.flows.Initialized() {
		return nil, ErrEngineNotReady
	}

	email = strings.TrimSpace(email)
	res := e.flows.Login(ctx, email, password)

	switch res.Failure {
	case internalflows.LoginFailureNone:
	case internalflows.LoginFailureNotReady:
		return nil, ErrEngineNotReady
	case internalflows.LoginFailureRateLimited:
		e.metricInc(MetricLoginRateLimited)
		e.emitLoginFailure(ctx, email, res, ErrLoginRateLimited)
		return nil, ErrLoginRateLimited
	case internalflows.LoginFailureInvalidCredentials:
		e.metricInc(MetricLoginFailure)
		e.emitLoginFailure(ctx, email, res, ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	case internalflows.LoginFailureAccountNotActive:
		e.metricInc(MetricLoginAccountNotActive)
		e.emitLoginFailure(ctx, email, res, ErrAccountNotActive)
		return nil, ErrAccountNotActive
	case internalflows.LoginFailureBackend, internalflows.LoginFailureRotate:
		e.metricInc(MetricLoginFailure)
		e.logger.Warn("login backend failure", zap.String("reason", res.Reason), zap.Error(res.Err))
		e.emitLoginFailure(ctx, email, res, ErrBackendUnavailable)
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, res.Err)
	default:
		e.metricInc(MetricLoginFailure)
		e.logger.Error("login token issuance failed", zap.String("reason", res.Reason), zap.Error(res.Err))
		e.emitLoginFailure(ctx, email, res, res.Err)
		return nil, fmt.Errorf("issue tokens: %w", res.Err)
	}

	e.metricInc(MetricLoginSuccess)
	if res.HashUpgraded {
		e.metricInc(MetricPasswordUpgraded)
	}
	e.emitEvent(ctx, EventLoginSuccess, true, res.User.ID, email, nil, func() map[string]string {
		return map[string]string{
			"role": string(res.User.Role),
		}
	})

	return &LoginResult{
		UserID:           res.User.ID,
		Email:            email,
		AccessToken:      res.AccessToken,
		RefreshToken:     res.Refresh.Value,
		RefreshExpiresAt: res.Refresh.ExpiresAt,
	}, nil
}

// Refresh mints a new access token for the holder of refreshToken. The
// refresh value itself stays unchanged.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if e == nil || !e.flows.Initialized() {
		return "", ErrEngineNotReady
	}

	res := e.flows.Refresh(ctx, refreshToken)

	switch res.Failure {
	case internalflows.RefreshFailureNone:
	case internalflows.RefreshFailureNotReady:
		return "", ErrEngineNotReady
	case internalflows.RefreshFailureNotFound:
		e.metricInc(MetricRefreshFailure)
		e.emitRefreshFailure(ctx, res, "unknown_value", ErrInvalidRefreshToken)
		return "", ErrInvalidRefreshToken
	case internalflows.RefreshFailureUserGone:
		e.metricInc(MetricRefreshFailure)
		e.emitRefreshFailure(ctx, res, "user_gone", ErrInvalidRefreshToken)
		return "", ErrInvalidRefreshToken
	case internalflows.RefreshFailureExpired:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricRefreshExpired)
		e.emitRefreshFailure(ctx, res, "expired", ErrInvalidRefreshToken)
		return "", ErrInvalidRefreshToken
	case internalflows.RefreshFailureAccountNotActive:
		e.metricInc(MetricRefreshFailure)
		e.emitRefreshFailure(ctx, res, "account_status", ErrAccountNotActive)
		return "", ErrAccountNotActive
	case internalflows.RefreshFailureBackend:
		e.metricInc(MetricRefreshFailure)
		e.logger.Warn("refresh backend failure", zap.Error(res.Err))
		e.emitRefreshFailure(ctx, res, "backend", ErrBackendUnavailable)
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, res.Err)
	default:
		e.metricInc(MetricRefreshFailure)
		e.logger.Error("refresh token issuance failed", zap.Error(res.Err))
		e.emitRefreshFailure(ctx, res, "issue_access", res.Err)
		return "", fmt.Errorf("issue access token: %w", res.Err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitEvent(ctx, EventRefreshSuccess, true, res.UserID, res.User.Email, nil, nil)
	return res.AccessToken, nil
}

// Logout blacklists the bearer access token in authorizationHeader until its
// own exp. A token that has already expired is accepted without a write.
// The caller's refresh token is left untouched.
func (e *Engine) Logout(ctx context.Context, authorizationHeader string) error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}

	res := e.flows.Logout(ctx, authorizationHeader)

	switch res.Failure {
	case internalflows.LogoutFailureNone:
	case internalflows.LogoutFailureNotReady:
		return ErrEngineNotReady
	case internalflows.LogoutFailureMissingBearer:
		e.metricInc(MetricLogoutFailure)
		return fmt.Errorf("%w: missing bearer token", ErrUnauthenticated)
	case internalflows.LogoutFailureInvalidToken:
		e.metricInc(MetricLogoutFailure)
		return fmt.Errorf("%w: %w", ErrUnauthenticated, ErrInvalidToken)
	default:
		e.metricInc(MetricLogoutFailure)
		e.logger.Warn("logout blacklist write failed", zap.Error(res.Err))
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, res.Err)
	}

	e.metricInc(MetricLogout)
	e.emitEvent(ctx, EventLogout, true, "", res.Email, nil, func() map[string]string {
		return map[string]string{
			"expires_at":      res.ExpiresAt.UTC().Format(time.RFC3339),
			"already_expired": fmt.Sprint(res.AlreadyExpired),
		}
	})
	return nil
}

// Authenticate runs the request gate over authorizationHeader. On success the
// returned context carries the principal. A request without a bearer header
// passes through anonymous with a nil error. Every failure wraps
// [ErrUnauthenticated] and the returned context carries no principal.
func (e *Engine) Authenticate(ctx context.Context, authorizationHeader string) (context.Context, error) {
	if e == nil || !e.flows.Initialized() {
		return clearPrincipal(ctx), fmt.Errorf("%w: %w", ErrUnauthenticated, ErrEngineNotReady)
	}

	start := time.Now()
	res := e.flows.Authenticate(ctx, authorizationHeader)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricGateLatency, time.Since(start))
	}

	switch res.Failure {
	case internalflows.AuthenticateFailureNone:
	case internalflows.AuthenticateFailureNotReady:
		return clearPrincipal(ctx), fmt.Errorf("%w: %w", ErrUnauthenticated, ErrEngineNotReady)
	case internalflows.AuthenticateFailureExpired:
		e.metricInc(MetricAuthenticateRejected)
		return clearPrincipal(ctx), fmt.Errorf("%w: %w", ErrUnauthenticated, ErrTokenExpired)
	case internalflows.AuthenticateFailureInvalidToken:
		e.metricInc(MetricAuthenticateRejected)
		return clearPrincipal(ctx), fmt.Errorf("%w: %w", ErrUnauthenticated, ErrInvalidToken)
	case internalflows.AuthenticateFailureUserNotFound:
		e.metricInc(MetricAuthenticateRejected)
		return clearPrincipal(ctx), fmt.Errorf("%w: %w", ErrUnauthenticated, ErrUserNotFound)
	case internalflows.AuthenticateFailureBlacklisted:
		e.metricInc(MetricAuthenticateRejected)
		e.metricInc(MetricBlacklistHit)
		return clearPrincipal(ctx), fmt.Errorf("%w: %w", ErrUnauthenticated, ErrTokenRevoked)
	default:
		e.metricInc(MetricAuthenticateRejected)
		e.metricInc(MetricGateLookupFailure)
		e.logger.Warn("gate lookup failed", zap.Error(res.Err))
		return clearPrincipal(ctx), fmt.Errorf("%w: %w: %v", ErrUnauthenticated, ErrBackendUnavailable, res.Err)
	}

	if res.Anonymous {
		e.metricInc(MetricAuthenticateAnonymous)
		return ctx, nil
	}
	if res.AlreadyBound {
		return ctx, nil
	}

	e.metricInc(MetricAuthenticateSuccess)
	return WithPrincipal(ctx, res.Principal), nil
}

// RevokeUser deletes every refresh credential of userID. When ctx carries a
// postgres transaction the delete joins it, so a retention purge commits the
// user delete and the refresh delete together. Outstanding access tokens are
// not blacklisted; they lapse at exp and the gate rejects them once the user
// row is gone.
func (e *Engine) RevokeUser(ctx context.Context, userID string) error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUserID
	}

	if err := e.flows.RevokeUser(ctx, userID); err != nil {
		e.logger.Warn("revoke user failed", zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricUserRevoked)
	e.emitEvent(ctx, EventUserRevoked, true, userID, "", nil, nil)
	return nil
}

// IssueAccessToken mints an access token for user without a credential
// check. Administrative tooling and tests use it.
func (e *Engine) IssueAccessToken(user account.User) (string, error) {
	if e == nil || e.jwtManager == nil {
		return "", ErrEngineNotReady
	}
	return e.jwtManager.CreateAccess(user.Email, user.Role, string(user.Verification))
}

// ValidateAccessToken verifies signature and claims of a raw token. It does
// not consult the directory or the blacklist; use Authenticate for that.
func (e *Engine) ValidateAccessToken(raw string) (*jwt.AccessClaims, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	claims, err := e.jwtManager.ParseAccess(raw)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// HashPassword hashes with the primary scheme. Account provisioning uses it
// so stored hashes match what Login verifies.
func (e *Engine) HashPassword(plain string) (string, error) {
	if e == nil || e.passwords == nil {
		return "", ErrEngineNotReady
	}
	return e.passwords.Hash(plain)
}
