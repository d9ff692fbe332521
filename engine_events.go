package leaseAuth

import (
	"context"
	"errors"

	internalflows "github.com/leasehub/leaseAuth/internal/flows"
)

// EventErrorCode is the stable error tag carried in Event.Error.
type EventErrorCode string

const (
	eventErrUnauthenticated     EventErrorCode = "unauthenticated"
	eventErrInvalidCredentials  EventErrorCode = "invalid_credentials"
	eventErrRateLimited         EventErrorCode = "rate_limited"
	eventErrAccountNotActive    EventErrorCode = "account_not_active"
	eventErrInvalidRefreshToken EventErrorCode = "invalid_refresh_token"
	eventErrInvalidToken        EventErrorCode = "invalid_token"
	eventErrUnavailable         EventErrorCode = "backend_unavailable"
	eventErrInternal            EventErrorCode = "internal_error"
)

func (e *Engine) emitEvent(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	email string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.events == nil {
		return
	}

	event := NewEvent(eventType, e.now())
	event.UserID = userID
	event.Email = email
	event.IP = clientIPFromContext(ctx)
	event.Success = success
	if metadataBuilder != nil {
		event.Metadata = metadataBuilder()
	}
	if code := eventErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.events.Emit(ctx, event)
}

func (e *Engine) emitLoginFailure(ctx context.Context, email string, res internalflows.LoginResult, err error) {
	e.emitEvent(ctx, EventLoginFailure, false, res.User.ID, email, err, func() map[string]string {
		return map[string]string{
			"reason": res.Reason,
		}
	})
}

func (e *Engine) emitRefreshFailure(ctx context.Context, res internalflows.RefreshResult, reason string, err error) {
	e.emitEvent(ctx, EventRefreshFailure, false, res.UserID, res.User.Email, err, func() map[string]string {
		return map[string]string{
			"reason": reason,
		}
	})
}

func eventErrorCode(err error) EventErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return eventErrInvalidCredentials
	case errors.Is(err, ErrLoginRateLimited):
		return eventErrRateLimited
	case errors.Is(err, ErrAccountNotActive):
		return eventErrAccountNotActive
	case errors.Is(err, ErrInvalidRefreshToken):
		return eventErrInvalidRefreshToken
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired):
		return eventErrInvalidToken
	case errors.Is(err, ErrBackendUnavailable):
		return eventErrUnavailable
	case errors.Is(err, ErrUnauthenticated):
		return eventErrUnauthenticated
	default:
		return eventErrInternal
	}
}
