// Package httpapi exposes the auth endpoints of leaseauthd over net/http.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	leaseAuth "github.com/leasehub/leaseAuth"
	"github.com/leasehub/leaseAuth/account"
	"github.com/leasehub/leaseAuth/middleware"
	"github.com/leasehub/leaseAuth/policy"
)

const maxBodyBytes = 1 << 16

// Engine is the subset of *leaseAuth.Engine the handlers call.
type Engine interface {
	Login(ctx context.Context, email, password string) (*leaseAuth.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Logout(ctx context.Context, authorizationHeader string) error
	Authenticate(ctx context.Context, authorizationHeader string) (context.Context, error)
}

type Handler struct {
	engine  Engine
	users   leaseAuth.UserDirectory
	authz   policy.Authorizer
	proxies *middleware.ProxyTrust
	log     *zap.Logger
}

func New(engine Engine, users leaseAuth.UserDirectory, authz policy.Authorizer, log *zap.Logger) *Handler {
	if authz == nil {
		authz = policy.Native{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{engine: engine, users: users, authz: authz, log: log.Named("httpapi")}
}

// WithTrustedProxies sets the reverse proxies whose X-Forwarded-For is
// used for the login throttle and events. Without it the peer address is
// used.
func (h *Handler) WithTrustedProxies(trust *middleware.ProxyTrust) *Handler {
	h.proxies = trust
	return h
}

// Routes mounts every endpoint under /api/v1.
func (h *Handler) Routes() http.Handler {
	guard := middleware.Authenticate(h.engine, middleware.WithTrustedProxies(h.proxies))
	authed := func(next http.HandlerFunc) http.Handler {
		return guard(middleware.RequireAuthenticated(next))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", h.login)
	mux.HandleFunc("POST /api/v1/auth/refreshToken", h.refreshToken)
	mux.HandleFunc("POST /api/v1/auth/logout", h.logout)
	mux.Handle("GET /api/v1/auth/me", authed(h.me))
	mux.Handle("POST /api/v1/auth/authorize/listing", authed(h.authorizeListing))
	return mux
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Email        string `json:"email"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

type tokenBody struct {
	Token string `json:"token"`
}

type meResponse struct {
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Authorities []string `json:"authorities"`
}

type listingRequest struct {
	OwnerEmail string `json:"ownerEmail"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil || req.Email == "" || req.Password == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Bad request", "email and password are required")
		return
	}

	ctx := leaseAuth.WithClientIP(r.Context(), h.proxies.ClientIP(r))
	res, err := h.engine.Login(ctx, req.Email, req.Password)
	if err != nil {
		h.writeFailure(w, "login", err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Email:        res.Email,
		Token:        res.AccessToken,
		RefreshToken: res.RefreshToken,
	})
}

func (h *Handler) refreshToken(w http.ResponseWriter, r *http.Request) {
	var req tokenBody
	if err := decode(r, &req); err != nil || req.Token == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Bad request", "token is required")
		return
	}

	access, err := h.engine.Refresh(r.Context(), req.Token)
	if err != nil {
		h.writeFailure(w, "refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, tokenBody{Token: access})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Logout(r.Context(), r.Header.Get("Authorization")); err != nil {
		h.writeFailure(w, "logout", err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "Logged out successfully")
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	p := leaseAuth.PrincipalFromContext(r.Context())
	writeJSON(w, http.StatusOK, meResponse{
		Email:       p.Email,
		Role:        string(p.Role),
		Authorities: p.Authorities,
	})
}

// authorizeListing answers whether the caller may create a listing for
// ownerEmail: 204 when allowed.
func (h *Handler) authorizeListing(w http.ResponseWriter, r *http.Request) {
	var req listingRequest
	if err := decode(r, &req); err != nil || req.OwnerEmail == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Bad request", "ownerEmail is required")
		return
	}

	p := leaseAuth.PrincipalFromContext(r.Context())
	var caller account.User
	if !p.IsAdmin() {
		u, err := h.users.FindByEmail(r.Context(), p.Email)
		if err != nil {
			if errors.Is(err, leaseAuth.ErrUserNotFound) {
				h.writeFailure(w, "authorize", leaseAuth.ErrUnauthenticated)
				return
			}
			h.writeFailure(w, "authorize", errors.Join(leaseAuth.ErrBackendUnavailable, err))
			return
		}
		caller = u
	}

	if err := h.authz.CanCreateListing(r.Context(), p, caller, req.OwnerEmail); err != nil {
		h.writeFailure(w, "authorize", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeFailure(w http.ResponseWriter, op string, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Warn("request failed", zap.String("op", op), zap.Error(err))
	}
	middleware.WriteError(w, status, message, detailFor(err))
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, leaseAuth.ErrLoginRateLimited):
		return http.StatusTooManyRequests, "Too many requests"
	case errors.Is(err, leaseAuth.ErrBackendUnavailable):
		return http.StatusServiceUnavailable, "Service unavailable"
	case errors.Is(err, leaseAuth.ErrAccessDenied),
		errors.Is(err, leaseAuth.ErrAccountNotActive):
		return http.StatusForbidden, "Access denied"
	case errors.Is(err, leaseAuth.ErrUnauthenticated),
		errors.Is(err, leaseAuth.ErrInvalidCredentials),
		errors.Is(err, leaseAuth.ErrInvalidRefreshToken),
		errors.Is(err, leaseAuth.ErrInvalidToken),
		errors.Is(err, leaseAuth.ErrTokenExpired):
		return http.StatusUnauthorized, "Unauthenticated"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

func detailFor(err error) string {
	switch {
	case errors.Is(err, leaseAuth.ErrInvalidCredentials):
		return "invalid email or password"
	case errors.Is(err, leaseAuth.ErrInvalidRefreshToken):
		return "invalid refresh token"
	case errors.Is(err, leaseAuth.ErrAccountNotActive):
		return "account not active"
	case errors.Is(err, policy.ErrAccountNotVerified):
		return "account not verified"
	case errors.Is(err, policy.ErrNotOwner):
		return "not the resource owner"
	case errors.Is(err, leaseAuth.ErrLoginRateLimited):
		return "too many login attempts"
	case errors.Is(err, leaseAuth.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, leaseAuth.ErrInvalidToken):
		return "invalid token"
	default:
		return ""
	}
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
