package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Authenticate.ParseAccess != nil
}

func (s Service) Login(ctx context.Context, email, password string) LoginResult {
	return RunLogin(ctx, email, password, s.deps.Login)
}

func (s Service) Refresh(ctx context.Context, value string) RefreshResult {
	return RunRefresh(ctx, value, s.deps.Refresh)
}

func (s Service) Logout(ctx context.Context, authorizationHeader string) LogoutResult {
	return RunLogout(ctx, authorizationHeader, s.deps.Logout)
}

func (s Service) Authenticate(ctx context.Context, authorizationHeader string) AuthenticateResult {
	return RunAuthenticate(ctx, authorizationHeader, s.deps.Authenticate)
}

func (s Service) RevokeUser(ctx context.Context, userID string) error {
	return RunRevokeUser(ctx, userID, s.deps.Revoke)
}
