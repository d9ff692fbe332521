package leaseAuth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/leasehub/leaseAuth/account"
	"github.com/leasehub/leaseAuth/blacklist"
	"github.com/leasehub/leaseAuth/password"
	"github.com/leasehub/leaseAuth/refresh"
	"github.com/redis/go-redis/v9"
)

const (
	testPassword = "correct-password-123"
	testSecret   = "0123456789abcdef0123456789abcdef"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
	mr  *miniredis.Miniredis
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the engine clock and the miniredis TTL clock together.
func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	if c.mr != nil {
		c.mr.FastForward(d)
	}
}

type testDirectory struct {
	mu      sync.Mutex
	byEmail map[string]account.User
	delay   time.Duration
	err     error

	updates int
}

func newTestDirectory() *testDirectory {
	return &testDirectory{byEmail: make(map[string]account.User)}
}

func (d *testDirectory) put(u account.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byEmail[u.Email] = u
}

func (d *testDirectory) remove(email string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.byEmail, email)
}

func (d *testDirectory) get(email string) account.User {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.byEmail[email]
}

func (d *testDirectory) wait(ctx context.Context) error {
	d.mu.Lock()
	delay, err := d.delay, d.err
	d.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (d *testDirectory) FindByEmail(ctx context.Context, email string) (account.User, error) {
	if err := d.wait(ctx); err != nil {
		return account.User{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.byEmail[email]
	if !ok {
		return account.User{}, ErrUserNotFound
	}
	return u, nil
}

func (d *testDirectory) FindByID(ctx context.Context, id string) (account.User, error) {
	if err := d.wait(ctx); err != nil {
		return account.User{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return account.User{}, ErrUserNotFound
}

func (d *testDirectory) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for email, u := range d.byEmail {
		if u.ID == userID {
			u.PasswordHash = hash
			d.byEmail[email] = u
			d.updates++
			return nil
		}
	}
	return ErrUserNotFound
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.Secret = []byte(testSecret)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.BcryptCost = 4
	cfg.Security.MaxLoginAttempts = 3
	cfg.Security.LoginCooldownDuration = time.Minute
	return cfg
}

type engineFixture struct {
	engine *Engine
	dir    *testDirectory
	clock  *testClock
	mr     *miniredis.Miniredis
	rdb    *redis.Client
}

type fixtureOption func(*Builder)

func withRefreshStore(store refresh.Store) fixtureOption {
	return func(b *Builder) { b.WithRefreshStore(store) }
}

func withEventSink(sink EventSink) fixtureOption {
	return func(b *Builder) { b.WithEventSink(sink) }
}

func newEngineFixture(t *testing.T, cfg Config, opts ...fixtureOption) *engineFixture {
	t.Helper()

	mr, rdb := newTestRedis(t)
	clock := &testClock{now: time.Unix(1_750_000_000, 0), mr: mr}
	dir := newTestDirectory()

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserDirectory(dir).
		WithClock(clock.Now)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &engineFixture{engine: engine, dir: dir, clock: clock, mr: mr, rdb: rdb}
}

func (f *engineFixture) addUser(t *testing.T, email string, role account.Role, status account.Status) account.User {
	t.Helper()
	hash, err := f.engine.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	u := account.User{
		ID:           "user-" + strings.SplitN(email, "@", 2)[0],
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Status:       status,
		Verification: account.Verified,
		CreatedAt:    f.clock.Now(),
	}
	f.dir.put(u)
	return u
}

func bearer(token string) string {
	return "Bearer " + token
}

func TestBuildRequiresSecret(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.Secret = nil

	_, rdb := newTestRedis(t)
	_, err := New().WithConfig(cfg).WithRedis(rdb).WithUserDirectory(newTestDirectory()).Build()
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestBuildRequiresDirectoryWithFindByID(t *testing.T) {
	type emailOnly struct{ UserDirectory }

	_, rdb := newTestRedis(t)
	_, err := New().WithConfig(testConfig()).WithRedis(rdb).WithUserDirectory(emailOnly{newTestDirectory()}).Build()
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestBuilderSingleUse(t *testing.T) {
	_, rdb := newTestRedis(t)
	b := New().WithConfig(testConfig()).WithRedis(rdb).WithUserDirectory(newTestDirectory())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestZeroEngineNotReady(t *testing.T) {
	var e Engine
	if _, err := e.Login(context.Background(), "a@b.c", "pw"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	ctx, err := e.Authenticate(context.Background(), bearer("x"))
	if !IsUnauthenticated(err) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if PrincipalFromContext(ctx) != nil {
		t.Fatal("expected no principal")
	}
}

func TestLoginIssuesTokensWithConfiguredLifetimes(t *testing.T) {
	cfg := testConfig()
	f := newEngineFixture(t, cfg)
	f.addUser(t, "alice@example.com", account.RoleLandlord, account.StatusActive)

	res, err := f.engine.Login(context.Background(), "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if res.Email != "alice@example.com" {
		t.Fatalf("unexpected email %q", res.Email)
	}
	if strings.HasPrefix(res.AccessToken, "Bearer ") {
		t.Fatal("access token must be returned raw")
	}

	claims, err := f.engine.ValidateAccessToken(res.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken failed: %v", err)
	}
	if got := claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time); got != cfg.JWT.AccessTTL {
		t.Fatalf("expected exp-iat=%v, got %v", cfg.JWT.AccessTTL, got)
	}
	if claims.Role != string(account.RoleLandlord) || claims.Status != string(account.Verified) {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if want := f.clock.Now().Add(cfg.JWT.RefreshTTL); !res.RefreshExpiresAt.Equal(want) {
		t.Fatalf("expected refresh expiry %v, got %v", want, res.RefreshExpiresAt)
	}
}

func TestLoginFailures(t *testing.T) {
	cfg := testConfig()
	cfg.Security.EnableLoginThrottle = false
	f := newEngineFixture(t, cfg)
	f.addUser(t, "alice@example.com", account.RoleTenant, account.StatusActive)
	f.addUser(t, "blocked@example.com", account.RoleTenant, account.StatusBlocked)
	f.addUser(t, "new@example.com", account.RoleTenant, account.StatusNotActivated)

	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{name: "wrong password", email: "alice@example.com", password: "nope-nope-nope", want: ErrInvalidCredentials},
		{name: "unknown user", email: "ghost@example.com", password: testPassword, want: ErrInvalidCredentials},
		{name: "empty password", email: "alice@example.com", password: "", want: ErrInvalidCredentials},
		{name: "blocked", email: "blocked@example.com", password: testPassword, want: ErrAccountNotActive},
		{name: "not activated", email: "new@example.com", password: testPassword, want: ErrAccountNotActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Login(context.Background(), tt.email, tt.password)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLoginThrottleAfterRepeatedFailures(t *testing.T) {
	f := newEngineFixture(t, testConfig())
	f.addUser(t, "alice@example.com", account.RoleTenant, account.StatusActive)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.engine.Login(ctx, "alice@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	if _, err := f.engine.Login(ctx, "alice@example.com", testPassword); !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("expected ErrLoginRateLimited, got %v", err)
	}

	f.mr.FastForward(2 * time.Minute)
	if _, err := f.engine.Login(ctx, "alice@example.com", testPassword); err != nil {
		t.Fatalf("expected login after cooldown, got %v", err)
	}
	if n, _ := f.engine.LoginAttempts(ctx, "alice@example.com"); n != 0 {
		t.Fatalf("expected counter reset after success, got %d", n)
	}
}

func TestTwoLoginsKeepOneRefreshRecord(t *testing.T) {
	store := refresh.NewMemory()
	f := newEngineFixture(t, testConfig(), withRefreshStore(store))
	f.addUser(t, "alice@example.com", account.RoleTenant, account.StatusActive)
	ctx := context.Background()

	first, err := f.engine.Login(ctx, "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("first login failed: %v", err)
	}
	f.clock.Advance(time.Second)
	second, err := f.engine.Login(ctx, "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}

	if store.Count() != 1 {
		t.Fatalf("expected one refresh record, got %d", store.Count())
	}
	if first.RefreshToken == second.RefreshToken {
		t.Fatal("expected a new refresh value on second login")
	}
	rec, err := store.FindByValue(ctx, second.RefreshToken)
	if err != nil || rec.UserID != "user-alice" {
		t.Fatalf("expected current record for second value, got %+v, %v", rec, err)
	}
}

func TestSupersededRefreshFails(t *testing.T) {
	f := newEngineFixture(t, testConfig())
	f.addUser(t, "alice@example.com", account.RoleTenant, account.StatusActive)
	ctx := context.Background()

	first, err := f.engine.Login(ctx, "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("first login failed: %v", err)
	}
	second, err := f.engine.Login(ctx, "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}

	if _, err := f.engine.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken for superseded value, got %v", err)
	}
	if _, err := f.engine.Refresh(ctx, second.RefreshToken); err != nil {
		t.Fatalf("expected current value to refresh, got %v", err)
	}
}

func TestExpiredRefreshDeletesRecordAndFailsIdempotently(t *testing.T) {
	cfg := testConfig()
	store := refresh.NewMemory()
	f := newEngineFixture(t, cfg, withRefreshStore(store))
	f.addUser(t, "alice@example.com", account.RoleTenant, account.StatusActive)
	ctx := context.Background()

	res, err := f.engine.Login(ctx, "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	f.clock.Advance(cfg.JWT.RefreshTTL)

	for i := 0; i < 2; i++ {
		if _, err := f.engine.Refresh(ctx, res.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Fatalf("attempt %d: expected ErrInvalidRefreshToken, got %v", i+1, err)
		}
	}
	if store.Count() != 0 {
		t.Fatalf("expected expired record removed, got %d", store.Count())
	}
}

func TestRefreshPicksUpDirectoryChanges(t *testing.T) {
	f := newEngineFixture(t, testConfig())
	u := f.addUser(t, "alice@example.com", account.RoleTenant, account.StatusActive)
	ctx := context.Background()

	res, err := f.engine.Login(ctx, "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	u.Role = account.RoleLandlord
	f.dir.put(u)

	access, err := f.engine.Refresh(ctx, res.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	claims, err := f.engine.ValidateAccessToken(access)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if claims.Role != string(account.RoleLandlord) {
		t.Fatalf("expected refreshed role LANDLORD, got %s", claims.Role)
	}

	u.Status = account.StatusBlocked
	f.dir.put(u)
	if _, err := f.engine.Refresh(ctx, res.RefreshToken); !errors.Is(err, ErrAccountNotActive) {
		t.Fatalf("expected ErrAccountNotActive, got %v", err)
	}
}

func TestAuthenticateBindsPrincipalFromDirectory(t *testing.T) {
	f := newEngineFixture(t, testConfig())
	f.addUser(t, "alice@example.com", account.RoleAdmin, account.StatusActive)

	res, err := f.engine.Login(context.Background(), "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	ctx, err := f.engine.Authenticate(context.Background(), bearer(res.AccessToken))
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	p := PrincipalFromContext(ctx)
	if p == nil {
		t.Fatal("expected bound principal")
	}
	if p.Email != "alice@example.com" || !p.IsAdmin() || !p.HasAuthority("ROLE_ADMIN") {
		t.Fatalf("unexpected principal %+v", p)
	}
}

func TestAuthenticateAnonymousWithoutBearer(t *testing.T) {
	f := newEngineFixture(t, testConfig())

	for _, header := range []string{"", "Basic abc", "bearer lowercase"} {
		ctx, err := f.engine.Authenticate(context.Background(), header)
		if err != nil {
			t.Fatalf("header %q: expected anonymous pass-through, got %v", header, err)
		}
		if PrincipalFromContext(ctx) != nil {
			t.Fatalf("header %q: expected no principal", header)
		}
	}
}

func TestAuthenticateRejections(t *testing.T) {
	cfg := testConfig()
	f := newEngineFixture(t, cfg)
	f.addUser(t, "alice@example.com", account.RoleTenant, account.StatusActive)

	res, err := f.engine.Login(context.Background(), "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if _, err := f.engine.Authenticate(context.Background(), bearer(res.AccessToken+"x")); !errors.Is(err, ErrInvalidToken) || !IsUnauthenticated(err) {
		t.Fatalf("expected invalid token, got %v", err)
	}

	f.dir.remove("alice@example.com")
	if _, err := f.engine.Authenticate(context.Background(), bearer(res.AccessToken)); !errors.Is(err, ErrUserNotFound) || !IsUnauthenticated(err) {
		t.Fatalf("expected user not found, got %v", err)
	}
}

func TestAuthenticateRejectsAtExpiry(t *testing.T) {
	cfg := testConfig()
	f := newEngineFixture(t, cfg)
	f.addUser(t, "alice@example.com", account.RoleTenant, account.StatusActive)

	res, err := f.engine.Login(context.Background(), "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	f.clock.Advance(cfg.JWT.AccessTTL - time.Second)
	if _, err := f.engine.Authenticate(context.Background(), bearer(res.AccessToken)); err != nil {
		t.Fatalf("expected token valid one second before exp, got %v", err)
	}

	f.clock.Advance(time.Second)
	_, err = f.engine.Authenticate(context.Background(), bearer(res.AccessToken))
	if !errors.Is(err, ErrTokenExpired) || !IsUnauthenticated(err) {
		t.Fatalf("expected expiry at exp, got %v", err)
	}
}

func TestAuthenticateLookupTimeoutFailsClosed(t *testing.T) {
	cfg := testConfig()
	cfg.Gate.LookupTimeout = 20 * time.Millisecond
	f := newEngineFixture(t, cfg)
	f.addUser(t, "alice@example.com", account.RoleTenant, account.StatusActive)

	res, err := f.engine.Login(context.Background(), "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	f.dir.mu.Lock()
	f.dir.delay = time.Second
	f.dir.mu.Unlock()

	ctx, err := f.engine.Authenticate(context.Background(), bearer(res.AccessToken))
	if !IsUnauthenticated(err) || !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected fail-closed backend error, got %v", err)
	}
	if PrincipalFromContext(ctx) != nil {
		t.Fatal("expected no principal after timeout")
	}
}

// stallingBlacklist fails every call, or blocks until ctx ends when stall
// is set.
type stallingBlacklist struct {
	err   error
	stall bool
}

func (b stallingBlacklist) Add(context.Context, string, time.Time) error { return b.err }

func (b stallingBlacklist) IsBlacklisted(ctx context.Context, _ string) (bool, error) {
	if b.stall {
		<-ctx.Done()
		return false, ctx.Err()
	}
	return false, b.err
}

func withBlacklist(cache blacklist.Cache) fixtureOption {
	return func(b *Builder) { b.WithBlacklist(cache) }
}

func TestAuthenticateBlacklistFailureFailsClosed(t *testing.T) {
	tests := []struct {
		name  string
		cache blacklist.Cache
	}{
		{"backend error", stallingBlacklist{err: blacklist.ErrUnavailable}},
		{"lookup timeout", stallingBlacklist{stall: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Gate.LookupTimeout = 20 * time.Millisecond
			f := newEngineFixture(t, cfg, withBlacklist(tt.cache))
			f.addUser(t, "alice@example.com", account.RoleTenant, account.StatusActive)

			res, err := f.engine.Login(context.Background(), "alice@example.com", testPassword)
			if err != nil {
				t.Fatalf("login failed: %v", err)
			}

			ctx, err := f.engine.Authenticate(context.Background(), bearer(res.AccessToken))
			if !IsUnauthenticated(err) || !errors.Is(err, ErrBackendUnavailable) {
				t.Fatalf("expected fail-closed backend error, got %v", err)
			}
			if PrincipalFromContext(ctx) != nil {
				t.Fatal("expected no principal after blacklist failure")
			}
			if got := f.engine.metrics.Value(MetricGateLookupFailure); got != 1 {
				t.Fatalf("expected one lookup failure, got %d", got)
			}
		})
	}
}

func TestAuthenticateRedisOutageFailsClosed(t *testing.T) {
	f := newEngineFixture(t, testConfig())
	f.addUser(t, "alice@example.com", account.RoleTenant, account.StatusActive)

	res, err := f.engine.Login(context.Background(), "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	f.mr.SetError("ERR injected failure")
	defer f.mr.SetError("")

	ctx, err := f.engine.Authenticate(context.Background(), bearer(res.AccessToken))
	if !IsUnauthenticated(err) || !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected fail-closed backend error, got %v", err)
	}
	if PrincipalFromContext(ctx) != nil {
		t.Fatal("expected no principal during outage")
	}
}

func TestAuthenticateKeepsExistingBinding(t *testing.T) {
	f := newEngineFixture(t, testConfig())
	f.addUser(t, "alice@example.com", account.RoleTenant, account.StatusActive)

	res, err := f.engine.Login(context.Background(), "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	bound := account.NewPrincipal("alice@example.com", account.RoleTenant)
	parent := WithPrincipal(context.Background(), bound)

	f.dir.mu.Lock()
	f.dir.err = errors.New("directory down")
	f.dir.mu.Unlock()

	ctx, err := f.engine.Authenticate(parent, bearer(res.AccessToken))
	if err != nil {
		t.Fatalf("expected no-op for bound context, got %v", err)
	}
	if PrincipalFromContext(ctx) != bound {
		t.Fatal("expected the existing principal to be kept")
	}
}

func TestLogoutThenGateRejects(t *testing.T) {
	f := newEngineFixture(t, testConfig())
	f.addUser(t, "alice@example.com", account.RoleTenant, account.StatusActive)
	ctx := context.Background()

	res, err := f.engine.Login(ctx, "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if err := f.engine.Logout(ctx, bearer(res.AccessToken)); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	reqCtx, err := f.engine.Authenticate(ctx, bearer(res.AccessToken))
	if !errors.Is(err, ErrTokenRevoked) || !IsUnauthenticated(err) {
		t.Fatalf("expected revoked token rejection, got %v", err)
	}
	if PrincipalFromContext(reqCtx) != nil {
		t.Fatal("expected no principal for revoked token")
	}

	if _, err := f.engine.Refresh(ctx, res.RefreshToken); err != nil {
		t.Fatalf("expected refresh token to survive logout, got %v", err)
	}
}

func TestLogoutBlacklistEntryLivesUntilTokenExp(t *testing.T) {
	cfg := testConfig()
	f := newEngineFixture(t, cfg)
	f.addUser(t, "alice@example.com", account.RoleTenant, account.StatusActive)
	ctx := context.Background()

	res, err := f.engine.Login(ctx, "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if err := f.engine.Logout(ctx, bearer(res.AccessToken)); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	var key string
	for _, k := range f.mr.Keys() {
		if strings.Contains(k, ":bl:") {
			key = k
		}
	}
	if key == "" {
		t.Fatal("expected blacklist key")
	}
	if strings.Contains(key, res.AccessToken) {
		t.Fatal("raw token must not appear in the key")
	}
	if ttl := f.mr.TTL(key); ttl != cfg.JWT.AccessTTL {
		t.Fatalf("expected ttl %v, got %v", cfg.JWT.AccessTTL, ttl)
	}

	f.clock.Advance(cfg.JWT.AccessTTL)
	if f.mr.Exists(key) {
		t.Fatal("expected blacklist entry to expire with the token")
	}
}

func TestLogoutEdgeCases(t *testing.T) {
	cfg := testConfig()
	f := newEngineFixture(t, cfg)
	f.addUser(t, "alice@example.com", account.RoleTenant, account.StatusActive)
	ctx := context.Background()

	if err := f.engine.Logout(ctx, ""); !IsUnauthenticated(err) {
		t.Fatalf("expected unauthenticated for missing header, got %v", err)
	}
	if err := f.engine.Logout(ctx, bearer("garbage")); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	res, err := f.engine.Login(ctx, "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	f.clock.Advance(cfg.JWT.AccessTTL + time.Second)
	if err := f.engine.Logout(ctx, bearer(res.AccessToken)); err != nil {
		t.Fatalf("expected expired-token logout to succeed, got %v", err)
	}
	for _, k := range f.mr.Keys() {
		if strings.Contains(k, ":bl:") {
			t.Fatalf("expected no blacklist write for an expired token, found %s", k)
		}
	}
}

func TestRevokeUserRemovesRefresh(t *testing.T) {
	f := newEngineFixture(t, testConfig())
	u := f.addUser(t, "alice@example.com", account.RoleTenant, account.StatusActive)
	ctx := context.Background()

	res, err := f.engine.Login(ctx, "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if err := f.engine.RevokeUser(ctx, u.ID); err != nil {
		t.Fatalf("RevokeUser failed: %v", err)
	}
	if _, err := f.engine.Refresh(ctx, res.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected revoked refresh to fail, got %v", err)
	}
	if err := f.engine.RevokeUser(ctx, u.ID); err != nil {
		t.Fatalf("expected idempotent revoke, got %v", err)
	}
	if err := f.engine.RevokeUser(ctx, " "); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
}

func TestLoginUpgradesLegacyHash(t *testing.T) {
	f := newEngineFixture(t, testConfig())
	legacy, err := password.NewBcrypt(4)
	if err != nil {
		t.Fatalf("NewBcrypt failed: %v", err)
	}
	hash, err := legacy.Hash(testPassword)
	if err != nil {
		t.Fatalf("bcrypt hash failed: %v", err)
	}
	f.dir.put(account.User{
		ID:           "user-legacy",
		Email:        "legacy@example.com",
		PasswordHash: hash,
		Role:         account.RoleTenant,
		Status:       account.StatusActive,
		Verification: account.NotVerified,
	})

	if _, err := f.engine.Login(context.Background(), "legacy@example.com", testPassword); err != nil {
		t.Fatalf("login with legacy hash failed: %v", err)
	}
	if got := f.dir.get("legacy@example.com").PasswordHash; !strings.HasPrefix(got, "$argon2id$") {
		t.Fatalf("expected upgraded argon2id hash, got %q", got)
	}
	if f.engine.MetricsSnapshot().Counters[MetricPasswordUpgraded] != 1 {
		t.Fatal("expected password upgrade metric")
	}
}

func TestEngineEmitsEvents(t *testing.T) {
	cfg := testConfig()
	cfg.Events.Enabled = true
	cfg.Events.DropIfFull = false
	sink := NewChannelSink(16)
	f := newEngineFixture(t, cfg, withEventSink(sink))
	u := f.addUser(t, "alice@example.com", account.RoleTenant, account.StatusActive)
	ctx := WithClientIP(context.Background(), "10.0.0.1")

	if _, err := f.engine.Login(ctx, "alice@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	res, err := f.engine.Login(ctx, "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if err := f.engine.Logout(ctx, bearer(res.AccessToken)); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if err := f.engine.RevokeUser(ctx, u.ID); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	f.engine.Close()

	want := []string{EventLoginFailure, EventLoginSuccess, EventLogout, EventUserRevoked}
	for i, typ := range want {
		select {
		case ev := <-sink.Events():
			if ev.Type != typ {
				t.Fatalf("event %d: expected %s, got %s", i, typ, ev.Type)
			}
			if ev.IP != "10.0.0.1" {
				t.Fatalf("event %d: expected client ip, got %q", i, ev.IP)
			}
			if typ == EventLoginFailure && (ev.Error != string(eventErrInvalidCredentials) || ev.Metadata["reason"] != "password_mismatch") {
				t.Fatalf("unexpected failure event %+v", ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func TestMetricsCountGateOutcomes(t *testing.T) {
	f := newEngineFixture(t, testConfig())
	f.addUser(t, "alice@example.com", account.RoleTenant, account.StatusActive)
	ctx := context.Background()

	res, err := f.engine.Login(ctx, "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	_, _ = f.engine.Authenticate(ctx, "")
	_, _ = f.engine.Authenticate(ctx, bearer(res.AccessToken))
	_ = f.engine.Logout(ctx, bearer(res.AccessToken))
	_, _ = f.engine.Authenticate(ctx, bearer(res.AccessToken))

	snap := f.engine.MetricsSnapshot()
	checks := map[MetricID]uint64{
		MetricLoginSuccess:          1,
		MetricAuthenticateAnonymous: 1,
		MetricAuthenticateSuccess:   1,
		MetricAuthenticateRejected:  1,
		MetricBlacklistHit:          1,
		MetricLogout:                1,
	}
	for id, want := range checks {
		if got := snap.Counters[id]; got != want {
			t.Fatalf("metric %d: expected %d, got %d", id, want, got)
		}
	}
	var samples uint64
	for _, v := range snap.Histograms[MetricGateLatency] {
		samples += v
	}
	if samples != 3 {
		t.Fatalf("expected 3 gate latency samples, got %d", samples)
	}
}
