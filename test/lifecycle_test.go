//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	leaseAuth "github.com/leasehub/leaseAuth"
	"github.com/leasehub/leaseAuth/account"
	pg "github.com/leasehub/leaseAuth/postgres"
	"github.com/leasehub/leaseAuth/retention"
)

type pgFixture struct {
	db     *pg.DB
	users  *pg.UserRepo
	tx     pg.Transactor
	engine *leaseAuth.Engine
}

// newPGFixture wires an engine to Postgres for users and refresh tokens and
// to miniredis for the blacklist and throttle.
func newPGFixture(t *testing.T) *pgFixture {
	t.Helper()
	db := newPostgres(t)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close(); mr.Close() })

	users := pg.NewUserRepo(db)
	engine, err := leaseAuth.New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithUserDirectory(users).
		WithRefreshStore(pg.NewRefreshTokenRepo(db)).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return &pgFixture{db: db, users: users, tx: pg.NewTransactor(db, nil), engine: engine}
}

func (f *pgFixture) createUser(t *testing.T, email string, createdAt time.Time) account.User {
	t.Helper()
	hash, err := f.engine.HashPassword("pw-123456")
	require.NoError(t, err)
	u := activeUser("", email, hash)
	u.CreatedAt = createdAt
	created, err := f.users.Create(context.Background(), u)
	require.NoError(t, err)
	return created
}

func (f *pgFixture) refreshRows(t *testing.T, userID string) int {
	t.Helper()
	var n int
	err := f.db.Pool.QueryRow(context.Background(),
		`SELECT count(*) FROM refresh_tokens WHERE user_id = $1::uuid`, userID).Scan(&n)
	require.NoError(t, err)
	return n
}

func (f *pgFixture) userExists(t *testing.T, userID string) bool {
	t.Helper()
	_, err := f.users.FindByID(context.Background(), userID)
	if errors.Is(err, account.ErrUserNotFound) {
		return false
	}
	require.NoError(t, err)
	return true
}

func TestPostgresLoginKeepsOneRefreshRow(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "rows@x.io", time.Now())

	first, err := f.engine.Login(ctx, "rows@x.io", "pw-123456")
	require.NoError(t, err)
	second, err := f.engine.Login(ctx, "rows@x.io", "pw-123456")
	require.NoError(t, err)

	require.Equal(t, 1, f.refreshRows(t, u.ID))

	_, err = f.engine.Refresh(ctx, first.RefreshToken)
	require.ErrorIs(t, err, leaseAuth.ErrInvalidRefreshToken)
	_, err = f.engine.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)
}

func TestPostgresLogoutThenRefresh(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	f.createUser(t, "logout@x.io", time.Now())

	res, err := f.engine.Login(ctx, "logout@x.io", "pw-123456")
	require.NoError(t, err)
	require.NoError(t, f.engine.Logout(ctx, "Bearer "+res.AccessToken))

	_, err = f.engine.Authenticate(ctx, "Bearer "+res.AccessToken)
	require.ErrorIs(t, err, leaseAuth.ErrTokenRevoked)

	access, err := f.engine.Refresh(ctx, res.RefreshToken)
	require.NoError(t, err)
	bound, err := f.engine.Authenticate(ctx, "Bearer "+access)
	require.NoError(t, err)
	require.Equal(t, "logout@x.io", leaseAuth.PrincipalFromContext(bound).Email)
}

func TestPostgresRevokeJoinsTransaction(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()

	kept := f.createUser(t, "kept@x.io", time.Now())
	_, err := f.engine.Login(ctx, "kept@x.io", "pw-123456")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = f.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := f.engine.RevokeUser(ctx, kept.ID); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, f.refreshRows(t, kept.ID), "rollback must restore the refresh row")

	gone := f.createUser(t, "gone@x.io", time.Now())
	res, err := f.engine.Login(ctx, "gone@x.io", "pw-123456")
	require.NoError(t, err)

	err = f.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := f.engine.RevokeUser(ctx, gone.ID); err != nil {
			return err
		}
		return f.users.Delete(ctx, gone.ID)
	})
	require.NoError(t, err)
	require.Zero(t, f.refreshRows(t, gone.ID))
	require.False(t, f.userExists(t, gone.ID))

	_, err = f.engine.Refresh(ctx, res.RefreshToken)
	require.ErrorIs(t, err, leaseAuth.ErrInvalidRefreshToken)
	_, err = f.engine.Authenticate(ctx, "Bearer "+res.AccessToken)
	require.ErrorIs(t, err, leaseAuth.ErrUnauthenticated)
}

func TestPostgresRetentionSweep(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	now := time.Now()

	old := f.createUser(t, "old@x.io", now.Add(-48*time.Hour))
	fresh := f.createUser(t, "fresh@x.io", now)
	_, err := f.engine.Login(ctx, "old@x.io", "pw-123456")
	require.NoError(t, err)

	sweeper, err := retention.New(retention.Config{Retention: 24 * time.Hour}, f.users, f.engine, f.tx, nil, nil, nil)
	require.NoError(t, err)

	rep, err := sweeper.SweepOnce(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, rep.Candidates)
	require.Equal(t, 1, rep.Purged)
	require.Empty(t, rep.Failed)

	require.False(t, f.userExists(t, old.ID))
	require.Zero(t, f.refreshRows(t, old.ID))
	require.True(t, f.userExists(t, fresh.ID))
}
