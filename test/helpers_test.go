//go:build integration
// +build integration

package test

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	leaseAuth "github.com/leasehub/leaseAuth"
	"github.com/leasehub/leaseAuth/account"
	pg "github.com/leasehub/leaseAuth/postgres"
	"github.com/leasehub/leaseAuth/refresh"
)

const testSecret = "integration-secret-0123456789abcdef"

// redisMode describes which Redis backend a suite is running against.
type redisMode struct {
	name    string
	setup   func(t *testing.T) redis.UniversalClient
	// cluster modes cannot host refresh.Redis, whose scripts span slots.
	cluster bool
}

// redisModes always includes miniredis. A real server is added when
// LEASEAUTH_TEST_REDIS_ADDR is set and a cluster when
// LEASEAUTH_TEST_REDIS_CLUSTER_ADDRS is set (comma-separated).
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{
		{
			name: "miniredis",
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				mr, err := miniredis.Run()
				require.NoError(t, err)
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				t.Cleanup(func() { _ = rdb.Close(); mr.Close() })
				return rdb
			},
		},
	}

	if addr := os.Getenv("LEASEAUTH_TEST_REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				rdb.FlushDB(context.Background())
				t.Cleanup(func() { rdb.FlushDB(context.Background()); _ = rdb.Close() })
				return rdb
			},
		})
	}

	if addrs := os.Getenv("LEASEAUTH_TEST_REDIS_CLUSTER_ADDRS"); addrs != "" {
		modes = append(modes, redisMode{
			name:    "cluster",
			cluster: true,
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				rdb := redis.NewClusterClient(&redis.ClusterOptions{Addrs: splitAddrs(addrs)})
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis cluster: %v", err)
				}
				t.Cleanup(func() { _ = rdb.Close() })
				return rdb
			},
		})
	}

	return modes
}

// newRedisEngine builds an engine over rdb. On a cluster the refresh store
// is kept in memory so only the blacklist runs against Redis.
func newRedisEngine(t *testing.T, mode redisMode, rdb redis.UniversalClient, dir *memDirectory) *leaseAuth.Engine {
	t.Helper()
	b := leaseAuth.New().WithConfig(testConfig()).WithRedis(rdb).WithUserDirectory(dir)
	if mode.cluster {
		b = b.WithRefreshStore(refresh.NewMemory())
	}
	engine, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine
}

func splitAddrs(s string) []string {
	var addrs []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

// newPostgres migrates and truncates the database named by
// LEASEAUTH_TEST_PG_DSN, skipping when it is unset.
func newPostgres(t *testing.T) *pg.DB {
	t.Helper()

	dsn := os.Getenv("LEASEAUTH_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("LEASEAUTH_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	require.NoError(t, pg.Migrate(ctx, dsn, false))

	db, err := pg.New(ctx, pg.Config{DSN: dsn, QueryTimeout: 5 * time.Second})
	require.NoError(t, err)
	_, err = db.Pool.Exec(ctx, `TRUNCATE users CASCADE`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = db.Pool.Exec(context.Background(), `TRUNCATE users CASCADE`)
		db.Close()
	})
	return db
}

func testConfig() leaseAuth.Config {
	cfg := leaseAuth.DefaultConfig()
	cfg.JWT.Secret = []byte(testSecret)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.BcryptCost = 4
	return cfg
}

// memDirectory is a concurrency-safe in-memory UserDirectory.
type memDirectory struct {
	mu    sync.RWMutex
	users map[string]account.User
}

func newMemDirectory() *memDirectory {
	return &memDirectory{users: map[string]account.User{}}
}

func (d *memDirectory) put(u account.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.Email] = u
}

func (d *memDirectory) FindByEmail(_ context.Context, email string) (account.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[email]
	if !ok {
		return account.User{}, leaseAuth.ErrUserNotFound
	}
	return u, nil
}

func (d *memDirectory) FindByID(_ context.Context, id string) (account.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, u := range d.users {
		if u.ID == id {
			return u, nil
		}
	}
	return account.User{}, leaseAuth.ErrUserNotFound
}

func activeUser(id, email, hash string) account.User {
	return account.User{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		Role:         account.RoleTenant,
		Status:       account.StatusActive,
		Verification: account.Verified,
		CreatedAt:    time.Now(),
	}
}
