package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	leaseAuth "github.com/leasehub/leaseAuth"
	"github.com/leasehub/leaseAuth/account"
)

type userState struct {
	bearer  string
	refresh string
}

// directory is an in-memory UserDirectory keyed by email and id.
type directory struct {
	byEmail map[string]account.User
	byID    map[string]account.User
}

func (d *directory) FindByEmail(_ context.Context, email string) (account.User, error) {
	u, ok := d.byEmail[email]
	if !ok {
		return account.User{}, leaseAuth.ErrUserNotFound
	}
	return u, nil
}

func (d *directory) FindByID(_ context.Context, id string) (account.User, error) {
	u, ok := d.byID[id]
	if !ok {
		return account.User{}, leaseAuth.ErrUserNotFound
	}
	return u, nil
}

func main() {
	var (
		users       = flag.Int("users", 1000, "number of users to seed and log in")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase (authenticate + refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "la-load", "redis key prefix")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := leaseAuth.DefaultConfig()
	cfg.JWT.Secret = []byte("leaseauth-loadtest-secret-0123456789")
	cfg.Store.RedisPrefix = *prefix
	cfg.Security.EnableLoginThrottle = false

	dir := &directory{
		byEmail: make(map[string]account.User, *users),
		byID:    make(map[string]account.User, *users),
	}
	engine, err := leaseAuth.New().WithConfig(cfg).WithRedis(client).WithUserDirectory(dir).Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	const password = "loadtest-password"
	hash, err := engine.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash password: %v\n", err)
		os.Exit(1)
	}

	states := make([]userState, *users)
	fmt.Printf("seeding %d users...\n", *users)
	startSeed := time.Now()
	for i := 0; i < *users; i++ {
		u := account.User{
			ID:           fmt.Sprintf("user-%d", i),
			Email:        fmt.Sprintf("user-%d@load.test", i),
			PasswordHash: hash,
			Role:         account.RoleTenant,
			Status:       account.StatusActive,
			Verification: account.Verified,
			CreatedAt:    time.Now(),
		}
		dir.byEmail[u.Email] = u
		dir.byID[u.ID] = u

		res, err := engine.Login(ctx, u.Email, password)
		if err != nil {
			fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
			os.Exit(1)
		}
		states[i] = userState{bearer: "Bearer " + res.AccessToken, refresh: res.RefreshToken}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	authStats := runPhase(states, *ops, *concurrency, 7919, func(s userState) error {
		_, err := engine.Authenticate(ctx, s.bearer)
		return err
	})
	refreshStats := runPhase(states, *ops, *concurrency, 6151, func(s userState) error {
		_, err := engine.Refresh(ctx, s.refresh)
		return err
	})

	fmt.Println("---- results ----")
	printStats("authenticate", authStats)
	printStats("refresh", refreshStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("blacklist hits=%d gate lookup failures=%d\n",
		snap.Counters[leaseAuth.MetricBlacklistHit],
		snap.Counters[leaseAuth.MetricGateLookupFailure],
	)
}

func runPhase(states []userState, ops, concurrency int, seed int64, op func(userState) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(states[r.Intn(len(states))])
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
