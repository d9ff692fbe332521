package leaseAuth

import (
	"errors"
	"fmt"
	"time"

	"github.com/leasehub/leaseAuth/blacklist"
	internalaudit "github.com/leasehub/leaseAuth/internal/audit"
	"github.com/leasehub/leaseAuth/internal/rate"
	"github.com/leasehub/leaseAuth/jwt"
	"github.com/leasehub/leaseAuth/password"
	"github.com/leasehub/leaseAuth/refresh"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. It is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	directory    UserDirectory
	refreshStore refresh.Store
	blacklist    blacklist.Cache
	eventSink    EventSink
	logger       *zap.Logger
	now          func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the client used for the login throttle and, unless
// overridden, the blacklist and refresh stores.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserDirectory is required. The directory must also implement
// [UserByIDFinder].
func (b *Builder) WithUserDirectory(dir UserDirectory) *Builder {
	b.directory = dir
	return b
}

// WithRefreshStore overrides the Redis refresh store, typically with
// postgres.RefreshTokenRepo.
func (b *Builder) WithRefreshStore(store refresh.Store) *Builder {
	b.refreshStore = store
	return b
}

func (b *Builder) WithBlacklist(cache blacklist.Cache) *Builder {
	b.blacklist = cache
	return b
}

func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.eventSink = sink
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now for token issuance, expiry checks and stores
// the builder creates. Tests use it to pin time.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the engine. Every validation
// failure wraps [ErrConfiguration].
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.directory == nil {
		return nil, fmt.Errorf("%w: user directory required", ErrConfiguration)
	}
	byID, ok := b.directory.(UserByIDFinder)
	if !ok {
		return nil, fmt.Errorf("%w: user directory must implement FindByID", ErrConfiguration)
	}
	if b.refreshStore == nil && b.redis == nil {
		return nil, fmt.Errorf("%w: refresh store or redis client required", ErrConfiguration)
	}
	if cfg.Security.EnableLoginThrottle && b.redis == nil {
		return nil, fmt.Errorf("%w: login throttle requires redis client", ErrConfiguration)
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := &Engine{
		config:    cloneConfig(cfg),
		directory: b.directory,
		byID:      byID,
		logger:    logger,
		now:       now,
	}
	if updater, ok := b.directory.(PasswordUpdater); ok && cfg.Password.UpgradeOnLogin {
		engine.updater = updater
	}

	// -------- STORES --------
	engine.refreshStore = b.refreshStore
	if engine.refreshStore == nil {
		engine.refreshStore = refresh.NewRedis(b.redis, cfg.Store.RedisPrefix, now)
	}

	engine.blacklist = b.blacklist
	switch {
	case engine.blacklist != nil:
	case b.redis != nil:
		engine.blacklist = blacklist.NewRedis(b.redis, cfg.Store.RedisPrefix, now)
	default:
		mem := blacklist.NewMemory(blacklist.MemoryConfig{
			SweepInterval: cfg.Blacklist.SweepInterval,
			Now:           now,
		})
		engine.blacklist = mem
		engine.ownedBlacklist = mem
	}

	if cfg.Security.EnableLoginThrottle {
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			Prefix:                cfg.Store.RedisPrefix,
			EnableIPThrottle:      cfg.Security.EnableIPThrottle,
			MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration: cfg.Security.LoginCooldownDuration,
		})
	}

	// -------- PASSWORDS --------
	primary, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	legacy, err := password.NewBcrypt(cfg.Password.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	engine.passwords = password.NewMulti(primary, legacy)

	// -------- TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:    cfg.JWT.AccessTTL,
		Secret:       cloneBytes(cfg.JWT.Secret),
		Issuer:       cfg.JWT.Issuer,
		MaxFutureIAT: cfg.JWT.MaxFutureIAT,
		Now:          now,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	engine.jwtManager = jm

	engine.events = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:     cfg.Events.Enabled,
		BufferSize:  cfg.Events.BufferSize,
		DropIfFull:  cfg.Events.DropIfFull,
		SinkTimeout: cfg.Events.SinkTimeout,
	}, b.eventSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.flows = engine.buildFlows()

	b.built = true

	return engine, nil
}
