// Package config loads the leaseauthd service configuration with viper.
package config

import (
	"time"

	leaseAuth "github.com/leasehub/leaseAuth"
	"github.com/leasehub/leaseAuth/internal/obs"
	pg "github.com/leasehub/leaseAuth/postgres"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	// TrustedProxies are CIDRs or addresses whose X-Forwarded-For is
	// believed. Empty means the peer address is the client.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Auth struct {
	JWTSecret        string        `mapstructure:"jwt_secret"`
	Issuer           string        `mapstructure:"issuer"`
	AccessTTL        time.Duration `mapstructure:"access_ttl"`
	RefreshTTL       time.Duration `mapstructure:"refresh_ttl"`
	LookupTimeout    time.Duration `mapstructure:"lookup_timeout"`
	RedisPrefix      string        `mapstructure:"redis_prefix"`
	RefreshStore     string        `mapstructure:"refresh_store"`
	LoginThrottle    bool          `mapstructure:"login_throttle"`
	IPThrottle       bool          `mapstructure:"ip_throttle"`
	MaxLoginAttempts int           `mapstructure:"max_login_attempts"`
	LoginCooldown    time.Duration `mapstructure:"login_cooldown"`
	BcryptCost       int           `mapstructure:"bcrypt_cost"`
	Policy           string        `mapstructure:"policy"`
}

type Events struct {
	Enabled      bool          `mapstructure:"enabled"`
	BufferSize   int           `mapstructure:"buffer_size"`
	DropIfFull   bool          `mapstructure:"drop_if_full"`
	Log          bool          `mapstructure:"log"`
	KafkaBrokers []string      `mapstructure:"kafka_brokers"`
	KafkaTopic   string        `mapstructure:"kafka_topic"`
	KafkaBatch   time.Duration `mapstructure:"kafka_batch_timeout"`
}

type Retention struct {
	Enabled   bool          `mapstructure:"enabled"`
	MaxAge    time.Duration `mapstructure:"max_age"`
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
}

type Config struct {
	App       App       `mapstructure:"app"`
	Server    Server    `mapstructure:"server"`
	DB        pg.Config `mapstructure:"db"`
	Redis     Redis     `mapstructure:"redis"`
	Log       Log       `mapstructure:"log"`
	Auth      Auth      `mapstructure:"auth"`
	Events    Events    `mapstructure:"events"`
	Retention Retention `mapstructure:"retention"`
}

// Refresh store backends.
const (
	RefreshStorePostgres = "postgres"
	RefreshStoreRedis    = "redis"
)

// Policy engines.
const (
	PolicyNative = "native"
	PolicyRego   = "rego"
)

func (lc *Log) AsLoggerConfig(app App) obs.LogConfig {
	return obs.LogConfig{
		Level:  lc.Level,
		Pretty: lc.Pretty,
		App:    app.Name,
		Env:    app.Env,
		Ver:    app.Version,
	}
}

// AuthConfig converts the service settings into an engine configuration.
// The result still has to pass leaseAuth.Config.Validate.
func (c *Config) AuthConfig() leaseAuth.Config {
	cfg := leaseAuth.DefaultConfig()

	cfg.JWT.Secret = []byte(c.Auth.JWTSecret)
	cfg.JWT.Issuer = c.Auth.Issuer
	cfg.JWT.AccessTTL = c.Auth.AccessTTL
	cfg.JWT.RefreshTTL = c.Auth.RefreshTTL
	cfg.Gate.LookupTimeout = c.Auth.LookupTimeout
	cfg.Store.RedisPrefix = c.Auth.RedisPrefix

	cfg.Security.EnableLoginThrottle = c.Auth.LoginThrottle
	cfg.Security.EnableIPThrottle = c.Auth.IPThrottle
	cfg.Security.MaxLoginAttempts = c.Auth.MaxLoginAttempts
	cfg.Security.LoginCooldownDuration = c.Auth.LoginCooldown
	cfg.Password.BcryptCost = c.Auth.BcryptCost

	cfg.Events.Enabled = c.Events.Enabled
	cfg.Events.BufferSize = c.Events.BufferSize
	cfg.Events.DropIfFull = c.Events.DropIfFull

	return cfg
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
