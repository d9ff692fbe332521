package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	leaseAuth "github.com/leasehub/leaseAuth"
	"github.com/leasehub/leaseAuth/internal/config"
	otelexport "github.com/leasehub/leaseAuth/metrics/export/otel"
	"github.com/leasehub/leaseAuth/notify/kafka"
	"github.com/leasehub/leaseAuth/policy"
	regopolicy "github.com/leasehub/leaseAuth/policy/rego"
	pg "github.com/leasehub/leaseAuth/postgres"
	"github.com/leasehub/leaseAuth/retention"
)

func initRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func initEventSinks(cfg *config.Config, logger *zap.Logger) (leaseAuth.EventSink, func()) {
	if !cfg.Events.Enabled {
		return leaseAuth.NoOpSink{}, func() {}
	}

	var sinks leaseAuth.MultiSink
	var closers []io.Closer
	if cfg.Events.Log {
		sinks = append(sinks, leaseAuth.NewJSONWriterSink(os.Stdout))
	}
	if len(cfg.Events.KafkaBrokers) > 0 {
		ks := kafka.NewSink(kafka.Config{
			Brokers:      cfg.Events.KafkaBrokers,
			Topic:        cfg.Events.KafkaTopic,
			BatchTimeout: cfg.Events.KafkaBatch,
		}, logger)
		sinks = append(sinks, ks)
		closers = append(closers, ks)
	}

	return sinks, func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				logger.Warn("close event sink", zap.Error(err))
			}
		}
	}
}

func initEngine(cfg *config.Config, db *pg.DB, rdb *redis.Client, users *pg.UserRepo, sink leaseAuth.EventSink, logger *zap.Logger) (*leaseAuth.Engine, error) {
	b := leaseAuth.New().
		WithConfig(cfg.AuthConfig()).
		WithRedis(rdb).
		WithUserDirectory(users).
		WithEventSink(sink).
		WithLogger(logger.Named("engine"))

	if cfg.Auth.RefreshStore == config.RefreshStorePostgres {
		b = b.WithRefreshStore(pg.NewRefreshTokenRepo(db))
	}
	return b.Build()
}

// initOTelMetrics publishes engine counters through the global meter
// provider; they are dropped until an SDK provider is installed.
func initOTelMetrics(engine *leaseAuth.Engine) (*otelexport.Exporter, error) {
	return otelexport.NewExporter(otel.GetMeterProvider().Meter("github.com/leasehub/leaseAuth"), engine)
}

func initAuthorizer(ctx context.Context, cfg *config.Config) (policy.Authorizer, error) {
	if cfg.Auth.Policy == config.PolicyRego {
		return regopolicy.New(ctx)
	}
	return policy.Native{}, nil
}

func initSweeper(cfg *config.Config, users *pg.UserRepo, engine *leaseAuth.Engine, db *pg.DB, sink leaseAuth.EventSink, logger *zap.Logger, reg prometheus.Registerer) (*retention.Sweeper, error) {
	return retention.New(retention.Config{
		Retention: cfg.Retention.MaxAge,
		BatchSize: cfg.Retention.BatchSize,
	}, users, engine, pg.NewTransactor(db, logger), sink, logger.Named("retention"), reg)
}

func runRetention(ctx context.Context, s *retention.Sweeper, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		rep, err := s.SweepOnce(ctx, time.Now())
		if err != nil {
			logger.Warn("retention sweep", zap.Error(err))
		} else if rep.Candidates > 0 {
			logger.Info("retention sweep",
				zap.Int("candidates", rep.Candidates),
				zap.Int("purged", rep.Purged),
				zap.Int("failed", len(rep.Failed)),
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
