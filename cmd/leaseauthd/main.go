package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/leasehub/leaseAuth/internal/config"
	"github.com/leasehub/leaseAuth/internal/httpapi"
	"github.com/leasehub/leaseAuth/internal/obs"
	"github.com/leasehub/leaseAuth/middleware"
	promexport "github.com/leasehub/leaseAuth/metrics/export/prometheus"
	pg "github.com/leasehub/leaseAuth/postgres"
)

func main() {
	configPath := flag.String("config", os.Getenv("LEASEAUTH_CONFIG"), "path to yaml config")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger, err := obs.NewLogger(cfg.Log.AsLoggerConfig(cfg.App))
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting leaseauthd", zap.String("env", cfg.App.Env), zap.String("ver", cfg.App.Version))

	db, err := pg.New(rootCtx, cfg.DB)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb, err := initRedis(rootCtx, cfg)
	if err != nil {
		logger.Fatal("redis connect", zap.Error(err))
	}
	defer func() { _ = rdb.Close() }()

	sinks, closeSinks := initEventSinks(cfg, logger)
	defer closeSinks()

	users := pg.NewUserRepo(db)
	engine, err := initEngine(cfg, db, rdb, users, sinks, logger)
	if err != nil {
		logger.Fatal("build engine", zap.Error(err))
	}
	defer engine.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		promexport.NewCollector(engine),
	)

	otelExporter, err := initOTelMetrics(engine)
	if err != nil {
		logger.Fatal("otel metrics", zap.Error(err))
	}
	defer func() { _ = otelExporter.Close() }()

	authz, err := initAuthorizer(rootCtx, cfg)
	if err != nil {
		logger.Fatal("policy", zap.Error(err))
	}

	if cfg.Retention.Enabled {
		sweeper, err := initSweeper(cfg, users, engine, db, sinks, logger, reg)
		if err != nil {
			logger.Fatal("retention", zap.Error(err))
		}
		go runRetention(rootCtx, sweeper, cfg.Retention.Interval, logger)
	}

	metricsSrv := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, reg, obs.AllHealthy(
		db.Ping,
		func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	), logger)

	proxies, err := middleware.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Fatal("trusted proxies", zap.Error(err))
	}
	api := httpapi.New(engine, users, authz, logger).WithTrustedProxies(proxies)
	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.Routes(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	httpErrCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
		httpErrCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal", zap.String("reason", "context canceled"))
	case err := <-httpErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve", zap.Error(err))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()

	_ = httpSrv.Shutdown(shCtx)
	_ = metricsSrv.Shutdown(shCtx)
	logger.Info("bye")
}
