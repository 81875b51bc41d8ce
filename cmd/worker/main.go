package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"

	"example.com/jobinput/internal/apiclient"
	"example.com/jobinput/internal/config"
	"example.com/jobinput/internal/database"
	"example.com/jobinput/internal/featureflag"
	"example.com/jobinput/internal/jobinput"
	"example.com/jobinput/internal/logging"
	"example.com/jobinput/internal/oauth"
	"example.com/jobinput/internal/store"
	"example.com/jobinput/internal/tracing"
	"example.com/jobinput/internal/worker"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file")
		addr       = flag.String("addr", "", "HTTP listen address, overrides worker.addr")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config failed", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Worker.Addr = *addr
	}

	ctx := context.Background()
	logger := logging.New(cfg.Log.Format, cfg.Log.Level)

	shutdownTracer, err := tracing.InitTracer(ctx, cfg.Tracing.Endpoint, cfg.Tracing.ServiceName+"-worker")
	if err != nil {
		logger.Error("init tracer failed", "error", err)
		os.Exit(1)
	}
	defer shutdownTracer(context.Background())

	db, err := database.Open(ctx, database.Dialect(cfg.Database.Driver), cfg.Database.DSN)
	if err != nil {
		logger.Error("open db failed", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	st := store.NewStore(db)
	if err := st.Init(ctx); err != nil {
		logger.Error("init schema failed", "error", err)
		os.Exit(1)
	}

	// Jobs, connectors and OAuth params always come from the database; only
	// connection state can be served by the config API.
	var state jobinput.StateService = st
	if cfg.Worker.StateBackend == config.StateBackendAPI {
		state = apiclient.New(cfg.API.URL, cfg.API.Token)
		logger.Info("state served by config API", "url", cfg.API.URL)
	}

	flags, closeFlags, err := newFlagClient(cfg.FeatureFlags, logger)
	if err != nil {
		logger.Error("init feature flags failed", "backend", cfg.FeatureFlags.Backend, "error", err)
		os.Exit(1)
	}
	defer closeFlags()

	generator := jobinput.NewGenerator(
		st,
		st,
		oauth.NewInjector(st, logger),
		worker.InstrumentStateService(state),
		flags,
		logger,
	)

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.Address,
		Namespace: cfg.Temporal.Namespace,
		Logger:    logging.Temporal(logger),
	})
	if err != nil {
		logger.Error("temporal client init failed", "address", cfg.Temporal.Address, "error", err)
		os.Exit(1)
	}
	defer temporalClient.Close()

	w := worker.RegisterJobInputWorker(temporalClient, cfg.Temporal.TaskQueue, generator, logger)
	if err := w.Start(); err != nil {
		logger.Error("temporal worker start failed", "error", err)
		os.Exit(1)
	}
	defer w.Stop()

	orchestrator := worker.NewTemporalOrchestrator(temporalClient, cfg.Temporal.TaskQueue, logger)
	serverLogger := logger.With("component", "worker.http")
	server := &http.Server{
		Addr:              cfg.Worker.Addr,
		Handler:           worker.NewServer(orchestrator, serverLogger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		serverLogger.Info("worker API listening", "addr", cfg.Worker.Addr, "task_queue", cfg.Temporal.TaskQueue)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverLogger.Error("worker server error", "error", err)
		}
	}()

	waitForShutdown(serverLogger, server)
}

func newFlagClient(cfg config.FeatureFlagConfig, logger *slog.Logger) (featureflag.Client, func(), error) {
	switch cfg.Backend {
	case "", config.FlagBackendNone:
		return featureflag.NoopClient{}, func() {}, nil
	case config.FlagBackendFile:
		c, err := featureflag.NewFileClient(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return c, func() {}, nil
	case config.FlagBackendRedis:
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: cfg.RedisAddrs})
		return featureflag.NewRedisClient(rdb, cfg.RedisPrefix, logger.With("component", "featureflag")), func() { _ = rdb.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown feature flag backend %q", cfg.Backend)
	}
}

func waitForShutdown(logger *slog.Logger, server *http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		return
	}
	logger.Info("worker stopped")
}
