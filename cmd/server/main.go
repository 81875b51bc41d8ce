package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/jobinput/internal/api"
	"example.com/jobinput/internal/config"
	"example.com/jobinput/internal/database"
	"example.com/jobinput/internal/logging"
	"example.com/jobinput/internal/store"
	"example.com/jobinput/internal/tracing"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file")
		addr       = flag.String("addr", "", "HTTP listen address, overrides api.addr")
		seedPath   = flag.String("seed", "", "YAML file of definitions, connections and jobs to load on startup")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config failed", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.API.Addr = *addr
	}

	ctx := context.Background()
	logger := logging.New(cfg.Log.Format, cfg.Log.Level)

	shutdownTracer, err := tracing.InitTracer(ctx, cfg.Tracing.Endpoint, cfg.Tracing.ServiceName+"-api")
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

	if *seedPath != "" {
		if err := loadSeed(ctx, st, *seedPath, logger); err != nil {
			logger.Error("load seed failed", "path", *seedPath, "error", err)
			os.Exit(1)
		}
	}

	serverLogger := logger.With("component", "api.http")
	server := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           api.NewServer(st, cfg.API.Token, serverLogger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		serverLogger.Info("config API listening", "addr", cfg.API.Addr, "driver", cfg.Database.Driver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverLogger.Error("api server error", "error", err)
		}
	}()

	waitForShutdown(serverLogger, server)
}

func loadSeed(ctx context.Context, st *store.Store, path string, logger *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	jobs, err := st.LoadSeed(ctx, f)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		logger.Info("seeded job", "job_id", job.ID, "config_type", job.ConfigType, "scope", job.Scope)
	}
	return nil
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
	logger.Info("api server stopped")
}
