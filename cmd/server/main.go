package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/me/labexec/internal/cleanup"
	"github.com/me/labexec/internal/config"
	"github.com/me/labexec/internal/execution"
	"github.com/me/labexec/internal/logging"
	"github.com/me/labexec/internal/pool"
	"github.com/me/labexec/internal/remote"
	"github.com/me/labexec/internal/scheduler"
	"github.com/me/labexec/internal/server"
	"github.com/me/labexec/internal/status"
	"github.com/me/labexec/internal/store"
	"github.com/me/labexec/internal/workflows"
	"github.com/me/labexec/internal/workspace"
	"github.com/me/labexec/pkg/galaxy"
)

func main() {
	configFile := flag.String("config", "", "Path to server config file (YAML)")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "Log format (text, json)")
	dbPath := flag.String("db", "", "Database path (default ~/.labexec/labexec.db)")
	workflowsDir := flag.String("workflows", "", "Directory of workflow definitions")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg.ApplyEnv()
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *workflowsDir != "" {
		cfg.WorkflowsDir = *workflowsDir
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	// Resolve database path.
	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot determine home directory: %v\n", err)
			os.Exit(1)
		}
		dir := filepath.Join(home, ".labexec")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "cannot create %s: %v\n", dir, err)
			os.Exit(1)
		}
		cfg.DBPath = filepath.Join(dir, "labexec.db")
	}

	st, err := store.NewSQLiteStore(cfg.DBPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
		os.Exit(1)
	}
	logger.Info("database ready", "path", cfg.DBPath)

	registry, err := workflows.LoadDir(cfg.WorkflowsDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load workflows: %v\n", err)
		os.Exit(1)
	}
	logger.Info("workflows loaded", "dir", cfg.WorkflowsDir, "count", len(registry.List()))

	if cfg.Galaxy.APIKey == "" {
		if key, err := galaxy.LoadAPIKey(); err == nil {
			cfg.Galaxy.APIKey = key
		} else {
			logger.Warn("no Galaxy API key configured", "hint", "set "+config.EnvGalaxyAPIKey+" or write ~/.galaxy_api_key")
		}
	}
	logger.Info("galaxy configured", "url", cfg.Galaxy.URL, "api_key", cfg.Galaxy.APIKey)
	galaxyClient := galaxy.NewClient(galaxy.Config{
		URL:               cfg.Galaxy.URL,
		APIKey:            cfg.Galaxy.APIKey,
		Timeout:           cfg.Galaxy.Timeout,
		MaxRetries:        cfg.Galaxy.MaxRetries,
		RetryDelay:        cfg.Galaxy.RetryDelay,
		RequestsPerSecond: cfg.Galaxy.RequestsPerSecond,
		Burst:             cfg.Galaxy.Burst,
	}, logger)
	probeCtx, cancelProbe := context.WithTimeout(context.Background(), 10*time.Second)
	if v, err := galaxyClient.Version(probeCtx); err != nil {
		logger.Warn("galaxy not reachable", "url", cfg.Galaxy.URL, "error", err)
	} else {
		logger.Info("galaxy reachable", "url", cfg.Galaxy.URL, "version", v)
	}
	cancelProbe()

	jobs := remote.NewGalaxyJobClient(galaxyClient, status.NewResolver(logger), cfg.Galaxy.CallTimeout, logger)
	jobs.LinkFiles = cfg.Galaxy.LinkData

	preparer := workspace.NewPreparer(registry, jobs, logger)
	coord := execution.NewCoordinator(st, st, registry, preparer, jobs,
		execution.WithLogger(logger),
		execution.WithObserver(execution.MetricsObserver{}),
		execution.WithObserver(execution.LogObserver{Logger: logger}),
	)
	cleaner := cleanup.NewWorker(st, jobs, logger, execution.LogObserver{Logger: logger})

	workers := pool.New(cfg.Pool.Workers, cfg.Pool.QueueSize, logger)
	svc := execution.NewService(coord, cleaner, workers)

	sched := scheduler.NewLoop(st, svc, scheduler.Config{
		PollInterval:       cfg.Scheduler.PollInterval,
		CleanupAfter:       cfg.Scheduler.CleanupAfter,
		MaxConcurrentPolls: cfg.Scheduler.MaxConcurrentPolls,
	}, logger)

	srv := server.New(cfg, st, registry, logger,
		server.WithStatusPoller(svc),
		server.WithScheduler(sched),
	)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv.StartScheduler(ctx)

	go func() {
		logger.Info("server starting", "addr", cfg.Addr, "galaxy", cfg.Galaxy.URL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}

	// Stop dispatching, then let admitted operations finish.
	if err := sched.Stop(); err != nil {
		logger.Error("scheduler stop error", "error", err)
	}
	if err := workers.Close(shutdownCtx); err != nil {
		logger.Error("worker pool shutdown error", "error", err)
	}
	sched.Wait()

	logger.Info("server stopped")
}
