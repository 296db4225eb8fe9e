package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	executoradapter "github.com/nightwatch-dev/nightwatch/internal/adapter/driven/executor"
	githubadapter "github.com/nightwatch-dev/nightwatch/internal/adapter/driven/github"
	sqliteadapter "github.com/nightwatch-dev/nightwatch/internal/adapter/driven/sqlite"
	httphandler "github.com/nightwatch-dev/nightwatch/internal/adapter/driving/http"
	"github.com/nightwatch-dev/nightwatch/internal/application"
	"github.com/nightwatch-dev/nightwatch/internal/config"
	"github.com/nightwatch-dev/nightwatch/internal/domain/port/driven"
	"github.com/nightwatch-dev/nightwatch/internal/logging"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if _, err := logging.Setup(cfg.LogFile, cfg.LogLevel); err != nil {
		return err
	}
	defer func() {
		if closeErr := logging.CloseFile(); closeErr != nil {
			slog.Error("error closing log file", "error", closeErr)
		}
	}()

	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"poll_interval", cfg.PollInterval,
		"poll_workers", cfg.PollWorkers,
		"executor_configured", cfg.ExecutorURL != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	subStore := sqliteadapter.NewSubscriptionRepo(db)
	credStore := sqliteadapter.NewCredentialRepo(db)
	testRunStore := sqliteadapter.NewTestRunRepo(db)

	factory := application.NewCachingClientFactory(
		func(token string) driven.GitHubClient { return githubadapter.NewClient(token) },
		func() driven.GitHubClient { return githubadapter.NewAnonymousClient() },
	)

	var executor driven.ScenarioExecutor
	if cfg.ExecutorURL != "" {
		executor = executoradapter.NewClient(cfg.ExecutorURL, cfg.ExecutorTimeout)
		slog.Info("scenario executor configured", "url", cfg.ExecutorURL)
	} else {
		slog.Warn("no scenario executor configured, detected runs will stay pending")
	}

	verifier := application.NewVerifierService(factory, cfg.GitHubTimeout)
	subSvc := application.NewSubscriptionService(subStore, credStore, verifier)
	testSvc := application.NewTestRunService(testRunStore, subStore, executor, cfg.ExecutorTimeout)
	pollSvc := application.NewPollService(subStore, credStore, factory, testSvc, cfg.GitHubTimeout, cfg.PollWorkers)

	if cfg.PollInterval > 0 {
		go pollSvc.Start(ctx, cfg.PollInterval)
	} else {
		slog.Info("poll scheduler disabled, polling is on-demand only")
	}

	apiHandler := httphandler.NewHandler(subSvc, testSvc, pollSvc, verifier, slog.Default())
	router := httphandler.NewRouter(apiHandler, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("nightwatch started", "listen_addr", cfg.ListenAddr)

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
