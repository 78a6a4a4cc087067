// Package main contains the entrypoint for the Echoleads chat client.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/echoleads/echoleads-go/internal/api"
	"github.com/echoleads/echoleads-go/internal/app"
	"github.com/echoleads/echoleads-go/internal/auth"
	"github.com/echoleads/echoleads-go/internal/config"
	"github.com/echoleads/echoleads-go/internal/logger"
	"github.com/echoleads/echoleads-go/internal/storage"
	"github.com/echoleads/echoleads-go/internal/tasks"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop() // Ensure context cancellation is signaled before exit
	os.Exit(exitCode)
}

// run initializes and starts all application components (config, logger, store,
// API client, auth manager, chat session, scheduler), handles graceful
// shutdown, and returns an exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	db, err := storage.NewDB(cfg.Storage.Path)
	if err != nil {
		log.Error("Failed to open credential store", "path", cfg.Storage.Path, "error", err)
		return 1
	}
	defer storage.CloseDB(db) // Ensure DB is closed on function exit
	store := storage.NewStore(db, log)

	client := api.NewClient(api.Config{
		BaseURL:        cfg.API.BaseURL,
		RequestTimeout: cfg.API.RequestTimeout,
		RefreshTimeout: cfg.API.RefreshTimeout,
	}, log)

	authManager := auth.NewManager(store, client, log)
	client.Use(
		api.Logging(log),
		api.BearerAuth(authManager, log),
	)

	tDeps := tasks.TaskDeps{
		Logger: log,
		Store:  store,
		Auth:   authManager,
		Config: cfg,
	}

	sched := app.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	application := app.New(log, cfg, db, store, authManager, sched)

	log.Info("Starting client...")
	runErr := application.Run(ctx) // Run blocks until context is cancelled or an error occurs
	log.Info("Client run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Client stopped due to error", "error", runErr)
		// Allow logs to flush before exiting on error
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Client stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
