// Package app implements application orchestration and component lifecycle
// management for the Echoleads chat client.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/echoleads/echoleads-go/internal/auth"
	"github.com/echoleads/echoleads-go/internal/chat"
	"github.com/echoleads/echoleads-go/internal/config"
	"github.com/echoleads/echoleads-go/internal/storage"
)

// App represents the main client application and manages its components' lifecycle.
type App struct {
	logger    *slog.Logger
	cfg       *config.Config
	db        *sqlx.DB
	store     storage.Store
	auth      *auth.Manager
	scheduler *Scheduler
}

// New creates a new application instance with all required dependencies.
func New(
	logger *slog.Logger,
	cfg *config.Config,
	db *sqlx.DB,
	store storage.Store,
	authManager *auth.Manager,
	scheduler *Scheduler,
) *App {
	return &App{
		logger:    logger.With("component", "app_orchestrator"),
		cfg:       cfg,
		db:        db,
		store:     store,
		auth:      authManager,
		scheduler: scheduler,
	}
}

// EnsureAuthenticated restores the stored session or performs a fresh login
// with the configured credentials. A stored session that fails to refresh is
// wiped before credentials are tried.
func (a *App) EnsureAuthenticated(ctx context.Context) error {
	if a.auth.IsAuthenticated(ctx) {
		a.logger.Info("Restored stored session")
		return a.registerDeviceToken(ctx)
	}

	if _, err := a.auth.ValidToken(ctx); err == nil {
		a.logger.Info("Refreshed stored session")
		return a.registerDeviceToken(ctx)
	} else if !errors.Is(err, auth.ErrNoSession) && !errors.Is(err, auth.ErrSessionExpired) {
		return fmt.Errorf("session restore failed: %w", err)
	}

	if a.cfg.Auth.Email == "" || a.cfg.Auth.Password == "" {
		return fmt.Errorf("no stored session and no credentials configured")
	}

	a.logger.Info("Logging in with configured credentials", "email", a.cfg.Auth.Email)
	user, err := a.auth.Login(ctx, a.cfg.Auth.Email, a.cfg.Auth.Password, a.cfg.Auth.DeviceToken)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	a.logger.Info("Logged in", "user_id", user.ID, "user_name", user.Name)

	return nil
}

// registerDeviceToken forwards the device token to the backend so push
// notifications reach this client. When none is configured a persistent
// install identifier is minted and used instead. Failure is not fatal.
func (a *App) registerDeviceToken(ctx context.Context) error {
	token := a.cfg.Auth.DeviceToken
	if token == "" {
		var err error
		token, err = a.installID(ctx)
		if err != nil {
			a.logger.Warn("Failed to resolve install identifier", "error", err)
			return nil
		}
	}
	if err := a.auth.RegisterDeviceToken(ctx, token); err != nil {
		a.logger.Warn("Failed to register device token", "error", err)
	}
	return nil
}

// installID returns this installation's stable identifier, minting and
// persisting one on first use.
func (a *App) installID(ctx context.Context) (string, error) {
	id, err := a.store.Get(ctx, storage.KeyInstallID)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}

	id = uuid.NewString()
	if err := a.store.Set(ctx, storage.KeyInstallID, id); err != nil {
		return "", err
	}
	a.logger.Info("Minted install identifier", "install_id", id)
	return id, nil
}

// Run starts the chat session and the scheduler, handling graceful shutdown
// on context cancellation. It returns an error if any component fails during
// startup or execution.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("Starting app orchestrator...")

	if err := a.EnsureAuthenticated(ctx); err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("Starting chat session...", "url", a.cfg.Socket.URL)

		session, err := chat.Dial(gCtx, chat.Config{
			URL:               a.cfg.Socket.URL,
			DialTimeout:       a.cfg.Socket.DialTimeout,
			ReconnectAttempts: a.cfg.Socket.ReconnectAttempts,
			ReconnectDelay:    a.cfg.Socket.ReconnectDelay,
			PingInterval:      a.cfg.Socket.PingInterval,
			TypingTTL:         a.cfg.Socket.TypingTTL,
		}, a.handleMessage, a.logger)
		if err != nil {
			a.logger.Error("Failed to establish chat session", "error", err)
			return fmt.Errorf("failed to establish chat session: %w", err)
		}
		defer session.Close()

		if a.cfg.Room.BotID != "" && a.cfg.Room.UserID != "" {
			session.SetRoom(a.cfg.Room.BotID, a.cfg.Room.UserID)
			a.logger.Info("Joined chat room", "bot_id", a.cfg.Room.BotID, "user_id", a.cfg.Room.UserID)
		}

		select {
		case <-gCtx.Done():
			a.logger.Info("Shutdown signal received, closing chat session...")
			return nil
		case <-session.Done():
			a.logger.Warn("Chat session closed unexpectedly")
			return fmt.Errorf("chat session closed unexpectedly")
		}
	})

	g.Go(func() error {
		a.logger.Info("Starting scheduler...")
		if err := a.scheduler.Start(); err != nil {
			a.logger.Error("Failed to start scheduler", "error", err)
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		a.logger.Info("Shutdown signal received, stopping scheduler...")

		if err := a.scheduler.Stop(); err != nil {
			a.logger.Error("Error stopping scheduler", "error", err)
		}

		return nil
	})

	a.logger.Info("App orchestrator running. Waiting for shutdown signal or error...")
	err := g.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("App orchestrator stopped due to error", "error", err)
		return err
	}

	a.logger.Info("App orchestrator stopped gracefully.")
	return nil
}

// handleMessage receives normalized chat messages from the session.
func (a *App) handleMessage(msg chat.Message, room chat.RoomKey) {
	a.logger.Info("Chat message",
		"room", room.String(),
		"message_id", msg.ID,
		"direction", msg.Direction,
		"created_at", msg.CreatedAt,
	)
}
