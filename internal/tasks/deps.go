// Package tasks implements the client's scheduled background tasks:
// proactive token refresh and local-store maintenance.
package tasks

import (
	"log/slog"

	"github.com/echoleads/echoleads-go/internal/auth"
	"github.com/echoleads/echoleads-go/internal/config"
	"github.com/echoleads/echoleads-go/internal/storage"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Store  storage.Store
	Auth   *auth.Manager
	Config *config.Config
}
