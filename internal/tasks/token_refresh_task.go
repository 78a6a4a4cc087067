package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/echoleads/echoleads-go/internal/auth"
)

// newTokenRefreshTask creates the scheduled task that keeps the access
// token warm. Refreshing ahead of expiry means API calls and socket
// reconnects rarely pay the refresh round-trip or hit a 401.
func newTokenRefreshTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "token_refresh")

	return func(ctx context.Context) error {
		startTime := time.Now()

		_, err := deps.Auth.ValidToken(ctx)
		duration := time.Since(startTime)

		switch {
		case err == nil:
			log.DebugContext(ctx, "Access token is valid", "duration", duration)
			return nil
		case errors.Is(err, auth.ErrNoSession):
			// Nothing to refresh until the user logs in.
			log.DebugContext(ctx, "No session to refresh")
			return nil
		case errors.Is(err, auth.ErrSessionExpired):
			log.WarnContext(ctx, "Session expired during background refresh, login required")
			return nil
		default:
			log.ErrorContext(ctx, "Background token refresh failed", "error", err, "duration", duration)
			return err
		}
	}
}
