package tasks

import (
	"context"
	"fmt"
	"time"
)

// newStorageMaintenanceTask creates the scheduled task for compacting the
// local credential store.
func newStorageMaintenanceTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "storage_maintenance")

	return func(ctx context.Context) error {
		startTime := time.Now()

		err := deps.Store.Vacuum(ctx)
		duration := time.Since(startTime)

		if err != nil {
			log.ErrorContext(ctx, "Storage maintenance task failed", "error", err, "duration", duration)
			return fmt.Errorf("storage maintenance failed: %w", err)
		}

		log.InfoContext(ctx, "Storage maintenance task completed", "duration", duration)
		return nil
	}
}
