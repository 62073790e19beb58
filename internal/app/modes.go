package app

import (
	"context"
	"fmt"
	"log/slog"
)

// EngineMode runs the background loops: the expired-order sweeper on its
// interval and, when notification channels are configured, the event
// notifier. It blocks until the context is cancelled.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting engine mode")

	if err := deps.Orchestrator.Run(ctx); err != nil {
		return fmt.Errorf("engine mode: %w", err)
	}
	return nil
}

// SweepMode executes a single sweep pass and exits. Useful from cron or for
// draining a book before maintenance.
func (a *App) SweepMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sweep mode")

	swept, err := deps.Sweeper.Run(ctx)
	if err != nil {
		return fmt.Errorf("sweep mode: %w", err)
	}

	a.logger.InfoContext(ctx, "sweep complete",
		slog.Int("orders_swept", swept),
	)
	return nil
}
