package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Orchestrator runs every background loop as a concurrent goroutine. If any
// loop returns a non-context error the shared context is cancelled and Run
// returns that error.
type Orchestrator struct {
	sweeper       *OrderSweeper
	notifier      *EventNotifier
	sweepInterval time.Duration
	logger        *slog.Logger
}

// NewOrchestrator creates a new Orchestrator. notifier may be nil when no
// notification channels are configured.
func NewOrchestrator(
	sweeper *OrderSweeper,
	notifier *EventNotifier,
	sweepInterval time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		sweeper:       sweeper,
		notifier:      notifier,
		sweepInterval: sweepInterval,
		logger:        logger,
	}
}

// Run starts the loops and blocks until the context is cancelled or a loop
// fails.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.InfoContext(ctx, "pipeline: orchestrator starting",
		slog.Duration("sweep_interval", o.sweepInterval),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := o.sweeper.RunLoop(ctx, o.sweepInterval)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("pipeline: sweeper: %w", err)
	})

	if o.notifier != nil {
		g.Go(func() error {
			err := o.notifier.Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("pipeline: event notifier: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		o.logger.ErrorContext(ctx, "pipeline: orchestrator stopped with error",
			slog.String("error", err.Error()),
		)
		return err
	}

	o.logger.InfoContext(ctx, "pipeline: orchestrator stopped cleanly")
	return nil
}
