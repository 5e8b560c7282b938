package cmd

import (
	"context"
	"fmt"

	"github.com/dukex/loyalflow/pkg/triggers/timeout"
)

// StartWorker registers the consumer of dispatched executions and, unless
// schedule is empty, starts the wait timeout sweeper. The returned function
// stops the sweeper.
func (a *App) StartWorker(ctx context.Context, schedule string) (func(context.Context) error, error) {
	runner, err := a.NewRunner(ctx)
	if err != nil {
		return nil, err
	}

	if err := runner.Register(a.EventBus); err != nil {
		return nil, fmt.Errorf("failed to register dispatch runner: %w", err)
	}

	if err := a.EventBus.Subscribe(ctx); err != nil {
		return nil, fmt.Errorf("failed to subscribe to dispatch events: %w", err)
	}

	if schedule == "" {
		a.Logger.InfoContext(ctx, "Timeout sweeper disabled")

		return func(context.Context) error { return nil }, nil
	}

	sweeper, err := timeout.NewSweeper(a.Logger, schedule, a.Persistence.Executions(), a.Executions)
	if err != nil {
		return nil, err
	}

	if err := sweeper.Start(ctx); err != nil {
		return nil, err
	}

	return sweeper.Stop, nil
}
