package main

import (
	"context"
	"log/slog"

	"github.com/dukex/loyalflow/pkg/cmd"
)

// Worker consumes dispatched executions and, unless its schedule is empty,
// sweeps expired waits.
type Worker struct {
	logger   *slog.Logger
	app      *cmd.App
	schedule string
}

func NewWorker(logger *slog.Logger, app *cmd.App, schedule string) *Worker {
	return &Worker{logger: logger, app: app, schedule: schedule}
}

// Run starts the worker and blocks until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	stop, err := w.app.StartWorker(ctx, w.schedule)
	if err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Worker started")

	<-ctx.Done()

	w.logger.InfoContext(ctx, "Shutting down worker")

	return stop(context.WithoutCancel(ctx))
}
