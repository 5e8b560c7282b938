// Package main provides the loyalflow worker: it runs dispatched executions
// and resumes waits past their deadline.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/loyalflow/pkg/cmd"
	"github.com/dukex/loyalflow/pkg/log"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	command := &cli.Command{
		Name:                  "loyalflow-worker",
		EnableShellCompletion: true,
		Usage:                 "Run dispatched executions and expire waits",
		Flags: append(cmd.Flags(),
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.BoolFlag{
				Name:    "disable-sweeper",
				Usage:   "Do not resume expired waits from this worker",
				Sources: cli.EnvVars("DISABLE_SWEEPER"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("loyalflow-worker").With("workerId", workerID)

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.InfoContext(ctx, "Initializing loyalflow worker")

			app, err := cmd.NewApp(ctx, logger, cmd.OptionsFrom("loyalflow-worker", command))
			if err != nil {
				return err
			}

			defer app.Close(context.WithoutCancel(ctx))

			schedule := command.String("sweep-schedule")
			if command.Bool("disable-sweeper") {
				schedule = ""
			}

			return NewWorker(logger, app, schedule).Run(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		slog.Error("loyalflow worker stopped", "error", err)
		os.Exit(1)
	}
}
