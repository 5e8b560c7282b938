// Package main provides the loyalflow API server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/loyalflow/pkg/cmd"
	"github.com/dukex/loyalflow/pkg/config"
	"github.com/dukex/loyalflow/pkg/log"
	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	command := &cli.Command{
		Name:                  "loyalflow-api",
		Usage:                 "Publish conversational workflows and drive their executions",
		EnableShellCompletion: true,
		Flags: append(cmd.Flags(),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "definitions-dir",
				Usage:   "Directory of YAML or JSON workflow definitions published on startup",
				Sources: cli.EnvVars("DEFINITIONS_DIR"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))
			logger := log.WithModule("loyalflow-api")

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.InfoContext(ctx, "Initializing loyalflow API")

			opts := cmd.OptionsFrom("loyalflow-api", command)

			app, err := cmd.NewApp(ctx, logger, opts)
			if err != nil {
				return err
			}

			defer app.Close(context.WithoutCancel(ctx))

			if dir := command.String("definitions-dir"); dir != "" {
				if _, err := config.Seed(ctx, logger, app.Publishing, dir); err != nil {
					return err
				}
			}

			// An in-process bus has no separate worker to consume dispatches.
			if opts.EventBus == "" || opts.EventBus == "gochannel" {
				stopWorker, err := app.StartWorker(ctx, command.String("sweep-schedule"))
				if err != nil {
					return err
				}

				defer func() { _ = stopWorker(context.WithoutCancel(ctx)) }()
			}

			return NewAPI(logger, app).Start(ctx, int(command.Int("port")))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		slog.Error("loyalflow API stopped", "error", err)
		os.Exit(1)
	}
}
