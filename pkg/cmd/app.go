package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/loyalflow/pkg/dispatch"
	"github.com/dukex/loyalflow/pkg/eventbus"
	"github.com/dukex/loyalflow/pkg/outbound"
	"github.com/dukex/loyalflow/pkg/persistence"
	"github.com/dukex/loyalflow/pkg/services"
	"github.com/dukex/loyalflow/pkg/workflow"
)

const httpRetryDelay = time.Second

// App bundles the engine and the services built on top of it.
type App struct {
	Logger      *slog.Logger
	Persistence persistence.Persistence
	EventBus    eventbus.EventBus
	Processor   *workflow.Processor
	Publishing  *services.Publishing
	Executions  *services.Executions
	Restarts    *services.Restarts
	Variables   *services.Variables

	redisURL string
	closers  []func(context.Context) error
}

// NewApp connects persistence and the event bus and builds the services.
func NewApp(ctx context.Context, logger *slog.Logger, opts Options) (*App, error) {
	app := &App{Logger: logger, redisURL: opts.RedisURL}

	store, err := NewPersistence(ctx, logger, opts.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create persistence: %w", err)
	}

	app.Persistence = store
	app.closers = append(app.closers, store.Close)

	bus, err := NewEventBus(logger, opts.EventBus, opts.KafkaBrokers, opts.ServiceName)
	if err != nil {
		app.Close(ctx)

		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}

	app.EventBus = bus
	app.closers = append(app.closers, func(context.Context) error { return bus.Close() })

	tracer, err := NewTracer(ctx, opts.Tracing, opts.ServiceName)
	if err != nil {
		app.Close(ctx)

		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}

	versions := persistence.NewVersionSource(store.Versions())

	processor, err := NewProcessor(logger, EngineConfig{
		Versions:   versions,
		Messenger:  outbound.NewEventMessenger(logger, bus),
		HTTPClient: outbound.NewHTTPClient(logger, outbound.WithRetry(outbound.RetryConfig{Attempts: opts.HTTPRetries, Delay: httpRetryDelay})),
		Tracer:     tracer,
		MaxSteps:   opts.MaxSteps,
	})
	if err != nil {
		app.Close(ctx)

		return nil, fmt.Errorf("failed to create processor: %w", err)
	}

	app.Processor = processor
	app.Publishing = services.NewPublishing(logger, store.Versions(), processor)
	app.Executions = services.NewExecutions(logger, store, versions, processor, bus)
	app.Restarts = services.NewRestarts(logger, store, versions, processor, bus)
	app.Variables = services.NewVariables(logger, store.Variables())

	return app, nil
}

// NewRunner builds the consumer of dispatched executions, claiming them
// through Redis when configured.
func (a *App) NewRunner(ctx context.Context) (*services.Runner, error) {
	claimer, err := NewClaimer(ctx, a.Logger, a.redisURL, dispatch.DefaultClaimTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatch claimer: %w", err)
	}

	if closer, ok := claimer.(interface{ Close() error }); ok {
		a.closers = append(a.closers, func(context.Context) error { return closer.Close() })
	}

	return services.NewRunner(a.Logger, a.Executions.Manager(), a.Processor, claimer, a.EventBus), nil
}

// Close releases every connection in reverse order of creation.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.Logger.ErrorContext(ctx, "Failed to close resource", "error", err)
		}
	}

	a.closers = nil
}
