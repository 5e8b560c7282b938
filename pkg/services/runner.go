package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukex/loyalflow/pkg/dispatch"
	"github.com/dukex/loyalflow/pkg/eventbus"
	"github.com/dukex/loyalflow/pkg/events"
	"github.com/dukex/loyalflow/pkg/execution"
	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/persistence"
	"github.com/dukex/loyalflow/pkg/workflow"
)

// Runner consumes execution.dispatched events and runs the dispatched
// execution. Returning an error nacks the event for redelivery, so an event
// is acknowledged only once its cycle is persisted.
type Runner struct {
	logger    *slog.Logger
	manager   *execution.Manager
	processor *workflow.Processor
	claimer   dispatch.Claimer
	publisher eventbus.EventPublisher
}

func NewRunner(
	logger *slog.Logger,
	manager *execution.Manager,
	processor *workflow.Processor,
	claimer dispatch.Claimer,
	publisher eventbus.EventPublisher,
) *Runner {
	return &Runner{
		logger:    logger.With("module", "dispatch_runner"),
		manager:   manager,
		processor: processor,
		claimer:   claimer,
		publisher: publisher,
	}
}

// Register subscribes the runner to dispatch events.
func (r *Runner) Register(subscriber eventbus.EventSubscriber) error {
	return subscriber.Handle(events.ExecutionDispatchedEvent, r.HandleDispatched)
}

func (r *Runner) HandleDispatched(ctx context.Context, event any) error {
	dispatched, ok := event.(*events.ExecutionDispatched)
	if !ok {
		r.logger.ErrorContext(ctx, "Unexpected event on dispatch handler", "event", event)

		return nil
	}

	logger := r.logger.With("execution_id", dispatched.ExecutionID, "node_id", dispatched.StartNodeID)

	claimed, err := r.claimer.Claim(ctx, dispatched.ExecutionID)
	if err != nil {
		return err
	}

	if !claimed {
		logger.InfoContext(ctx, "Execution is claimed by another worker")

		return nil
	}

	defer func() {
		if err := r.claimer.Release(context.WithoutCancel(ctx), dispatched.ExecutionID); err != nil {
			logger.WarnContext(ctx, "Failed to release claim", "error", err)
		}
	}()

	c, err := r.manager.Load(ctx, dispatched.ExecutionID)
	if err != nil {
		if models.IsConcurrencyConflict(err) || errors.Is(err, persistence.ErrExecutionNotFound) {
			logger.InfoContext(ctx, "Dropping dispatch of execution that is no longer runnable", "reason", err)

			return nil
		}

		return err
	}

	logger.InfoContext(ctx, "Running dispatched execution", "parent_execution_id", dispatched.ParentExecutionID)

	out := r.processor.Run(ctx, c.Run, dispatched.StartNodeID)

	if err := r.manager.Persist(ctx, c); err != nil {
		logger.ErrorContext(ctx, "Failed to persist dispatched execution", "error", err)

		return err
	}

	logger.InfoContext(ctx, "Dispatched execution finished cycle", "status", out.Status, "steps", c.Run.CycleSteps())

	publishLifecycle(ctx, r.logger, r.publisher, c.Execution())

	return nil
}
