// Package timeout resumes waiting executions whose wait deadline has passed.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/persistence"
	"github.com/robfig/cron/v3"
)

const (
	DefaultSchedule = "@every 30s"
	pageSize        = 100
)

// Resumer delivers resume events to waiting executions.
type Resumer interface {
	Resume(ctx context.Context, executionID string, event models.ResumeEvent) (*models.Execution, error)
}

// Sweeper periodically resumes expired waits with a timeout event.
type Sweeper struct {
	schedule   string
	executions persistence.ExecutionRepository
	resumer    Resumer
	logger     *slog.Logger
	now        func() time.Time

	cron *cron.Cron
}

func NewSweeper(logger *slog.Logger, schedule string, executions persistence.ExecutionRepository, resumer Resumer) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule: %w", err)
	}

	return &Sweeper{
		schedule:   schedule,
		executions: executions,
		resumer:    resumer,
		logger:     logger.With("module", "timeout_sweeper", "schedule", schedule),
		now:        time.Now,
	}, nil
}

func (s *Sweeper) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Starting timeout sweeper")

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	if _, err := s.cron.AddFunc(s.schedule, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("failed to add sweep job: %w", err)
	}

	s.cron.Start()

	return nil
}

func (s *Sweeper) run(ctx context.Context) {
	resumed, err := s.Sweep(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Timeout sweep failed", "error", err)

		return
	}

	if resumed > 0 {
		s.logger.InfoContext(ctx, "Timeout sweep finished", "resumed", resumed)
	}
}

// Sweep resumes every execution waiting past its deadline and returns how
// many were resumed. Executions resumed concurrently by someone else are
// skipped.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	expired, err := s.expired(ctx)
	if err != nil {
		return 0, err
	}

	resumed := 0

	for _, id := range expired {
		if ctx.Err() != nil {
			return resumed, ctx.Err()
		}

		_, err := s.resumer.Resume(ctx, id, models.ResumeEvent{Type: models.ResumeEventTimeout})

		switch {
		case err == nil:
			resumed++
		case models.IsConcurrencyConflict(err), errors.Is(err, persistence.ErrExecutionNotFound):
			s.logger.DebugContext(ctx, "Expired wait already handled", "execution_id", id)
		default:
			s.logger.ErrorContext(ctx, "Failed to resume expired wait", "execution_id", id, "error", err)
		}
	}

	return resumed, nil
}

func (s *Sweeper) expired(ctx context.Context) ([]string, error) {
	now := s.now().UTC()
	opts := persistence.ListExecutionsOptions{
		Statuses:           []models.ExecutionStatus{models.ExecutionStatusWaiting},
		WaitDeadlineBefore: &now,
		Limit:              pageSize,
	}

	var ids []string

	for page := 1; ; page++ {
		opts.Page = page

		result, err := s.executions.List(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list expired waits: %w", err)
		}

		for _, exec := range result.Items {
			ids = append(ids, exec.ID)
		}

		if len(result.Items) < pageSize || len(ids) >= result.Total {
			return ids, nil
		}
	}
}

func (s *Sweeper) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Stopping timeout sweeper")

	if s.cron == nil {
		return nil
	}

	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
