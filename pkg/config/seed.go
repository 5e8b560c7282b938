package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/loyalflow/pkg/models"
)

// Publisher stores drafts as new workflow versions.
type Publisher interface {
	ListVersions(ctx context.Context, workflowID string) ([]*models.WorkflowVersion, error)
	Publish(ctx context.Context, workflowID string, draft *models.WorkflowVersion) (*models.WorkflowVersion, error)
}

// Seed publishes the definitions of dir whose workflow has no version yet
// and returns how many were published.
func Seed(ctx context.Context, logger *slog.Logger, publisher Publisher, dir string) (int, error) {
	drafts, err := LoadDefinitions(dir)
	if err != nil {
		return 0, err
	}

	published := 0

	for _, draft := range drafts {
		existing, err := publisher.ListVersions(ctx, draft.WorkflowID)
		if err != nil {
			return published, fmt.Errorf("failed to list versions of %s: %w", draft.WorkflowID, err)
		}

		if len(existing) > 0 {
			logger.DebugContext(ctx, "Workflow already published, skipping seed", "workflow_id", draft.WorkflowID)

			continue
		}

		version, err := publisher.Publish(ctx, draft.WorkflowID, draft)
		if err != nil {
			return published, fmt.Errorf("failed to seed %s: %w", draft.WorkflowID, err)
		}

		logger.InfoContext(ctx, "Seeded workflow", "workflow_id", version.WorkflowID, "version", version.Version)

		published++
	}

	return published, nil
}
