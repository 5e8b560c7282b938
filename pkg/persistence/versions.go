package persistence

import (
	"context"

	"github.com/dukex/loyalflow/pkg/models"
)

// VersionSource resolves version references against a VersionRepository.
type VersionSource struct {
	repo VersionRepository
}

func NewVersionSource(repo VersionRepository) *VersionSource {
	return &VersionSource{repo: repo}
}

func (s *VersionSource) GetVersion(ctx context.Context, workflowID string, ref models.VersionRef) (*models.WorkflowVersion, error) {
	if ref.IsActive() {
		return s.repo.GetActive(ctx, workflowID)
	}

	n, err := ref.Number()
	if err != nil {
		return nil, err
	}

	return s.repo.Get(ctx, workflowID, n)
}
