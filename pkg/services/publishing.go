// Package services provides the operations exposed by the engine: workflow
// publishing, execution start/resume/cancel, restarts and dispatch handling.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/persistence"
	"github.com/google/uuid"
)

// DefinitionValidator rejects versions that cannot be interpreted.
type DefinitionValidator interface {
	Validate(version *models.WorkflowVersion) error
}

// Publishing handles workflow publishing operations with simplified versioning.
type Publishing struct {
	logger    *slog.Logger
	versions  persistence.VersionRepository
	validator DefinitionValidator
	now       func() time.Time
}

// NewPublishing creates a new workflow publishing service.
func NewPublishing(logger *slog.Logger, versions persistence.VersionRepository, validator DefinitionValidator) *Publishing {
	return &Publishing{
		logger:    logger.With("module", "publishing_service"),
		versions:  versions,
		validator: validator,
		now:       time.Now,
	}
}

// Publish validates draft and stores it as the next version of workflowID,
// which becomes the active one. Nothing is stored when validation fails.
func (p *Publishing) Publish(ctx context.Context, workflowID string, draft *models.WorkflowVersion) (*models.WorkflowVersion, error) {
	const op = "publish"

	if workflowID == "" {
		return nil, NewValidationError(op, "workflow id is required", ErrWorkflowIDRequired)
	}

	if draft == nil {
		return nil, NewValidationError(op, "workflow definition is required", ErrInvalidRequest)
	}

	latest, err := p.versions.LatestNumber(ctx, workflowID)
	if err != nil {
		return nil, wrap(op, err)
	}

	version := *draft
	version.ID = uuid.NewString()
	version.WorkflowID = workflowID
	version.Version = latest + 1
	version.IsActive = true
	version.CreatedAt = p.now().UTC()

	if err := p.validator.Validate(&version); err != nil {
		return nil, wrap(op, err)
	}

	if err := p.versions.Save(ctx, &version); err != nil {
		return nil, wrap(op, fmt.Errorf("failed to save version %d: %w", version.Version, err))
	}

	p.logger.InfoContext(ctx, "Workflow published",
		"workflow_id", workflowID,
		"version", version.Version,
		"nodes", len(version.Nodes))

	return &version, nil
}

// GetVersion returns one version of a workflow, or its active version.
func (p *Publishing) GetVersion(ctx context.Context, workflowID string, ref models.VersionRef) (*models.WorkflowVersion, error) {
	if ref.IsActive() {
		version, err := p.versions.GetActive(ctx, workflowID)

		return version, wrap("get_version", err)
	}

	n, err := ref.Number()
	if err != nil {
		return nil, NewValidationError("get_version", err.Error(), ErrInvalidRequest)
	}

	version, err := p.versions.Get(ctx, workflowID, n)

	return version, wrap("get_version", err)
}

// ListVersions returns every version of a workflow, oldest first.
func (p *Publishing) ListVersions(ctx context.Context, workflowID string) ([]*models.WorkflowVersion, error) {
	versions, err := p.versions.List(ctx, workflowID)

	return versions, wrap("list_versions", err)
}
