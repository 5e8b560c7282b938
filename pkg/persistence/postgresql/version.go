package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/persistence"
	"github.com/dukex/loyalflow/pkg/persistence/sqlbase"
)

// definition is the graph part of a version stored as JSONB.
type definition struct {
	Nodes          map[string]*models.Node `json:"nodes"`
	Connections    []*models.Connection    `json:"connections"`
	EntryNodeID    string                  `json:"entry_node_id"`
	VariableSchema map[string]any          `json:"variable_schema,omitempty"`
	Settings       map[string]any          `json:"settings,omitempty"`
}

const versionColumns = `id, workflow_id, version, project_id, name, definition, is_active, created_at`

// VersionRepository handles published workflow versions.
type VersionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// Save inserts a version and, when it is active, deactivates the others.
func (r *VersionRepository) Save(ctx context.Context, version *models.WorkflowVersion) error {
	def, err := json.Marshal(definition{
		Nodes:          version.Nodes,
		Connections:    version.Connections,
		EntryNodeID:    version.EntryNodeID,
		VariableSchema: version.VariableSchema,
		Settings:       version.Settings,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal workflow definition: %w", err)
	}

	return sqlbase.InTx(ctx, r.db, func(tx *sql.Tx) error {
		if version.IsActive {
			_, err := tx.ExecContext(ctx,
				`UPDATE workflow_versions SET is_active = false WHERE workflow_id = $1 AND is_active`,
				version.WorkflowID)
			if err != nil {
				return fmt.Errorf("failed to deactivate versions of %s: %w", version.WorkflowID, err)
			}
		}

		query := `INSERT INTO workflow_versions (` + versionColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

		_, err := tx.ExecContext(ctx, query,
			version.ID,
			version.WorkflowID,
			version.Version,
			version.ProjectID,
			version.Name,
			def,
			version.IsActive,
			version.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s v%d", persistence.ErrVersionExists, version.WorkflowID, version.Version)
			}

			return fmt.Errorf("failed to save workflow version: %w", err)
		}

		return nil
	})
}

func (r *VersionRepository) Get(ctx context.Context, workflowID string, version int) (*models.WorkflowVersion, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM workflow_versions WHERE workflow_id = $1 AND version = $2`,
		workflowID, version)

	out, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.VersionNotFound(workflowID, version)
		}

		return nil, fmt.Errorf("failed to scan workflow version: %w", err)
	}

	return out, nil
}

func (r *VersionRepository) GetActive(ctx context.Context, workflowID string) (*models.WorkflowVersion, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM workflow_versions WHERE workflow_id = $1 AND is_active`,
		workflowID)

	out, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.VersionNotFound(workflowID, models.ActiveVersion)
		}

		return nil, fmt.Errorf("failed to scan workflow version: %w", err)
	}

	return out, nil
}

// List returns every version of a workflow in ascending order.
func (r *VersionRepository) List(ctx context.Context, workflowID string) ([]*models.WorkflowVersion, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM workflow_versions WHERE workflow_id = $1 ORDER BY version`,
		workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow versions: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	versions := []*models.WorkflowVersion{}

	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow version: %w", err)
		}

		versions = append(versions, version)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow versions: %w", err)
	}

	return versions, nil
}

func (r *VersionRepository) LatestNumber(ctx context.Context, workflowID string) (int, error) {
	var latest int

	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM workflow_versions WHERE workflow_id = $1`,
		workflowID).Scan(&latest)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest version of %s: %w", workflowID, err)
	}

	return latest, nil
}

func scanVersion(row scanner) (*models.WorkflowVersion, error) {
	var (
		version models.WorkflowVersion
		raw     []byte
		def     definition
	)

	err := row.Scan(
		&version.ID,
		&version.WorkflowID,
		&version.Version,
		&version.ProjectID,
		&version.Name,
		&raw,
		&version.IsActive,
		&version.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow definition: %w", err)
	}

	version.Nodes = def.Nodes
	version.Connections = def.Connections
	version.EntryNodeID = def.EntryNodeID
	version.VariableSchema = def.VariableSchema
	version.Settings = def.Settings
	version.CreatedAt = version.CreatedAt.UTC()

	return &version, nil
}
