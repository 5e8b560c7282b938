package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/persistence"
)

// VariableRepository stores scoped variables keyed by (scope, owner, key).
type VariableRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *VariableRepository) Get(ctx context.Context, scope models.Scope, ownerKey, key string) (*models.Variable, error) {
	query := `SELECT value, updated_at FROM variables WHERE scope = $1 AND owner_key = $2 AND key = $3`

	variable := &models.Variable{Scope: scope, OwnerKey: ownerKey, Key: key}

	var value []byte

	err := r.db.QueryRowContext(ctx, query, scope, ownerOf(scope, ownerKey), key).Scan(&value, &variable.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s.%s", persistence.ErrVariableNotFound, scope, key)
		}

		return nil, fmt.Errorf("failed to get variable: %w", err)
	}

	if err := unmarshalValue(value, &variable.Value); err != nil {
		return nil, err
	}

	return variable, nil
}

func (r *VariableRepository) Set(ctx context.Context, variable *models.Variable) error {
	return upsertVariable(ctx, r.db, variable.Scope, variable.OwnerKey, variable.Key, variable.Value)
}

func (r *VariableRepository) Delete(ctx context.Context, scope models.Scope, ownerKey, key string) error {
	return deleteVariable(ctx, r.db, scope, ownerKey, key)
}

// ListByOwner returns the variables of one owner ordered by key.
func (r *VariableRepository) ListByOwner(ctx context.Context, scope models.Scope, ownerKey string) ([]*models.Variable, error) {
	query := `SELECT key, value, updated_at FROM variables WHERE scope = $1 AND owner_key = $2 ORDER BY key`

	rows, err := r.db.QueryContext(ctx, query, scope, ownerOf(scope, ownerKey))
	if err != nil {
		return nil, fmt.Errorf("failed to query variables: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	variables := []*models.Variable{}

	for rows.Next() {
		variable := &models.Variable{Scope: scope, OwnerKey: ownerKey}

		var value []byte
		if err := rows.Scan(&variable.Key, &value, &variable.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan variable: %w", err)
		}

		if err := unmarshalValue(value, &variable.Value); err != nil {
			return nil, err
		}

		variables = append(variables, variable)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating variables: %w", err)
	}

	return variables, nil
}

func applyVariable(ctx context.Context, db execer, change models.VariableChange) error {
	if change.Deleted {
		return deleteVariable(ctx, db, change.Scope, change.OwnerKey, change.Key)
	}

	return upsertVariable(ctx, db, change.Scope, change.OwnerKey, change.Key, change.Value)
}

func upsertVariable(ctx context.Context, db execer, scope models.Scope, ownerKey, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal variable %s.%s: %w", scope, key, err)
	}

	query := `
		INSERT INTO variables (scope, owner_key, key, value, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (scope, owner_key, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`

	_, err = db.ExecContext(ctx, query, scope, ownerOf(scope, ownerKey), key, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set variable %s.%s: %w", scope, key, err)
	}

	return nil
}

func deleteVariable(ctx context.Context, db execer, scope models.Scope, ownerKey, key string) error {
	_, err := db.ExecContext(ctx,
		`DELETE FROM variables WHERE scope = $1 AND owner_key = $2 AND key = $3`,
		scope, ownerOf(scope, ownerKey), key)
	if err != nil {
		return fmt.Errorf("failed to delete variable %s.%s: %w", scope, key, err)
	}

	return nil
}

func ownerOf(scope models.Scope, ownerKey string) string {
	if scope == models.ScopeGlobal {
		return ""
	}

	return ownerKey
}

func unmarshalValue(data []byte, dst *any) error {
	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to unmarshal variable value: %w", err)
	}

	return nil
}
