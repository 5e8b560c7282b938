package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/persistence"
)

// Variables manages scoped variables outside of executions, typically
// project and global configuration values read by every session.
type Variables struct {
	logger *slog.Logger
	repo   persistence.VariableRepository
	now    func() time.Time
}

func NewVariables(logger *slog.Logger, repo persistence.VariableRepository) *Variables {
	return &Variables{
		logger: logger.With("module", "variables_service"),
		repo:   repo,
		now:    time.Now,
	}
}

// owner checks that scope and ownerKey address a variable owner. Global
// variables have no owner.
func owner(op, scope, ownerKey string) (models.Scope, string, error) {
	s, err := models.ParseScope(scope)
	if err != nil {
		return "", "", NewValidationError(op, err.Error(), ErrInvalidRequest)
	}

	if s == models.ScopeGlobal {
		return s, "", nil
	}

	if ownerKey == "" {
		return "", "", NewValidationError(op, "owner is required for "+scope+" variables", ErrInvalidRequest)
	}

	return s, ownerKey, nil
}

func (v *Variables) Get(ctx context.Context, scope, ownerKey, key string) (*models.Variable, error) {
	s, ownerKey, err := owner("get_variable", scope, ownerKey)
	if err != nil {
		return nil, err
	}

	variable, err := v.repo.Get(ctx, s, ownerKey, key)

	return variable, wrap("get_variable", err)
}

func (v *Variables) Set(ctx context.Context, scope, ownerKey, key string, value any) (*models.Variable, error) {
	s, ownerKey, err := owner("set_variable", scope, ownerKey)
	if err != nil {
		return nil, err
	}

	if key == "" {
		return nil, NewValidationError("set_variable", "key is required", ErrInvalidRequest)
	}

	variable := &models.Variable{
		Scope:     s,
		OwnerKey:  ownerKey,
		Key:       key,
		Value:     value,
		UpdatedAt: v.now().UTC(),
	}

	if err := v.repo.Set(ctx, variable); err != nil {
		return nil, wrap("set_variable", err)
	}

	v.logger.InfoContext(ctx, "Variable set", "scope", s, "owner", ownerKey, "key", key)

	return variable, nil
}

func (v *Variables) Delete(ctx context.Context, scope, ownerKey, key string) error {
	s, ownerKey, err := owner("delete_variable", scope, ownerKey)
	if err != nil {
		return err
	}

	return wrap("delete_variable", v.repo.Delete(ctx, s, ownerKey, key))
}

func (v *Variables) List(ctx context.Context, scope, ownerKey string) ([]*models.Variable, error) {
	s, ownerKey, err := owner("list_variables", scope, ownerKey)
	if err != nil {
		return nil, err
	}

	vars, err := v.repo.ListByOwner(ctx, s, ownerKey)

	return vars, wrap("list_variables", err)
}
