package file

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/persistence"
)

const globalOwner = "_global"

// VariableRepository keeps one JSON object per scope owner.
type VariableRepository struct {
	p *Persistence
}

func (r *VariableRepository) path(scope models.Scope, ownerKey string) (string, error) {
	if _, err := models.ParseScope(string(scope)); err != nil {
		return "", err
	}

	if scope == models.ScopeGlobal {
		ownerKey = globalOwner
	}

	if err := validateID(ownerKey); err != nil {
		return "", err
	}

	return filepath.Join(r.p.root, "variables", string(scope), ownerKey+".json"), nil
}

func (r *VariableRepository) read(scope models.Scope, ownerKey string) (map[string]*models.Variable, string, error) {
	path, err := r.path(scope, ownerKey)
	if err != nil {
		return nil, "", err
	}

	values := map[string]*models.Variable{}
	if _, err := readJSON(path, &values); err != nil {
		return nil, "", err
	}

	return values, path, nil
}

func (r *VariableRepository) apply(change models.VariableChange) error {
	values, path, err := r.read(change.Scope, change.OwnerKey)
	if err != nil {
		return err
	}

	applyChange(values, change)

	return writeJSON(path, values)
}

// stage applies changes per owner document and stages each document once.
func (r *VariableRepository) stage(b *batch, changes []models.VariableChange) error {
	docs := map[string]map[string]*models.Variable{}
	var order []string

	for _, change := range changes {
		path, err := r.path(change.Scope, change.OwnerKey)
		if err != nil {
			return err
		}

		values, ok := docs[path]
		if !ok {
			values, _, err = r.read(change.Scope, change.OwnerKey)
			if err != nil {
				return err
			}

			docs[path] = values
			order = append(order, path)
		}

		applyChange(values, change)
	}

	for _, path := range order {
		if err := b.stage(path, docs[path]); err != nil {
			return err
		}
	}

	return nil
}

func applyChange(values map[string]*models.Variable, change models.VariableChange) {
	if change.Deleted {
		delete(values, change.Key)

		return
	}

	values[change.Key] = &models.Variable{
		Scope:     change.Scope,
		OwnerKey:  change.OwnerKey,
		Key:       change.Key,
		Value:     change.Value,
		UpdatedAt: time.Now().UTC(),
	}
}

func (r *VariableRepository) Get(_ context.Context, scope models.Scope, ownerKey, key string) (*models.Variable, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	values, _, err := r.read(scope, ownerKey)
	if err != nil {
		return nil, err
	}

	v, ok := values[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", persistence.ErrVariableNotFound, scope, key)
	}

	return v, nil
}

func (r *VariableRepository) Set(_ context.Context, variable *models.Variable) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.apply(models.VariableChange{
		Scope:    variable.Scope,
		OwnerKey: variable.OwnerKey,
		Key:      variable.Key,
		Value:    variable.Value,
	})
}

func (r *VariableRepository) Delete(_ context.Context, scope models.Scope, ownerKey, key string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.apply(models.VariableChange{Scope: scope, OwnerKey: ownerKey, Key: key, Deleted: true})
}

func (r *VariableRepository) ListByOwner(_ context.Context, scope models.Scope, ownerKey string) ([]*models.Variable, error) {
	if scope != models.ScopeGlobal && ownerKey == "" {
		return []*models.Variable{}, nil
	}

	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	values, _, err := r.read(scope, ownerKey)
	if err != nil {
		return nil, err
	}

	out := make([]*models.Variable, 0, len(values))
	for _, v := range values {
		v.Scope = scope
		if scope == models.ScopeGlobal {
			v.OwnerKey = ""
		}

		out = append(out, v)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })

	return out, nil
}
