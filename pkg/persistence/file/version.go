package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/persistence"
)

// VersionRepository stores versions under versions/<workflow id>/<number>.json.
type VersionRepository struct {
	p *Persistence
}

func (r *VersionRepository) dir(workflowID string) string {
	return filepath.Join(r.p.root, "versions", workflowID)
}

func (r *VersionRepository) path(workflowID string, version int) string {
	return filepath.Join(r.dir(workflowID), strconv.Itoa(version)+".json")
}

func (r *VersionRepository) readAll(workflowID string) ([]*models.WorkflowVersion, error) {
	entries, err := os.ReadDir(r.dir(workflowID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read versions of %s: %w", workflowID, err)
	}

	var out []*models.WorkflowVersion

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		var version models.WorkflowVersion
		if _, err := readJSON(filepath.Join(r.dir(workflowID), entry.Name()), &version); err != nil {
			return nil, err
		}

		out = append(out, &version)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })

	return out, nil
}

func (r *VersionRepository) Save(_ context.Context, version *models.WorkflowVersion) error {
	if err := validateID(version.WorkflowID); err != nil {
		return err
	}

	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, err := os.Stat(r.path(version.WorkflowID, version.Version)); err == nil {
		return fmt.Errorf("%w: %s v%d", persistence.ErrVersionExists, version.WorkflowID, version.Version)
	}

	if version.IsActive {
		existing, err := r.readAll(version.WorkflowID)
		if err != nil {
			return err
		}

		for _, other := range existing {
			if !other.IsActive {
				continue
			}

			other.IsActive = false
			if err := writeJSON(r.path(other.WorkflowID, other.Version), other); err != nil {
				return err
			}
		}
	}

	return writeJSON(r.path(version.WorkflowID, version.Version), version)
}

func (r *VersionRepository) Get(_ context.Context, workflowID string, version int) (*models.WorkflowVersion, error) {
	if err := validateID(workflowID); err != nil {
		return nil, persistence.VersionNotFound(workflowID, version)
	}

	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var out models.WorkflowVersion

	found, err := readJSON(r.path(workflowID, version), &out)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.VersionNotFound(workflowID, version)
	}

	return &out, nil
}

func (r *VersionRepository) GetActive(_ context.Context, workflowID string) (*models.WorkflowVersion, error) {
	if err := validateID(workflowID); err != nil {
		return nil, persistence.VersionNotFound(workflowID, models.ActiveVersion)
	}

	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	versions, err := r.readAll(workflowID)
	if err != nil {
		return nil, err
	}

	for _, version := range versions {
		if version.IsActive {
			return version, nil
		}
	}

	return nil, persistence.VersionNotFound(workflowID, models.ActiveVersion)
}

func (r *VersionRepository) List(_ context.Context, workflowID string) ([]*models.WorkflowVersion, error) {
	if err := validateID(workflowID); err != nil {
		return []*models.WorkflowVersion{}, nil
	}

	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	versions, err := r.readAll(workflowID)
	if err != nil {
		return nil, err
	}

	if versions == nil {
		versions = []*models.WorkflowVersion{}
	}

	return versions, nil
}

func (r *VersionRepository) LatestNumber(ctx context.Context, workflowID string) (int, error) {
	versions, err := r.List(ctx, workflowID)
	if err != nil {
		return 0, err
	}

	if len(versions) == 0 {
		return 0, nil
	}

	return versions[len(versions)-1].Version, nil
}
