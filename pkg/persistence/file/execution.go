package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/persistence"
)

// ExecutionRepository stores one JSON document per execution.
type ExecutionRepository struct {
	p *Persistence
}

func (r *ExecutionRepository) dir() string {
	return filepath.Join(r.p.root, "executions")
}

func (r *ExecutionRepository) path(id string) string {
	return filepath.Join(r.dir(), id+".json")
}

func (r *ExecutionRepository) read(id string) (*models.Execution, error) {
	var exec models.Execution

	found, err := readJSON(r.path(id), &exec)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ExecutionNotFound(id)
	}

	return &exec, nil
}

func (r *ExecutionRepository) Create(_ context.Context, exec *models.Execution) error {
	if err := validateID(exec.ID); err != nil {
		return err
	}

	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, err := os.Stat(r.path(exec.ID)); err == nil {
		return fmt.Errorf("%w: %s", persistence.ErrExecutionExists, exec.ID)
	}

	return writeJSON(r.path(exec.ID), exec)
}

func (r *ExecutionRepository) GetByID(_ context.Context, id string) (*models.Execution, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.ExecutionNotFound(id)
	}

	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.read(id)
}

func (r *ExecutionRepository) CompareAndSetStatus(
	_ context.Context,
	id string,
	next models.ExecutionStatus,
	expected ...models.ExecutionStatus,
) (*models.Execution, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.ExecutionNotFound(id)
	}

	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	exec, err := r.read(id)
	if err != nil {
		return nil, err
	}

	if !slices.Contains(expected, exec.Status) {
		want := models.ExecutionStatus("")
		if len(expected) > 0 {
			want = expected[0]
		}

		return nil, &models.ConcurrencyConflictError{ExecutionID: id, Expected: want, Actual: exec.Status}
	}

	now := time.Now().UTC()
	exec.Status = next
	exec.UpdatedAt = now

	if next.IsTerminal() {
		exec.FinishedAt = &now
	}

	if err := writeJSON(r.path(id), exec); err != nil {
		return nil, err
	}

	return exec, nil
}

func (r *ExecutionRepository) List(_ context.Context, opts persistence.ListExecutionsOptions) (*persistence.ExecutionPage, error) {
	opts = opts.Normalize()

	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	entries, err := os.ReadDir(r.dir())
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read executions directory: %w", err)
	}

	var matched []*models.Execution

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		exec, err := r.read(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			// Skip invalid files
			continue
		}

		if opts.Matches(exec) {
			matched = append(matched, exec)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].StartedAt.Equal(matched[j].StartedAt) {
			return matched[i].ID < matched[j].ID
		}

		return matched[i].StartedAt.After(matched[j].StartedAt)
	})

	page := &persistence.ExecutionPage{Items: []*models.Execution{}, Total: len(matched), Page: opts.Page, Limit: opts.Limit}

	start := min(opts.Offset(), len(matched))
	end := min(start+opts.Limit, len(matched))
	page.Items = append(page.Items, matched[start:end]...)

	return page, nil
}
