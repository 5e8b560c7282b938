package file

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/dukex/loyalflow/pkg/models"
)

// LogRepository keeps every entry of an execution in one JSON array.
type LogRepository struct {
	p *Persistence
}

func (r *LogRepository) path(executionID string) string {
	return filepath.Join(r.p.root, "logs", executionID+".json")
}

func (r *LogRepository) read(executionID string) ([]*models.LogEntry, error) {
	var entries []*models.LogEntry
	if _, err := readJSON(r.path(executionID), &entries); err != nil {
		return nil, err
	}

	return entries, nil
}

func (r *LogRepository) stage(b *batch, executionID string, entries []*models.LogEntry) error {
	existing, err := r.read(executionID)
	if err != nil {
		return err
	}

	return b.stage(r.path(executionID), append(existing, entries...))
}

func (r *LogRepository) ListByExecution(_ context.Context, executionID string) ([]*models.LogEntry, error) {
	if err := validateID(executionID); err != nil {
		return []*models.LogEntry{}, nil
	}

	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	entries, err := r.read(executionID)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Step == entries[j].Step {
			return entries[i].Timestamp.Before(entries[j].Timestamp)
		}

		return entries[i].Step < entries[j].Step
	})

	if entries == nil {
		entries = []*models.LogEntry{}
	}

	return entries, nil
}
