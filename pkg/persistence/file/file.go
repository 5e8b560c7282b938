// Package file provides a JSON file persistence implementation for local
// development and tests.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/persistence"
)

// Persistence implements persistence.Persistence on the file system. A single
// lock serialises every write of the process.
type Persistence struct {
	root string
	mu   sync.RWMutex

	executions *ExecutionRepository
	logs       *LogRepository
	variables  *VariableRepository
	versions   *VersionRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	p := &Persistence{root: strings.Replace(root, "file://", "", 1)}

	p.executions = &ExecutionRepository{p: p}
	p.logs = &LogRepository{p: p}
	p.variables = &VariableRepository{p: p}
	p.versions = &VersionRepository{p: p}

	return p
}

func (p *Persistence) Executions() persistence.ExecutionRepository { return p.executions }

func (p *Persistence) Logs() persistence.LogRepository { return p.logs }

func (p *Persistence) Variables() persistence.VariableRepository { return p.variables }

func (p *Persistence) Versions() persistence.VersionRepository { return p.versions }

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Commit checks the persisted status and writes the whole cycle under one
// lock. Every touched document is staged first, so a failed write leaves no
// part of the cycle on disk.
func (p *Persistence) Commit(_ context.Context, commit *persistence.Commit) error {
	exec := commit.Execution
	if err := validateID(exec.ID); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	current, err := p.executions.read(exec.ID)
	if err != nil {
		return err
	}

	if current.Status != commit.ExpectedStatus {
		return &models.ConcurrencyConflictError{ExecutionID: exec.ID, Expected: commit.ExpectedStatus, Actual: current.Status}
	}

	b := &batch{}

	if err := p.stageCycle(b, commit); err != nil {
		b.abort()

		return err
	}

	return b.apply()
}

func (p *Persistence) stageCycle(b *batch, commit *persistence.Commit) error {
	if err := p.variables.stage(b, commit.Variables); err != nil {
		return err
	}

	if len(commit.Logs) > 0 {
		if err := p.logs.stage(b, commit.Execution.ID, commit.Logs); err != nil {
			return err
		}
	}

	return b.stage(p.executions.path(commit.Execution.ID), commit.Execution)
}

// validateID rejects identifiers that could escape the storage directory.
func validateID(id string) error {
	if id == "" {
		return errors.New("identifier cannot be empty")
	}

	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("identifier %q contains invalid characters", id)
	}

	return nil
}

func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is built from validated identifiers
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}

	return true, nil
}

// writeJSON replaces path through a temporary file so readers never see a
// half-written document.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	return nil
}
