// Package config loads workflow definitions to seed the definition store.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dukex/loyalflow/pkg/models"
	"gopkg.in/yaml.v3"
)

// LoadDefinitions reads every .yaml, .yml and .json file of dir as a workflow
// draft, in file name order. Node ids default to their key in the nodes map.
func LoadDefinitions(dir string) ([]*models.WorkflowVersion, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml", ".json":
			names = append(names, entry.Name())
		}
	}

	sort.Strings(names)

	drafts := make([]*models.WorkflowVersion, 0, len(names))

	for _, name := range names {
		draft, err := LoadDefinition(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}

		drafts = append(drafts, draft)
	}

	return drafts, nil
}

// LoadDefinition reads a single YAML or JSON workflow draft.
func LoadDefinition(path string) (*models.WorkflowVersion, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied definitions directory
	if err != nil {
		return nil, fmt.Errorf("failed to read definition %s: %w", path, err)
	}

	var document map[string]any
	if err := yaml.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("failed to parse definition %s: %w", path, err)
	}

	if nodes, ok := document["nodes"].(map[string]any); ok {
		for id, node := range nodes {
			if fields, ok := node.(map[string]any); ok {
				if _, set := fields["id"]; !set {
					fields["id"] = id
				}
			}
		}
	}

	// Node configs are tagged variants decoded by models.Node.UnmarshalJSON.
	encoded, err := json.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("failed to convert definition %s: %w", path, err)
	}

	var draft models.WorkflowVersion
	if err := json.Unmarshal(encoded, &draft); err != nil {
		return nil, fmt.Errorf("invalid definition %s: %w", path, err)
	}

	if draft.WorkflowID == "" {
		draft.WorkflowID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return &draft, nil
}
