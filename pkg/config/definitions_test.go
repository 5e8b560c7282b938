package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/loyalflow/pkg/config"
	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefinitions(t *testing.T) {
	drafts, err := config.LoadDefinitions("testdata")
	require.NoError(t, err)
	require.Len(t, drafts, 2)

	loyalty := drafts[0]
	assert.Equal(t, "loyalty", loyalty.WorkflowID)
	assert.Equal(t, "M", loyalty.EntryNodeID)
	require.Len(t, loyalty.Nodes, 4)
	assert.Equal(t, "W", loyalty.Nodes["W"].ID)

	message, ok := loyalty.Nodes["M"].Config.(*models.MessageConfig)
	require.True(t, ok)
	require.Len(t, message.Buttons, 1)
	assert.Equal(t, "join", message.Buttons[0].CallbackData)

	wait, ok := loyalty.Nodes["W"].Config.(*models.WaitInputConfig)
	require.True(t, ok)
	assert.Equal(t, models.WaitTypeAny, wait.WaitType)

	assert.Equal(t, 200, loyalty.MaxSteps(1000))
	require.Len(t, loyalty.Connections, 4)
	assert.Equal(t, models.BranchTrue, loyalty.Connections[1].Branch)

	loyalty.Version = 1
	_, err = workflow.Compile(loyalty, nil)
	require.NoError(t, err)

	ping := drafts[1]
	assert.Equal(t, "ping", ping.WorkflowID, "workflow id defaults to the file name")
	assert.IsType(t, &models.TerminalConfig{}, ping.Nodes["T"].Config)
}

func TestLoadDefinition_UnknownNodeType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nodes:\n  X:\n    type: teleport\n"), 0o600))

	_, err := config.LoadDefinition(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "teleport")
}

func TestLoadDefinitions_MissingDirectory(t *testing.T) {
	_, err := config.LoadDefinitions(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}
