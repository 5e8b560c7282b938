package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/loyalflow/pkg/cmd"
	"github.com/dukex/loyalflow/pkg/config"
	"github.com/dukex/loyalflow/pkg/log"
	"github.com/dukex/loyalflow/pkg/models"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) (*fiber.App, *cmd.App) {
	t.Helper()

	app, err := cmd.NewApp(t.Context(), log.Discard(), cmd.Options{
		ServiceName: "loyalflow-api-test",
		DatabaseURL: "file://" + t.TempDir(),
		EventBus:    "gochannel",
		HTTPRetries: 1,
	})
	require.NoError(t, err)

	t.Cleanup(func() { app.Close(t.Context()) })

	return NewAPI(log.Discard(), app).App(), app
}

func TestAPI_RootEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "loyalflow API", string(body))
}

func TestAPI_HealthEndpoints(t *testing.T) {
	app, _ := setupTestApp(t)

	for _, path := range []string{"/livez", "/readyz", "/health"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)

		_ = resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestAPI_SeededWorkflowRuns(t *testing.T) {
	app, engine := setupTestApp(t)

	published, err := config.Seed(t.Context(), log.Discard(), engine.Publishing, "../../pkg/config/testdata")
	require.NoError(t, err)
	require.Equal(t, 2, published)

	req := httptest.NewRequest(http.MethodPost, "/workflows/loyalty/executions",
		bytes.NewBufferString(`{"session_id":"chat-42","variables":{"name":"Ana"}}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var exec models.Execution
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&exec))
	assert.Equal(t, models.ExecutionStatusWaiting, exec.Status)
	assert.Equal(t, "W", exec.CurrentNodeID)
}
