package dispatch_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dukex/loyalflow/pkg/dispatch"
	"github.com/dukex/loyalflow/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func exerciseClaimer(t *testing.T, claimer dispatch.Claimer) {
	t.Helper()

	ctx := t.Context()

	ok, err := claimer.Claim(ctx, "exec-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = claimer.Claim(ctx, "exec-1")
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")

	ok, err = claimer.Claim(ctx, "exec-2")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, claimer.Release(ctx, "exec-1"))

	ok, err = claimer.Claim(ctx, "exec-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryClaimer(t *testing.T) {
	exerciseClaimer(t, dispatch.NewMemoryClaimer(time.Minute))
}

func TestMemoryClaimer_Expires(t *testing.T) {
	claimer := dispatch.NewMemoryClaimer(time.Millisecond)

	ok, err := claimer.Claim(t.Context(), "exec-1")
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)

	ok, err = claimer.Claim(t.Context(), "exec-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisClaimer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Redis integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	claimer, err := dispatch.NewRedisClaimer(ctx, log.Discard(), fmt.Sprintf("redis://%s/0", endpoint), time.Minute)
	require.NoError(t, err)

	t.Cleanup(func() { _ = claimer.Close() })

	exerciseClaimer(t, claimer)
}
