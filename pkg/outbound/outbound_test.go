package outbound_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/loyalflow/pkg/events"
	"github.com/dukex/loyalflow/pkg/log"
	"github.com/dukex/loyalflow/pkg/mocks"
	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/outbound"
	"github.com/dukex/loyalflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestEventMessenger_PublishesBySession(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "session-1", mock.MatchedBy(func(e *events.OutboundMessage) bool {
		return e.Type == events.OutboundMessageEvent &&
			e.WorkflowID == "onboarding" &&
			e.Message.Text == "Welcome" &&
			e.Message.ID != "" &&
			len(e.Message.Buttons) == 1
	})).Return(nil).Once()

	messenger := outbound.NewEventMessenger(log.Discard(), bus)

	err := messenger.Send(t.Context(), protocol.OutboundMessage{
		ExecutionID: "exec-1",
		WorkflowID:  "onboarding",
		NodeID:      "M",
		SessionID:   "session-1",
		Text:        "Welcome",
		Buttons:     []models.Button{{Text: "Yes", CallbackData: "yes"}},
	})
	require.NoError(t, err)
	bus.AssertExpectations(t)
}

func TestEventMessenger_PublishError(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "session-1", mock.Anything).Return(errors.New("broker down"))

	err := outbound.NewEventMessenger(log.Discard(), bus).Send(t.Context(), protocol.OutboundMessage{SessionID: "session-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestHTTPClient_Do(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		assert.JSONEq(t, `{"user":"u1"}`, string(body))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"points":120}`))
	}))
	defer server.Close()

	client := outbound.NewHTTPClient(log.Discard())

	resp, err := client.Do(t.Context(), protocol.OutboundRequest{
		Method:  "post",
		URL:     server.URL,
		Headers: map[string]string{"Authorization": "Bearer abc"},
		Body:    `{"user":"u1"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])
	assert.JSONEq(t, `{"points":120}`, string(resp.Body))
}

func TestHTTPClient_ReturnsClientErrorsWithoutRetry(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := outbound.NewHTTPClient(log.Discard(), outbound.WithRetry(outbound.RetryConfig{Attempts: 3}))

	resp, err := client.Do(t.Context(), protocol.OutboundRequest{URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := outbound.NewHTTPClient(log.Discard(), outbound.WithRetry(outbound.RetryConfig{Attempts: 3, Delay: time.Millisecond}))

	resp, err := client.Do(t.Context(), protocol.OutboundRequest{URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPClient_LastServerErrorIsReturned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := outbound.NewHTTPClient(log.Discard(), outbound.WithRetry(outbound.RetryConfig{Attempts: 2}))

	resp, err := client.Do(t.Context(), protocol.OutboundRequest{URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHTTPClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := outbound.NewHTTPClient(log.Discard())

	_, err := client.Do(t.Context(), protocol.OutboundRequest{URL: server.URL, Timeout: 20 * time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
