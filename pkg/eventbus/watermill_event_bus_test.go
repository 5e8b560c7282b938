package eventbus_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/loyalflow/pkg/channels/gochannel"
	"github.com/dukex/loyalflow/pkg/eventbus"
	"github.com/dukex/loyalflow/pkg/events"
	"github.com/dukex/loyalflow/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBus(t *testing.T) *eventbus.WatermillEventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(log.Discard(), pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_DeliversByType(t *testing.T) {
	bus := newBus(t)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	received := make(chan *events.ExecutionDispatched, 1)

	require.NoError(t, bus.Handle(events.ExecutionDispatchedEvent, func(_ context.Context, event any) error {
		dispatched, ok := event.(*events.ExecutionDispatched)
		require.True(t, ok)
		received <- dispatched

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	err := bus.Publish(ctx, "exec-2", &events.ExecutionDispatched{
		BaseEvent:         events.NewBaseEvent(events.ExecutionDispatchedEvent, "onboarding"),
		ExecutionID:       "exec-2",
		ParentExecutionID: "exec-1",
		StartNodeID:       "C",
	})
	require.NoError(t, err)

	select {
	case got := <-received:
		assert.Equal(t, "exec-2", got.ExecutionID)
		assert.Equal(t, "exec-1", got.ParentExecutionID)
		assert.Equal(t, "C", got.StartNodeID)
	case <-time.After(5 * time.Second):
		t.Fatal("dispatched event was not delivered")
	}
}

func TestWatermillEventBus_RedeliversOnHandlerError(t *testing.T) {
	bus := newBus(t)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var attempts atomic.Int32

	done := make(chan struct{})

	require.NoError(t, bus.Handle(events.ExecutionFailedEvent, func(context.Context, any) error {
		if attempts.Add(1) == 1 {
			return errors.New("database unavailable")
		}

		close(done)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "exec-1", &events.ExecutionFailed{
		BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, "onboarding"),
		ExecutionID: "exec-1",
	}))

	select {
	case <-done:
		assert.Equal(t, int32(2), attempts.Load())
	case <-time.After(5 * time.Second):
		t.Fatal("failed event was not redelivered")
	}
}
