// Package eventbus carries dispatch, lifecycle and outbound events between
// the engine components.
package eventbus

import (
	"context"

	"github.com/dukex/loyalflow/pkg/events"
)

type Event = events.Event

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler processes one decoded event. Returning an error nacks the
// message so that it is delivered again.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
