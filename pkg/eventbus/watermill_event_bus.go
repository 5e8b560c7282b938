package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/loyalflow/pkg/events"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type WatermillEventBus struct {
	logger        *slog.Logger
	publisher     message.Publisher
	subscriber    message.Subscriber
	mu            sync.RWMutex
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(logger *slog.Logger, pub message.Publisher, sub message.Subscriber) *WatermillEventBus {
	return &WatermillEventBus{
		logger:        logger.With("module", "event_bus"),
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

// Publish sends the event to the topic of its type. The key is kept in the
// metadata for partitioning.
func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.GetType(), err)
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	for k, v := range carrier {
		msg.Metadata.Set(k, v)
	}

	topic := events.TopicOf(event.GetType())

	eb.logger.DebugContext(ctx, "Publishing event", "key", key, "event_type", event.GetType(), "topic", topic)

	if err := eb.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.GetType(), err)
	}

	return nil
}

// Subscribe starts one consumer per topic with at least one registered handler.
func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	eb.mu.RLock()

	topics := map[string]bool{}
	for eventType := range eb.subscriptions {
		topics[events.TopicOf(eventType)] = true
	}

	eb.mu.RUnlock()

	for topic := range topics {
		messages, err := eb.subscriber.Subscribe(ctx, topic)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}

		eb.logger.InfoContext(ctx, "Subscribed", "topic", topic)

		go eb.consume(ctx, messages)
	}

	return nil
}

func (eb *WatermillEventBus) consume(ctx context.Context, messages <-chan *message.Message) {
	for msg := range messages {
		eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

		eb.mu.RLock()
		handler, exists := eb.subscriptions[eventType]
		eb.mu.RUnlock()

		if !exists {
			msg.Ack()

			continue
		}

		event := decode(eventType)
		if event == nil {
			eb.logger.ErrorContext(ctx, "Unknown event type", "event_type", eventType, "message_id", msg.UUID)
			msg.Ack()

			continue
		}

		if err := json.Unmarshal(msg.Payload, event); err != nil {
			eb.logger.ErrorContext(ctx, "Failed to unmarshal event", "event_type", eventType, "error", err)
			msg.Ack()

			continue
		}

		msgCtx := otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(msg.Metadata))

		if err := handler(msgCtx, event); err != nil {
			eb.logger.ErrorContext(msgCtx, "Failed to handle event", "event_type", eventType, "error", err)
			msg.Nack()

			continue
		}

		msg.Ack()
	}
}

func decode(eventType events.EventType) any {
	switch eventType {
	case events.ExecutionDispatchedEvent:
		return &events.ExecutionDispatched{}
	case events.ExecutionWaitingEvent:
		return &events.ExecutionWaiting{}
	case events.ExecutionCompletedEvent:
		return &events.ExecutionCompleted{}
	case events.ExecutionFailedEvent:
		return &events.ExecutionFailed{}
	case events.ExecutionCancelledEvent:
		return &events.ExecutionCancelled{}
	case events.OutboundMessageEvent:
		return &events.OutboundMessage{}
	default:
		return nil
	}
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
