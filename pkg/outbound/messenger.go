// Package outbound holds the default collaborators node handlers deliver
// through: an event-publishing messenger and a retrying HTTP client.
package outbound

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/loyalflow/pkg/eventbus"
	"github.com/dukex/loyalflow/pkg/events"
	"github.com/dukex/loyalflow/pkg/protocol"
	"github.com/google/uuid"
)

// EventMessenger publishes every message as an outbound.message event keyed
// by session, so one session's messages stay ordered on a partition.
type EventMessenger struct {
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

func NewEventMessenger(logger *slog.Logger, publisher eventbus.EventPublisher) *EventMessenger {
	return &EventMessenger{
		publisher: publisher,
		logger:    logger.With("module", "event_messenger"),
	}
}

func (m *EventMessenger) Send(ctx context.Context, msg protocol.OutboundMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	event := &events.OutboundMessage{
		BaseEvent: events.NewBaseEvent(events.OutboundMessageEvent, msg.WorkflowID),
		Message:   msg,
	}

	if err := m.publisher.Publish(ctx, msg.SessionID, event); err != nil {
		return fmt.Errorf("failed to publish message %s: %w", msg.ID, err)
	}

	m.logger.DebugContext(ctx, "Message published",
		"message_id", msg.ID,
		"execution_id", msg.ExecutionID,
		"node_id", msg.NodeID,
	)

	return nil
}
