package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/loyalflow/pkg/channels/gochannel"
	"github.com/dukex/loyalflow/pkg/channels/kafka"
	"github.com/dukex/loyalflow/pkg/eventbus"
)

// NewEventBus creates the event bus of the given provider: "gochannel" keeps
// events in process, "kafka" uses the brokers.
//
//nolint:ireturn // the implementation is selected at runtime
func NewEventBus(logger *slog.Logger, provider string, brokers []string, serviceName string) (eventbus.EventBus, error) {
	wlogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "", "gochannel":
		pub, sub, err := gochannel.CreateChannel(wlogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-process pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(logger, pub, sub), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wlogger, brokers, serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(logger, pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
