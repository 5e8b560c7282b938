// Package gochannel provides the in-process watermill transport.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// DefaultBuffer is the output buffer of each subscription.
const DefaultBuffer = 1000

// Option tunes the channel configuration.
type Option func(*gochannel.Config)

// WithBuffer sets the per-subscription output buffer.
func WithBuffer(size int64) Option {
	return func(c *gochannel.Config) {
		c.OutputChannelBuffer = size
	}
}

// WithBlockingPublish makes Publish wait until every subscriber acked.
func WithBlockingPublish() Option {
	return func(c *gochannel.Config) {
		c.BlockPublishUntilSubscriberAck = true
	}
}

// CreateChannel creates a GoChannel-based publisher and subscriber. The same
// instance serves both sides, so dispatch events only reach workers of this
// process.
func CreateChannel(logger watermill.LoggerAdapter, opts ...Option) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	config := gochannel.Config{OutputChannelBuffer: DefaultBuffer}
	for _, opt := range opts {
		opt(&config)
	}

	pubSub := gochannel.NewGoChannel(config, logger)

	return pubSub, pubSub, nil
}
