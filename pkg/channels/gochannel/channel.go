// Package gochannel provides the in-process message channel used for local runs and tests.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const (
	outputBuffer     = 1000
	testOutputBuffer = 10
)

// CreateChannel returns one GoChannel serving as both publisher and
// subscriber. Messages published while nobody subscribes are dropped.
func CreateChannel(logger watermill.LoggerAdapter) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	return newPubSub(logger, outputBuffer, false)
}

// CreateTestChannel keeps published messages so a late subscriber still sees them.
func CreateTestChannel(logger watermill.LoggerAdapter) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	return newPubSub(logger, testOutputBuffer, true)
}

func newPubSub(logger watermill.LoggerAdapter, buffer int64, persistent bool) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: buffer,
		Persistent:          persistent,
	}, logger)

	return pubSub, pubSub, nil
}
