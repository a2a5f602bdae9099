// Package eventbus carries execution messages between the trigger surface and the orchestrator.
package eventbus

import (
	"context"

	"github.com/dukex/flowrun/pkg/events"
)

// Event is anything routable by its type tag.
type Event interface {
	GetType() events.EventType
}

// EventPublisher sends event keyed by key, usually the execution id, so
// partitioned transports keep one execution's messages in order.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber routes decoded events to one handler per type. Handle
// must be called before Subscribe.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives a pointer to the decoded event. A returned error
// nacks the message.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
