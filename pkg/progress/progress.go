// Package progress defines the live execution feed pushed to connected clients.
package progress

import (
	"context"
	"time"
)

type EventType string

const (
	ExecutionPending   EventType = "execution_pending"
	ExecutionStarted   EventType = "execution_started"
	NodeStarted        EventType = "node_started"
	NodeCompleted      EventType = "node_completed"
	NodeFailed         EventType = "node_failed"
	ExecutionCompleted EventType = "execution_completed"
	ExecutionFailed    EventType = "execution_failed"
)

// IsTerminal reports whether no event follows t for the same execution.
func (t EventType) IsTerminal() bool {
	return t == ExecutionCompleted || t == ExecutionFailed
}

// Event is the wire shape of one progress notification.
type Event struct {
	Event       EventType      `json:"event"`
	Data        map[string]any `json:"data"`
	ExecutionID string         `json:"executionId"`
	Timestamp   time.Time      `json:"timestamp"`
}

func NewEvent(executionID string, eventType EventType, data map[string]any) Event {
	if data == nil {
		data = map[string]any{}
	}

	return Event{
		Event:       eventType,
		Data:        data,
		ExecutionID: executionID,
		Timestamp:   time.Now().UTC(),
	}
}

// Emitter delivers progress events. Delivery is best effort: emitters log
// their own failures and never fail the execution.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, event Event)

func (f EmitterFunc) Emit(ctx context.Context, event Event) {
	f(ctx, event)
}

// Noop discards every event; used by the synchronous trigger path.
type Noop struct{}

func (Noop) Emit(context.Context, Event) {}

// Multi fans an event out to several emitters in order.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, event Event) {
	for _, emitter := range m {
		emitter.Emit(ctx, event)
	}
}
