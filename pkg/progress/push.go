package progress

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/dukex/flowrun/pkg/connection"
)

// PushEmitter serializes events and pushes them to one bound connection.
type PushEmitter struct {
	logger       *slog.Logger
	pusher       connection.Pusher
	connectionID string
}

func NewPushEmitter(logger *slog.Logger, pusher connection.Pusher, connectionID string) *PushEmitter {
	return &PushEmitter{
		logger:       logger,
		pusher:       pusher,
		connectionID: connectionID,
	}
}

func (e *PushEmitter) Emit(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to encode progress event",
			"execution_id", event.ExecutionID,
			"event", event.Event,
			"error", err,
		)

		return
	}

	err = e.pusher.Push(ctx, e.connectionID, payload)

	switch {
	case err == nil:
	case errors.Is(err, connection.ErrConnectionGone):
		e.logger.DebugContext(ctx, "Connection gone, dropping progress event",
			"execution_id", event.ExecutionID,
			"connection_id", e.connectionID,
			"event", event.Event,
		)
	default:
		e.logger.WarnContext(ctx, "Failed to push progress event",
			"execution_id", event.ExecutionID,
			"connection_id", e.connectionID,
			"event", event.Event,
			"error", err,
		)
	}
}
