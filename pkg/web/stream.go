package web

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/progress"
)

// StreamEvents is the in-process connection holder: it binds a fresh
// connection to the execution and relays its progress events as
// server-sent events until a terminal event arrives, the client goes away or
// the stream times out.
func (h *Handlers) StreamEvents(c fiber.Ctx) error {
	if h.bindings == nil || h.relay == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "real-time execution is not enabled")
	}

	executionID := c.Params("executionId")
	if executionID == "" {
		return models.NewError(models.ErrMissingParams, "executionId is required")
	}

	connectionID := uuid.NewString()
	logger := h.logger.With("execution_id", executionID, "connection_id", connectionID)

	// The fiber context is recycled once the handler returns; the stream
	// outlives it.
	ctx, cancel := context.WithTimeout(context.Background(), h.streamTimeout)

	feed, unsubscribe, err := h.relay.Subscribe(ctx, connectionID)
	if err != nil {
		cancel()

		return fmt.Errorf("failed to open connection: %w", err)
	}

	binding := models.ConnectionBinding{
		ExecutionID:  executionID,
		ConnectionID: connectionID,
		CreatedAt:    time.Now().UTC(),
	}

	if err := h.bindings.Put(ctx, binding); err != nil {
		unsubscribe()
		cancel()

		return fmt.Errorf("failed to store connection binding: %w", err)
	}

	logger.InfoContext(ctx, "Client connected")

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Response().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		defer unsubscribe()
		defer func() {
			if _, err := h.bindings.DeleteByConnection(context.WithoutCancel(ctx), connectionID); err != nil {
				logger.WarnContext(ctx, "Failed to release connection bindings", "error", err)
			}

			logger.InfoContext(ctx, "Client disconnected")
		}()

		fmt.Fprintf(w, ": connected %s\n\n", connectionID)

		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case payload, ok := <-feed:
				if !ok {
					return
				}

				eventType := writeEvent(w, payload)

				if err := w.Flush(); err != nil {
					return
				}

				if eventType.IsTerminal() {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})

	return nil
}

// writeEvent writes one SSE frame and returns the progress event type it
// carried.
func writeEvent(w *bufio.Writer, payload []byte) progress.EventType {
	var header struct {
		Event progress.EventType `json:"event"`
	}

	if err := json.Unmarshal(payload, &header); err == nil && header.Event != "" {
		fmt.Fprintf(w, "event: %s\n", header.Event)
	}

	fmt.Fprintf(w, "data: %s\n\n", payload)

	return header.Event
}
