// Package web exposes workflow triggers, the real-time progress stream and
// the connection handshake endpoints over HTTP.
package web

// ConnectRequest binds a client connection to an execution. ConnectionID is
// generated when empty.
type ConnectRequest struct {
	ExecutionID  string `json:"executionId"            validate:"required,max=128"`
	ConnectionID string `json:"connectionId,omitempty" validate:"omitempty,max=128"`
}

type ConnectResponse struct {
	ExecutionID  string `json:"executionId"`
	ConnectionID string `json:"connectionId"`
}

type DisconnectResponse struct {
	ConnectionID string `json:"connectionId"`
	Released     int    `json:"released"`
}

// RealtimeAccepted is returned by the real-time trigger once the execution
// request is on the bus.
type RealtimeAccepted struct {
	ExecutionID string `json:"executionId"`
	EventsURL   string `json:"eventsUrl"`
}
