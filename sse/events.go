package sse

import "time"

// Event types.
const (
	EventConnected = "connected"
	EventStarted   = "operation.started"
	EventCompleted = "operation.completed"
	EventFailed    = "operation.failed"
)

// Event is one operation lifecycle notification.
type Event struct {
	Type         string    `json:"type"`
	InvocationID string    `json:"invocation_id"`
	Operation    string    `json:"operation"`
	Code         string    `json:"code,omitempty"`
	Error        string    `json:"error,omitempty"`
	DurationMS   float64   `json:"duration_ms,omitempty"`
	Time         time.Time `json:"time"`
}

// ConnectedEvent is sent when a client successfully connects.
type ConnectedEvent struct {
	ClientID string `json:"client_id"`
	Pattern  string `json:"pattern"`
}
