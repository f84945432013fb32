package models

import "time"

// EventKind identifies which inbound feed an envelope belongs to.
type EventKind string

const (
	EventKindStatus     EventKind = "status"
	EventKindMessage    EventKind = "message"
	EventKindAnyMessage EventKind = "any_message"
)

func (k EventKind) Valid() bool {
	switch k {
	case EventKindStatus, EventKindMessage, EventKindAnyMessage:
		return true
	}
	return false
}

// EventEnvelope is the transport-neutral unit delivered by every ingest source.
type EventEnvelope struct {
	ID        string        `json:"id"`
	Kind      EventKind     `json:"kind"`
	Source    string        `json:"source"`
	Timestamp time.Time     `json:"timestamp"`
	Status    *StatusSignal `json:"status,omitempty"`
	Message   *RawMessage   `json:"message,omitempty"`
}

// StatusSignal is an opaque session lifecycle label emitted by the chat client.
type StatusSignal struct {
	Label   string `json:"label"`
	Message string `json:"message,omitempty"` // optional human-readable override
}
