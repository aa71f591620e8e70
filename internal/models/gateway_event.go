package models

import "time"

// GatewayEvent is a single audit log entry.
type GatewayEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // TRIGGER | FINISHED | ERROR | REGISTER | UNREGISTER | NOTIFY_FAILED
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}
