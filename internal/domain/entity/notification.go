package entity

import "time"

// Notification represents a queued workflow notification. RecipientID nil
// means broadcast to the category's role, resolved by the delivery layer.
type Notification struct {
	ID          int64     `json:"id"`
	InstanceID  int64     `json:"instance_id"`
	RecipientID *int64    `json:"recipient_id,omitempty"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Category    string    `json:"category"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// AuditEntry represents one row of the append-only action log
type AuditEntry struct {
	ID          int64     `json:"id"`
	ActionKind  string    `json:"action_kind"`
	InstanceID  int64     `json:"instance_id"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}
