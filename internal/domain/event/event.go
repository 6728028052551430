package event

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Event represents something that happened to a workflow instance
type Event struct {
	ID           string         `json:"id"`
	Type         Type           `json:"type"`
	InstanceID   int64          `json:"instance_id"`
	WorkflowType string         `json:"workflow_type"`
	Payload      map[string]any `json:"payload"`
	Timestamp    time.Time      `json:"timestamp"`
}

// New creates an event with an auto-generated ID and timestamp
func New(eventType Type, instanceID int64, workflowType string, payload map[string]any) *Event {
	return &Event{
		ID:           generateID(),
		Type:         eventType,
		InstanceID:   instanceID,
		WorkflowType: workflowType,
		Payload:      payload,
		Timestamp:    time.Now(),
	}
}

// WithPayload returns a copy of the event with one payload key added; the
// original is never mutated
func (e *Event) WithPayload(key string, value any) *Event {
	newPayload := make(map[string]any, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	clone := *e
	clone.Payload = newPayload
	return &clone
}

// PayloadString retrieves a string value from the payload
func (e *Event) PayloadString(key string) string {
	if str, ok := e.Payload[key].(string); ok {
		return str
	}
	return ""
}

// PayloadInt retrieves an int64 value from the payload
func (e *Event) PayloadInt(key string) int64 {
	switch v := e.Payload[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// PayloadBool retrieves a bool value from the payload
func (e *Event) PayloadBool(key string) bool {
	if b, ok := e.Payload[key].(bool); ok {
		return b
	}
	return false
}

func generateID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("%d-%s", time.Now().UnixNano(), hex.EncodeToString(b))
}
