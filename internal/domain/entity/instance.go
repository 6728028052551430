package entity

import "time"

// WorkflowInstance represents one running or completed occurrence of a
// staged approval process tied to one domain entity. Data is the append-only
// payload accumulated across stages; transitions may add keys but never drop
// prior ones.
type WorkflowInstance struct {
	ID           int64          `json:"id"`
	WorkflowType string         `json:"workflow_type"`
	ReferenceID  int64          `json:"reference_id"`
	CurrentStage string         `json:"current_stage"`
	Status       string         `json:"status"`
	Data         map[string]any `json:"data"`
	InitiatedBy  int64          `json:"initiated_by"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// IsTerminal returns true once the instance has reached a terminal status
func (i *WorkflowInstance) IsTerminal() bool {
	return i.Status == StatusCompleted || i.Status == StatusCancelled
}

// DataString retrieves a string value from the accumulated payload
func (i *WorkflowInstance) DataString(key string) string {
	if val, ok := i.Data[key]; ok {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return ""
}

// DataInt retrieves an int64 value from the accumulated payload. JSON
// round-trips store numbers as float64, so both are accepted.
func (i *WorkflowInstance) DataInt(key string) int64 {
	if val, ok := i.Data[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}

// DataBool retrieves a bool value from the accumulated payload
func (i *WorkflowInstance) DataBool(key string) bool {
	if val, ok := i.Data[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}
