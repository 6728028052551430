package event

// Type identifies the type of domain event
type Type string

const (
	TypeWorkflowStarted    Type = "workflow.started"
	TypeStageAdvanced      Type = "workflow.stage_advanced"
	TypeWorkflowCompleted  Type = "workflow.completed"
	TypeWorkflowCancelled  Type = "workflow.cancelled"
	TypeNotificationQueued Type = "notification.queued"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeWorkflowStarted,
		TypeStageAdvanced,
		TypeWorkflowCompleted,
		TypeWorkflowCancelled,
		TypeNotificationQueued:
		return true
	default:
		return false
	}
}
