package entity

// Status constants for WorkflowInstance. Completed covers both success and
// rejection terminals; the outcome is encoded in the terminal stage name.
const (
	StatusInProgress = "in_progress"
	StatusPending    = "pending"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Workflow type tags, one per specialization
const (
	TypeStaffAssignment = "staff_assignment"
	TypeStaffEvaluation = "staff_evaluation"
	TypeStaffLeave      = "staff_leave"
	TypeStaffOnboarding = "staff_onboarding"
)

// Audit action kinds recorded by the engine
const (
	ActionWorkflowStarted   = "workflow_started"
	ActionStageAdvanced     = "stage_advanced"
	ActionWorkflowCompleted = "workflow_completed"
	ActionWorkflowCancelled = "workflow_cancelled"
)

// Notification status constants
const (
	NotificationStatusPending = "PENDING"
	NotificationStatusSent    = "SENT"
	NotificationStatusFailed  = "FAILED"
)

// Notification categories, used by the delivery layer to resolve
// role-broadcast recipients
const (
	NotifyCategoryRequester   = "requester"
	NotifyCategorySupervisor  = "supervisor"
	NotifyCategoryHR          = "hr"
	NotifyCategoryHeadTeacher = "head_teacher"
	NotifyCategoryDirector    = "director"
	NotifyCategoryAdmin       = "admin"
)

// Governed domain entity statuses, mutated in lockstep with the workflow
const (
	DomainStatusInReview = "in_review"
	DomainStatusApproved = "approved"
	DomainStatusRejected = "rejected"
	DomainStatusActive   = "active"
)
