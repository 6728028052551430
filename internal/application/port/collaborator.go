package port

import (
	"context"

	"github.com/campuskit/school-workflow/internal/domain/workflow"
)

// Directory resolves caller identity to a role. Authentication itself is
// handled upstream.
type Directory interface {
	GetRole(ctx context.Context, userID int64) (workflow.Role, error)
}

// LeaveRequestDetail is the joined view of a leave request the leave
// workflow needs for validation and display denormalization.
type LeaveRequestDetail struct {
	ID                   int64
	StaffID              int64
	StaffUserID          int64
	StaffName            string
	SupervisorID         int64
	LeaveTypeID          int64
	LeaveTypeName        string
	RequiresBalanceCheck bool
	DaysRequested        int
	StartDate            string
	EndDate              string
	Reason               string
	Status               string
}

// LeaveRequestGateway is the external leave-request manager consumed by the
// leave workflow. GetDetail returns nil, nil when the request does not exist.
type LeaveRequestGateway interface {
	GetDetail(ctx context.Context, id int64) (*LeaveRequestDetail, error)
	UpdateStatus(ctx context.Context, id int64, status string, workflowID int64) error
}

// LeaveBalance is the computed entitlement for one staff member and leave type
type LeaveBalance struct {
	Entitled  int
	Used      int
	Available int
}

// LeaveBalanceCalculator computes leave entitlement via the external
// balance manager
type LeaveBalanceCalculator interface {
	Calculate(ctx context.Context, staffID, leaveTypeID int64) (*LeaveBalance, error)
}

// AssignmentDetail is the joined view of a teaching assignment request
type AssignmentDetail struct {
	ID             int64
	StaffID        int64
	StaffUserID    int64
	StaffName      string
	SubjectID      int64
	SubjectName    string
	ClassName      string
	AcademicYearID int64
	Status         string
}

// AssignmentGateway is the external assignment manager consumed by the
// assignment workflow
type AssignmentGateway interface {
	GetDetail(ctx context.Context, id int64) (*AssignmentDetail, error)
	UpdateStatus(ctx context.Context, id int64, status string, workflowID int64) error
	SetRemovalReason(ctx context.Context, id int64, reason string) error
}

// RuleCheckResult is the outcome of a domain rule check such as workload or
// qualification validation
type RuleCheckResult struct {
	IsValid      bool
	ErrorMessage string
}

// AssignmentRuleChecker validates workload and qualification rules for a
// proposed assignment
type AssignmentRuleChecker interface {
	Validate(ctx context.Context, staffID, subjectID, academicYearID int64, role workflow.Role) (*RuleCheckResult, error)
}

// EvaluationDetail is the joined view of a performance evaluation record
type EvaluationDetail struct {
	ID           int64
	StaffID      int64
	StaffUserID  int64
	StaffName    string
	SupervisorID int64
	Status       string
}

// EvaluationGateway is the external KPI/evaluation manager consumed by the
// evaluation workflow
type EvaluationGateway interface {
	GetDetail(ctx context.Context, id int64) (*EvaluationDetail, error)
	UpdateStatus(ctx context.Context, id int64, status string, workflowID int64) error
}

// OnboardingDetail is the joined view of an onboarding record
type OnboardingDetail struct {
	ID         int64
	StaffID    int64
	StaffName  string
	Position   string
	Department string
	Status     string
}

// OnboardingGateway is the external onboarding-task manager consumed by the
// onboarding workflow
type OnboardingGateway interface {
	GetDetail(ctx context.Context, id int64) (*OnboardingDetail, error)
	UpdateStatus(ctx context.Context, id int64, status string, workflowID int64) error
}

// AccountRequest carries the fields needed to provision a user account
// during onboarding system-access
type AccountRequest struct {
	StaffID  int64
	Email    string
	Username string
	Role     string
}

// AccountProvisioner creates user accounts as an onboarding side effect.
// It participates in the caller's transaction context.
type AccountProvisioner interface {
	CreateAccount(ctx context.Context, req AccountRequest) (int64, error)
}
