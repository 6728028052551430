package process

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/campuskit/school-workflow/internal/application/engine"
	"github.com/campuskit/school-workflow/internal/application/port"
	"github.com/campuskit/school-workflow/internal/domain/entity"
	"github.com/campuskit/school-workflow/internal/domain/workflow"
)

// Leave workflow stages
const (
	StageLeaveRequest     workflow.Stage = "leave_request"
	StageSupervisorReview workflow.Stage = "supervisor_review"
	StageHRApproval       workflow.Stage = "hr_approval"
	StageDirectorApproval workflow.Stage = "director_approval"
	StageLeaveApproved    workflow.Stage = "approved"
)

// Leave implements the staff leave approval workflow: supervisor review,
// HR approval, and director approval for requests longer than the
// configured threshold.
type Leave struct {
	engine    engine.Engine
	def       *workflow.Definition
	directory port.Directory
	leaves    port.LeaveRequestGateway
	balances  port.LeaveBalanceCalculator
	txManager port.TransactionManager

	// directorThresholdDays is the days_requested value above which HR
	// approval routes to the director instead of straight to approved.
	directorThresholdDays int

	logger *zap.Logger
}

// NewLeave creates the leave workflow specialization
func NewLeave(
	eng engine.Engine,
	directory port.Directory,
	leaves port.LeaveRequestGateway,
	balances port.LeaveBalanceCalculator,
	txManager port.TransactionManager,
	directorThresholdDays int,
	logger *zap.Logger,
) *Leave {
	l := &Leave{
		engine:                eng,
		directory:             directory,
		leaves:                leaves,
		balances:              balances,
		txManager:             txManager,
		directorThresholdDays: directorThresholdDays,
		logger:                logger,
	}

	l.def = &workflow.Definition{
		Type:    entity.TypeStaffLeave,
		Initial: StageLeaveRequest,
		Stages: map[workflow.Stage]workflow.StageRule{
			StageLeaveRequest: {
				Next: []workflow.Stage{StageSupervisorReview, workflow.StageRejected},
			},
			StageSupervisorReview: {
				Next:         []workflow.Stage{StageHRApproval, workflow.StageRejected},
				RequiredRole: workflow.RoleSupervisor,
			},
			StageHRApproval: {
				Next:         []workflow.Stage{StageDirectorApproval, StageLeaveApproved, workflow.StageRejected},
				RequiredRole: workflow.RoleHRManager,
			},
			StageDirectorApproval: {
				Next:         []workflow.Stage{StageLeaveApproved, workflow.StageRejected},
				RequiredRole: workflow.RoleDirector,
			},
			StageLeaveApproved:     {Terminal: true, Success: true},
			workflow.StageRejected: {Terminal: true},
		},
		ProcessStage: l.processStage,
	}

	return l
}

// Definition returns the leave workflow's stage graph
func (l *Leave) Definition() *workflow.Definition {
	return l.def
}

// Initiate starts a leave workflow for an existing leave request. When the
// leave type requires a balance check, initiation fails without creating any
// state if the available balance cannot cover the request. The director
// routing decision is computed once here and stored in the instance data.
func (l *Leave) Initiate(ctx context.Context, leaveRequestID, callerID int64) (*engine.Result, error) {
	detail, err := l.leaves.GetDetail(ctx, leaveRequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch leave request: %w", err)
	}
	if detail == nil {
		return engine.Fail(fmt.Sprintf("leave request %d not found", leaveRequestID)), nil
	}

	if detail.RequiresBalanceCheck {
		balance, err := l.balances.Calculate(ctx, detail.StaffID, detail.LeaveTypeID)
		if err != nil {
			return nil, fmt.Errorf("failed to calculate leave balance: %w", err)
		}
		if balance.Available < detail.DaysRequested {
			return engine.Fail(fmt.Sprintf(
				"Insufficient leave balance. Available: %d days, Requested: %d days",
				balance.Available, detail.DaysRequested)), nil
		}
	}

	data := map[string]any{
		"leave_request_id":           detail.ID,
		"staff_id":                   detail.StaffID,
		"staff_user_id":              detail.StaffUserID,
		"staff_name":                 detail.StaffName,
		"supervisor_id":              detail.SupervisorID,
		"leave_type_id":              detail.LeaveTypeID,
		"leave_type":                 detail.LeaveTypeName,
		"days_requested":             detail.DaysRequested,
		"start_date":                 detail.StartDate,
		"end_date":                   detail.EndDate,
		"reason":                     detail.Reason,
		"requires_director_approval": detail.DaysRequested > l.directorThresholdDays,
	}

	var instance *entity.WorkflowInstance
	err = l.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		id, err := l.engine.Start(txCtx, l.def, leaveRequestID, callerID, data)
		if err != nil {
			return err
		}
		instance, err = l.engine.Advance(txCtx, l.def, id, StageSupervisorReview, "validation_passed", callerID, nil)
		if err != nil {
			return err
		}
		return l.leaves.UpdateStatus(txCtx, leaveRequestID, entity.DomainStatusInReview, id)
	})
	if err != nil {
		return resultFromErr(err)
	}

	result := envelope(instance, "Leave request submitted for supervisor review")
	result.Data["staff_name"] = detail.StaffName
	result.Data["days_requested"] = detail.DaysRequested
	result.Data["requires_director_approval"] = instance.DataBool("requires_director_approval")
	return result, nil
}

// SupervisorReview records the assigned supervisor's decision. Only the
// stored supervisor, or an Admin/HR manager override, may act here.
func (l *Leave) SupervisorReview(ctx context.Context, instanceID, callerID int64, action, remarks string) (*engine.Result, error) {
	instance, err := l.engine.Get(ctx, instanceID)
	if err != nil {
		return resultFromErr(err)
	}
	if fail := stageGuard(instance, "supervisor review", StageSupervisorReview); fail != nil {
		return fail, nil
	}

	if callerID != instance.DataInt("supervisor_id") {
		role, fail, err := callerRole(ctx, l.directory, callerID)
		if err != nil {
			return nil, err
		}
		if fail != nil {
			return fail, nil
		}
		if !workflow.Authorize(role, workflow.RoleHRManager) {
			return engine.Fail("only the assigned supervisor or an HR manager may perform supervisor review"), nil
		}
	}

	verb, fail := parseAction(action)
	if fail != nil {
		return fail, nil
	}

	var updated *entity.WorkflowInstance
	err = l.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if verb == ActionReject {
			updated, err = l.engine.Advance(txCtx, l.def, instanceID, workflow.StageRejected, "supervisor_rejected", callerID, map[string]any{
				"supervisor_rejected_by": callerID,
				"supervisor_remarks":     remarks,
				"supervisor_reviewed_at": now(),
			})
			if err != nil {
				return err
			}
			return l.leaves.UpdateStatus(txCtx, instance.DataInt("leave_request_id"), entity.DomainStatusRejected, instanceID)
		}

		updated, err = l.engine.Advance(txCtx, l.def, instanceID, StageHRApproval, "supervisor_approved", callerID, map[string]any{
			"supervisor_approved_by": callerID,
			"supervisor_remarks":     remarks,
			"supervisor_reviewed_at": now(),
		})
		return err
	})
	if err != nil {
		return resultFromErr(err)
	}

	return envelope(updated, fmt.Sprintf("Supervisor review recorded: %s", verb)), nil
}

// HRApproval records the HR manager's decision. Approval routes to the
// director when the request was flagged at initiation, otherwise straight to
// approved.
func (l *Leave) HRApproval(ctx context.Context, instanceID, callerID int64, action, remarks string) (*engine.Result, error) {
	instance, err := l.engine.Get(ctx, instanceID)
	if err != nil {
		return resultFromErr(err)
	}
	if fail := stageGuard(instance, "HR approval", StageHRApproval); fail != nil {
		return fail, nil
	}

	role, fail, err := callerRole(ctx, l.directory, callerID)
	if err != nil {
		return nil, err
	}
	if fail != nil {
		return fail, nil
	}
	if !workflow.Authorize(role, workflow.RoleHRManager) {
		return engine.Fail("HR approval requires the HR manager role"), nil
	}

	verb, fail := parseAction(action)
	if fail != nil {
		return fail, nil
	}

	var updated *entity.WorkflowInstance
	err = l.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		stamp := map[string]any{
			"hr_approved_by": callerID,
			"hr_remarks":     remarks,
			"hr_reviewed_at": now(),
		}

		if verb == ActionReject {
			updated, err = l.engine.Advance(txCtx, l.def, instanceID, workflow.StageRejected, "hr_rejected", callerID, stamp)
			if err != nil {
				return err
			}
			return l.leaves.UpdateStatus(txCtx, instance.DataInt("leave_request_id"), entity.DomainStatusRejected, instanceID)
		}

		next := StageLeaveApproved
		reason := "hr_approved"
		if instance.DataBool("requires_director_approval") {
			next = StageDirectorApproval
			reason = "hr_approved_pending_director"
		}

		updated, err = l.engine.Advance(txCtx, l.def, instanceID, next, reason, callerID, stamp)
		if err != nil {
			return err
		}
		if next == StageLeaveApproved {
			return l.leaves.UpdateStatus(txCtx, instance.DataInt("leave_request_id"), entity.DomainStatusApproved, instanceID)
		}
		return nil
	})
	if err != nil {
		return resultFromErr(err)
	}

	return envelope(updated, fmt.Sprintf("HR approval recorded: %s", verb)), nil
}

// DirectorApproval records the director's decision on requests that exceeded
// the routing threshold
func (l *Leave) DirectorApproval(ctx context.Context, instanceID, callerID int64, action, remarks string) (*engine.Result, error) {
	instance, err := l.engine.Get(ctx, instanceID)
	if err != nil {
		return resultFromErr(err)
	}
	if fail := stageGuard(instance, "director approval", StageDirectorApproval); fail != nil {
		return fail, nil
	}

	role, fail, err := callerRole(ctx, l.directory, callerID)
	if err != nil {
		return nil, err
	}
	if fail != nil {
		return fail, nil
	}
	if !workflow.Authorize(role, workflow.RoleDirector) {
		return engine.Fail("director approval requires the director role"), nil
	}

	verb, fail := parseAction(action)
	if fail != nil {
		return fail, nil
	}

	var updated *entity.WorkflowInstance
	err = l.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		stamp := map[string]any{
			"director_approved_by": callerID,
			"director_remarks":     remarks,
			"director_reviewed_at": now(),
		}

		if verb == ActionReject {
			updated, err = l.engine.Advance(txCtx, l.def, instanceID, workflow.StageRejected, "director_rejected", callerID, stamp)
			if err != nil {
				return err
			}
			return l.leaves.UpdateStatus(txCtx, instance.DataInt("leave_request_id"), entity.DomainStatusRejected, instanceID)
		}

		updated, err = l.engine.Advance(txCtx, l.def, instanceID, StageLeaveApproved, "director_approved", callerID, stamp)
		if err != nil {
			return err
		}
		return l.leaves.UpdateStatus(txCtx, instance.DataInt("leave_request_id"), entity.DomainStatusApproved, instanceID)
	})
	if err != nil {
		return resultFromErr(err)
	}

	return envelope(updated, fmt.Sprintf("Director approval recorded: %s", verb)), nil
}

// Reject cancels the workflow from any non-terminal stage and marks the
// leave request rejected
func (l *Leave) Reject(ctx context.Context, instanceID, callerID int64, reason string) (*engine.Result, error) {
	instance, err := l.engine.Get(ctx, instanceID)
	if err != nil {
		return resultFromErr(err)
	}

	role, fail, err := callerRole(ctx, l.directory, callerID)
	if err != nil {
		return nil, err
	}
	if fail != nil {
		return fail, nil
	}
	if !workflow.Authorize(role, workflow.RoleHRManager) {
		return engine.Fail("rejecting a leave workflow requires the HR manager role"), nil
	}

	err = l.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := l.engine.Cancel(txCtx, instanceID, callerID, reason); err != nil {
			return err
		}
		return l.leaves.UpdateStatus(txCtx, instance.DataInt("leave_request_id"), entity.DomainStatusRejected, instanceID)
	})
	if err != nil {
		return resultFromErr(err)
	}

	l.engine.Notify(ctx, instanceID, ptr(instance.DataInt("staff_user_id")),
		"Leave request cancelled",
		fmt.Sprintf("Your leave request was cancelled: %s", reason),
		entity.NotifyCategoryRequester)

	return engine.OK("Leave workflow cancelled", map[string]any{
		"workflow_id": instanceID,
		"status":      entity.StatusCancelled,
	}), nil
}

// processStage queues stage-entry notifications; it runs inside the
// advancing transaction and an unknown stage is an error.
func (l *Leave) processStage(ctx context.Context, instanceID int64, stage workflow.Stage, data map[string]any) error {
	staffName, _ := data["staff_name"].(string)

	switch stage {
	case StageSupervisorReview:
		if supervisor, ok := asInt64(data["supervisor_id"]); ok {
			l.engine.Notify(ctx, instanceID, ptr(supervisor),
				"Leave request awaiting review",
				fmt.Sprintf("A leave request from %s is awaiting your review", staffName),
				entity.NotifyCategorySupervisor)
		}
	case StageHRApproval:
		l.engine.Notify(ctx, instanceID, nil,
			"Leave request awaiting HR approval",
			fmt.Sprintf("A leave request from %s passed supervisor review", staffName),
			entity.NotifyCategoryHR)
	case StageDirectorApproval:
		l.engine.Notify(ctx, instanceID, nil,
			"Leave request awaiting director approval",
			fmt.Sprintf("A leave request from %s requires director approval", staffName),
			entity.NotifyCategoryDirector)
	case StageLeaveApproved:
		if requester, ok := asInt64(data["staff_user_id"]); ok {
			l.engine.Notify(ctx, instanceID, ptr(requester),
				"Leave request approved",
				"Your leave request has been approved",
				entity.NotifyCategoryRequester)
		}
	case workflow.StageRejected:
		if requester, ok := asInt64(data["staff_user_id"]); ok {
			l.engine.Notify(ctx, instanceID, ptr(requester),
				"Leave request rejected",
				"Your leave request has been rejected",
				entity.NotifyCategoryRequester)
		}
	default:
		return fmt.Errorf("no stage handler for %s", stage)
	}

	return nil
}
