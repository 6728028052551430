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

// Assignment workflow stages
const (
	StageAssignmentRequest   workflow.Stage = "assignment_request"
	StageValidation          workflow.Stage = "validation"
	StageHeadTeacherApproval workflow.Stage = "head_teacher_approval"
	StageAssignmentApproved  workflow.Stage = "approved"
)

// Assignment implements the staff teaching-assignment workflow. The
// validation stage runs the workload/qualification rule check and
// auto-rejects on failure instead of waiting for a human decision.
type Assignment struct {
	engine      engine.Engine
	def         *workflow.Definition
	directory   port.Directory
	assignments port.AssignmentGateway
	rules       port.AssignmentRuleChecker
	txManager   port.TransactionManager
	logger      *zap.Logger
}

// NewAssignment creates the assignment workflow specialization
func NewAssignment(
	eng engine.Engine,
	directory port.Directory,
	assignments port.AssignmentGateway,
	rules port.AssignmentRuleChecker,
	txManager port.TransactionManager,
	logger *zap.Logger,
) *Assignment {
	a := &Assignment{
		engine:      eng,
		directory:   directory,
		assignments: assignments,
		rules:       rules,
		txManager:   txManager,
		logger:      logger,
	}

	a.def = &workflow.Definition{
		Type:    entity.TypeStaffAssignment,
		Initial: StageAssignmentRequest,
		Stages: map[workflow.Stage]workflow.StageRule{
			StageAssignmentRequest: {
				Next: []workflow.Stage{StageValidation, workflow.StageRejected},
			},
			StageValidation: {
				Next:         []workflow.Stage{StageHeadTeacherApproval, workflow.StageRejected},
				RequiredRole: workflow.RoleHRManager,
			},
			StageHeadTeacherApproval: {
				Next:         []workflow.Stage{StageAssignmentApproved, workflow.StageRejected},
				RequiredRole: workflow.RoleHeadTeacher,
			},
			StageAssignmentApproved: {Terminal: true, Success: true},
			workflow.StageRejected:  {Terminal: true},
		},
		ProcessStage: a.processStage,
	}

	return a
}

// Definition returns the assignment workflow's stage graph
func (a *Assignment) Definition() *workflow.Definition {
	return a.def
}

// Initiate starts an assignment workflow for an existing assignment request
func (a *Assignment) Initiate(ctx context.Context, assignmentID, callerID int64) (*engine.Result, error) {
	detail, err := a.assignments.GetDetail(ctx, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assignment: %w", err)
	}
	if detail == nil {
		return engine.Fail(fmt.Sprintf("assignment %d not found", assignmentID)), nil
	}

	data := map[string]any{
		"assignment_id":    detail.ID,
		"staff_id":         detail.StaffID,
		"staff_user_id":    detail.StaffUserID,
		"staff_name":       detail.StaffName,
		"subject_id":       detail.SubjectID,
		"subject_name":     detail.SubjectName,
		"class_name":       detail.ClassName,
		"academic_year_id": detail.AcademicYearID,
	}

	var instanceID int64
	err = a.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		id, err := a.engine.Start(txCtx, a.def, assignmentID, callerID, data)
		if err != nil {
			return err
		}
		instanceID = id
		return a.assignments.UpdateStatus(txCtx, assignmentID, entity.DomainStatusInReview, id)
	})
	if err != nil {
		return resultFromErr(err)
	}

	return engine.OK("Assignment request submitted for validation", map[string]any{
		"workflow_id":  instanceID,
		"stage":        StageAssignmentRequest.String(),
		"staff_name":   detail.StaffName,
		"subject_name": detail.SubjectName,
	}), nil
}

// RunValidation moves the instance into the validation stage and executes
// the workload/qualification rule check. A failed check auto-advances the
// instance to rejected with the rule's error message; no human action is
// involved.
func (a *Assignment) RunValidation(ctx context.Context, instanceID, callerID int64) (*engine.Result, error) {
	instance, err := a.engine.Get(ctx, instanceID)
	if err != nil {
		return resultFromErr(err)
	}
	if fail := stageGuard(instance, "validation", StageAssignmentRequest); fail != nil {
		return fail, nil
	}

	role, fail, err := callerRole(ctx, a.directory, callerID)
	if err != nil {
		return nil, err
	}
	if fail != nil {
		return fail, nil
	}
	if !workflow.Authorize(role, workflow.RoleHRManager) {
		return engine.Fail("running assignment validation requires the HR manager role"), nil
	}

	check, err := a.rules.Validate(ctx,
		instance.DataInt("staff_id"),
		instance.DataInt("subject_id"),
		instance.DataInt("academic_year_id"),
		role)
	if err != nil {
		return nil, fmt.Errorf("assignment rule check failed: %w", err)
	}

	var updated *entity.WorkflowInstance
	err = a.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if _, err := a.engine.Advance(txCtx, a.def, instanceID, StageValidation, "validation_started", callerID, nil); err != nil {
			return err
		}

		if !check.IsValid {
			updated, err = a.engine.Advance(txCtx, a.def, instanceID, workflow.StageRejected, check.ErrorMessage, callerID, map[string]any{
				"validation_error": check.ErrorMessage,
				"removal_reason":   check.ErrorMessage,
				"validated_at":     now(),
			})
			if err != nil {
				return err
			}
			if err := a.assignments.UpdateStatus(txCtx, instance.DataInt("assignment_id"), entity.DomainStatusRejected, instanceID); err != nil {
				return err
			}
			return a.assignments.SetRemovalReason(txCtx, instance.DataInt("assignment_id"), check.ErrorMessage)
		}

		updated, err = a.engine.Advance(txCtx, a.def, instanceID, StageHeadTeacherApproval, "validation_passed", callerID, map[string]any{
			"validated_by": callerID,
			"validated_at": now(),
		})
		return err
	})
	if err != nil {
		return resultFromErr(err)
	}

	if !check.IsValid {
		result := engine.Fail(check.ErrorMessage)
		result.Data = map[string]any{
			"workflow_id": updated.ID,
			"status":      updated.Status,
			"stage":       updated.CurrentStage,
		}
		return result, nil
	}

	return envelope(updated, "Validation passed, awaiting head teacher approval"), nil
}

// HeadTeacherApproval records the head teacher's decision
func (a *Assignment) HeadTeacherApproval(ctx context.Context, instanceID, callerID int64, action, remarks string) (*engine.Result, error) {
	instance, err := a.engine.Get(ctx, instanceID)
	if err != nil {
		return resultFromErr(err)
	}
	if fail := stageGuard(instance, "head teacher approval", StageHeadTeacherApproval); fail != nil {
		return fail, nil
	}

	role, fail, err := callerRole(ctx, a.directory, callerID)
	if err != nil {
		return nil, err
	}
	if fail != nil {
		return fail, nil
	}
	if !workflow.Authorize(role, workflow.RoleHeadTeacher) {
		return engine.Fail("head teacher approval requires the head teacher role"), nil
	}

	verb, fail := parseAction(action)
	if fail != nil {
		return fail, nil
	}

	var updated *entity.WorkflowInstance
	err = a.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		stamp := map[string]any{
			"head_teacher_decision_by": callerID,
			"head_teacher_remarks":     remarks,
			"head_teacher_reviewed_at": now(),
		}

		if verb == ActionReject {
			updated, err = a.engine.Advance(txCtx, a.def, instanceID, workflow.StageRejected, "head_teacher_rejected", callerID, stamp)
			if err != nil {
				return err
			}
			return a.assignments.UpdateStatus(txCtx, instance.DataInt("assignment_id"), entity.DomainStatusRejected, instanceID)
		}

		updated, err = a.engine.Advance(txCtx, a.def, instanceID, StageAssignmentApproved, "head_teacher_approved", callerID, stamp)
		if err != nil {
			return err
		}
		return a.assignments.UpdateStatus(txCtx, instance.DataInt("assignment_id"), entity.DomainStatusActive, instanceID)
	})
	if err != nil {
		return resultFromErr(err)
	}

	return envelope(updated, fmt.Sprintf("Head teacher approval recorded: %s", verb)), nil
}

// Reject cancels the workflow from any non-terminal stage and marks the
// assignment rejected
func (a *Assignment) Reject(ctx context.Context, instanceID, callerID int64, reason string) (*engine.Result, error) {
	instance, err := a.engine.Get(ctx, instanceID)
	if err != nil {
		return resultFromErr(err)
	}

	role, fail, err := callerRole(ctx, a.directory, callerID)
	if err != nil {
		return nil, err
	}
	if fail != nil {
		return fail, nil
	}
	if !workflow.Authorize(role, workflow.RoleHRManager) {
		return engine.Fail("rejecting an assignment workflow requires the HR manager role"), nil
	}

	err = a.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := a.engine.Cancel(txCtx, instanceID, callerID, reason); err != nil {
			return err
		}
		if err := a.assignments.UpdateStatus(txCtx, instance.DataInt("assignment_id"), entity.DomainStatusRejected, instanceID); err != nil {
			return err
		}
		return a.assignments.SetRemovalReason(txCtx, instance.DataInt("assignment_id"), reason)
	})
	if err != nil {
		return resultFromErr(err)
	}

	return engine.OK("Assignment workflow cancelled", map[string]any{
		"workflow_id": instanceID,
		"status":      entity.StatusCancelled,
	}), nil
}

func (a *Assignment) processStage(ctx context.Context, instanceID int64, stage workflow.Stage, data map[string]any) error {
	staffName, _ := data["staff_name"].(string)
	subjectName, _ := data["subject_name"].(string)

	switch stage {
	case StageValidation:
		a.engine.Notify(ctx, instanceID, nil,
			"Assignment under validation",
			fmt.Sprintf("Assignment of %s to %s is being validated", staffName, subjectName),
			entity.NotifyCategoryAdmin)
	case StageHeadTeacherApproval:
		a.engine.Notify(ctx, instanceID, nil,
			"Assignment awaiting head teacher approval",
			fmt.Sprintf("Assignment of %s to %s passed validation", staffName, subjectName),
			entity.NotifyCategoryHeadTeacher)
	case StageAssignmentApproved:
		if requester, ok := asInt64(data["staff_user_id"]); ok {
			a.engine.Notify(ctx, instanceID, ptr(requester),
				"Assignment approved",
				fmt.Sprintf("Your assignment to %s has been approved", subjectName),
				entity.NotifyCategoryRequester)
		}
	case workflow.StageRejected:
		if requester, ok := asInt64(data["staff_user_id"]); ok {
			reason, _ := data["validation_error"].(string)
			body := "Your assignment request has been rejected"
			if reason != "" {
				body = fmt.Sprintf("Your assignment request has been rejected: %s", reason)
			}
			a.engine.Notify(ctx, instanceID, ptr(requester),
				"Assignment rejected", body, entity.NotifyCategoryRequester)
		}
	default:
		return fmt.Errorf("no stage handler for %s", stage)
	}

	return nil
}
