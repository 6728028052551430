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

// Evaluation workflow stages
const (
	StageSelfAssessment   workflow.Stage = "self_assessment"
	StageEvalSupervisor   workflow.Stage = "supervisor_review"
	StageHRReview         workflow.Stage = "hr_review"
	StageEvalFinalization workflow.Stage = "finalization"
)

// Evaluation implements the staff performance evaluation workflow:
// self assessment, supervisor review by the assigned supervisor, HR review
// and finalization.
type Evaluation struct {
	engine      engine.Engine
	def         *workflow.Definition
	directory   port.Directory
	evaluations port.EvaluationGateway
	txManager   port.TransactionManager
	logger      *zap.Logger
}

// NewEvaluation creates the evaluation workflow specialization
func NewEvaluation(
	eng engine.Engine,
	directory port.Directory,
	evaluations port.EvaluationGateway,
	txManager port.TransactionManager,
	logger *zap.Logger,
) *Evaluation {
	e := &Evaluation{
		engine:      eng,
		directory:   directory,
		evaluations: evaluations,
		txManager:   txManager,
		logger:      logger,
	}

	e.def = &workflow.Definition{
		Type:    entity.TypeStaffEvaluation,
		Initial: StageSelfAssessment,
		Stages: map[workflow.Stage]workflow.StageRule{
			StageSelfAssessment: {
				Next: []workflow.Stage{StageEvalSupervisor, workflow.StageRejected},
			},
			StageEvalSupervisor: {
				Next:         []workflow.Stage{StageHRReview, workflow.StageRejected},
				RequiredRole: workflow.RoleSupervisor,
			},
			StageHRReview: {
				Next:         []workflow.Stage{StageEvalFinalization, workflow.StageRejected},
				RequiredRole: workflow.RoleHRManager,
			},
			StageEvalFinalization:  {Terminal: true, Success: true},
			workflow.StageRejected: {Terminal: true},
		},
		ProcessStage: e.processStage,
	}

	return e
}

// Definition returns the evaluation workflow's stage graph
func (e *Evaluation) Definition() *workflow.Definition {
	return e.def
}

// Initiate starts an evaluation workflow. An academic year and review
// period are mandatory at initiation.
func (e *Evaluation) Initiate(ctx context.Context, evaluationID, callerID, academicYearID int64, reviewPeriod string) (*engine.Result, error) {
	if academicYearID == 0 || reviewPeriod == "" {
		return engine.Fail("academic_year_id and review_period are required to initiate an evaluation"), nil
	}

	detail, err := e.evaluations.GetDetail(ctx, evaluationID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch evaluation: %w", err)
	}
	if detail == nil {
		return engine.Fail(fmt.Sprintf("evaluation %d not found", evaluationID)), nil
	}

	data := map[string]any{
		"evaluation_id":    detail.ID,
		"staff_id":         detail.StaffID,
		"staff_user_id":    detail.StaffUserID,
		"staff_name":       detail.StaffName,
		"supervisor_id":    detail.SupervisorID,
		"academic_year_id": academicYearID,
		"review_period":    reviewPeriod,
	}

	var instanceID int64
	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		id, err := e.engine.Start(txCtx, e.def, evaluationID, callerID, data)
		if err != nil {
			return err
		}
		instanceID = id
		return e.evaluations.UpdateStatus(txCtx, evaluationID, entity.DomainStatusInReview, id)
	})
	if err != nil {
		return resultFromErr(err)
	}

	return engine.OK("Evaluation started, awaiting self assessment", map[string]any{
		"workflow_id":   instanceID,
		"stage":         StageSelfAssessment.String(),
		"staff_name":    detail.StaffName,
		"review_period": reviewPeriod,
	}), nil
}

// SubmitSelfAssessment records the evaluated staff member's self assessment
// and moves the instance to supervisor review. Only the evaluated staff
// member may submit.
func (e *Evaluation) SubmitSelfAssessment(ctx context.Context, instanceID, callerID int64, assessment map[string]any) (*engine.Result, error) {
	instance, err := e.engine.Get(ctx, instanceID)
	if err != nil {
		return resultFromErr(err)
	}
	if fail := stageGuard(instance, "self assessment", StageSelfAssessment); fail != nil {
		return fail, nil
	}

	if callerID != instance.DataInt("staff_user_id") {
		return engine.Fail("only the evaluated staff member may submit the self assessment"), nil
	}

	merged := engine.Merge(assessment, map[string]any{
		"self_assessment_by": callerID,
		"self_assessment_at": now(),
	})

	var updated *entity.WorkflowInstance
	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		updated, err = e.engine.Advance(txCtx, e.def, instanceID, StageEvalSupervisor, "self_assessment_submitted", callerID, merged)
		return err
	})
	if err != nil {
		return resultFromErr(err)
	}

	return envelope(updated, "Self assessment submitted for supervisor review"), nil
}

// SupervisorReview records the assigned supervisor's review. The caller id
// must equal the supervisor stored at initiation.
func (e *Evaluation) SupervisorReview(ctx context.Context, instanceID, callerID int64, action, remarks string) (*engine.Result, error) {
	instance, err := e.engine.Get(ctx, instanceID)
	if err != nil {
		return resultFromErr(err)
	}
	if fail := stageGuard(instance, "supervisor review", StageEvalSupervisor); fail != nil {
		return fail, nil
	}

	if callerID != instance.DataInt("supervisor_id") {
		return engine.Fail("only the assigned supervisor may review this evaluation"), nil
	}

	verb, fail := parseAction(action)
	if fail != nil {
		return fail, nil
	}

	var updated *entity.WorkflowInstance
	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		stamp := map[string]any{
			"supervisor_reviewed_by": callerID,
			"supervisor_remarks":     remarks,
			"supervisor_reviewed_at": now(),
		}

		if verb == ActionReject {
			updated, err = e.engine.Advance(txCtx, e.def, instanceID, workflow.StageRejected, "supervisor_rejected", callerID, stamp)
			if err != nil {
				return err
			}
			return e.evaluations.UpdateStatus(txCtx, instance.DataInt("evaluation_id"), entity.DomainStatusRejected, instanceID)
		}

		updated, err = e.engine.Advance(txCtx, e.def, instanceID, StageHRReview, "supervisor_reviewed", callerID, stamp)
		return err
	})
	if err != nil {
		return resultFromErr(err)
	}

	return envelope(updated, fmt.Sprintf("Supervisor review recorded: %s", verb)), nil
}

// HRReview records the HR manager's decision; approval finalizes the
// evaluation through the engine's completion path.
func (e *Evaluation) HRReview(ctx context.Context, instanceID, callerID int64, action, remarks string) (*engine.Result, error) {
	instance, err := e.engine.Get(ctx, instanceID)
	if err != nil {
		return resultFromErr(err)
	}
	if fail := stageGuard(instance, "HR review", StageHRReview); fail != nil {
		return fail, nil
	}

	role, fail, err := callerRole(ctx, e.directory, callerID)
	if err != nil {
		return nil, err
	}
	if fail != nil {
		return fail, nil
	}
	if !workflow.Authorize(role, workflow.RoleHRManager) {
		return engine.Fail("HR review requires the HR manager role"), nil
	}

	verb, fail := parseAction(action)
	if fail != nil {
		return fail, nil
	}

	var updated *entity.WorkflowInstance
	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if verb == ActionReject {
			updated, err = e.engine.Advance(txCtx, e.def, instanceID, workflow.StageRejected, "hr_rejected", callerID, map[string]any{
				"hr_reviewed_by": callerID,
				"hr_remarks":     remarks,
				"hr_reviewed_at": now(),
			})
			if err != nil {
				return err
			}
			return e.evaluations.UpdateStatus(txCtx, instance.DataInt("evaluation_id"), entity.DomainStatusRejected, instanceID)
		}

		updated, err = e.engine.Complete(txCtx, e.def, instanceID, callerID, remarks, map[string]any{
			"hr_reviewed_by": callerID,
			"hr_reviewed_at": now(),
		})
		if err != nil {
			return err
		}
		return e.evaluations.UpdateStatus(txCtx, instance.DataInt("evaluation_id"), entity.DomainStatusApproved, instanceID)
	})
	if err != nil {
		return resultFromErr(err)
	}

	return envelope(updated, fmt.Sprintf("HR review recorded: %s", verb)), nil
}

// Reject cancels the workflow from any non-terminal stage
func (e *Evaluation) Reject(ctx context.Context, instanceID, callerID int64, reason string) (*engine.Result, error) {
	instance, err := e.engine.Get(ctx, instanceID)
	if err != nil {
		return resultFromErr(err)
	}

	role, fail, err := callerRole(ctx, e.directory, callerID)
	if err != nil {
		return nil, err
	}
	if fail != nil {
		return fail, nil
	}
	if !workflow.Authorize(role, workflow.RoleHRManager) {
		return engine.Fail("rejecting an evaluation workflow requires the HR manager role"), nil
	}

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.engine.Cancel(txCtx, instanceID, callerID, reason); err != nil {
			return err
		}
		return e.evaluations.UpdateStatus(txCtx, instance.DataInt("evaluation_id"), entity.DomainStatusRejected, instanceID)
	})
	if err != nil {
		return resultFromErr(err)
	}

	return engine.OK("Evaluation workflow cancelled", map[string]any{
		"workflow_id": instanceID,
		"status":      entity.StatusCancelled,
	}), nil
}

func (e *Evaluation) processStage(ctx context.Context, instanceID int64, stage workflow.Stage, data map[string]any) error {
	staffName, _ := data["staff_name"].(string)

	switch stage {
	case StageEvalSupervisor:
		if supervisor, ok := asInt64(data["supervisor_id"]); ok {
			e.engine.Notify(ctx, instanceID, ptr(supervisor),
				"Evaluation awaiting supervisor review",
				fmt.Sprintf("%s submitted a self assessment for your review", staffName),
				entity.NotifyCategorySupervisor)
		}
	case StageHRReview:
		e.engine.Notify(ctx, instanceID, nil,
			"Evaluation awaiting HR review",
			fmt.Sprintf("The evaluation of %s passed supervisor review", staffName),
			entity.NotifyCategoryHR)
	case StageEvalFinalization:
		if requester, ok := asInt64(data["staff_user_id"]); ok {
			e.engine.Notify(ctx, instanceID, ptr(requester),
				"Evaluation finalized",
				"Your performance evaluation has been finalized",
				entity.NotifyCategoryRequester)
		}
	case workflow.StageRejected:
		if requester, ok := asInt64(data["staff_user_id"]); ok {
			e.engine.Notify(ctx, instanceID, ptr(requester),
				"Evaluation rejected",
				"Your performance evaluation has been rejected",
				entity.NotifyCategoryRequester)
		}
	default:
		return fmt.Errorf("no stage handler for %s", stage)
	}

	return nil
}
