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

// Onboarding workflow stages
const (
	StageDocumentation workflow.Stage = "documentation"
	StageOrientation   workflow.Stage = "orientation"
	StageSystemAccess  workflow.Stage = "system_access"
	StageCompletion    workflow.Stage = "completion"
)

// Onboarding implements the staff onboarding workflow. Each forward
// transition is gated on a declared set of payload fields; granting system
// access additionally provisions a user account inside the same transaction.
type Onboarding struct {
	engine     engine.Engine
	def        *workflow.Definition
	directory  port.Directory
	onboarding port.OnboardingGateway
	accounts   port.AccountProvisioner
	txManager  port.TransactionManager
	logger     *zap.Logger
}

// NewOnboarding creates the onboarding workflow specialization
func NewOnboarding(
	eng engine.Engine,
	directory port.Directory,
	onboarding port.OnboardingGateway,
	accounts port.AccountProvisioner,
	txManager port.TransactionManager,
	logger *zap.Logger,
) *Onboarding {
	o := &Onboarding{
		engine:     eng,
		directory:  directory,
		onboarding: onboarding,
		accounts:   accounts,
		txManager:  txManager,
		logger:     logger,
	}

	o.def = &workflow.Definition{
		Type:    entity.TypeStaffOnboarding,
		Initial: StageDocumentation,
		Stages: map[workflow.Stage]workflow.StageRule{
			StageDocumentation: {
				Next:         []workflow.Stage{StageOrientation, workflow.StageRejected},
				RequiredRole: workflow.RoleHRManager,
			},
			StageOrientation: {
				Next:           []workflow.Stage{StageSystemAccess, workflow.StageRejected},
				RequiredRole:   workflow.RoleHRManager,
				RequiredFields: []string{"id_copy", "certificates", "bank_details"},
			},
			StageSystemAccess: {
				Next:           []workflow.Stage{StageCompletion, workflow.StageRejected},
				RequiredRole:   workflow.RoleAdmin,
				RequiredFields: []string{"policy_review", "department_intro", "facility_tour"},
			},
			StageCompletion: {
				Terminal:       true,
				Success:        true,
				RequiredFields: []string{"email", "username", "role"},
			},
			workflow.StageRejected: {Terminal: true},
		},
		ProcessStage: o.processStage,
	}

	return o
}

// Definition returns the onboarding workflow's stage graph
func (o *Onboarding) Definition() *workflow.Definition {
	return o.def
}

// Initiate starts an onboarding workflow for a newly hired staff member
func (o *Onboarding) Initiate(ctx context.Context, onboardingID, callerID int64) (*engine.Result, error) {
	detail, err := o.onboarding.GetDetail(ctx, onboardingID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch onboarding record: %w", err)
	}
	if detail == nil {
		return engine.Fail(fmt.Sprintf("onboarding record %d not found", onboardingID)), nil
	}

	data := map[string]any{
		"onboarding_id": detail.ID,
		"staff_id":      detail.StaffID,
		"staff_name":    detail.StaffName,
		"position":      detail.Position,
		"department":    detail.Department,
	}

	var instanceID int64
	err = o.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		id, err := o.engine.Start(txCtx, o.def, onboardingID, callerID, data)
		if err != nil {
			return err
		}
		instanceID = id
		return o.onboarding.UpdateStatus(txCtx, onboardingID, entity.DomainStatusInReview, id)
	})
	if err != nil {
		return resultFromErr(err)
	}

	return engine.OK("Onboarding started, awaiting documentation", map[string]any{
		"workflow_id": instanceID,
		"stage":       StageDocumentation.String(),
		"staff_name":  detail.StaffName,
	}), nil
}

// SubmitDocuments records the documentation set and moves the instance to
// orientation. The payload must carry id_copy, certificates and
// bank_details.
func (o *Onboarding) SubmitDocuments(ctx context.Context, instanceID, callerID int64, documents map[string]any) (*engine.Result, error) {
	instance, err := o.engine.Get(ctx, instanceID)
	if err != nil {
		return resultFromErr(err)
	}
	if fail := stageGuard(instance, "document submission", StageDocumentation); fail != nil {
		return fail, nil
	}

	role, fail, err := callerRole(ctx, o.directory, callerID)
	if err != nil {
		return nil, err
	}
	if fail != nil {
		return fail, nil
	}
	if !workflow.Authorize(role, workflow.RoleHRManager) {
		return engine.Fail("submitting onboarding documents requires the HR manager role"), nil
	}

	merged := engine.Merge(instance.Data, documents)
	if fail := requireFields(o.def, StageOrientation, merged); fail != nil {
		return fail, nil
	}

	var updated *entity.WorkflowInstance
	err = o.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		updated, err = o.engine.Advance(txCtx, o.def, instanceID, StageOrientation, "documents_submitted", callerID,
			engine.Merge(documents, map[string]any{
				"documents_submitted_by": callerID,
				"documents_submitted_at": now(),
			}))
		return err
	})
	if err != nil {
		return resultFromErr(err)
	}

	return envelope(updated, "Documents recorded, orientation scheduled"), nil
}

// CompleteOrientation records the orientation checklist and moves the
// instance to system access. The payload must carry policy_review,
// department_intro and facility_tour.
func (o *Onboarding) CompleteOrientation(ctx context.Context, instanceID, callerID int64, checklist map[string]any) (*engine.Result, error) {
	instance, err := o.engine.Get(ctx, instanceID)
	if err != nil {
		return resultFromErr(err)
	}
	if fail := stageGuard(instance, "orientation completion", StageOrientation); fail != nil {
		return fail, nil
	}

	role, fail, err := callerRole(ctx, o.directory, callerID)
	if err != nil {
		return nil, err
	}
	if fail != nil {
		return fail, nil
	}
	if !workflow.Authorize(role, workflow.RoleHRManager) {
		return engine.Fail("completing orientation requires the HR manager role"), nil
	}

	merged := engine.Merge(instance.Data, checklist)
	if fail := requireFields(o.def, StageSystemAccess, merged); fail != nil {
		return fail, nil
	}

	var updated *entity.WorkflowInstance
	err = o.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		updated, err = o.engine.Advance(txCtx, o.def, instanceID, StageSystemAccess, "orientation_completed", callerID,
			engine.Merge(checklist, map[string]any{
				"orientation_completed_by": callerID,
				"orientation_completed_at": now(),
			}))
		return err
	})
	if err != nil {
		return resultFromErr(err)
	}

	return envelope(updated, "Orientation recorded, awaiting system access"), nil
}

// GrantSystemAccess provisions the staff member's user account and
// completes the onboarding. The payload must carry email, username and
// role; account creation shares the advancing transaction, so a failed
// provision rolls the transition back.
func (o *Onboarding) GrantSystemAccess(ctx context.Context, instanceID, callerID int64, access map[string]any) (*engine.Result, error) {
	instance, err := o.engine.Get(ctx, instanceID)
	if err != nil {
		return resultFromErr(err)
	}
	if fail := stageGuard(instance, "system access", StageSystemAccess); fail != nil {
		return fail, nil
	}

	role, fail, err := callerRole(ctx, o.directory, callerID)
	if err != nil {
		return nil, err
	}
	if fail != nil {
		return fail, nil
	}
	if !workflow.Authorize(role, workflow.RoleAdmin) {
		return engine.Fail("granting system access requires the admin role"), nil
	}

	merged := engine.Merge(instance.Data, access)
	if fail := requireFields(o.def, StageCompletion, merged); fail != nil {
		return fail, nil
	}

	email, _ := merged["email"].(string)
	username, _ := merged["username"].(string)
	accountRole, _ := merged["role"].(string)

	var updated *entity.WorkflowInstance
	err = o.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		userID, err := o.accounts.CreateAccount(txCtx, port.AccountRequest{
			StaffID:  instance.DataInt("staff_id"),
			Email:    email,
			Username: username,
			Role:     accountRole,
		})
		if err != nil {
			return fmt.Errorf("failed to provision account: %w", err)
		}

		updated, err = o.engine.Advance(txCtx, o.def, instanceID, StageCompletion, "system_access_granted", callerID,
			engine.Merge(access, map[string]any{
				"account_user_id":   userID,
				"access_granted_by": callerID,
				"access_granted_at": now(),
			}))
		if err != nil {
			return err
		}
		return o.onboarding.UpdateStatus(txCtx, instance.DataInt("onboarding_id"), entity.DomainStatusActive, instanceID)
	})
	if err != nil {
		return resultFromErr(err)
	}

	result := envelope(updated, "System access granted, onboarding complete")
	result.Data["account_user_id"] = updated.DataInt("account_user_id")
	return result, nil
}

// Reject cancels the workflow from any non-terminal stage
func (o *Onboarding) Reject(ctx context.Context, instanceID, callerID int64, reason string) (*engine.Result, error) {
	instance, err := o.engine.Get(ctx, instanceID)
	if err != nil {
		return resultFromErr(err)
	}

	role, fail, err := callerRole(ctx, o.directory, callerID)
	if err != nil {
		return nil, err
	}
	if fail != nil {
		return fail, nil
	}
	if !workflow.Authorize(role, workflow.RoleHRManager) {
		return engine.Fail("rejecting an onboarding workflow requires the HR manager role"), nil
	}

	err = o.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := o.engine.Cancel(txCtx, instanceID, callerID, reason); err != nil {
			return err
		}
		return o.onboarding.UpdateStatus(txCtx, instance.DataInt("onboarding_id"), entity.DomainStatusRejected, instanceID)
	})
	if err != nil {
		return resultFromErr(err)
	}

	return engine.OK("Onboarding workflow cancelled", map[string]any{
		"workflow_id": instanceID,
		"status":      entity.StatusCancelled,
	}), nil
}

func (o *Onboarding) processStage(ctx context.Context, instanceID int64, stage workflow.Stage, data map[string]any) error {
	staffName, _ := data["staff_name"].(string)

	switch stage {
	case StageOrientation:
		o.engine.Notify(ctx, instanceID, nil,
			"Onboarding documents received",
			fmt.Sprintf("Documents for %s are complete, orientation is next", staffName),
			entity.NotifyCategoryHR)
	case StageSystemAccess:
		o.engine.Notify(ctx, instanceID, nil,
			"Onboarding awaiting system access",
			fmt.Sprintf("%s completed orientation and needs a user account", staffName),
			entity.NotifyCategoryAdmin)
	case StageCompletion:
		o.engine.Notify(ctx, instanceID, nil,
			"Onboarding complete",
			fmt.Sprintf("%s has completed onboarding", staffName),
			entity.NotifyCategoryHR)
	case workflow.StageRejected:
		o.engine.Notify(ctx, instanceID, nil,
			"Onboarding rejected",
			fmt.Sprintf("Onboarding of %s has been rejected", staffName),
			entity.NotifyCategoryHR)
	default:
		return fmt.Errorf("no stage handler for %s", stage)
	}

	return nil
}
