package process

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campuskit/school-workflow/internal/application/port"
	"github.com/campuskit/school-workflow/internal/domain/entity"
)

func onboardingDetail() *port.OnboardingDetail {
	return &port.OnboardingDetail{
		ID:         88,
		StaffID:    10,
		StaffName:  "Amina Okafor",
		Position:   "Mathematics Teacher",
		Department: "Sciences",
		Status:     "pending",
	}
}

func fullDocuments() map[string]any {
	return map[string]any{
		"id_copy":      "scan-041.pdf",
		"certificates": "cert-bundle.pdf",
		"bank_details": "acct-7781",
	}
}

func fullChecklist() map[string]any {
	return map[string]any{
		"policy_review":    true,
		"department_intro": true,
		"facility_tour":    true,
	}
}

func fullAccess() map[string]any {
	return map[string]any{
		"email":    "amina.okafor@school.example",
		"username": "amina.okafor",
		"role":     "STAFF",
	}
}

func newOnboardingFixture(env *testEnv, detail *port.OnboardingDetail) (*Onboarding, *fakeOnboardingGateway, *fakeAccountProvisioner) {
	onboardings := &fakeOnboardingGateway{details: map[int64]*port.OnboardingDetail{}}
	if detail != nil {
		onboardings.details[detail.ID] = detail
	}
	accounts := &fakeAccountProvisioner{}
	onboarding := NewOnboarding(env.engine, env.directory, onboardings, accounts, passTxManager{}, zap.NewNop())
	return onboarding, onboardings, accounts
}

func startOnboarding(t *testing.T, onboarding *Onboarding) int64 {
	t.Helper()
	result, err := onboarding.Initiate(context.Background(), 88, callerHR)
	require.NoError(t, err)
	require.True(t, result.Success)
	return workflowID(result)
}

func TestOnboardingInitiate(t *testing.T) {
	env := newTestEnv()
	onboarding, onboardings, _ := newOnboardingFixture(env, onboardingDetail())

	result, err := onboarding.Initiate(context.Background(), 88, callerHR)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "Onboarding started, awaiting documentation", result.Message)
	assert.Equal(t, StageDocumentation.String(), result.Data["stage"])

	id := workflowID(result)
	assert.Equal(t, entity.TypeStaffOnboarding, env.stored(id).WorkflowType)
	require.Len(t, onboardings.updates, 1)
	assert.Equal(t, entity.DomainStatusInReview, onboardings.updates[0].status)
}

func TestOnboardingSubmitDocuments(t *testing.T) {
	env := newTestEnv()
	onboarding, _, _ := newOnboardingFixture(env, onboardingDetail())
	id := startOnboarding(t, onboarding)

	result, err := onboarding.SubmitDocuments(context.Background(), id, callerHR, fullDocuments())
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "Documents recorded, orientation scheduled", result.Message)
	assert.Equal(t, StageOrientation.String(), result.Data["stage"])
	assert.Equal(t, "scan-041.pdf", env.stored(id).DataString("id_copy"))
}

func TestOnboardingSubmitDocumentsMissingFields(t *testing.T) {
	env := newTestEnv()
	onboarding, _, _ := newOnboardingFixture(env, onboardingDetail())
	id := startOnboarding(t, onboarding)

	result, err := onboarding.SubmitDocuments(context.Background(), id, callerHR, map[string]any{"id_copy": "scan-041.pdf"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "missing required fields: bank_details, certificates", result.Message)

	// The instance did not move.
	assert.Equal(t, StageDocumentation.String(), env.stored(id).CurrentStage)
}

func TestOnboardingSubmitDocumentsRequiresHRRole(t *testing.T) {
	env := newTestEnv()
	onboarding, _, _ := newOnboardingFixture(env, onboardingDetail())
	id := startOnboarding(t, onboarding)

	result, err := onboarding.SubmitDocuments(context.Background(), id, callerStaff, fullDocuments())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "submitting onboarding documents requires the HR manager role", result.Message)
}

func TestOnboardingOutOfOrderAction(t *testing.T) {
	env := newTestEnv()
	onboarding, _, _ := newOnboardingFixture(env, onboardingDetail())
	id := startOnboarding(t, onboarding)

	result, err := onboarding.CompleteOrientation(context.Background(), id, callerHR, fullChecklist())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "cannot perform orientation completion, current stage is documentation", result.Message)
}

func TestOnboardingCompleteOrientation(t *testing.T) {
	env := newTestEnv()
	onboarding, _, _ := newOnboardingFixture(env, onboardingDetail())
	id := startOnboarding(t, onboarding)

	_, err := onboarding.SubmitDocuments(context.Background(), id, callerHR, fullDocuments())
	require.NoError(t, err)

	result, err := onboarding.CompleteOrientation(context.Background(), id, callerHR, fullChecklist())
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "Orientation recorded, awaiting system access", result.Message)
	assert.Equal(t, StageSystemAccess.String(), result.Data["stage"])
	assert.Contains(t, env.notifications.titles(), "Onboarding awaiting system access")
}

func TestOnboardingGrantSystemAccess(t *testing.T) {
	env := newTestEnv()
	onboarding, onboardings, accounts := newOnboardingFixture(env, onboardingDetail())
	id := startOnboarding(t, onboarding)

	_, err := onboarding.SubmitDocuments(context.Background(), id, callerHR, fullDocuments())
	require.NoError(t, err)
	_, err = onboarding.CompleteOrientation(context.Background(), id, callerHR, fullChecklist())
	require.NoError(t, err)

	result, err := onboarding.GrantSystemAccess(context.Background(), id, callerAdmin, fullAccess())
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "System access granted, onboarding complete", result.Message)
	assert.Equal(t, StageCompletion.String(), result.Data["stage"])
	assert.Equal(t, entity.StatusCompleted, result.Data["status"])
	assert.Equal(t, int64(1), result.Data["account_user_id"])

	require.Len(t, accounts.created, 1)
	assert.Equal(t, int64(10), accounts.created[0].StaffID)
	assert.Equal(t, "amina.okafor", accounts.created[0].Username)
	assert.Equal(t, "amina.okafor@school.example", accounts.created[0].Email)

	assert.Equal(t, entity.DomainStatusActive, lastStatus(onboardings.updates))
	assert.Contains(t, env.notifications.titles(), "Onboarding complete")
}

func TestOnboardingGrantSystemAccessRequiresAdmin(t *testing.T) {
	env := newTestEnv()
	onboarding, _, _ := newOnboardingFixture(env, onboardingDetail())
	id := startOnboarding(t, onboarding)

	_, err := onboarding.SubmitDocuments(context.Background(), id, callerHR, fullDocuments())
	require.NoError(t, err)
	_, err = onboarding.CompleteOrientation(context.Background(), id, callerHR, fullChecklist())
	require.NoError(t, err)

	result, err := onboarding.GrantSystemAccess(context.Background(), id, callerHR, fullAccess())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "granting system access requires the admin role", result.Message)
}

func TestOnboardingGrantSystemAccessMissingFields(t *testing.T) {
	env := newTestEnv()
	onboarding, _, _ := newOnboardingFixture(env, onboardingDetail())
	id := startOnboarding(t, onboarding)

	_, err := onboarding.SubmitDocuments(context.Background(), id, callerHR, fullDocuments())
	require.NoError(t, err)
	_, err = onboarding.CompleteOrientation(context.Background(), id, callerHR, fullChecklist())
	require.NoError(t, err)

	result, err := onboarding.GrantSystemAccess(context.Background(), id, callerAdmin, map[string]any{"username": "amina.okafor"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "missing required fields: email, role", result.Message)
}

func TestOnboardingGrantSystemAccessProvisionFailure(t *testing.T) {
	env := newTestEnv()
	onboarding, _, accounts := newOnboardingFixture(env, onboardingDetail())
	accounts.err = errors.New("username already taken")
	id := startOnboarding(t, onboarding)

	_, err := onboarding.SubmitDocuments(context.Background(), id, callerHR, fullDocuments())
	require.NoError(t, err)
	_, err = onboarding.CompleteOrientation(context.Background(), id, callerHR, fullChecklist())
	require.NoError(t, err)

	_, err = onboarding.GrantSystemAccess(context.Background(), id, callerAdmin, fullAccess())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to provision account")

	// The instance stays put awaiting a retry.
	assert.Equal(t, StageSystemAccess.String(), env.stored(id).CurrentStage)
}

func TestOnboardingReject(t *testing.T) {
	env := newTestEnv()
	onboarding, onboardings, _ := newOnboardingFixture(env, onboardingDetail())
	id := startOnboarding(t, onboarding)

	result, err := onboarding.Reject(context.Background(), id, callerHR, "candidate declined offer")
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "Onboarding workflow cancelled", result.Message)
	assert.Equal(t, entity.StatusCancelled, env.stored(id).Status)
	assert.Equal(t, entity.DomainStatusRejected, lastStatus(onboardings.updates))
}
