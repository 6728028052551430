package process

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campuskit/school-workflow/internal/application/port"
	"github.com/campuskit/school-workflow/internal/domain/entity"
)

func evaluationDetail() *port.EvaluationDetail {
	return &port.EvaluationDetail{
		ID:           55,
		StaffID:      10,
		StaffUserID:  callerStaff,
		StaffName:    "Amina Okafor",
		SupervisorID: callerSupervisor,
		Status:       "pending",
	}
}

func newEvaluationFixture(env *testEnv, detail *port.EvaluationDetail) (*Evaluation, *fakeEvaluationGateway) {
	evaluations := &fakeEvaluationGateway{details: map[int64]*port.EvaluationDetail{}}
	if detail != nil {
		evaluations.details[detail.ID] = detail
	}
	evaluation := NewEvaluation(env.engine, env.directory, evaluations, passTxManager{}, zap.NewNop())
	return evaluation, evaluations
}

func startEvaluation(t *testing.T, evaluation *Evaluation) int64 {
	t.Helper()
	result, err := evaluation.Initiate(context.Background(), 55, callerHR, 3, "2026-T1")
	require.NoError(t, err)
	require.True(t, result.Success)
	return workflowID(result)
}

func TestEvaluationInitiate(t *testing.T) {
	env := newTestEnv()
	evaluation, evaluations := newEvaluationFixture(env, evaluationDetail())

	result, err := evaluation.Initiate(context.Background(), 55, callerHR, 3, "2026-T1")
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "Evaluation started, awaiting self assessment", result.Message)
	assert.Equal(t, StageSelfAssessment.String(), result.Data["stage"])
	assert.Equal(t, "2026-T1", result.Data["review_period"])

	id := workflowID(result)
	instance := env.stored(id)
	assert.Equal(t, entity.TypeStaffEvaluation, instance.WorkflowType)
	assert.Equal(t, int64(3), instance.DataInt("academic_year_id"))
	require.Len(t, evaluations.updates, 1)
	assert.Equal(t, entity.DomainStatusInReview, evaluations.updates[0].status)
}

func TestEvaluationInitiateRequiresPeriod(t *testing.T) {
	env := newTestEnv()
	evaluation, _ := newEvaluationFixture(env, evaluationDetail())

	result, err := evaluation.Initiate(context.Background(), 55, callerHR, 0, "")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "academic_year_id and review_period are required to initiate an evaluation", result.Message)
}

func TestEvaluationSelfAssessmentOnlyEvaluatedStaff(t *testing.T) {
	env := newTestEnv()
	evaluation, _ := newEvaluationFixture(env, evaluationDetail())
	id := startEvaluation(t, evaluation)

	result, err := evaluation.SubmitSelfAssessment(context.Background(), id, callerSupervisor, map[string]any{"highlights": "mentoring"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "only the evaluated staff member may submit the self assessment", result.Message)
}

func TestEvaluationSelfAssessment(t *testing.T) {
	env := newTestEnv()
	evaluation, _ := newEvaluationFixture(env, evaluationDetail())
	id := startEvaluation(t, evaluation)

	result, err := evaluation.SubmitSelfAssessment(context.Background(), id, callerStaff, map[string]any{"highlights": "mentoring"})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "Self assessment submitted for supervisor review", result.Message)
	assert.Equal(t, StageEvalSupervisor.String(), result.Data["stage"])

	instance := env.stored(id)
	assert.Equal(t, "mentoring", instance.DataString("highlights"))
	assert.Equal(t, callerStaff, instance.DataInt("self_assessment_by"))

	// The stored supervisor is notified.
	require.NotEmpty(t, env.notifications.rows)
	last := env.notifications.rows[len(env.notifications.rows)-1]
	assert.Equal(t, "Evaluation awaiting supervisor review", last.Title)
	require.NotNil(t, last.RecipientID)
	assert.Equal(t, callerSupervisor, *last.RecipientID)
}

func TestEvaluationSupervisorReviewOnlyAssignedSupervisor(t *testing.T) {
	env := newTestEnv()
	evaluation, _ := newEvaluationFixture(env, evaluationDetail())
	id := startEvaluation(t, evaluation)

	_, err := evaluation.SubmitSelfAssessment(context.Background(), id, callerStaff, nil)
	require.NoError(t, err)

	// Even HR cannot stand in for the named supervisor here.
	result, err := evaluation.SupervisorReview(context.Background(), id, callerHR, ActionApprove, "")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "only the assigned supervisor may review this evaluation", result.Message)
}

func TestEvaluationSupervisorReviewApprove(t *testing.T) {
	env := newTestEnv()
	evaluation, _ := newEvaluationFixture(env, evaluationDetail())
	id := startEvaluation(t, evaluation)

	_, err := evaluation.SubmitSelfAssessment(context.Background(), id, callerStaff, nil)
	require.NoError(t, err)

	result, err := evaluation.SupervisorReview(context.Background(), id, callerSupervisor, ActionApprove, "consistent")
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "Supervisor review recorded: approve", result.Message)
	assert.Equal(t, StageHRReview.String(), result.Data["stage"])
}

func TestEvaluationSupervisorReviewReject(t *testing.T) {
	env := newTestEnv()
	evaluation, evaluations := newEvaluationFixture(env, evaluationDetail())
	id := startEvaluation(t, evaluation)

	_, err := evaluation.SubmitSelfAssessment(context.Background(), id, callerStaff, nil)
	require.NoError(t, err)

	result, err := evaluation.SupervisorReview(context.Background(), id, callerSupervisor, ActionReject, "incomplete")
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "rejected", result.Data["stage"])
	assert.Equal(t, entity.DomainStatusRejected, lastStatus(evaluations.updates))
}

func TestEvaluationHRReviewFinalizes(t *testing.T) {
	env := newTestEnv()
	evaluation, evaluations := newEvaluationFixture(env, evaluationDetail())
	id := startEvaluation(t, evaluation)

	_, err := evaluation.SubmitSelfAssessment(context.Background(), id, callerStaff, nil)
	require.NoError(t, err)
	_, err = evaluation.SupervisorReview(context.Background(), id, callerSupervisor, ActionApprove, "")
	require.NoError(t, err)

	result, err := evaluation.HRReview(context.Background(), id, callerHR, ActionApprove, "solid year")
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "HR review recorded: approve", result.Message)
	assert.Equal(t, StageEvalFinalization.String(), result.Data["stage"])
	assert.Equal(t, entity.StatusCompleted, result.Data["status"])
	assert.Equal(t, entity.DomainStatusApproved, lastStatus(evaluations.updates))

	instance := env.stored(id)
	assert.Equal(t, "solid year", instance.DataString("completion_remarks"))
	assert.Contains(t, env.notifications.titles(), "Evaluation finalized")
}

func TestEvaluationHRReviewRequiresHRRole(t *testing.T) {
	env := newTestEnv()
	evaluation, _ := newEvaluationFixture(env, evaluationDetail())
	id := startEvaluation(t, evaluation)

	_, err := evaluation.SubmitSelfAssessment(context.Background(), id, callerStaff, nil)
	require.NoError(t, err)
	_, err = evaluation.SupervisorReview(context.Background(), id, callerSupervisor, ActionApprove, "")
	require.NoError(t, err)

	result, err := evaluation.HRReview(context.Background(), id, callerSupervisor, ActionApprove, "")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "HR review requires the HR manager role", result.Message)
}

func TestEvaluationOutOfOrderAction(t *testing.T) {
	env := newTestEnv()
	evaluation, _ := newEvaluationFixture(env, evaluationDetail())
	id := startEvaluation(t, evaluation)

	result, err := evaluation.HRReview(context.Background(), id, callerHR, ActionApprove, "")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "cannot perform HR review, current stage is self_assessment", result.Message)
}

func TestEvaluationReject(t *testing.T) {
	env := newTestEnv()
	evaluation, evaluations := newEvaluationFixture(env, evaluationDetail())
	id := startEvaluation(t, evaluation)

	result, err := evaluation.Reject(context.Background(), id, callerHR, "cycle closed early")
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "Evaluation workflow cancelled", result.Message)
	assert.Equal(t, entity.StatusCancelled, env.stored(id).Status)
	assert.Equal(t, entity.DomainStatusRejected, lastStatus(evaluations.updates))
}
