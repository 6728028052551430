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

const leaveDirectorThreshold = 5

func leaveDetail(days int) *port.LeaveRequestDetail {
	return &port.LeaveRequestDetail{
		ID:                   301,
		StaffID:              10,
		StaffUserID:          callerStaff,
		StaffName:            "Amina Okafor",
		SupervisorID:         callerSupervisor,
		LeaveTypeID:          1,
		LeaveTypeName:        "Annual Leave",
		RequiresBalanceCheck: true,
		DaysRequested:        days,
		StartDate:            "2026-09-07",
		EndDate:              "2026-09-11",
		Reason:               "family visit",
		Status:               "pending",
	}
}

func newLeaveFixture(env *testEnv, detail *port.LeaveRequestDetail, available int) (*Leave, *fakeLeaveGateway, *fakeBalanceCalculator) {
	leaves := &fakeLeaveGateway{details: map[int64]*port.LeaveRequestDetail{}}
	if detail != nil {
		leaves.details[detail.ID] = detail
	}
	balances := &fakeBalanceCalculator{balance: &port.LeaveBalance{Entitled: 21, Used: 21 - available, Available: available}}
	leave := NewLeave(env.engine, env.directory, leaves, balances, passTxManager{}, leaveDirectorThreshold, zap.NewNop())
	return leave, leaves, balances
}

func TestLeaveInitiate(t *testing.T) {
	env := newTestEnv()
	leave, leaves, _ := newLeaveFixture(env, leaveDetail(3), 10)

	result, err := leave.Initiate(context.Background(), 301, callerStaff)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "Leave request submitted for supervisor review", result.Message)
	assert.Equal(t, StageSupervisorReview.String(), result.Data["stage"])
	assert.Equal(t, "Amina Okafor", result.Data["staff_name"])
	assert.Equal(t, false, result.Data["requires_director_approval"])

	id := workflowID(result)
	require.NotZero(t, id)
	instance := env.stored(id)
	assert.Equal(t, entity.TypeStaffLeave, instance.WorkflowType)
	assert.Equal(t, StageSupervisorReview.String(), instance.CurrentStage)
	assert.Equal(t, entity.StatusInProgress, instance.Status)

	require.Len(t, leaves.updates, 1)
	assert.Equal(t, entity.DomainStatusInReview, leaves.updates[0].status)

	// Entering supervisor review queues a notification for the supervisor.
	require.Len(t, env.notifications.rows, 1)
	require.NotNil(t, env.notifications.rows[0].RecipientID)
	assert.Equal(t, callerSupervisor, *env.notifications.rows[0].RecipientID)
	assert.Equal(t, entity.NotifyCategorySupervisor, env.notifications.rows[0].Category)
}

func TestLeaveInitiateUnknownRequest(t *testing.T) {
	env := newTestEnv()
	leave, _, _ := newLeaveFixture(env, nil, 10)

	result, err := leave.Initiate(context.Background(), 301, callerStaff)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "leave request 301 not found", result.Message)
}

func TestLeaveInitiateInsufficientBalance(t *testing.T) {
	env := newTestEnv()
	leave, leaves, _ := newLeaveFixture(env, leaveDetail(5), 2)

	result, err := leave.Initiate(context.Background(), 301, callerStaff)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "Insufficient leave balance. Available: 2 days, Requested: 5 days", result.Message)

	// Nothing was persisted.
	assert.Empty(t, env.instances.instances)
	assert.Empty(t, leaves.updates)
}

func TestLeaveInitiateSkipsBalanceCheckWhenNotRequired(t *testing.T) {
	env := newTestEnv()
	detail := leaveDetail(3)
	detail.RequiresBalanceCheck = false
	leave, _, balances := newLeaveFixture(env, detail, 0)

	result, err := leave.Initiate(context.Background(), 301, callerStaff)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Zero(t, balances.calls)
}

func TestLeaveInitiateDuplicateActive(t *testing.T) {
	env := newTestEnv()
	leave, _, _ := newLeaveFixture(env, leaveDetail(3), 10)

	result, err := leave.Initiate(context.Background(), 301, callerStaff)
	require.NoError(t, err)
	require.True(t, result.Success)

	result, err = leave.Initiate(context.Background(), 301, callerStaff)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "active workflow already exists")
}

func TestLeaveDirectorRoutingFlag(t *testing.T) {
	env := newTestEnv()
	leave, _, _ := newLeaveFixture(env, leaveDetail(7), 10)

	result, err := leave.Initiate(context.Background(), 301, callerStaff)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, true, result.Data["requires_director_approval"])
}

func TestLeaveSupervisorReviewApprove(t *testing.T) {
	env := newTestEnv()
	leave, _, _ := newLeaveFixture(env, leaveDetail(3), 10)

	result, err := leave.Initiate(context.Background(), 301, callerStaff)
	require.NoError(t, err)
	id := workflowID(result)

	result, err = leave.SupervisorReview(context.Background(), id, callerSupervisor, ActionApprove, "enjoy")
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "Supervisor review recorded: approve", result.Message)
	assert.Equal(t, StageHRApproval.String(), result.Data["stage"])
	assert.Equal(t, "enjoy", env.stored(id).DataString("supervisor_remarks"))
}

func TestLeaveSupervisorReviewHRManagerOverride(t *testing.T) {
	env := newTestEnv()
	leave, _, _ := newLeaveFixture(env, leaveDetail(3), 10)

	result, err := leave.Initiate(context.Background(), 301, callerStaff)
	require.NoError(t, err)
	id := workflowID(result)

	result, err = leave.SupervisorReview(context.Background(), id, callerHR, ActionApprove, "")
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestLeaveSupervisorReviewUnauthorizedCaller(t *testing.T) {
	env := newTestEnv()
	leave, _, _ := newLeaveFixture(env, leaveDetail(3), 10)

	result, err := leave.Initiate(context.Background(), 301, callerStaff)
	require.NoError(t, err)
	id := workflowID(result)

	result, err = leave.SupervisorReview(context.Background(), id, callerStaff, ActionApprove, "")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "only the assigned supervisor or an HR manager may perform supervisor review", result.Message)
}

func TestLeaveSupervisorReviewWrongStage(t *testing.T) {
	env := newTestEnv()
	leave, _, _ := newLeaveFixture(env, leaveDetail(3), 10)

	result, err := leave.Initiate(context.Background(), 301, callerStaff)
	require.NoError(t, err)
	id := workflowID(result)

	_, err = leave.SupervisorReview(context.Background(), id, callerSupervisor, ActionApprove, "")
	require.NoError(t, err)

	result, err = leave.SupervisorReview(context.Background(), id, callerSupervisor, ActionApprove, "")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "cannot perform supervisor review, current stage is hr_approval", result.Message)
}

func TestLeaveUnknownAction(t *testing.T) {
	env := newTestEnv()
	leave, _, _ := newLeaveFixture(env, leaveDetail(3), 10)

	result, err := leave.Initiate(context.Background(), 301, callerStaff)
	require.NoError(t, err)
	id := workflowID(result)

	result, err = leave.SupervisorReview(context.Background(), id, callerSupervisor, "maybe", "")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, `unknown action "maybe", expected approve or reject`, result.Message)
}

func TestLeaveHRApprovalShortRequestGoesStraightToApproved(t *testing.T) {
	env := newTestEnv()
	leave, leaves, _ := newLeaveFixture(env, leaveDetail(3), 10)

	result, err := leave.Initiate(context.Background(), 301, callerStaff)
	require.NoError(t, err)
	id := workflowID(result)

	_, err = leave.SupervisorReview(context.Background(), id, callerSupervisor, ActionApprove, "")
	require.NoError(t, err)

	result, err = leave.HRApproval(context.Background(), id, callerHR, ActionApprove, "confirmed")
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, StageLeaveApproved.String(), result.Data["stage"])
	assert.Equal(t, entity.StatusCompleted, result.Data["status"])
	assert.Equal(t, entity.DomainStatusApproved, lastStatus(leaves.updates))

	// The requester is told about the approval.
	assert.Contains(t, env.notifications.titles(), "Leave request approved")
}

func TestLeaveHRApprovalLongRequestRoutesToDirector(t *testing.T) {
	env := newTestEnv()
	leave, leaves, _ := newLeaveFixture(env, leaveDetail(7), 10)

	result, err := leave.Initiate(context.Background(), 301, callerStaff)
	require.NoError(t, err)
	id := workflowID(result)

	_, err = leave.SupervisorReview(context.Background(), id, callerSupervisor, ActionApprove, "")
	require.NoError(t, err)

	result, err = leave.HRApproval(context.Background(), id, callerHR, ActionApprove, "")
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, StageDirectorApproval.String(), result.Data["stage"])
	assert.Equal(t, entity.StatusInProgress, result.Data["status"])
	assert.Equal(t, entity.DomainStatusInReview, lastStatus(leaves.updates))

	result, err = leave.DirectorApproval(context.Background(), id, callerDirector, ActionApprove, "granted")
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "Director approval recorded: approve", result.Message)
	assert.Equal(t, StageLeaveApproved.String(), result.Data["stage"])
	assert.Equal(t, entity.DomainStatusApproved, lastStatus(leaves.updates))
}

func TestLeaveHRApprovalRequiresHRRole(t *testing.T) {
	env := newTestEnv()
	leave, _, _ := newLeaveFixture(env, leaveDetail(3), 10)

	result, err := leave.Initiate(context.Background(), 301, callerStaff)
	require.NoError(t, err)
	id := workflowID(result)

	_, err = leave.SupervisorReview(context.Background(), id, callerSupervisor, ActionApprove, "")
	require.NoError(t, err)

	result, err = leave.HRApproval(context.Background(), id, callerSupervisor, ActionApprove, "")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "HR approval requires the HR manager role", result.Message)
}

func TestLeaveDirectorApprovalRequiresDirectorRole(t *testing.T) {
	env := newTestEnv()
	leave, _, _ := newLeaveFixture(env, leaveDetail(7), 10)

	result, err := leave.Initiate(context.Background(), 301, callerStaff)
	require.NoError(t, err)
	id := workflowID(result)

	_, err = leave.SupervisorReview(context.Background(), id, callerSupervisor, ActionApprove, "")
	require.NoError(t, err)
	_, err = leave.HRApproval(context.Background(), id, callerHR, ActionApprove, "")
	require.NoError(t, err)

	result, err = leave.DirectorApproval(context.Background(), id, callerHR, ActionApprove, "")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "director approval requires the director role", result.Message)
}

func TestLeaveSupervisorReject(t *testing.T) {
	env := newTestEnv()
	leave, leaves, _ := newLeaveFixture(env, leaveDetail(3), 10)

	result, err := leave.Initiate(context.Background(), 301, callerStaff)
	require.NoError(t, err)
	id := workflowID(result)

	result, err = leave.SupervisorReview(context.Background(), id, callerSupervisor, ActionReject, "short staffed")
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "Supervisor review recorded: reject", result.Message)
	assert.Equal(t, "rejected", result.Data["stage"])
	assert.Equal(t, entity.StatusCompleted, result.Data["status"])
	assert.Equal(t, entity.DomainStatusRejected, lastStatus(leaves.updates))
	assert.Contains(t, env.notifications.titles(), "Leave request rejected")
}

func TestLeaveReject(t *testing.T) {
	env := newTestEnv()
	leave, leaves, _ := newLeaveFixture(env, leaveDetail(3), 10)

	result, err := leave.Initiate(context.Background(), 301, callerStaff)
	require.NoError(t, err)
	id := workflowID(result)

	result, err = leave.Reject(context.Background(), id, callerHR, "duplicate submission")
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "Leave workflow cancelled", result.Message)
	assert.Equal(t, entity.StatusCancelled, result.Data["status"])

	instance := env.stored(id)
	assert.Equal(t, entity.StatusCancelled, instance.Status)
	assert.Equal(t, "duplicate submission", instance.DataString("cancellation_reason"))
	assert.Equal(t, entity.DomainStatusRejected, lastStatus(leaves.updates))
	assert.Contains(t, env.notifications.titles(), "Leave request cancelled")
}

func TestLeaveRejectRequiresHRRole(t *testing.T) {
	env := newTestEnv()
	leave, _, _ := newLeaveFixture(env, leaveDetail(3), 10)

	result, err := leave.Initiate(context.Background(), 301, callerStaff)
	require.NoError(t, err)
	id := workflowID(result)

	result, err = leave.Reject(context.Background(), id, callerStaff, "nope")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "rejecting a leave workflow requires the HR manager role", result.Message)
}
