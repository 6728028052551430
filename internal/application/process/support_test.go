package process

import (
	"context"

	"go.uber.org/zap"

	"github.com/campuskit/school-workflow/internal/application/engine"
	"github.com/campuskit/school-workflow/internal/application/port"
	"github.com/campuskit/school-workflow/internal/domain/entity"
	"github.com/campuskit/school-workflow/internal/domain/workflow"
)

// Caller ids used across the process tests, one per role plus the staff
// members referenced by the seeded detail records.
const (
	callerStaff       int64 = 100
	callerSupervisor  int64 = 200
	callerHR          int64 = 300
	callerDirector    int64 = 400
	callerAdmin       int64 = 500
	callerHeadTeacher int64 = 600
	callerUnknown     int64 = 999
)

type memInstanceRepo struct {
	nextID    int64
	instances map[int64]*entity.WorkflowInstance
}

func newMemInstanceRepo() *memInstanceRepo {
	return &memInstanceRepo{instances: make(map[int64]*entity.WorkflowInstance)}
}

func (m *memInstanceRepo) Create(ctx context.Context, instance *entity.WorkflowInstance) error {
	m.nextID++
	instance.ID = m.nextID
	stored := *instance
	m.instances[instance.ID] = &stored
	return nil
}

func (m *memInstanceRepo) GetByID(ctx context.Context, id int64) (*entity.WorkflowInstance, error) {
	stored, ok := m.instances[id]
	if !ok {
		return nil, nil
	}
	clone := *stored
	return &clone, nil
}

func (m *memInstanceRepo) GetActiveByReference(ctx context.Context, workflowType string, referenceID int64) (*entity.WorkflowInstance, error) {
	for _, stored := range m.instances {
		if stored.WorkflowType == workflowType && stored.ReferenceID == referenceID &&
			(stored.Status == entity.StatusInProgress || stored.Status == entity.StatusPending) {
			clone := *stored
			return &clone, nil
		}
	}
	return nil, nil
}

func (m *memInstanceRepo) AdvanceStage(ctx context.Context, id int64, fromStage, toStage, status string, data map[string]any) (bool, error) {
	stored, ok := m.instances[id]
	if !ok {
		return false, nil
	}
	if stored.CurrentStage != fromStage || stored.IsTerminal() {
		return false, nil
	}
	stored.CurrentStage = toStage
	stored.Status = status
	stored.Data = data
	return true, nil
}

func (m *memInstanceRepo) List(ctx context.Context, workflowType string, limit, offset int) ([]*entity.WorkflowInstance, error) {
	var out []*entity.WorkflowInstance
	for _, stored := range m.instances {
		if workflowType == "" || stored.WorkflowType == workflowType {
			clone := *stored
			out = append(out, &clone)
		}
	}
	return out, nil
}

type memHistoryRepo struct {
	rows []*entity.StageHistory
}

func (m *memHistoryRepo) Create(ctx context.Context, history *entity.StageHistory) error {
	stored := *history
	stored.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, &stored)
	return nil
}

func (m *memHistoryRepo) GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.StageHistory, error) {
	var out []*entity.StageHistory
	for _, row := range m.rows {
		if row.InstanceID == instanceID {
			out = append(out, row)
		}
	}
	return out, nil
}

type memNotificationRepo struct {
	rows []*entity.Notification
}

func (m *memNotificationRepo) Create(ctx context.Context, notification *entity.Notification) error {
	stored := *notification
	stored.ID = int64(len(m.rows) + 1)
	notification.ID = stored.ID
	m.rows = append(m.rows, &stored)
	return nil
}

func (m *memNotificationRepo) GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.Notification, error) {
	var out []*entity.Notification
	for _, row := range m.rows {
		if row.InstanceID == instanceID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memNotificationRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	for _, row := range m.rows {
		if row.ID == id {
			row.Status = status
			return nil
		}
	}
	return nil
}

// titles returns the notification titles in creation order, a compact way
// to assert which stage notifications fired.
func (m *memNotificationRepo) titles() []string {
	var out []string
	for _, row := range m.rows {
		out = append(out, row.Title)
	}
	return out
}

type memAuditRepo struct {
	rows []*entity.AuditEntry
}

func (m *memAuditRepo) Create(ctx context.Context, entry *entity.AuditEntry) error {
	stored := *entry
	stored.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, &stored)
	return nil
}

func (m *memAuditRepo) GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.AuditEntry, error) {
	var out []*entity.AuditEntry
	for _, row := range m.rows {
		if row.InstanceID == instanceID {
			out = append(out, row)
		}
	}
	return out, nil
}

type passTxManager struct{}

func (passTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeDirectory struct {
	roles map[int64]workflow.Role
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{roles: map[int64]workflow.Role{
		callerStaff:       workflow.RoleStaff,
		callerSupervisor:  workflow.RoleSupervisor,
		callerHR:          workflow.RoleHRManager,
		callerDirector:    workflow.RoleDirector,
		callerAdmin:       workflow.RoleAdmin,
		callerHeadTeacher: workflow.RoleHeadTeacher,
	}}
}

func (f *fakeDirectory) GetRole(ctx context.Context, userID int64) (workflow.Role, error) {
	return f.roles[userID], nil
}

type statusUpdate struct {
	id         int64
	status     string
	workflowID int64
}

func lastStatus(updates []statusUpdate) string {
	if len(updates) == 0 {
		return ""
	}
	return updates[len(updates)-1].status
}

type fakeLeaveGateway struct {
	details map[int64]*port.LeaveRequestDetail
	updates []statusUpdate
}

func (f *fakeLeaveGateway) GetDetail(ctx context.Context, id int64) (*port.LeaveRequestDetail, error) {
	return f.details[id], nil
}

func (f *fakeLeaveGateway) UpdateStatus(ctx context.Context, id int64, status string, workflowID int64) error {
	f.updates = append(f.updates, statusUpdate{id, status, workflowID})
	return nil
}

type fakeBalanceCalculator struct {
	balance *port.LeaveBalance
	err     error
	calls   int
}

func (f *fakeBalanceCalculator) Calculate(ctx context.Context, staffID, leaveTypeID int64) (*port.LeaveBalance, error) {
	f.calls++
	return f.balance, f.err
}

type fakeAssignmentGateway struct {
	details        map[int64]*port.AssignmentDetail
	updates        []statusUpdate
	removalReasons map[int64]string
}

func (f *fakeAssignmentGateway) GetDetail(ctx context.Context, id int64) (*port.AssignmentDetail, error) {
	return f.details[id], nil
}

func (f *fakeAssignmentGateway) UpdateStatus(ctx context.Context, id int64, status string, workflowID int64) error {
	f.updates = append(f.updates, statusUpdate{id, status, workflowID})
	return nil
}

func (f *fakeAssignmentGateway) SetRemovalReason(ctx context.Context, id int64, reason string) error {
	if f.removalReasons == nil {
		f.removalReasons = make(map[int64]string)
	}
	f.removalReasons[id] = reason
	return nil
}

type fakeRuleChecker struct {
	result *port.RuleCheckResult
}

func (f *fakeRuleChecker) Validate(ctx context.Context, staffID, subjectID, academicYearID int64, role workflow.Role) (*port.RuleCheckResult, error) {
	return f.result, nil
}

type fakeEvaluationGateway struct {
	details map[int64]*port.EvaluationDetail
	updates []statusUpdate
}

func (f *fakeEvaluationGateway) GetDetail(ctx context.Context, id int64) (*port.EvaluationDetail, error) {
	return f.details[id], nil
}

func (f *fakeEvaluationGateway) UpdateStatus(ctx context.Context, id int64, status string, workflowID int64) error {
	f.updates = append(f.updates, statusUpdate{id, status, workflowID})
	return nil
}

type fakeOnboardingGateway struct {
	details map[int64]*port.OnboardingDetail
	updates []statusUpdate
}

func (f *fakeOnboardingGateway) GetDetail(ctx context.Context, id int64) (*port.OnboardingDetail, error) {
	return f.details[id], nil
}

func (f *fakeOnboardingGateway) UpdateStatus(ctx context.Context, id int64, status string, workflowID int64) error {
	f.updates = append(f.updates, statusUpdate{id, status, workflowID})
	return nil
}

type fakeAccountProvisioner struct {
	nextID  int64
	created []port.AccountRequest
	err     error
}

func (f *fakeAccountProvisioner) CreateAccount(ctx context.Context, req port.AccountRequest) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.nextID++
	f.created = append(f.created, req)
	return f.nextID, nil
}

// testEnv bundles a real engine over in-memory repositories; the process
// specializations under test run against it unchanged.
type testEnv struct {
	engine        engine.Engine
	instances     *memInstanceRepo
	history       *memHistoryRepo
	notifications *memNotificationRepo
	audit         *memAuditRepo
	directory     *fakeDirectory
}

func newTestEnv() *testEnv {
	env := &testEnv{
		instances:     newMemInstanceRepo(),
		history:       &memHistoryRepo{},
		notifications: &memNotificationRepo{},
		audit:         &memAuditRepo{},
		directory:     newFakeDirectory(),
	}
	env.engine = engine.New(env.instances, env.history, env.notifications, env.audit, passTxManager{}, nil, zap.NewNop())
	return env
}

func (e *testEnv) stored(id int64) *entity.WorkflowInstance {
	return e.instances.instances[id]
}

func workflowID(result *engine.Result) int64 {
	id, _ := result.Data["workflow_id"].(int64)
	return id
}
