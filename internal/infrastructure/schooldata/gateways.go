// Package schooldata adapts the school-management reference tables to the
// collaborator ports the workflows consume. Every query routes through the
// context executor so gateway reads and status flips join the workflow's
// transaction.
package schooldata

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/campuskit/school-workflow/internal/application/port"
	"github.com/campuskit/school-workflow/internal/domain/workflow"
	"github.com/campuskit/school-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/campuskit/school-workflow/pkg/utils"
)

// Directory resolves user roles from the staff table
type Directory struct {
	db *sql.DB
}

// NewDirectory creates a staff-table backed role directory
func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

// GetRole implements port.Directory
func (d *Directory) GetRole(ctx context.Context, userID int64) (workflow.Role, error) {
	var role string
	err := sqlite.ExecutorFrom(ctx, d.db).QueryRowContext(ctx,
		`SELECT role FROM staff WHERE user_id = ?`, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve role for user %d: %w", userID, err)
	}
	return workflow.Role(role), nil
}

// LeaveGateway serves leave request details and status updates
type LeaveGateway struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewLeaveGateway creates the leave request gateway
func NewLeaveGateway(db *sql.DB, logger *zap.Logger) *LeaveGateway {
	return &LeaveGateway{db: db, logger: logger}
}

// GetDetail implements port.LeaveRequestGateway; returns nil, nil when absent
func (g *LeaveGateway) GetDetail(ctx context.Context, id int64) (*port.LeaveRequestDetail, error) {
	query := `
		SELECT lr.id, lr.staff_id, s.user_id, s.name, COALESCE(s.supervisor_id, 0),
		       lr.leave_type_id, lt.name, lt.requires_balance_check,
		       lr.days_requested, lr.start_date, lr.end_date, lr.reason, lr.status
		FROM leave_requests lr
		JOIN staff s ON s.id = lr.staff_id
		JOIN leave_types lt ON lt.id = lr.leave_type_id
		WHERE lr.id = ?
	`

	var detail port.LeaveRequestDetail
	err := sqlite.ExecutorFrom(ctx, g.db).QueryRowContext(ctx, query, id).Scan(
		&detail.ID,
		&detail.StaffID,
		&detail.StaffUserID,
		&detail.StaffName,
		&detail.SupervisorID,
		&detail.LeaveTypeID,
		&detail.LeaveTypeName,
		&detail.RequiresBalanceCheck,
		&detail.DaysRequested,
		&detail.StartDate,
		&detail.EndDate,
		&detail.Reason,
		&detail.Status,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get leave request %d: %w", id, err)
	}

	return &detail, nil
}

// UpdateStatus implements port.LeaveRequestGateway
func (g *LeaveGateway) UpdateStatus(ctx context.Context, id int64, status string, workflowID int64) error {
	_, err := sqlite.ExecutorFrom(ctx, g.db).ExecContext(ctx,
		`UPDATE leave_requests SET status = ?, workflow_id = ? WHERE id = ?`,
		status, workflowID, id)
	if err != nil {
		return fmt.Errorf("failed to update leave request %d: %w", id, err)
	}
	return nil
}

// BalanceCalculator computes leave balances from entitlements and the
// approved requests of the current calendar year
type BalanceCalculator struct {
	db *sql.DB
}

// NewBalanceCalculator creates the leave balance calculator
func NewBalanceCalculator(db *sql.DB) *BalanceCalculator {
	return &BalanceCalculator{db: db}
}

// Calculate implements port.LeaveBalanceCalculator
func (c *BalanceCalculator) Calculate(ctx context.Context, staffID, leaveTypeID int64) (*port.LeaveBalance, error) {
	exec := sqlite.ExecutorFrom(ctx, c.db)

	var entitled int
	err := exec.QueryRowContext(ctx,
		`SELECT annual_entitlement FROM leave_types WHERE id = ?`, leaveTypeID).Scan(&entitled)
	if err != nil {
		return nil, fmt.Errorf("failed to get entitlement for leave type %d: %w", leaveTypeID, err)
	}

	var used int
	err = exec.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(days_requested), 0)
		FROM leave_requests
		WHERE staff_id = ? AND leave_type_id = ? AND status = 'approved'
		  AND strftime('%Y', start_date) = strftime('%Y', 'now')
	`, staffID, leaveTypeID).Scan(&used)
	if err != nil {
		return nil, fmt.Errorf("failed to sum used leave for staff %d: %w", staffID, err)
	}

	return &port.LeaveBalance{
		Entitled:  entitled,
		Used:      used,
		Available: entitled - used,
	}, nil
}

// AssignmentGateway serves assignment details and status updates
type AssignmentGateway struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAssignmentGateway creates the assignment gateway
func NewAssignmentGateway(db *sql.DB, logger *zap.Logger) *AssignmentGateway {
	return &AssignmentGateway{db: db, logger: logger}
}

// GetDetail implements port.AssignmentGateway; returns nil, nil when absent
func (g *AssignmentGateway) GetDetail(ctx context.Context, id int64) (*port.AssignmentDetail, error) {
	query := `
		SELECT a.id, a.staff_id, s.user_id, s.name, a.subject_id, sub.name,
		       a.class_name, a.academic_year_id, a.status
		FROM assignments a
		JOIN staff s ON s.id = a.staff_id
		JOIN subjects sub ON sub.id = a.subject_id
		WHERE a.id = ?
	`

	var detail port.AssignmentDetail
	err := sqlite.ExecutorFrom(ctx, g.db).QueryRowContext(ctx, query, id).Scan(
		&detail.ID,
		&detail.StaffID,
		&detail.StaffUserID,
		&detail.StaffName,
		&detail.SubjectID,
		&detail.SubjectName,
		&detail.ClassName,
		&detail.AcademicYearID,
		&detail.Status,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment %d: %w", id, err)
	}

	return &detail, nil
}

// UpdateStatus implements port.AssignmentGateway
func (g *AssignmentGateway) UpdateStatus(ctx context.Context, id int64, status string, workflowID int64) error {
	_, err := sqlite.ExecutorFrom(ctx, g.db).ExecContext(ctx,
		`UPDATE assignments SET status = ?, workflow_id = ? WHERE id = ?`,
		status, workflowID, id)
	if err != nil {
		return fmt.Errorf("failed to update assignment %d: %w", id, err)
	}
	return nil
}

// SetRemovalReason implements port.AssignmentGateway
func (g *AssignmentGateway) SetRemovalReason(ctx context.Context, id int64, reason string) error {
	_, err := sqlite.ExecutorFrom(ctx, g.db).ExecContext(ctx,
		`UPDATE assignments SET removal_reason = ? WHERE id = ?`, reason, id)
	if err != nil {
		return fmt.Errorf("failed to set removal reason on assignment %d: %w", id, err)
	}
	return nil
}

// RuleChecker validates workload and qualification rules against the
// reference tables
type RuleChecker struct {
	db *sql.DB

	// maxAssignments caps concurrently active assignments per staff member
	// and academic year
	maxAssignments int
}

// NewRuleChecker creates the assignment rule checker
func NewRuleChecker(db *sql.DB, maxAssignments int) *RuleChecker {
	return &RuleChecker{db: db, maxAssignments: maxAssignments}
}

// Validate implements port.AssignmentRuleChecker
func (r *RuleChecker) Validate(ctx context.Context, staffID, subjectID, academicYearID int64, role workflow.Role) (*port.RuleCheckResult, error) {
	exec := sqlite.ExecutorFrom(ctx, r.db)

	var qualified int
	err := exec.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM staff_qualifications WHERE staff_id = ? AND subject_id = ?`,
		staffID, subjectID).Scan(&qualified)
	if err != nil {
		return nil, fmt.Errorf("failed to check qualification: %w", err)
	}
	if qualified == 0 {
		return &port.RuleCheckResult{
			IsValid:      false,
			ErrorMessage: "Staff member is not qualified for this subject",
		}, nil
	}

	var active int
	err = exec.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM assignments
		WHERE staff_id = ? AND academic_year_id = ? AND status = 'active'
	`, staffID, academicYearID).Scan(&active)
	if err != nil {
		return nil, fmt.Errorf("failed to check workload: %w", err)
	}
	if active >= r.maxAssignments {
		return &port.RuleCheckResult{
			IsValid:      false,
			ErrorMessage: fmt.Sprintf("Staff member already holds %d active assignments this academic year (limit %d)", active, r.maxAssignments),
		}, nil
	}

	return &port.RuleCheckResult{IsValid: true}, nil
}

// EvaluationGateway serves evaluation details and status updates
type EvaluationGateway struct {
	db *sql.DB
}

// NewEvaluationGateway creates the evaluation gateway
func NewEvaluationGateway(db *sql.DB) *EvaluationGateway {
	return &EvaluationGateway{db: db}
}

// GetDetail implements port.EvaluationGateway; returns nil, nil when absent
func (g *EvaluationGateway) GetDetail(ctx context.Context, id int64) (*port.EvaluationDetail, error) {
	query := `
		SELECT e.id, e.staff_id, s.user_id, s.name, e.supervisor_id, e.status
		FROM evaluations e
		JOIN staff s ON s.id = e.staff_id
		WHERE e.id = ?
	`

	var detail port.EvaluationDetail
	err := sqlite.ExecutorFrom(ctx, g.db).QueryRowContext(ctx, query, id).Scan(
		&detail.ID,
		&detail.StaffID,
		&detail.StaffUserID,
		&detail.StaffName,
		&detail.SupervisorID,
		&detail.Status,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get evaluation %d: %w", id, err)
	}

	return &detail, nil
}

// UpdateStatus implements port.EvaluationGateway
func (g *EvaluationGateway) UpdateStatus(ctx context.Context, id int64, status string, workflowID int64) error {
	_, err := sqlite.ExecutorFrom(ctx, g.db).ExecContext(ctx,
		`UPDATE evaluations SET status = ?, workflow_id = ? WHERE id = ?`,
		status, workflowID, id)
	if err != nil {
		return fmt.Errorf("failed to update evaluation %d: %w", id, err)
	}
	return nil
}

// OnboardingGateway serves onboarding details and status updates
type OnboardingGateway struct {
	db *sql.DB
}

// NewOnboardingGateway creates the onboarding gateway
func NewOnboardingGateway(db *sql.DB) *OnboardingGateway {
	return &OnboardingGateway{db: db}
}

// GetDetail implements port.OnboardingGateway; returns nil, nil when absent
func (g *OnboardingGateway) GetDetail(ctx context.Context, id int64) (*port.OnboardingDetail, error) {
	query := `
		SELECT o.id, o.staff_id, s.name, s.position, s.department, o.status
		FROM onboardings o
		JOIN staff s ON s.id = o.staff_id
		WHERE o.id = ?
	`

	var detail port.OnboardingDetail
	err := sqlite.ExecutorFrom(ctx, g.db).QueryRowContext(ctx, query, id).Scan(
		&detail.ID,
		&detail.StaffID,
		&detail.StaffName,
		&detail.Position,
		&detail.Department,
		&detail.Status,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get onboarding %d: %w", id, err)
	}

	return &detail, nil
}

// UpdateStatus implements port.OnboardingGateway
func (g *OnboardingGateway) UpdateStatus(ctx context.Context, id int64, status string, workflowID int64) error {
	_, err := sqlite.ExecutorFrom(ctx, g.db).ExecContext(ctx,
		`UPDATE onboardings SET status = ?, workflow_id = ? WHERE id = ?`,
		status, workflowID, id)
	if err != nil {
		return fmt.Errorf("failed to update onboarding %d: %w", id, err)
	}
	return nil
}

// AccountProvisioner creates user accounts in the accounts table
type AccountProvisioner struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAccountProvisioner creates the account provisioner
func NewAccountProvisioner(db *sql.DB, logger *zap.Logger) *AccountProvisioner {
	return &AccountProvisioner{db: db, logger: logger}
}

// CreateAccount implements port.AccountProvisioner
func (p *AccountProvisioner) CreateAccount(ctx context.Context, req port.AccountRequest) (int64, error) {
	if err := utils.ValidateEmail(req.Email); err != nil {
		return 0, err
	}
	if err := utils.ValidateUsername(req.Username); err != nil {
		return 0, err
	}

	result, err := sqlite.ExecutorFrom(ctx, p.db).ExecContext(ctx,
		`INSERT INTO accounts (staff_id, email, username, role) VALUES (?, ?, ?, ?)`,
		req.StaffID, req.Email, req.Username, req.Role)
	if err != nil {
		return 0, fmt.Errorf("failed to create account for staff %d: %w", req.StaffID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get account id: %w", err)
	}

	p.logger.Info("Account provisioned",
		zap.Int64("staff_id", req.StaffID),
		zap.String("username", req.Username))

	return id, nil
}

var (
	_ port.Directory              = (*Directory)(nil)
	_ port.LeaveRequestGateway    = (*LeaveGateway)(nil)
	_ port.LeaveBalanceCalculator = (*BalanceCalculator)(nil)
	_ port.AssignmentGateway      = (*AssignmentGateway)(nil)
	_ port.AssignmentRuleChecker  = (*RuleChecker)(nil)
	_ port.EvaluationGateway      = (*EvaluationGateway)(nil)
	_ port.OnboardingGateway      = (*OnboardingGateway)(nil)
	_ port.AccountProvisioner     = (*AccountProvisioner)(nil)
)
