package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/campuskit/school-workflow/internal/application/engine"
	"github.com/campuskit/school-workflow/internal/application/port"
	"github.com/campuskit/school-workflow/internal/application/process"
	"github.com/campuskit/school-workflow/internal/domain/entity"
	"github.com/campuskit/school-workflow/internal/domain/workflow"
	"github.com/campuskit/school-workflow/internal/report"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	leave         *process.Leave
	assignments   *process.Assignment
	evaluations   *process.Evaluation
	onboarding    *process.Onboarding
	engine        engine.Engine
	history       port.HistoryRepository
	notifications port.NotificationRepository
	audit         port.AuditRepository
	exporter      *report.Exporter
	logger        *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	leave *process.Leave,
	assignments *process.Assignment,
	evaluations *process.Evaluation,
	onboarding *process.Onboarding,
	eng engine.Engine,
	history port.HistoryRepository,
	notifications port.NotificationRepository,
	audit port.AuditRepository,
	exporter *report.Exporter,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		leave:         leave,
		assignments:   assignments,
		evaluations:   evaluations,
		onboarding:    onboarding,
		engine:        eng,
		history:       history,
		notifications: notifications,
		audit:         audit,
		exporter:      exporter,
		logger:        logger,
	}
}

// Response is the JSON shape of read endpoints and errors; workflow actions
// render the engine's result envelope directly.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type reviewRequest struct {
	Action  string `json:"action" binding:"required"`
	Remarks string `json:"remarks"`
}

type rejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// callerID reads the authenticated user from the X-User-ID header. Real
// authentication sits in front of this service; the header is its contract.
func (h *Handlers) callerID(c *gin.Context) (int64, bool) {
	raw := c.GetHeader("X-User-ID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusUnauthorized, Response{Success: false, Error: "missing or invalid X-User-ID header"})
		return 0, false
	}
	return id, true
}

func (h *Handlers) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid id"})
		return 0, false
	}
	return id, true
}

// respond renders a workflow operation outcome: infrastructure errors map to
// 500, business rejections to 422, successes to okStatus.
func (h *Handlers) respond(c *gin.Context, result *engine.Result, err error, okStatus int) {
	if err != nil {
		h.logger.Error("Workflow operation failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "internal error"})
		return
	}
	if !result.Success {
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}
	c.JSON(okStatus, result)
}

func bindJSON[T any](c *gin.Context) (*T, bool) {
	var req T
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return nil, false
	}
	return &req, true
}

// --- Leave ---

type initiateLeaveRequest struct {
	LeaveRequestID int64 `json:"leave_request_id" binding:"required"`
}

// InitiateLeave handles POST /api/v1/leave
func (h *Handlers) InitiateLeave(c *gin.Context) {
	caller, ok := h.callerID(c)
	if !ok {
		return
	}
	req, ok := bindJSON[initiateLeaveRequest](c)
	if !ok {
		return
	}
	result, err := h.leave.Initiate(c.Request.Context(), req.LeaveRequestID, caller)
	h.respond(c, result, err, http.StatusCreated)
}

// LeaveSupervisorReview handles POST /api/v1/leave/:id/supervisor-review
func (h *Handlers) LeaveSupervisorReview(c *gin.Context) {
	h.review(c, h.leave.SupervisorReview)
}

// LeaveHRApproval handles POST /api/v1/leave/:id/hr-approval
func (h *Handlers) LeaveHRApproval(c *gin.Context) {
	h.review(c, h.leave.HRApproval)
}

// LeaveDirectorApproval handles POST /api/v1/leave/:id/director-approval
func (h *Handlers) LeaveDirectorApproval(c *gin.Context) {
	h.review(c, h.leave.DirectorApproval)
}

// LeaveReject handles POST /api/v1/leave/:id/reject
func (h *Handlers) LeaveReject(c *gin.Context) {
	h.reject(c, h.leave.Reject)
}

// --- Assignment ---

type initiateAssignmentRequest struct {
	AssignmentID int64 `json:"assignment_id" binding:"required"`
}

// InitiateAssignment handles POST /api/v1/assignments
func (h *Handlers) InitiateAssignment(c *gin.Context) {
	caller, ok := h.callerID(c)
	if !ok {
		return
	}
	req, ok := bindJSON[initiateAssignmentRequest](c)
	if !ok {
		return
	}
	result, err := h.assignments.Initiate(c.Request.Context(), req.AssignmentID, caller)
	h.respond(c, result, err, http.StatusCreated)
}

// AssignmentValidate handles POST /api/v1/assignments/:id/validate
func (h *Handlers) AssignmentValidate(c *gin.Context) {
	caller, ok := h.callerID(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	result, err := h.assignments.RunValidation(c.Request.Context(), id, caller)
	h.respond(c, result, err, http.StatusOK)
}

// AssignmentHeadTeacherApproval handles POST /api/v1/assignments/:id/head-teacher-approval
func (h *Handlers) AssignmentHeadTeacherApproval(c *gin.Context) {
	h.review(c, h.assignments.HeadTeacherApproval)
}

// AssignmentReject handles POST /api/v1/assignments/:id/reject
func (h *Handlers) AssignmentReject(c *gin.Context) {
	h.reject(c, h.assignments.Reject)
}

// --- Evaluation ---

type initiateEvaluationRequest struct {
	EvaluationID   int64  `json:"evaluation_id" binding:"required"`
	AcademicYearID int64  `json:"academic_year_id" binding:"required"`
	ReviewPeriod   string `json:"review_period" binding:"required"`
}

// InitiateEvaluation handles POST /api/v1/evaluations
func (h *Handlers) InitiateEvaluation(c *gin.Context) {
	caller, ok := h.callerID(c)
	if !ok {
		return
	}
	req, ok := bindJSON[initiateEvaluationRequest](c)
	if !ok {
		return
	}
	result, err := h.evaluations.Initiate(c.Request.Context(), req.EvaluationID, caller, req.AcademicYearID, req.ReviewPeriod)
	h.respond(c, result, err, http.StatusCreated)
}

type selfAssessmentRequest struct {
	Assessment map[string]any `json:"assessment" binding:"required"`
}

// EvaluationSelfAssessment handles POST /api/v1/evaluations/:id/self-assessment
func (h *Handlers) EvaluationSelfAssessment(c *gin.Context) {
	caller, ok := h.callerID(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	req, ok := bindJSON[selfAssessmentRequest](c)
	if !ok {
		return
	}
	result, err := h.evaluations.SubmitSelfAssessment(c.Request.Context(), id, caller, req.Assessment)
	h.respond(c, result, err, http.StatusOK)
}

// EvaluationSupervisorReview handles POST /api/v1/evaluations/:id/supervisor-review
func (h *Handlers) EvaluationSupervisorReview(c *gin.Context) {
	h.review(c, h.evaluations.SupervisorReview)
}

// EvaluationHRReview handles POST /api/v1/evaluations/:id/hr-review
func (h *Handlers) EvaluationHRReview(c *gin.Context) {
	h.review(c, h.evaluations.HRReview)
}

// EvaluationReject handles POST /api/v1/evaluations/:id/reject
func (h *Handlers) EvaluationReject(c *gin.Context) {
	h.reject(c, h.evaluations.Reject)
}

// --- Onboarding ---

type initiateOnboardingRequest struct {
	OnboardingID int64 `json:"onboarding_id" binding:"required"`
}

// InitiateOnboarding handles POST /api/v1/onboarding
func (h *Handlers) InitiateOnboarding(c *gin.Context) {
	caller, ok := h.callerID(c)
	if !ok {
		return
	}
	req, ok := bindJSON[initiateOnboardingRequest](c)
	if !ok {
		return
	}
	result, err := h.onboarding.Initiate(c.Request.Context(), req.OnboardingID, caller)
	h.respond(c, result, err, http.StatusCreated)
}

type documentsRequest struct {
	Documents map[string]any `json:"documents" binding:"required"`
}

// OnboardingDocuments handles POST /api/v1/onboarding/:id/documents
func (h *Handlers) OnboardingDocuments(c *gin.Context) {
	h.payloadAction(c, func(ctx *gin.Context, id, caller int64) (*engine.Result, error) {
		req, ok := bindJSON[documentsRequest](ctx)
		if !ok {
			return nil, errHandled
		}
		return h.onboarding.SubmitDocuments(ctx.Request.Context(), id, caller, req.Documents)
	})
}

type orientationRequest struct {
	Checklist map[string]any `json:"checklist" binding:"required"`
}

// OnboardingOrientation handles POST /api/v1/onboarding/:id/orientation
func (h *Handlers) OnboardingOrientation(c *gin.Context) {
	h.payloadAction(c, func(ctx *gin.Context, id, caller int64) (*engine.Result, error) {
		req, ok := bindJSON[orientationRequest](ctx)
		if !ok {
			return nil, errHandled
		}
		return h.onboarding.CompleteOrientation(ctx.Request.Context(), id, caller, req.Checklist)
	})
}

type systemAccessRequest struct {
	Access map[string]any `json:"access" binding:"required"`
}

// OnboardingSystemAccess handles POST /api/v1/onboarding/:id/system-access
func (h *Handlers) OnboardingSystemAccess(c *gin.Context) {
	h.payloadAction(c, func(ctx *gin.Context, id, caller int64) (*engine.Result, error) {
		req, ok := bindJSON[systemAccessRequest](ctx)
		if !ok {
			return nil, errHandled
		}
		return h.onboarding.GrantSystemAccess(ctx.Request.Context(), id, caller, req.Access)
	})
}

// OnboardingReject handles POST /api/v1/onboarding/:id/reject
func (h *Handlers) OnboardingReject(c *gin.Context) {
	h.reject(c, h.onboarding.Reject)
}

// --- Shared read surface ---

// GetWorkflow handles GET /api/v1/workflows/:id. The response carries the
// stages the instance may move to next, so clients can render the available
// actions without hardcoding the graph.
func (h *Handlers) GetWorkflow(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	instance, err := h.engine.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "workflow instance not found"})
		return
	}

	nextStages := []string{}
	if def := h.definitionFor(instance.WorkflowType); def != nil && !instance.IsTerminal() {
		if rule, ok := def.Rule(workflow.Stage(instance.CurrentStage)); ok {
			for _, stage := range rule.Next {
				nextStages = append(nextStages, stage.String())
			}
		}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{
		"instance":    instance,
		"next_stages": nextStages,
	}})
}

func (h *Handlers) definitionFor(workflowType string) *workflow.Definition {
	switch workflowType {
	case entity.TypeStaffLeave:
		return h.leave.Definition()
	case entity.TypeStaffAssignment:
		return h.assignments.Definition()
	case entity.TypeStaffEvaluation:
		return h.evaluations.Definition()
	case entity.TypeStaffOnboarding:
		return h.onboarding.Definition()
	}
	return nil
}

// GetWorkflowHistory handles GET /api/v1/workflows/:id/history
func (h *Handlers) GetWorkflowHistory(c *gin.Context) {
	h.listFor(c, func(ctx *gin.Context, id int64) (interface{}, error) {
		return h.history.GetByInstanceID(ctx.Request.Context(), id)
	})
}

// GetWorkflowNotifications handles GET /api/v1/workflows/:id/notifications
func (h *Handlers) GetWorkflowNotifications(c *gin.Context) {
	h.listFor(c, func(ctx *gin.Context, id int64) (interface{}, error) {
		return h.notifications.GetByInstanceID(ctx.Request.Context(), id)
	})
}

// GetWorkflowAudit handles GET /api/v1/workflows/:id/audit
func (h *Handlers) GetWorkflowAudit(c *gin.Context) {
	h.listFor(c, func(ctx *gin.Context, id int64) (interface{}, error) {
		return h.audit.GetByInstanceID(ctx.Request.Context(), id)
	})
}

// GetWorkflowReport handles GET /api/v1/workflows/:id/report. It exports the
// register workbook for the instance's workflow type and streams it back.
func (h *Handlers) GetWorkflowReport(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	instance, err := h.engine.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "workflow instance not found"})
		return
	}

	path, err := h.exporter.ExportRegister(c.Request.Context(), instance.WorkflowType)
	if err != nil {
		h.logger.Error("Failed to export register", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to export report"})
		return
	}

	c.FileAttachment(path, instance.WorkflowType+"_register.xlsx")
}

// --- shared handler plumbing ---

// errHandled marks that the helper already wrote the HTTP response
var errHandled = &handledError{}

type handledError struct{}

func (*handledError) Error() string { return "response already written" }

func (h *Handlers) review(c *gin.Context, fn func(ctx context.Context, instanceID, callerID int64, action, remarks string) (*engine.Result, error)) {
	caller, ok := h.callerID(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	req, ok := bindJSON[reviewRequest](c)
	if !ok {
		return
	}
	result, err := fn(c.Request.Context(), id, caller, req.Action, req.Remarks)
	h.respond(c, result, err, http.StatusOK)
}

func (h *Handlers) reject(c *gin.Context, fn func(ctx context.Context, instanceID, callerID int64, reason string) (*engine.Result, error)) {
	caller, ok := h.callerID(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	req, ok := bindJSON[rejectRequest](c)
	if !ok {
		return
	}
	result, err := fn(c.Request.Context(), id, caller, req.Reason)
	h.respond(c, result, err, http.StatusOK)
}

func (h *Handlers) payloadAction(c *gin.Context, fn func(ctx *gin.Context, id, caller int64) (*engine.Result, error)) {
	caller, ok := h.callerID(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	result, err := fn(c, id, caller)
	if err == errHandled {
		return
	}
	h.respond(c, result, err, http.StatusOK)
}

func (h *Handlers) listFor(c *gin.Context, fn func(ctx *gin.Context, id int64) (interface{}, error)) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	data, err := fn(c, id)
	if err != nil {
		h.logger.Error("Failed to load workflow records", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "internal error"})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}
