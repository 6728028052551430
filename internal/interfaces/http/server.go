// Package http is the HTTP adapter: it translates requests into workflow
// operations and renders the uniform result envelope.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	handlers   *Handlers
	logger     *zap.Logger
}

// NewServer creates a new HTTP server around the given handlers
func NewServer(config ServerConfig, handlers *Handlers, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config:   config,
		router:   gin.New(),
		handlers: handlers,
		logger:   logger,
	}

	server.router.Use(gin.Recovery())
	server.router.Use(server.loggingMiddleware())
	server.setupRoutes()

	return server
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handlers.HealthCheck)

	api := s.router.Group("/api/v1")
	{
		leave := api.Group("/leave")
		{
			leave.POST("", s.handlers.InitiateLeave)
			leave.POST("/:id/supervisor-review", s.handlers.LeaveSupervisorReview)
			leave.POST("/:id/hr-approval", s.handlers.LeaveHRApproval)
			leave.POST("/:id/director-approval", s.handlers.LeaveDirectorApproval)
			leave.POST("/:id/reject", s.handlers.LeaveReject)
		}

		assignments := api.Group("/assignments")
		{
			assignments.POST("", s.handlers.InitiateAssignment)
			assignments.POST("/:id/validate", s.handlers.AssignmentValidate)
			assignments.POST("/:id/head-teacher-approval", s.handlers.AssignmentHeadTeacherApproval)
			assignments.POST("/:id/reject", s.handlers.AssignmentReject)
		}

		evaluations := api.Group("/evaluations")
		{
			evaluations.POST("", s.handlers.InitiateEvaluation)
			evaluations.POST("/:id/self-assessment", s.handlers.EvaluationSelfAssessment)
			evaluations.POST("/:id/supervisor-review", s.handlers.EvaluationSupervisorReview)
			evaluations.POST("/:id/hr-review", s.handlers.EvaluationHRReview)
			evaluations.POST("/:id/reject", s.handlers.EvaluationReject)
		}

		onboarding := api.Group("/onboarding")
		{
			onboarding.POST("", s.handlers.InitiateOnboarding)
			onboarding.POST("/:id/documents", s.handlers.OnboardingDocuments)
			onboarding.POST("/:id/orientation", s.handlers.OnboardingOrientation)
			onboarding.POST("/:id/system-access", s.handlers.OnboardingSystemAccess)
			onboarding.POST("/:id/reject", s.handlers.OnboardingReject)
		}

		workflows := api.Group("/workflows")
		{
			workflows.GET("/:id", s.handlers.GetWorkflow)
			workflows.GET("/:id/history", s.handlers.GetWorkflowHistory)
			workflows.GET("/:id/notifications", s.handlers.GetWorkflowNotifications)
			workflows.GET("/:id/audit", s.handlers.GetWorkflowAudit)
			workflows.GET("/:id/report", s.handlers.GetWorkflowReport)
		}
	}
}

// Start runs the server until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", zap.Error(err))
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router exposes the underlying gin router for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}
