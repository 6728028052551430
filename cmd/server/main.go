package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/campuskit/school-workflow/internal/application/dispatcher"
	"github.com/campuskit/school-workflow/internal/application/engine"
	"github.com/campuskit/school-workflow/internal/application/process"
	"github.com/campuskit/school-workflow/internal/config"
	httpserver "github.com/campuskit/school-workflow/internal/interfaces/http"
	"github.com/campuskit/school-workflow/internal/infrastructure/persistence/repository"
	"github.com/campuskit/school-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/campuskit/school-workflow/internal/infrastructure/schooldata"
	"github.com/campuskit/school-workflow/internal/notification"
	"github.com/campuskit/school-workflow/internal/report"
	"github.com/campuskit/school-workflow/pkg/database"
	"github.com/campuskit/school-workflow/pkg/utils"
)

// maxActiveAssignments caps concurrent teaching assignments per staff member
// within an academic year
const maxActiveAssignments = 6

func main() {
	_ = gotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting school workflow service",
		zap.Int("port", cfg.Server.Port),
		zap.String("database", cfg.Database.Path))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		BusyTimeout:     cfg.Database.BusyTimeout,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Repositories and unit of work
	txManager := sqlite.NewDB(db.DB, logger)
	instanceRepo := repository.NewInstanceRepository(db.DB, logger)
	historyRepo := repository.NewHistoryRepository(db.DB, logger)
	notificationRepo := repository.NewNotificationRepository(db.DB, logger)
	auditRepo := repository.NewAuditRepository(db.DB, logger)

	// Event bus and notification delivery
	bus := dispatcher.NewDispatcher(logger)
	defer bus.Close()
	notification.NewDeliverer(notificationRepo, logger).Register(bus)

	// Workflow engine
	eng := engine.New(instanceRepo, historyRepo, notificationRepo, auditRepo, txManager, bus, logger)

	// Collaborator gateways over the school reference tables
	directory := schooldata.NewDirectory(db.DB)
	leaveGateway := schooldata.NewLeaveGateway(db.DB, logger)
	balances := schooldata.NewBalanceCalculator(db.DB)
	assignmentGateway := schooldata.NewAssignmentGateway(db.DB, logger)
	ruleChecker := schooldata.NewRuleChecker(db.DB, maxActiveAssignments)
	evaluationGateway := schooldata.NewEvaluationGateway(db.DB)
	onboardingGateway := schooldata.NewOnboardingGateway(db.DB)
	accounts := schooldata.NewAccountProvisioner(db.DB, logger)

	// Workflow specializations
	leave := process.NewLeave(eng, directory, leaveGateway, balances, txManager,
		cfg.Workflow.DirectorThresholdDays, logger)
	assignments := process.NewAssignment(eng, directory, assignmentGateway, ruleChecker, txManager, logger)
	evaluations := process.NewEvaluation(eng, directory, evaluationGateway, txManager, logger)
	onboarding := process.NewOnboarding(eng, directory, onboardingGateway, accounts, txManager, logger)

	exporter := report.NewExporter(instanceRepo, historyRepo, cfg.Report.OutputDir, logger)

	handlers := httpserver.NewHandlers(
		leave, assignments, evaluations, onboarding,
		eng, historyRepo, notificationRepo, auditRepo, exporter, logger)

	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, handlers, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("Server exited")
}
