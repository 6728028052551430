package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campuskit/school-workflow/internal/application/dispatcher"
	"github.com/campuskit/school-workflow/internal/application/port"
	"github.com/campuskit/school-workflow/internal/domain/entity"
	"github.com/campuskit/school-workflow/internal/domain/event"
	"github.com/campuskit/school-workflow/internal/domain/workflow"
)

// Engine is the generic workflow core. Specializations supply their
// Definition value per call; the engine owns instance lifecycle,
// stage-history persistence and the sink helpers.
type Engine interface {
	// Start creates a new instance at the definition's initial stage.
	// It re-checks the one-active-instance invariant and fails with
	// ErrDuplicateActive when violated.
	Start(ctx context.Context, def *workflow.Definition, referenceID, initiatorID int64, initialData map[string]any) (int64, error)

	// Get fetches an instance; ErrNotFound is a normal, expected outcome
	Get(ctx context.Context, instanceID int64) (*entity.WorkflowInstance, error)

	// Advance moves an instance to a declared successor stage, merging
	// data append-only, appending a history row and invoking the
	// definition's stage hook inside the same transaction.
	Advance(ctx context.Context, def *workflow.Definition, instanceID int64, toStage workflow.Stage, reason string, actorID int64, merged map[string]any) (*entity.WorkflowInstance, error)

	// Complete advances directly to the definition's success terminal
	Complete(ctx context.Context, def *workflow.Definition, instanceID, actorID int64, remarks string, final map[string]any) (*entity.WorkflowInstance, error)

	// Cancel forces the instance to the cancelled terminal from any
	// non-terminal stage, bypassing transition validation
	Cancel(ctx context.Context, instanceID, actorID int64, reason string) error

	// Notify queues a notification. A nil recipient means broadcast to
	// the category's role. Failures are logged, never propagated.
	Notify(ctx context.Context, instanceID int64, recipientID *int64, title, body, category string)

	// Audit appends an entry to the action log. Failures are logged,
	// never propagated.
	Audit(ctx context.Context, actionKind string, instanceID int64, description string)
}

type engineImpl struct {
	instanceRepo     port.InstanceRepository
	historyRepo      port.HistoryRepository
	notificationRepo port.NotificationRepository
	auditRepo        port.AuditRepository
	txManager        port.TransactionManager
	events           dispatcher.Dispatcher
	logger           *zap.Logger
}

// New creates the workflow engine. The dispatcher may be nil, in which case
// no events are emitted.
func New(
	instanceRepo port.InstanceRepository,
	historyRepo port.HistoryRepository,
	notificationRepo port.NotificationRepository,
	auditRepo port.AuditRepository,
	txManager port.TransactionManager,
	events dispatcher.Dispatcher,
	logger *zap.Logger,
) Engine {
	return &engineImpl{
		instanceRepo:     instanceRepo,
		historyRepo:      historyRepo,
		notificationRepo: notificationRepo,
		auditRepo:        auditRepo,
		txManager:        txManager,
		events:           events,
		logger:           logger,
	}
}

// emit publishes an event once the surrounding transaction (if any) has
// committed, so handlers observe committed state only. The dispatch context
// is detached from the request: handlers outlive it and must not inherit
// its transaction.
func (e *engineImpl) emit(ctx context.Context, evt *event.Event) {
	if e.events == nil {
		return
	}
	port.AfterCommit(ctx, func() {
		e.events.DispatchAsync(context.Background(), evt)
	})
}

func (e *engineImpl) Start(ctx context.Context, def *workflow.Definition, referenceID, initiatorID int64, initialData map[string]any) (int64, error) {
	instance := &entity.WorkflowInstance{
		WorkflowType: def.Type,
		ReferenceID:  referenceID,
		CurrentStage: def.Initial.String(),
		Status:       entity.StatusInProgress,
		Data:         Merge(initialData, nil),
		InitiatedBy:  initiatorID,
	}

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		active, err := e.instanceRepo.GetActiveByReference(txCtx, def.Type, referenceID)
		if err != nil {
			return fmt.Errorf("failed to check active instance: %w", err)
		}
		if active != nil {
			return fmt.Errorf("%w: %s reference %d has active instance %d", ErrDuplicateActive, def.Type, referenceID, active.ID)
		}

		if err := e.instanceRepo.Create(txCtx, instance); err != nil {
			return fmt.Errorf("failed to create instance: %w", err)
		}

		history := &entity.StageHistory{
			InstanceID:       instance.ID,
			FromStage:        "",
			ToStage:          def.Initial.String(),
			TransitionReason: "initiated",
			ActorID:          initiatorID,
			DataSnapshot:     snapshot(instance.Data),
			Timestamp:        time.Now(),
		}
		if err := e.historyRepo.Create(txCtx, history); err != nil {
			return fmt.Errorf("failed to create history record: %w", err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	e.Audit(ctx, entity.ActionWorkflowStarted, instance.ID,
		fmt.Sprintf("%s workflow started for reference %d", def.Type, referenceID))

	e.emit(ctx, event.New(event.TypeWorkflowStarted, instance.ID, def.Type, map[string]any{
		"reference_id":  referenceID,
		"initiator_id":  initiatorID,
		"initial_stage": def.Initial.String(),
	}))

	return instance.ID, nil
}

func (e *engineImpl) Get(ctx context.Context, instanceID int64) (*entity.WorkflowInstance, error) {
	instance, err := e.instanceRepo.GetByID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch instance: %w", err)
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, instanceID)
	}
	return instance, nil
}

func (e *engineImpl) Advance(ctx context.Context, def *workflow.Definition, instanceID int64, toStage workflow.Stage, reason string, actorID int64, merged map[string]any) (*entity.WorkflowInstance, error) {
	var updated *entity.WorkflowInstance

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		instance, err := e.Get(txCtx, instanceID)
		if err != nil {
			return err
		}
		if instance.WorkflowType != def.Type {
			return fmt.Errorf("%w: instance %d belongs to %s, not %s", workflow.ErrInvalidTransition, instanceID, instance.WorkflowType, def.Type)
		}
		if instance.IsTerminal() {
			return fmt.Errorf("%w: instance %d is %s", ErrInstanceTerminal, instanceID, instance.Status)
		}

		fromStage := workflow.Stage(instance.CurrentStage)
		data := Merge(instance.Data, merged)

		if err := def.ValidateTransition(fromStage, toStage, data); err != nil {
			return err
		}

		status := instance.Status
		if def.IsTerminal(toStage) {
			status = entity.StatusCompleted
		}

		moved, err := e.instanceRepo.AdvanceStage(txCtx, instanceID, fromStage.String(), toStage.String(), status, data)
		if err != nil {
			return fmt.Errorf("failed to advance stage: %w", err)
		}
		if !moved {
			// Lost a race: another action moved the instance first.
			return e.stateConflict(txCtx, instanceID)
		}

		history := &entity.StageHistory{
			InstanceID:       instanceID,
			FromStage:        fromStage.String(),
			ToStage:          toStage.String(),
			TransitionReason: reason,
			ActorID:          actorID,
			DataSnapshot:     snapshot(data),
			Timestamp:        time.Now(),
		}
		if err := e.historyRepo.Create(txCtx, history); err != nil {
			return fmt.Errorf("failed to create history record: %w", err)
		}

		if def.ProcessStage != nil {
			if err := def.ProcessStage(txCtx, instanceID, toStage, data); err != nil {
				return fmt.Errorf("stage hook failed for %s: %w", toStage, err)
			}
		}

		instance.CurrentStage = toStage.String()
		instance.Status = status
		instance.Data = data
		updated = instance
		return nil
	})
	if err != nil {
		return nil, err
	}

	kind := entity.ActionStageAdvanced
	eventType := event.TypeStageAdvanced
	if updated.Status == entity.StatusCompleted {
		kind = entity.ActionWorkflowCompleted
		eventType = event.TypeWorkflowCompleted
	}
	e.Audit(ctx, kind, instanceID, fmt.Sprintf("stage advanced to %s (%s)", toStage, reason))

	e.emit(ctx, event.New(eventType, instanceID, def.Type, map[string]any{
		"to_stage": toStage.String(),
		"reason":   reason,
		"actor_id": actorID,
	}))

	e.logger.Info("Workflow stage advanced",
		zap.Int64("instance_id", instanceID),
		zap.String("workflow_type", def.Type),
		zap.String("to_stage", toStage.String()),
		zap.String("reason", reason))

	return updated, nil
}

func (e *engineImpl) Complete(ctx context.Context, def *workflow.Definition, instanceID, actorID int64, remarks string, final map[string]any) (*entity.WorkflowInstance, error) {
	terminal, ok := def.SuccessTerminal()
	if !ok {
		return nil, fmt.Errorf("%w: %s declares no success terminal", workflow.ErrInvalidDefinition, def.Type)
	}

	data := Merge(final, nil)
	if remarks != "" {
		data["completion_remarks"] = remarks
	}

	return e.Advance(ctx, def, instanceID, terminal, "completed", actorID, data)
}

func (e *engineImpl) Cancel(ctx context.Context, instanceID, actorID int64, reason string) error {
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		instance, err := e.Get(txCtx, instanceID)
		if err != nil {
			return err
		}
		if instance.IsTerminal() {
			return fmt.Errorf("%w: instance %d is %s", ErrInstanceTerminal, instanceID, instance.Status)
		}

		data := Merge(instance.Data, map[string]any{"cancellation_reason": reason})

		moved, err := e.instanceRepo.AdvanceStage(txCtx, instanceID,
			instance.CurrentStage, workflow.StageCancelled.String(), entity.StatusCancelled, data)
		if err != nil {
			return fmt.Errorf("failed to cancel instance: %w", err)
		}
		if !moved {
			return e.stateConflict(txCtx, instanceID)
		}

		history := &entity.StageHistory{
			InstanceID:       instanceID,
			FromStage:        instance.CurrentStage,
			ToStage:          workflow.StageCancelled.String(),
			TransitionReason: reason,
			ActorID:          actorID,
			DataSnapshot:     snapshot(data),
			Timestamp:        time.Now(),
		}
		if err := e.historyRepo.Create(txCtx, history); err != nil {
			return fmt.Errorf("failed to create history record: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	e.Audit(ctx, entity.ActionWorkflowCancelled, instanceID, reason)

	e.emit(ctx, event.New(event.TypeWorkflowCancelled, instanceID, "", map[string]any{
		"reason":   reason,
		"actor_id": actorID,
	}))

	e.logger.Info("Workflow cancelled",
		zap.Int64("instance_id", instanceID),
		zap.String("reason", reason))

	return nil
}

func (e *engineImpl) Notify(ctx context.Context, instanceID int64, recipientID *int64, title, body, category string) {
	notification := &entity.Notification{
		InstanceID:  instanceID,
		RecipientID: recipientID,
		Title:       title,
		Body:        body,
		Category:    category,
		Status:      entity.NotificationStatusPending,
	}

	if err := e.notificationRepo.Create(ctx, notification); err != nil {
		e.logger.Error("Failed to queue notification",
			zap.Int64("instance_id", instanceID),
			zap.String("category", category),
			zap.Error(err))
		return
	}

	e.emit(ctx, event.New(event.TypeNotificationQueued, instanceID, "", map[string]any{
		"notification_id": notification.ID,
		"category":        category,
	}))
}

func (e *engineImpl) Audit(ctx context.Context, actionKind string, instanceID int64, description string) {
	entry := &entity.AuditEntry{
		ActionKind:  actionKind,
		InstanceID:  instanceID,
		Description: description,
		Timestamp:   time.Now(),
	}

	if err := e.auditRepo.Create(ctx, entry); err != nil {
		e.logger.Error("Failed to record audit entry",
			zap.Int64("instance_id", instanceID),
			zap.String("action_kind", actionKind),
			zap.Error(err))
	}
}

// stateConflict rebuilds the error a caller sees after losing a race on the
// instance row, naming the stage the winner left behind.
func (e *engineImpl) stateConflict(ctx context.Context, instanceID int64) error {
	current, err := e.instanceRepo.GetByID(ctx, instanceID)
	if err != nil || current == nil {
		return fmt.Errorf("%w: instance %d changed concurrently", ErrInvalidState, instanceID)
	}
	if current.IsTerminal() {
		return fmt.Errorf("%w: instance %d is %s", ErrInstanceTerminal, instanceID, current.Status)
	}
	return fmt.Errorf("%w: current stage is %s", ErrInvalidState, current.CurrentStage)
}

func snapshot(data map[string]any) string {
	raw, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
