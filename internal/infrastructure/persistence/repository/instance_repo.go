package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/campuskit/school-workflow/internal/application/port"
	"github.com/campuskit/school-workflow/internal/domain/entity"
	"github.com/campuskit/school-workflow/internal/infrastructure/persistence/sqlite"
)

// InstanceRepository implements port.InstanceRepository
type InstanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sql.DB, logger *zap.Logger) port.InstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

const instanceColumns = `id, workflow_type, reference_id, current_stage, status, data_json, initiated_by, created_at, updated_at`

// Create inserts a new workflow instance
func (r *InstanceRepository) Create(ctx context.Context, instance *entity.WorkflowInstance) error {
	dataJSON, err := marshalData(instance.Data)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_instances (
			workflow_type, reference_id, current_stage, status, data_json, initiated_by
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		instance.WorkflowType,
		instance.ReferenceID,
		instance.CurrentStage,
		instance.Status,
		dataJSON,
		instance.InitiatedBy,
	)
	if err != nil {
		r.logger.Error("Failed to create workflow instance", zap.Error(err))
		return fmt.Errorf("failed to create instance: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	instance.ID = id
	return nil
}

// GetByID retrieves a workflow instance by ID; returns nil, nil when absent
func (r *InstanceRepository) GetByID(ctx context.Context, id int64) (*entity.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE id = ?`

	row := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, id)
	instance, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get instance by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	return instance, nil
}

// GetActiveByReference retrieves the non-terminal instance for a
// (workflow_type, reference_id) pair; returns nil, nil when none is active
func (r *InstanceRepository) GetActiveByReference(ctx context.Context, workflowType string, referenceID int64) (*entity.WorkflowInstance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM workflow_instances
		WHERE workflow_type = ? AND reference_id = ? AND status IN (?, ?)
		LIMIT 1
	`

	row := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query,
		workflowType, referenceID, entity.StatusInProgress, entity.StatusPending)
	instance, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get active instance",
			zap.String("workflow_type", workflowType),
			zap.Int64("reference_id", referenceID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get active instance: %w", err)
	}

	return instance, nil
}

// AdvanceStage atomically moves an instance between stages. The WHERE clause
// re-checks the expected stage and a non-terminal status, so of two racing
// actions only one can see a row updated.
func (r *InstanceRepository) AdvanceStage(ctx context.Context, id int64, fromStage, toStage, status string, data map[string]any) (bool, error) {
	dataJSON, err := marshalData(data)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE workflow_instances
		SET current_stage = ?, status = ?, data_json = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND current_stage = ? AND status IN (?, ?)
	`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		toStage, status, dataJSON,
		id, fromStage, entity.StatusInProgress, entity.StatusPending)
	if err != nil {
		r.logger.Error("Failed to advance stage",
			zap.Int64("id", id),
			zap.String("to_stage", toStage),
			zap.Error(err))
		return false, fmt.Errorf("failed to advance stage: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return affected == 1, nil
}

// List retrieves workflow instances, optionally filtered by type, newest first
func (r *InstanceRepository) List(ctx context.Context, workflowType string, limit, offset int) ([]*entity.WorkflowInstance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM workflow_instances
		WHERE (? = '' OR workflow_type = ?)
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, workflowType, workflowType, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list instances", zap.Error(err))
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	var instances []*entity.WorkflowInstance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		instances = append(instances, instance)
	}

	return instances, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstance(row rowScanner) (*entity.WorkflowInstance, error) {
	var instance entity.WorkflowInstance
	var dataJSON string

	err := row.Scan(
		&instance.ID,
		&instance.WorkflowType,
		&instance.ReferenceID,
		&instance.CurrentStage,
		&instance.Status,
		&dataJSON,
		&instance.InitiatedBy,
		&instance.CreatedAt,
		&instance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(dataJSON), &instance.Data); err != nil {
		return nil, fmt.Errorf("failed to decode instance data: %w", err)
	}

	return &instance, nil
}

func marshalData(data map[string]any) (string, error) {
	if data == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode instance data: %w", err)
	}
	return string(raw), nil
}

// Verify interface compliance
var _ port.InstanceRepository = (*InstanceRepository)(nil)
