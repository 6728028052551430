package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/campuskit/school-workflow/internal/application/port"
	"github.com/campuskit/school-workflow/internal/domain/entity"
	"github.com/campuskit/school-workflow/internal/infrastructure/persistence/sqlite"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends a stage transition record
func (r *HistoryRepository) Create(ctx context.Context, history *entity.StageHistory) error {
	query := `
		INSERT INTO stage_history (
			instance_id, from_stage, to_stage, transition_reason, actor_id, data_snapshot
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		history.InstanceID,
		history.FromStage,
		history.ToStage,
		history.TransitionReason,
		history.ActorID,
		history.DataSnapshot,
	)
	if err != nil {
		r.logger.Error("Failed to create stage history",
			zap.Int64("instance_id", history.InstanceID),
			zap.Error(err))
		return fmt.Errorf("failed to create stage history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	history.ID = id
	return nil
}

// GetByInstanceID retrieves the transition history of an instance in order
func (r *HistoryRepository) GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.StageHistory, error) {
	query := `
		SELECT id, instance_id, from_stage, to_stage, transition_reason, actor_id, data_snapshot, timestamp
		FROM stage_history
		WHERE instance_id = ?
		ORDER BY id ASC
	`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, instanceID)
	if err != nil {
		r.logger.Error("Failed to get stage history", zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to get stage history: %w", err)
	}
	defer rows.Close()

	var entries []*entity.StageHistory
	for rows.Next() {
		var h entity.StageHistory
		err := rows.Scan(
			&h.ID,
			&h.InstanceID,
			&h.FromStage,
			&h.ToStage,
			&h.TransitionReason,
			&h.ActorID,
			&h.DataSnapshot,
			&h.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stage history: %w", err)
		}
		entries = append(entries, &h)
	}

	return entries, rows.Err()
}

// Verify interface compliance
var _ port.HistoryRepository = (*HistoryRepository)(nil)
