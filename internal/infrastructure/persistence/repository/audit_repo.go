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

// AuditRepository implements port.AuditRepository
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) port.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends an audit entry
func (r *AuditRepository) Create(ctx context.Context, entry *entity.AuditEntry) error {
	query := `
		INSERT INTO audit_log (action_kind, instance_id, description)
		VALUES (?, ?, ?)
	`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		entry.ActionKind,
		entry.InstanceID,
		entry.Description,
	)
	if err != nil {
		r.logger.Error("Failed to create audit entry",
			zap.Int64("instance_id", entry.InstanceID),
			zap.Error(err))
		return fmt.Errorf("failed to create audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	entry.ID = id
	return nil
}

// GetByInstanceID retrieves the audit trail of an instance in order
func (r *AuditRepository) GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.AuditEntry, error) {
	query := `
		SELECT id, action_kind, instance_id, description, timestamp
		FROM audit_log
		WHERE instance_id = ?
		ORDER BY id ASC
	`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, instanceID)
	if err != nil {
		r.logger.Error("Failed to get audit entries", zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to get audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*entity.AuditEntry
	for rows.Next() {
		var e entity.AuditEntry
		err := rows.Scan(
			&e.ID,
			&e.ActionKind,
			&e.InstanceID,
			&e.Description,
			&e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

// Verify interface compliance
var _ port.AuditRepository = (*AuditRepository)(nil)
