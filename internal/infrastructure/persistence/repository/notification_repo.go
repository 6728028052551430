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

// NotificationRepository implements port.NotificationRepository
type NotificationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sql.DB, logger *zap.Logger) port.NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// Create records a notification. RecipientID may be nil for role-addressed
// notifications (e.g. every HR manager).
func (r *NotificationRepository) Create(ctx context.Context, notification *entity.Notification) error {
	query := `
		INSERT INTO notifications (
			instance_id, recipient_id, title, body, category, status
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	var recipient sql.NullInt64
	if notification.RecipientID != nil {
		recipient = sql.NullInt64{Int64: *notification.RecipientID, Valid: true}
	}

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		notification.InstanceID,
		recipient,
		notification.Title,
		notification.Body,
		notification.Category,
		notification.Status,
	)
	if err != nil {
		r.logger.Error("Failed to create notification",
			zap.Int64("instance_id", notification.InstanceID),
			zap.Error(err))
		return fmt.Errorf("failed to create notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	notification.ID = id
	return nil
}

// GetByInstanceID retrieves the notifications raised for an instance
func (r *NotificationRepository) GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.Notification, error) {
	query := `
		SELECT id, instance_id, recipient_id, title, body, category, status, created_at
		FROM notifications
		WHERE instance_id = ?
		ORDER BY id ASC
	`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, instanceID)
	if err != nil {
		r.logger.Error("Failed to get notifications", zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*entity.Notification
	for rows.Next() {
		var n entity.Notification
		var recipient sql.NullInt64
		err := rows.Scan(
			&n.ID,
			&n.InstanceID,
			&recipient,
			&n.Title,
			&n.Body,
			&n.Category,
			&n.Status,
			&n.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if recipient.Valid {
			n.RecipientID = &recipient.Int64
		}
		notifications = append(notifications, &n)
	}

	return notifications, rows.Err()
}

// UpdateStatus marks a notification as sent or failed
func (r *NotificationRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE notifications SET status = ? WHERE id = ?`

	_, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query, status, id)
	if err != nil {
		r.logger.Error("Failed to update notification status", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to update notification status: %w", err)
	}

	return nil
}

// Verify interface compliance
var _ port.NotificationRepository = (*NotificationRepository)(nil)
