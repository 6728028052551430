package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/campuskit/school-workflow/internal/application/dispatcher"
	"github.com/campuskit/school-workflow/internal/application/port"
	"github.com/campuskit/school-workflow/internal/domain/entity"
	"github.com/campuskit/school-workflow/internal/domain/event"
)

// Deliverer consumes queued-notification events and marks the stored rows
// delivered. Delivery itself is the structured log line; outbound channels
// (mail, chat) hang off the same event when they exist.
type Deliverer struct {
	notifications port.NotificationRepository
	logger        *zap.Logger
}

// NewDeliverer creates a notification deliverer
func NewDeliverer(notifications port.NotificationRepository, logger *zap.Logger) *Deliverer {
	return &Deliverer{
		notifications: notifications,
		logger:        logger,
	}
}

// Register subscribes the deliverer to the event bus
func (d *Deliverer) Register(bus dispatcher.Dispatcher) {
	bus.Subscribe(event.TypeNotificationQueued, "notification-deliverer", d.handleQueued)
}

func (d *Deliverer) handleQueued(ctx context.Context, evt *event.Event) error {
	notificationID := evt.PayloadInt("notification_id")
	if notificationID == 0 {
		return fmt.Errorf("notification event %s carries no notification_id", evt.ID)
	}

	d.logger.Info("Delivering notification",
		zap.Int64("notification_id", notificationID),
		zap.Int64("instance_id", evt.InstanceID),
		zap.String("category", evt.PayloadString("category")))

	if err := d.notifications.UpdateStatus(ctx, notificationID, entity.NotificationStatusSent); err != nil {
		if updErr := d.notifications.UpdateStatus(ctx, notificationID, entity.NotificationStatusFailed); updErr != nil {
			d.logger.Error("Failed to mark notification failed",
				zap.Int64("notification_id", notificationID),
				zap.Error(updErr))
		}
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}

	return nil
}
