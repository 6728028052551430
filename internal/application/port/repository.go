package port

import (
	"context"

	"github.com/campuskit/school-workflow/internal/domain/entity"
)

// TransactionManager provides a context-scoped unit of work. The transaction
// travels in the context; repositories pick it up transparently.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// InstanceRepository defines persistence operations for WorkflowInstance
type InstanceRepository interface {
	Create(ctx context.Context, instance *entity.WorkflowInstance) error

	// GetByID returns nil, nil when no instance exists; absence is a
	// normal outcome, not an error.
	GetByID(ctx context.Context, id int64) (*entity.WorkflowInstance, error)

	// GetActiveByReference returns the non-terminal instance for a
	// (workflow_type, reference_id) pair, or nil, nil if none is active.
	GetActiveByReference(ctx context.Context, workflowType string, referenceID int64) (*entity.WorkflowInstance, error)

	// AdvanceStage atomically moves an instance from one stage to another,
	// replacing the accumulated data and status. It only succeeds when the
	// instance still occupies fromStage with a non-terminal status, and
	// reports whether a row was updated. This compare-and-swap is the
	// serialization point for racing actions on the same instance.
	AdvanceStage(ctx context.Context, id int64, fromStage, toStage, status string, data map[string]any) (bool, error)

	List(ctx context.Context, workflowType string, limit, offset int) ([]*entity.WorkflowInstance, error)
}

// HistoryRepository defines persistence operations for the append-only
// StageHistory log
type HistoryRepository interface {
	Create(ctx context.Context, history *entity.StageHistory) error
	GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.StageHistory, error)
}

// NotificationRepository defines persistence operations for Notification
type NotificationRepository interface {
	Create(ctx context.Context, notification *entity.Notification) error
	GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.Notification, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
}

// AuditRepository defines persistence operations for the append-only
// action log
type AuditRepository interface {
	Create(ctx context.Context, entry *entity.AuditEntry) error
	GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.AuditEntry, error)
}
