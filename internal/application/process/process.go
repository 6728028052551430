// Package process holds the four workflow specializations. Each one declares
// a Definition (stage graph plus per-stage guards) and exposes one initiate
// method and one method per stage action, all returning the uniform result
// envelope. Errors escaping these methods are infrastructure failures;
// business rejections come back as failure envelopes.
package process

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/campuskit/school-workflow/internal/application/engine"
	"github.com/campuskit/school-workflow/internal/application/port"
	"github.com/campuskit/school-workflow/internal/domain/entity"
	"github.com/campuskit/school-workflow/internal/domain/workflow"
)

// Stage action verbs accepted by review methods
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// resultFromErr converts domain-level failures into failure envelopes and
// lets infrastructure errors propagate for the transport layer to handle.
func resultFromErr(err error) (*engine.Result, error) {
	for _, sentinel := range []error{
		engine.ErrNotFound,
		engine.ErrInvalidState,
		engine.ErrInstanceTerminal,
		engine.ErrDuplicateActive,
		engine.ErrUnauthorized,
		engine.ErrValidation,
		workflow.ErrInvalidTransition,
		workflow.ErrMissingFields,
	} {
		if errors.Is(err, sentinel) {
			return engine.Fail(err.Error()), nil
		}
	}
	return nil, err
}

// stageGuard enforces the expected-stage precondition every stage action
// shares. The failure message names the actual current stage.
func stageGuard(instance *entity.WorkflowInstance, action string, expected workflow.Stage) *engine.Result {
	if instance.CurrentStage == expected.String() {
		return nil
	}
	return engine.Fail(fmt.Sprintf("cannot perform %s, current stage is %s", action, instance.CurrentStage))
}

// requireFields reports the fields still missing for entering next, using
// the definition's declared list as the single source of truth.
func requireFields(def *workflow.Definition, next workflow.Stage, data map[string]any) *engine.Result {
	if missing := def.MissingFields(next, data); len(missing) > 0 {
		return engine.Fail(fmt.Sprintf("missing required fields: %s", strings.Join(missing, ", ")))
	}
	return nil
}

func parseAction(action string) (string, *engine.Result) {
	switch action {
	case ActionApprove, ActionReject:
		return action, nil
	default:
		return "", engine.Fail(fmt.Sprintf("unknown action %q, expected %s or %s", action, ActionApprove, ActionReject))
	}
}

func callerRole(ctx context.Context, directory port.Directory, userID int64) (workflow.Role, *engine.Result, error) {
	role, err := directory.GetRole(ctx, userID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to resolve caller role: %w", err)
	}
	if !role.IsValid() {
		return "", engine.Fail(fmt.Sprintf("caller %d has no recognized role", userID)), nil
	}
	return role, nil, nil
}

func envelope(instance *entity.WorkflowInstance, message string) *engine.Result {
	return engine.OK(message, map[string]any{
		"workflow_id": instance.ID,
		"status":      instance.Status,
		"stage":       instance.CurrentStage,
	})
}

func ptr(v int64) *int64 {
	return &v
}

// asInt64 reads a numeric payload value; JSON round-trips turn numbers into
// float64, so both forms are accepted.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

func now() string {
	return time.Now().Format(time.RFC3339)
}
