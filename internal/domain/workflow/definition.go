package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// StageHook is invoked by the engine after a transition into a stage has been
// persisted, inside the same transaction. Returning an error rolls the whole
// advance back.
type StageHook func(ctx context.Context, instanceID int64, stage Stage, data map[string]any) error

// StageRule declares everything about entering and leaving a single stage:
// the legal next stages, the role allowed to act on it, and the data fields
// that must be present before the stage can be entered. Keeping the rule in
// one place means the action methods and the engine's transition check
// consult the same source of truth.
type StageRule struct {
	Next           []Stage
	RequiredRole   Role
	RequiredFields []string
	Terminal       bool
	Success        bool
}

// Definition is the static, declarative description of one workflow type:
// its stage graph, initial stage, terminal stages and per-stage guards.
// Specializations supply a Definition value to the engine instead of
// subclassing it.
type Definition struct {
	Type    string
	Initial Stage
	Stages  map[Stage]StageRule

	// ProcessStage performs the specialization's per-stage side effects
	// (typically notification creation). May be nil.
	ProcessStage StageHook
}

// Rule returns the stage rule for a stage
func (d *Definition) Rule(stage Stage) (StageRule, bool) {
	rule, ok := d.Stages[stage]
	return rule, ok
}

// IsTerminal returns true if the stage is a declared terminal stage.
// The implicit cancelled stage is always terminal.
func (d *Definition) IsTerminal(stage Stage) bool {
	if stage == StageCancelled {
		return true
	}
	return d.Stages[stage].Terminal
}

// SuccessTerminal returns the definition's success terminal stage, used by
// the engine's Complete convenience operation.
func (d *Definition) SuccessTerminal() (Stage, bool) {
	for stage, rule := range d.Stages {
		if rule.Terminal && rule.Success {
			return stage, true
		}
	}
	return "", false
}

// MissingFields returns the required fields for entering a stage that are
// absent from data, in sorted order.
func (d *Definition) MissingFields(stage Stage, data map[string]any) []string {
	rule, ok := d.Stages[stage]
	if !ok {
		return nil
	}

	var missing []string
	for _, field := range rule.RequiredFields {
		if _, present := data[field]; !present {
			missing = append(missing, field)
		}
	}
	sort.Strings(missing)
	return missing
}

// ValidateTransition reports whether moving from one stage to another is
// legal under this definition: the target must be a declared successor of
// the source, and data must already carry every field the target stage
// requires. The check is pure; it never touches persistence.
func (d *Definition) ValidateTransition(from, to Stage, data map[string]any) error {
	rule, ok := d.Stages[from]
	if !ok {
		return fmt.Errorf("%w: %s has no stage %s", ErrUnknownStage, d.Type, from)
	}

	allowed := false
	for _, next := range rule.Next {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s is not declared for %s", ErrInvalidTransition, from, to, d.Type)
	}

	if missing := d.MissingFields(to, data); len(missing) > 0 {
		return fmt.Errorf("%w: stage %s requires %s", ErrMissingFields, to, strings.Join(missing, ", "))
	}

	return nil
}

// Validate checks the structural invariants of the stage graph: every
// declared successor exists, the graph is acyclic, every stage is reachable
// from the initial stage, at least one terminal stage is reachable, rejected
// is reachable from every non-terminal stage, and terminal stages have no
// outgoing transitions.
func (d *Definition) Validate() error {
	if d.Type == "" {
		return fmt.Errorf("%w: empty workflow type", ErrInvalidDefinition)
	}
	if _, ok := d.Stages[d.Initial]; !ok {
		return fmt.Errorf("%w: %s initial stage %s is not declared", ErrInvalidDefinition, d.Type, d.Initial)
	}

	hasTerminal := false
	for stage, rule := range d.Stages {
		if rule.Terminal {
			hasTerminal = true
			if len(rule.Next) > 0 {
				return fmt.Errorf("%w: %s terminal stage %s has outgoing transitions", ErrInvalidDefinition, d.Type, stage)
			}
			continue
		}

		rejectable := false
		for _, next := range rule.Next {
			if _, ok := d.Stages[next]; !ok {
				return fmt.Errorf("%w: %s stage %s points at undeclared stage %s", ErrInvalidDefinition, d.Type, stage, next)
			}
			if next == StageRejected {
				rejectable = true
			}
		}
		if !rejectable {
			return fmt.Errorf("%w: %s stage %s cannot reach rejected", ErrInvalidDefinition, d.Type, stage)
		}
	}
	if !hasTerminal {
		return fmt.Errorf("%w: %s has no terminal stage", ErrInvalidDefinition, d.Type)
	}

	// Depth-first walk from the initial stage: cycle detection and
	// reachability in one pass.
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[Stage]int, len(d.Stages))

	var walk func(stage Stage) error
	walk = func(stage Stage) error {
		switch state[stage] {
		case visiting:
			return fmt.Errorf("%w: %s stage graph has a cycle through %s", ErrInvalidDefinition, d.Type, stage)
		case done:
			return nil
		}
		state[stage] = visiting
		for _, next := range d.Stages[stage].Next {
			if err := walk(next); err != nil {
				return err
			}
		}
		state[stage] = done
		return nil
	}
	if err := walk(d.Initial); err != nil {
		return err
	}

	for stage := range d.Stages {
		if state[stage] != done {
			return fmt.Errorf("%w: %s stage %s is unreachable from %s", ErrInvalidDefinition, d.Type, stage, d.Initial)
		}
	}

	return nil
}
