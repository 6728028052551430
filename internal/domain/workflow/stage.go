package workflow

// Stage represents a named state in a workflow's approval lifecycle
type Stage string

// Stages shared by every workflow definition. StageRejected is a declared
// terminal reachable from every non-terminal stage; StageCancelled is
// implicit and only reachable through the engine's Cancel operation.
const (
	StageRejected  Stage = "rejected"
	StageCancelled Stage = "cancelled"
)

// String returns the string representation of the stage
func (s Stage) String() string {
	return string(s)
}
