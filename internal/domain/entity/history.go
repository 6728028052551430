package entity

import "time"

// StageHistory represents one row of the append-only transition log for a
// workflow instance. Rows are never edited or deleted; they exist to answer
// "who moved this, when, why" for audit.
type StageHistory struct {
	ID               int64     `json:"id"`
	InstanceID       int64     `json:"instance_id"`
	FromStage        string    `json:"from_stage"`
	ToStage          string    `json:"to_stage"`
	TransitionReason string    `json:"transition_reason"`
	ActorID          int64     `json:"actor_id"`
	DataSnapshot     string    `json:"data_snapshot"`
	Timestamp        time.Time `json:"timestamp"`
}
