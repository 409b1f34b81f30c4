// Package release owns the orchestration control loop: change detection,
// the build gate, reconciliation under lock, and rollout verification.
package release

import "time"

// TaskState tracks one build task from creation to a terminal state.
type TaskState string

const (
	TaskPending  TaskState = "pending"
	TaskBuilding TaskState = "building"
	TaskPushed   TaskState = "pushed"
	TaskSkipped  TaskState = "skipped"
	TaskFailed   TaskState = "failed"
)

// Terminal reports whether the state is one of pushed, skipped, or failed.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskPushed, TaskSkipped, TaskFailed:
		return true
	}
	return false
}

// BuildTask is one unit of image build-and-publish work. It is owned
// exclusively by the build step executing it; other stages only read the
// terminal result.
type BuildTask struct {
	Component  string    `json:"component"`
	Repository string    `json:"repository"`
	Tag        string    `json:"tag"`
	ContextDir string    `json:"-"`
	State      TaskState `json:"state"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}
