// Package state records prediction run history in a local SQLite database.
// It tracks each run's declared parameters, status, timing and outputs.
package state

import "time"

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "Running"
	RunStatusSuccess   RunStatus = "Success"
	RunStatusFailed    RunStatus = "Failed"
	RunStatusCancelled RunStatus = "Cancelled"
)

// Parameter is a named run input or output, kept in declaration order.
type Parameter struct {
	Name  string
	Value string
}

// Run is one recorded execution of the tool.
type Run struct {
	ID           string
	Tool         string
	Version      string
	Status       RunStatus
	StartedAt    time.Time
	CompletedAt  *time.Time
	Error        string
	OutPath      string
	MetadataPath string
	Parameters   []Parameter
}

// Duration returns the run's wall time, zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// Completion carries the final state of a run.
type Completion struct {
	Status       RunStatus
	Error        string
	OutPath      string
	MetadataPath string
}

// Store persists run history.
type Store interface {
	Open(path string) error
	Close() error
	Migrate() error

	CreateRun(tool, version string, startedAt time.Time) (*Run, error)
	AddParameters(runID string, params []Parameter) error
	CompleteRun(runID string, completedAt time.Time, c Completion) error
	GetRun(id string) (*Run, error)
	ListRuns(limit int) ([]*Run, error)
}
