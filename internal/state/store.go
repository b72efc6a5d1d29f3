// Package state records pipeline runs and their step history in SQLite.
package state

import (
	"context"
	"errors"
	"time"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// StepStatus is the lifecycle state of one step within a run.
type StepStatus string

// Step statuses.
const (
	StepStatusPending StepStatus = "pending"
	StepStatusRunning StepStatus = "running"
	StepStatusSuccess StepStatus = "success"
	StepStatusFailed  StepStatus = "failed"
	StepStatusSkipped StepStatus = "skipped"
)

// Run is one execution of the pipeline over an input file.
type Run struct {
	ID          string     `json:"id" yaml:"id"`
	Environment string     `json:"environment" yaml:"environment"`
	InputPath   string     `json:"input_path" yaml:"input_path"`
	OutputPath  string     `json:"output_path,omitempty" yaml:"output_path,omitempty"`
	Status      RunStatus  `json:"status" yaml:"status"`
	RowsIn      int        `json:"rows_in" yaml:"rows_in"`
	RowsOut     int        `json:"rows_out" yaml:"rows_out"`
	StartedAt   time.Time  `json:"started_at" yaml:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty" yaml:"error,omitempty"`
}

// Duration returns the run's wall time, or zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// StepRun is the outcome of one pipeline step within a run.
type StepRun struct {
	ID         string     `json:"id" yaml:"id"`
	RunID      string     `json:"run_id" yaml:"run_id"`
	Position   int        `json:"position" yaml:"position"`
	Stage      string     `json:"stage" yaml:"stage"`
	Step       string     `json:"step" yaml:"step"`
	Status     StepStatus `json:"status" yaml:"status"`
	Rows       int        `json:"rows" yaml:"rows"`
	DurationMS int64      `json:"duration_ms" yaml:"duration_ms"`
	Error      string     `json:"error,omitempty" yaml:"error,omitempty"`
}

// Store persists runs and step runs.
type Store interface {
	CreateRun(ctx context.Context, env, inputPath string) (*Run, error)
	SetRunRows(ctx context.Context, id string, rowsIn, rowsOut int) error
	CompleteRun(ctx context.Context, id string, status RunStatus, outputPath, errMsg string) error
	GetRun(ctx context.Context, id string) (*Run, error)
	LatestRun(ctx context.Context, env string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	RecordStepRun(ctx context.Context, sr *StepRun) error
	UpdateStepRun(ctx context.Context, id string, status StepStatus, rows int, durationMS int64, errMsg string) error
	SkipPendingSteps(ctx context.Context, runID, reason string) (int64, error)
	ListStepRuns(ctx context.Context, runID string) ([]*StepRun, error)

	Close() error
}
