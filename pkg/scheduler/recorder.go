package scheduler

import (
	"context"
	"time"

	"github.com/dagrun/dagrun/pkg/api"
)

// RunRecord is the audit entry written after every scheduled run finishes,
// successfully or not.
type RunRecord struct {
	// ID uniquely identifies the run.
	ID string

	// Workflow is the scheduled workflow's name.
	Workflow string

	// Status is the terminal status of the run.
	Status api.Status

	// Error holds the run error's message, empty on success.
	Error string

	StartedAt time.Time
	Duration  time.Duration
}

// Recorder persists RunRecords. The scheduler calls Record once per
// finished run; a Record error is logged and otherwise ignored, so a
// misbehaving backend cannot stop the scheduling loop.
//
// Backends live in internal/history and are constructed through the root
// package (NewMemoryRecorder, NewSQLiteRecorder, NewRedisRecorder).
type Recorder interface {
	// Record stores one finished run.
	Record(ctx context.Context, rec RunRecord) error

	// ListRuns returns the recorded runs for a workflow name, most recent
	// first. An empty name returns all runs.
	ListRuns(ctx context.Context, workflow string) ([]RunRecord, error)
}
