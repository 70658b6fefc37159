package dagrun

import (
	"database/sql"

	"github.com/redis/go-redis/v9"

	"github.com/dagrun/dagrun/internal/history"
	"github.com/dagrun/dagrun/pkg/api"
	"github.com/dagrun/dagrun/pkg/scheduler"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Step                 = api.Step
	StepFunc             = api.StepFunc
	StepListener         = api.StepListener
	ListenerFuncs        = api.ListenerFuncs
	Workflow             = api.Workflow
	Context              = api.Context
	Status               = api.Status
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
	DeadlockError        = api.DeadlockError
	StepError            = api.StepError

	Scheduler       = scheduler.Scheduler
	SchedulerOption = scheduler.Option
	EntryStatus     = scheduler.EntryStatus
	RunRecord       = scheduler.RunRecord
	Recorder        = scheduler.Recorder
)

// Re-export constructors and common helpers.

var (
	NewStep              = api.NewStep
	NewWorkflow          = api.NewWorkflow
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver

	NewScheduler = scheduler.New
	WithTick     = scheduler.WithTick
	WithLogger   = scheduler.WithLogger
	WithRecorder = scheduler.WithRecorder
)

// Re-export sentinel errors for errors.Is checks at the call site.

var (
	ErrStepConsumed     = api.ErrStepConsumed
	ErrWorkflowConsumed = api.ErrWorkflowConsumed
	ErrDuplicateStep    = api.ErrDuplicateStep
	ErrStepNotFound     = api.ErrStepNotFound
)

// Re-export status values for convenience.

const (
	StatusNotStarted = api.StatusNotStarted
	StatusRunning    = api.StatusRunning
	StatusCompleted  = api.StatusCompleted
	StatusFailed     = api.StatusFailed

	DefaultMaxConcurrentSteps = api.DefaultMaxConcurrentSteps
	DefaultTick               = scheduler.DefaultTick
)

// Recorder constructors
// These wrap the internal/history package so external callers never need
// to import internal packages.

// NewMemoryRecorder returns a non-durable, in-memory run Recorder.
// Best for tests and simple single-process deployments.
func NewMemoryRecorder() Recorder {
	return history.NewMemoryRecorder()
}

// NewSQLiteRecorder returns a Recorder that persists run records in a
// SQLite database. The schema is created on first use.
func NewSQLiteRecorder(db *sql.DB) (Recorder, error) {
	return history.NewSQLiteRecorder(db)
}

// NewRedisRecorder returns a Recorder that persists run records in Redis
// under the given key prefix (defaults to "dagrun:" when empty).
func NewRedisRecorder(client *redis.Client, prefix string) Recorder {
	return history.NewRedisRecorder(client, prefix)
}
