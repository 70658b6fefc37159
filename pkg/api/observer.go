package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the workflow engine for logging and
// metrics.
//
// Implementations should be fast and non-blocking; heavy work should be
// done asynchronously so as not to delay workflow execution. Step callbacks
// may be invoked from multiple goroutines concurrently.
type Observer interface {
	// OnWorkflowStart is called once when Execute begins, before any step
	// is dispatched.
	OnWorkflowStart(ctx context.Context, wf *Workflow)

	// OnWorkflowCompleted is called when a run reaches StatusCompleted.
	OnWorkflowCompleted(ctx context.Context, wf *Workflow)

	// OnWorkflowFailed is called when a run reaches StatusFailed, whether
	// from a step error or a detected deadlock.
	OnWorkflowFailed(ctx context.Context, wf *Workflow, err error)

	// OnStepStart is called immediately before a step's function runs.
	OnStepStart(ctx context.Context, wf *Workflow, step *Step)

	// OnStepCompleted is called after a step reaches a terminal state, for
	// both successes and failures (err != nil).
	OnStepCompleted(ctx context.Context, wf *Workflow, step *Step, err error, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnWorkflowStart(ctx context.Context, wf *Workflow)             {}
func (NoopObserver) OnWorkflowCompleted(ctx context.Context, wf *Workflow)         {}
func (NoopObserver) OnWorkflowFailed(ctx context.Context, wf *Workflow, err error) {}
func (NoopObserver) OnStepStart(ctx context.Context, wf *Workflow, step *Step)     {}
func (NoopObserver) OnStepCompleted(ctx context.Context, wf *Workflow, step *Step, err error, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnWorkflowStart(ctx context.Context, wf *Workflow) {
	for _, o := range c.observers {
		o.OnWorkflowStart(ctx, wf)
	}
}

func (c *CompositeObserver) OnWorkflowCompleted(ctx context.Context, wf *Workflow) {
	for _, o := range c.observers {
		o.OnWorkflowCompleted(ctx, wf)
	}
}

func (c *CompositeObserver) OnWorkflowFailed(ctx context.Context, wf *Workflow, err error) {
	for _, o := range c.observers {
		o.OnWorkflowFailed(ctx, wf, err)
	}
}

func (c *CompositeObserver) OnStepStart(ctx context.Context, wf *Workflow, step *Step) {
	for _, o := range c.observers {
		o.OnStepStart(ctx, wf, step)
	}
}

func (c *CompositeObserver) OnStepCompleted(ctx context.Context, wf *Workflow, step *Step, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnStepCompleted(ctx, wf, step, err, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs workflow / step
// lifecycle events using the provided slog.Logger. If logger is nil,
// slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnWorkflowStart(ctx context.Context, wf *Workflow) {
	o.Logger.InfoContext(ctx, "workflow_start",
		slog.String("workflow", wf.Name()),
		slog.Int("steps", len(wf.Steps())),
		slog.Int("max_concurrent", wf.MaxConcurrentSteps()),
	)
}

func (o *LoggingObserver) OnWorkflowCompleted(ctx context.Context, wf *Workflow) {
	o.Logger.InfoContext(ctx, "workflow_completed",
		slog.String("workflow", wf.Name()),
		slog.Duration("duration", wf.ExecutionTime()),
	)
}

func (o *LoggingObserver) OnWorkflowFailed(ctx context.Context, wf *Workflow, err error) {
	o.Logger.ErrorContext(ctx, "workflow_failed",
		slog.String("workflow", wf.Name()),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnStepStart(ctx context.Context, wf *Workflow, step *Step) {
	o.Logger.DebugContext(ctx, "step_start",
		slog.String("workflow", wf.Name()),
		slog.String("step", step.Name()),
	)
}

func (o *LoggingObserver) OnStepCompleted(ctx context.Context, wf *Workflow, step *Step, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "step_completed",
		slog.String("workflow", wf.Name()),
		slog.String("step", step.Name()),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate step durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	workflowsStarted   atomic.Int64
	workflowsCompleted atomic.Int64
	workflowsFailed    atomic.Int64
	stepsCompleted     atomic.Int64
	stepsFailed        atomic.Int64
	totalStepDuration  atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	WorkflowsStarted   int64
	WorkflowsCompleted int64
	WorkflowsFailed    int64
	RunningWorkflows   int64

	StepsCompleted  int64
	StepsFailed     int64
	AvgStepDuration time.Duration
}

func (m *BasicMetrics) OnWorkflowStart(ctx context.Context, wf *Workflow) {
	m.workflowsStarted.Add(1)
}

func (m *BasicMetrics) OnWorkflowCompleted(ctx context.Context, wf *Workflow) {
	m.workflowsCompleted.Add(1)
}

func (m *BasicMetrics) OnWorkflowFailed(ctx context.Context, wf *Workflow, err error) {
	m.workflowsFailed.Add(1)
}

func (m *BasicMetrics) OnStepCompleted(ctx context.Context, wf *Workflow, step *Step, err error, d time.Duration) {
	if err != nil {
		m.stepsFailed.Add(1)
		return
	}
	// Only successful steps count toward the average duration.
	m.stepsCompleted.Add(1)
	m.totalStepDuration.Add(d.Nanoseconds())
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.workflowsStarted.Load()
	completed := m.workflowsCompleted.Load()
	failed := m.workflowsFailed.Load()
	steps := m.stepsCompleted.Load()
	totalNs := m.totalStepDuration.Load()

	var avg time.Duration
	if steps > 0 {
		avg = time.Duration(totalNs / steps)
	}

	return BasicMetricsSnapshot{
		WorkflowsStarted:   started,
		WorkflowsCompleted: completed,
		WorkflowsFailed:    failed,
		RunningWorkflows:   started - completed - failed,
		StepsCompleted:     steps,
		StepsFailed:        m.stepsFailed.Load(),
		AvgStepDuration:    avg,
	}
}
