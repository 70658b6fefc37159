package api

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Status represents the lifecycle state of a step or workflow.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusRunning    Status = "RUNNING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// StepFunc is the unit of domain logic attached to a Step. It receives the
// workflow's shared Context and returns an opaque result or an error.
//
// The engine makes no attempt to retract side effects of sibling steps when
// one step fails, so implementations should be idempotent where possible.
type StepFunc func(ctx context.Context, wf *Context) (any, error)

// StepListener receives the terminal outcome of a single step.
//
// Listeners are registered at construction time via AddListener and are
// invoked exactly once, in registration order, after the step's terminal
// status is set but before its end time is finalized. Implementations
// should be fast; heavy work should be done asynchronously.
type StepListener interface {
	OnSuccess(step *Step, result any)
	OnFailure(step *Step, err error)
}

// ListenerFuncs adapts plain functions to the StepListener interface.
// Nil fields are simply skipped.
type ListenerFuncs struct {
	Success func(step *Step, result any)
	Failure func(step *Step, err error)
}

func (l ListenerFuncs) OnSuccess(step *Step, result any) {
	if l.Success != nil {
		l.Success(step, result)
	}
}

func (l ListenerFuncs) OnFailure(step *Step, err error) {
	if l.Failure != nil {
		l.Failure(step, err)
	}
}

// Step is the smallest schedulable unit of work. It carries a name, the
// function to run, the set of steps that must complete before it may start,
// and the status/result of its single execution.
//
// A Step instance is single-use: once it reaches COMPLETED or FAILED it can
// never run again. Re-running requires a fresh instance with the same name
// (Workflow.Clone produces one for every step).
type Step struct {
	name string
	fn   StepFunc

	// dependencies is the authoritative gating set: every step here must
	// reach COMPLETED before this step may start.
	dependencies []*Step

	// nextSteps/previousSteps mirror the graph for navigation and
	// inspection. They are bookkeeping only; the executor gates on
	// dependencies alone.
	nextSteps     []*Step
	previousSteps []*Step

	listeners []StepListener

	mu        sync.Mutex
	status    Status
	startTime time.Time
	endTime   time.Time
	result    any
	err       error
}

// NewStep creates a Step with the given name and function.
// Step names are used for lookup within a workflow and must be unique there;
// uniqueness is enforced by Workflow.AddStep, not globally.
func NewStep(name string, fn StepFunc) *Step {
	return &Step{
		name:   name,
		fn:     fn,
		status: StatusNotStarted,
	}
}

// Name returns the step name.
func (s *Step) Name() string { return s.name }

// Status returns the current lifecycle status.
func (s *Step) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Result returns the value produced by a COMPLETED run, nil otherwise.
func (s *Step) Result() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Err returns the error captured by a FAILED run, nil otherwise.
func (s *Step) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// StartTime returns when execution began (zero until the step starts).
func (s *Step) StartTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime
}

// EndTime returns when execution finished (zero until the step is terminal).
func (s *Step) EndTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endTime
}

// ExecutionTime returns endTime-startTime once both are set, else 0.
func (s *Step) ExecutionTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startTime.IsZero() || s.endTime.IsZero() {
		return 0
	}
	return s.endTime.Sub(s.startTime)
}

// Dependencies returns the steps gating this one.
func (s *Step) Dependencies() []*Step {
	deps := make([]*Step, len(s.dependencies))
	copy(deps, s.dependencies)
	return deps
}

// NextSteps returns the navigational list of successor steps.
func (s *Step) NextSteps() []*Step {
	next := make([]*Step, len(s.nextSteps))
	copy(next, s.nextSteps)
	return next
}

// PreviousSteps returns the navigational list of predecessor steps.
func (s *Step) PreviousSteps() []*Step {
	prev := make([]*Step, len(s.previousSteps))
	copy(prev, s.previousSteps)
	return prev
}

// AddDependency declares that other must complete before this step starts.
// Adding the same dependency twice is a no-op.
func (s *Step) AddDependency(other *Step) *Step {
	for _, d := range s.dependencies {
		if d == other {
			return s
		}
	}
	s.dependencies = append(s.dependencies, other)
	return s
}

// AddNextStep declares next as a successor of this step. It registers the
// reverse dependency edge on next and keeps the nextSteps/previousSteps
// mirrors symmetric.
func (s *Step) AddNextStep(next *Step) *Step {
	for _, n := range s.nextSteps {
		if n == next {
			return s
		}
	}
	s.nextSteps = append(s.nextSteps, next)
	next.previousSteps = append(next.previousSteps, s)
	next.AddDependency(s)
	return s
}

// AddListener registers a StepListener. Listeners must be registered before
// the step runs; registration during a run is not supported.
func (s *Step) AddListener(l StepListener) *Step {
	if l != nil {
		s.listeners = append(s.listeners, l)
	}
	return s
}

// RunTracked executes the step function under full lifecycle tracking:
// status transitions, start/end timestamps, result or error capture, and
// listener notification. The end time is recorded via defer so it is set on
// every exit path.
//
// An error from the step function is returned to the caller (it propagates;
// it is not swallowed). Running a step that is no longer NOT_STARTED
// returns ErrStepConsumed.
func (s *Step) RunTracked(ctx context.Context, wf *Context) error {
	s.mu.Lock()
	if s.status != StatusNotStarted {
		s.mu.Unlock()
		return fmt.Errorf("step %q: %w", s.name, ErrStepConsumed)
	}
	s.status = StatusRunning
	s.startTime = time.Now()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.endTime = time.Now()
		s.mu.Unlock()
	}()

	result, err := s.fn(ctx, wf)
	if err != nil {
		s.mu.Lock()
		s.status = StatusFailed
		s.err = err
		s.mu.Unlock()

		for _, l := range s.listeners {
			l.OnFailure(s, err)
		}
		return err
	}

	s.mu.Lock()
	s.status = StatusCompleted
	s.result = result
	s.mu.Unlock()

	for _, l := range s.listeners {
		l.OnSuccess(s, result)
	}
	return nil
}

// clone returns a fresh, NOT_STARTED copy of the step definition (name,
// function, listeners). Graph edges are remapped by Workflow.Clone.
func (s *Step) clone() *Step {
	c := NewStep(s.name, s.fn)
	c.listeners = append(c.listeners, s.listeners...)
	return c
}
