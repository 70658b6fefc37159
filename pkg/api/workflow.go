package api

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// DefaultMaxConcurrentSteps is the concurrency bound applied to a workflow
// when SetMaxConcurrentSteps was never called.
const DefaultMaxConcurrentSteps = 5

// Workflow owns a collection of steps and runs them honoring their declared
// dependencies, under a bounded number of simultaneously running steps.
// All steps of one run share a single mutable Context.
//
// A Workflow instance is single-use: Execute may only be called once.
// Clone produces a fresh instance from the same definition for re-runs
// (the Scheduler does this for every recurring launch).
type Workflow struct {
	name   string
	steps  []*Step // insertion order; not an execution-order guarantee
	byName map[string]*Step

	context            *Context
	maxConcurrentSteps int
	onCompletion       []func(*Workflow)
	observer           Observer

	mu        sync.Mutex
	status    Status
	startTime time.Time
	endTime   time.Time
	runErr    error
	started   bool
}

// NewWorkflow creates an empty workflow with the given name and the default
// concurrency bound.
func NewWorkflow(name string) *Workflow {
	return &Workflow{
		name:               name,
		byName:             make(map[string]*Step),
		context:            NewContext(),
		maxConcurrentSteps: DefaultMaxConcurrentSteps,
		observer:           NoopObserver{},
		status:             StatusNotStarted,
	}
}

// Name returns the workflow name.
func (w *Workflow) Name() string { return w.name }

// Status returns the current lifecycle status.
func (w *Workflow) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Err returns the error that failed the run, nil if it completed (or has
// not run yet).
func (w *Workflow) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runErr
}

// StartTime returns when Execute began (zero before the run).
func (w *Workflow) StartTime() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.startTime
}

// EndTime returns when Execute finished (zero until the run is terminal).
func (w *Workflow) EndTime() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.endTime
}

// ExecutionTime returns endTime-startTime once both are set, else 0.
func (w *Workflow) ExecutionTime() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.startTime.IsZero() || w.endTime.IsZero() {
		return 0
	}
	return w.endTime.Sub(w.startTime)
}

// Steps returns the workflow's steps in insertion order.
func (w *Workflow) Steps() []*Step {
	steps := make([]*Step, len(w.steps))
	copy(steps, w.steps)
	return steps
}

// Context returns the shared key/value store for this run.
func (w *Workflow) Context() *Context { return w.context }

// AddStep adds a step to the workflow. Step names must be unique within a
// workflow; a duplicate name returns ErrDuplicateStep.
func (w *Workflow) AddStep(step *Step) error {
	if step == nil {
		return fmt.Errorf("workflow %q: step must not be nil", w.name)
	}
	if _, exists := w.byName[step.Name()]; exists {
		return fmt.Errorf("workflow %q: %w: %s", w.name, ErrDuplicateStep, step.Name())
	}
	w.steps = append(w.steps, step)
	w.byName[step.Name()] = step
	return nil
}

// GetStepByName returns the exact step instance previously added under that
// name, or ErrStepNotFound.
func (w *Workflow) GetStepByName(name string) (*Step, error) {
	step, ok := w.byName[name]
	if !ok {
		return nil, fmt.Errorf("workflow %q: %w: %s", w.name, ErrStepNotFound, name)
	}
	return step, nil
}

// SetMaxConcurrentSteps sets the upper bound on simultaneously running
// steps. Values below 1 restore the default.
func (w *Workflow) SetMaxConcurrentSteps(n int) {
	if n < 1 {
		n = DefaultMaxConcurrentSteps
	}
	w.maxConcurrentSteps = n
}

// MaxConcurrentSteps returns the configured concurrency bound.
func (w *Workflow) MaxConcurrentSteps() int { return w.maxConcurrentSteps }

// AddContext seeds the shared context with a key/value pair before the run.
func (w *Workflow) AddContext(key string, value any) {
	w.context.Set(key, value)
}

// OnCompletion registers a callback invoked exactly once with the finished
// workflow, after its terminal status is set, for both completed and failed
// runs. Callbacks run in registration order on the Execute caller's
// goroutine.
func (w *Workflow) OnCompletion(cb func(*Workflow)) {
	if cb != nil {
		w.onCompletion = append(w.onCompletion, cb)
	}
}

// SetObserver attaches an Observer for lifecycle events. Passing nil
// restores the no-op observer.
func (w *Workflow) SetObserver(obs Observer) {
	if obs == nil {
		obs = NoopObserver{}
	}
	w.observer = obs
}

// stepOutcome is sent on the completion channel by each finished step.
type stepOutcome struct {
	step *Step
	err  error
}

// Execute runs all steps to a terminal state and returns the shared
// Context together with the error that failed the run (nil on success).
//
// Guarantees:
//   - a step never starts before all its dependencies are COMPLETED;
//   - at most MaxConcurrentSteps steps are RUNNING at any instant;
//   - a cyclic or unsatisfiable graph terminates as FAILED with a
//     DeadlockError instead of hanging.
//
// When a step fails, no further steps are dispatched, but steps already in
// flight run to completion; they are not cancelled. Execute never panics
// on step errors: the failure is observable via Status, the failed step's
// Err, and the returned error.
//
// Execute is not safe to call twice on the same instance; the second call
// returns ErrWorkflowConsumed.
func (w *Workflow) Execute(ctx context.Context) (*Context, error) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return w.context, fmt.Errorf("workflow %q: %w", w.name, ErrWorkflowConsumed)
	}
	w.started = true
	w.status = StatusRunning
	w.startTime = time.Now()
	w.mu.Unlock()

	w.observer.OnWorkflowStart(ctx, w)

	runErr := w.runSteps(ctx)

	w.mu.Lock()
	if runErr != nil {
		w.status = StatusFailed
		w.runErr = runErr
	} else {
		w.status = StatusCompleted
	}
	w.endTime = time.Now()
	w.mu.Unlock()

	if runErr != nil {
		w.observer.OnWorkflowFailed(ctx, w, runErr)
	} else {
		w.observer.OnWorkflowCompleted(ctx, w)
	}

	for _, cb := range w.onCompletion {
		cb(w)
	}

	return w.context, runErr
}

// runSteps is the dispatch loop. It is event-driven: when nothing is ready
// it blocks on the completion channel instead of polling.
func (w *Workflow) runSteps(ctx context.Context) error {
	remaining := make(map[*Step]struct{}, len(w.steps))
	for _, s := range w.steps {
		remaining[s] = struct{}{}
	}
	completed := make(map[*Step]struct{}, len(w.steps))

	sem := make(chan struct{}, w.maxConcurrentSteps)
	done := make(chan stepOutcome)

	active := 0
	var firstErr error

	dispatch := func(s *Step) {
		go func() {
			// The semaphore slot, not goroutine start, bounds the number
			// of RUNNING steps.
			sem <- struct{}{}
			defer func() { <-sem }()

			w.observer.OnStepStart(ctx, w, s)
			err := s.RunTracked(ctx, w.context)
			w.observer.OnStepCompleted(ctx, w, s, err, s.ExecutionTime())
			done <- stepOutcome{step: s, err: err}
		}()
	}

	for len(remaining) > 0 && firstErr == nil {
		ready := readySteps(w.steps, remaining, completed)

		if len(ready) == 0 {
			if active == 0 {
				// Nothing ready, nothing running, steps left over: the
				// graph has a cycle or a dependency outside the workflow.
				return &DeadlockError{Workflow: w.name, Remaining: stepNames(remaining)}
			}
			out := <-done
			active--
			if out.err != nil {
				firstErr = &StepError{Step: out.step.Name(), Err: out.err}
			} else {
				completed[out.step] = struct{}{}
			}
			continue
		}

		for _, s := range ready {
			delete(remaining, s)
			active++
			dispatch(s)
		}
	}

	// A failure stops new dispatch only; in-flight steps finish on their own.
	for active > 0 {
		out := <-done
		active--
		if out.err != nil {
			if firstErr == nil {
				firstErr = &StepError{Step: out.step.Name(), Err: out.err}
			}
		} else {
			completed[out.step] = struct{}{}
		}
	}

	return firstErr
}

// readySteps returns, in insertion order, the remaining steps whose
// dependencies have all completed.
func readySteps(order []*Step, remaining, completed map[*Step]struct{}) []*Step {
	var ready []*Step
	for _, s := range order {
		if _, ok := remaining[s]; !ok {
			continue
		}
		eligible := true
		for _, d := range s.dependencies {
			if _, done := completed[d]; !done {
				eligible = false
				break
			}
		}
		if eligible {
			ready = append(ready, s)
		}
	}
	return ready
}

func stepNames(set map[*Step]struct{}) []string {
	names := make([]string, 0, len(set))
	for s := range set {
		names = append(names, s.Name())
	}
	sort.Strings(names)
	return names
}

// Clone builds a fresh, NOT_STARTED workflow from this one's definition:
// new step instances with the same names, functions, listeners, and graph
// edges, a copy of the seeded context values, and the same concurrency
// bound, observer, and completion callbacks.
//
// Dependencies on steps that are not part of this workflow are carried
// over as-is; such a graph deadlocks at run time, exactly as the original
// would.
func (w *Workflow) Clone() *Workflow {
	c := NewWorkflow(w.name)
	c.maxConcurrentSteps = w.maxConcurrentSteps
	c.observer = w.observer
	c.onCompletion = append(c.onCompletion, w.onCompletion...)
	for _, k := range w.context.Keys() {
		c.context.Set(k, w.context.Value(k))
	}

	mapping := make(map[*Step]*Step, len(w.steps))
	for _, s := range w.steps {
		cs := s.clone()
		mapping[s] = cs
		// Cannot fail: names were unique in the original.
		_ = c.AddStep(cs)
	}

	for _, s := range w.steps {
		cs := mapping[s]
		for _, d := range s.dependencies {
			if cd, ok := mapping[d]; ok {
				cs.AddDependency(cd)
			} else {
				cs.AddDependency(d)
			}
		}
		for _, n := range s.nextSteps {
			if cn, ok := mapping[n]; ok {
				cs.nextSteps = append(cs.nextSteps, cn)
			}
		}
		for _, p := range s.previousSteps {
			if cp, ok := mapping[p]; ok {
				cs.previousSteps = append(cs.previousSteps, cp)
			}
		}
	}

	return c
}
