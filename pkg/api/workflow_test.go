package api

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// sleepy returns a step function that sleeps then succeeds with value.
func sleepy(d time.Duration, value any) StepFunc {
	return func(ctx context.Context, wf *Context) (any, error) {
		time.Sleep(d)
		return value, nil
	}
}

func TestExecute_LiteralTradingScenario(t *testing.T) {
	// Fetch (no deps), Analyze (dep Fetch), Execute (dep Analyze),
	// Persist (dep Analyze), maxConcurrentSteps = 2.
	wf := NewWorkflow("trading-cycle")
	wf.SetMaxConcurrentSteps(2)

	fetch := NewStep("Fetch", func(ctx context.Context, c *Context) (any, error) {
		c.Set("prices", []float64{1.5, 2.5})
		return "fetched", nil
	})
	analyze := NewStep("Analyze", func(ctx context.Context, c *Context) (any, error) {
		prices, ok := c.Get("prices")
		if !ok {
			t.Error("Analyze ran without Fetch's context value")
		}
		c.Set("signal", len(prices.([]float64)))
		return "analyzed", nil
	})
	exec := NewStep("Execute", sleepy(2*time.Millisecond, "executed"))
	persist := NewStep("Persist", sleepy(2*time.Millisecond, "persisted"))

	analyze.AddDependency(fetch)
	exec.AddDependency(analyze)
	persist.AddDependency(analyze)

	for _, s := range []*Step{fetch, analyze, exec, persist} {
		if err := wf.AddStep(s); err != nil {
			t.Fatalf("AddStep(%s) failed: %v", s.Name(), err)
		}
	}

	wfCtx, err := wf.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if wfCtx == nil {
		t.Fatalf("expected the shared context to be returned")
	}

	if got := wf.Status(); got != StatusCompleted {
		t.Fatalf("expected workflow status %q, got %q", StatusCompleted, got)
	}
	for _, s := range wf.Steps() {
		if s.Status() != StatusCompleted {
			t.Fatalf("step %s: expected %q, got %q", s.Name(), StatusCompleted, s.Status())
		}
	}

	// Topological soundness: for every dependency pair, the dependency
	// finished before the dependent started.
	pairs := [][2]*Step{{fetch, analyze}, {analyze, exec}, {analyze, persist}}
	for _, p := range pairs {
		before, after := p[0], p[1]
		if after.StartTime().Before(before.EndTime()) {
			t.Fatalf("%s started at %v before %s ended at %v",
				after.Name(), after.StartTime(), before.Name(), before.EndTime())
		}
	}
}

func TestExecute_FailureGating(t *testing.T) {
	wf := NewWorkflow("gating")

	boom := errors.New("boom")
	b := NewStep("B", func(ctx context.Context, c *Context) (any, error) {
		return nil, boom
	})
	c := NewStep("C", nopStep)
	c.AddDependency(b)

	if err := wf.AddStep(b); err != nil {
		t.Fatalf("AddStep failed: %v", err)
	}
	if err := wf.AddStep(c); err != nil {
		t.Fatalf("AddStep failed: %v", err)
	}

	_, err := wf.Execute(context.Background())
	if err == nil {
		t.Fatalf("expected Execute to report the failure")
	}

	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != "B" {
		t.Fatalf("expected a StepError for step B, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected error chain to contain the step's own error, got %v", err)
	}

	if got := b.Status(); got != StatusFailed {
		t.Fatalf("B: expected %q, got %q", StatusFailed, got)
	}
	if b.Err() == nil || b.Err().Error() != "boom" {
		t.Fatalf("B: expected captured error \"boom\", got %v", b.Err())
	}
	if got := c.Status(); got != StatusNotStarted {
		t.Fatalf("C: expected %q, got %q", StatusNotStarted, got)
	}
	if got := wf.Status(); got != StatusFailed {
		t.Fatalf("workflow: expected %q, got %q", StatusFailed, got)
	}
}

func TestExecute_CycleTerminatesAsDeadlock(t *testing.T) {
	wf := NewWorkflow("cyclic")

	a := NewStep("A", nopStep)
	b := NewStep("B", nopStep)
	a.AddDependency(b)
	b.AddDependency(a)

	if err := wf.AddStep(a); err != nil {
		t.Fatalf("AddStep failed: %v", err)
	}
	if err := wf.AddStep(b); err != nil {
		t.Fatalf("AddStep failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := wf.Execute(context.Background())
		done <- err
	}()

	select {
	case err := <-done:
		var dl *DeadlockError
		if !errors.As(err, &dl) {
			t.Fatalf("expected DeadlockError, got %v", err)
		}
		if len(dl.Remaining) != 2 {
			t.Fatalf("expected both steps reported unreachable, got %v", dl.Remaining)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("cyclic graph must terminate in bounded time, not hang")
	}

	if got := wf.Status(); got != StatusFailed {
		t.Fatalf("expected workflow status %q, got %q", StatusFailed, got)
	}
	for _, s := range wf.Steps() {
		if s.Status() != StatusNotStarted {
			t.Fatalf("step %s must never start in a cyclic graph, got %q", s.Name(), s.Status())
		}
	}
}

func TestExecute_UnsatisfiableDependencyDeadlocks(t *testing.T) {
	wf := NewWorkflow("missing-dep")

	outside := NewStep("outside", nopStep) // never added to the workflow
	inside := NewStep("inside", nopStep)
	inside.AddDependency(outside)

	if err := wf.AddStep(inside); err != nil {
		t.Fatalf("AddStep failed: %v", err)
	}

	_, err := wf.Execute(context.Background())
	var dl *DeadlockError
	if !errors.As(err, &dl) {
		t.Fatalf("expected DeadlockError, got %v", err)
	}
	if len(dl.Remaining) != 1 || dl.Remaining[0] != "inside" {
		t.Fatalf("expected [inside] unreachable, got %v", dl.Remaining)
	}
}

func TestExecute_ConcurrencyBound(t *testing.T) {
	const bound = 2
	const stepCount = 8

	wf := NewWorkflow("bounded")
	wf.SetMaxConcurrentSteps(bound)

	var running, peak atomic.Int64
	for i := 0; i < stepCount; i++ {
		name := string(rune('a' + i))
		step := NewStep(name, func(ctx context.Context, c *Context) (any, error) {
			now := running.Add(1)
			for {
				old := peak.Load()
				if now <= old || peak.CompareAndSwap(old, now) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return nil, nil
		})
		if err := wf.AddStep(step); err != nil {
			t.Fatalf("AddStep failed: %v", err)
		}
	}

	if _, err := wf.Execute(context.Background()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if got := peak.Load(); got > bound {
		t.Fatalf("observed %d simultaneously running steps, bound is %d", got, bound)
	}
	if got := peak.Load(); got < 2 {
		t.Fatalf("independent steps should actually run concurrently, peak was %d", got)
	}
}

func TestExecute_SingleDispatch(t *testing.T) {
	wf := NewWorkflow("single-dispatch")

	var mu sync.Mutex
	invocations := make(map[string]int)
	counting := func(name string) StepFunc {
		return func(ctx context.Context, c *Context) (any, error) {
			mu.Lock()
			invocations[name]++
			mu.Unlock()
			return nil, nil
		}
	}

	a := NewStep("a", counting("a"))
	b := NewStep("b", counting("b"))
	c := NewStep("c", counting("c"))
	b.AddDependency(a)
	c.AddDependency(a)
	c.AddDependency(b)

	for _, s := range []*Step{a, b, c} {
		if err := wf.AddStep(s); err != nil {
			t.Fatalf("AddStep failed: %v", err)
		}
	}

	got, err := wf.GetStepByName("b")
	if err != nil {
		t.Fatalf("GetStepByName failed: %v", err)
	}
	if got != b {
		t.Fatalf("GetStepByName must return the exact instance added")
	}

	if _, err := wf.Execute(context.Background()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	for name, n := range invocations {
		if n != 1 {
			t.Fatalf("step %s executed %d times, want 1", name, n)
		}
	}
	if len(invocations) != 3 {
		t.Fatalf("expected 3 steps executed, got %d", len(invocations))
	}
}

func TestExecute_InFlightSiblingsFinishAfterFailure(t *testing.T) {
	wf := NewWorkflow("let-them-finish")
	wf.SetMaxConcurrentSteps(2)

	slowDone := make(chan struct{})
	slow := NewStep("slow", func(ctx context.Context, c *Context) (any, error) {
		time.Sleep(20 * time.Millisecond)
		close(slowDone)
		return "slow-result", nil
	})
	fast := NewStep("fast", func(ctx context.Context, c *Context) (any, error) {
		return nil, errors.New("fast failure")
	})

	if err := wf.AddStep(slow); err != nil {
		t.Fatalf("AddStep failed: %v", err)
	}
	if err := wf.AddStep(fast); err != nil {
		t.Fatalf("AddStep failed: %v", err)
	}

	_, err := wf.Execute(context.Background())
	if err == nil {
		t.Fatalf("expected the fast step's failure to surface")
	}

	// Execute must not return before the in-flight sibling reached a
	// terminal state.
	select {
	case <-slowDone:
	default:
		t.Fatalf("Execute returned while a dispatched step was still running")
	}
	if got := slow.Status(); got != StatusCompleted {
		t.Fatalf("already-dispatched sibling must finish, got %q", got)
	}
	if got := wf.Status(); got != StatusFailed {
		t.Fatalf("expected workflow status %q, got %q", StatusFailed, got)
	}
}

func TestExecute_SerialOrderIsTopological(t *testing.T) {
	wf := NewWorkflow("serial")
	wf.SetMaxConcurrentSteps(1)

	var mu sync.Mutex
	var order []string
	appendStep := func(name string) StepFunc {
		return func(ctx context.Context, c *Context) (any, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil, nil
		}
	}

	a := NewStep("a", appendStep("a"))
	b := NewStep("b", appendStep("b"))
	c := NewStep("c", appendStep("c"))
	c.AddDependency(a)
	c.AddDependency(b)

	for _, s := range []*Step{c, a, b} { // insertion order is not execution order
		if err := wf.AddStep(s); err != nil {
			t.Fatalf("AddStep failed: %v", err)
		}
	}

	if _, err := wf.Execute(context.Background()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if len(order) != 3 || order[2] != "c" {
		t.Fatalf("c must run after both dependencies, got order %v", order)
	}
}

func TestExecute_SecondCallIsRejected(t *testing.T) {
	wf := NewWorkflow("once")
	if err := wf.AddStep(NewStep("s", nopStep)); err != nil {
		t.Fatalf("AddStep failed: %v", err)
	}

	if _, err := wf.Execute(context.Background()); err != nil {
		t.Fatalf("first Execute failed: %v", err)
	}

	_, err := wf.Execute(context.Background())
	if !errors.Is(err, ErrWorkflowConsumed) {
		t.Fatalf("expected ErrWorkflowConsumed, got %v", err)
	}
}

func TestExecute_OnCompletionRunsForBothOutcomes(t *testing.T) {
	t.Run("completed", func(t *testing.T) {
		wf := NewWorkflow("cb-ok")
		if err := wf.AddStep(NewStep("s", nopStep)); err != nil {
			t.Fatalf("AddStep failed: %v", err)
		}

		calls := 0
		wf.OnCompletion(func(done *Workflow) {
			calls++
			if done != wf {
				t.Errorf("callback received a different workflow")
			}
			if done.Status() != StatusCompleted {
				t.Errorf("callback must observe the terminal status, got %q", done.Status())
			}
		})

		if _, err := wf.Execute(context.Background()); err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		if calls != 1 {
			t.Fatalf("completion callback ran %d times, want 1", calls)
		}
	})

	t.Run("failed", func(t *testing.T) {
		wf := NewWorkflow("cb-fail")
		if err := wf.AddStep(NewStep("s", func(ctx context.Context, c *Context) (any, error) {
			return nil, errors.New("nope")
		})); err != nil {
			t.Fatalf("AddStep failed: %v", err)
		}

		calls := 0
		wf.OnCompletion(func(done *Workflow) {
			calls++
			if done.Status() != StatusFailed {
				t.Errorf("callback must observe the failed status, got %q", done.Status())
			}
		})

		if _, err := wf.Execute(context.Background()); err == nil {
			t.Fatalf("expected Execute to report failure")
		}
		if calls != 1 {
			t.Fatalf("completion callback ran %d times, want 1", calls)
		}
	})
}

func TestAddStep_RejectsDuplicateNames(t *testing.T) {
	wf := NewWorkflow("dups")
	if err := wf.AddStep(NewStep("same", nopStep)); err != nil {
		t.Fatalf("first AddStep failed: %v", err)
	}
	err := wf.AddStep(NewStep("same", nopStep))
	if !errors.Is(err, ErrDuplicateStep) {
		t.Fatalf("expected ErrDuplicateStep, got %v", err)
	}
}

func TestGetStepByName_Unknown(t *testing.T) {
	wf := NewWorkflow("lookup")
	_, err := wf.GetStepByName("ghost")
	if !errors.Is(err, ErrStepNotFound) {
		t.Fatalf("expected ErrStepNotFound, got %v", err)
	}
}

func TestExecute_EmptyWorkflowCompletes(t *testing.T) {
	wf := NewWorkflow("empty")
	if _, err := wf.Execute(context.Background()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := wf.Status(); got != StatusCompleted {
		t.Fatalf("expected %q, got %q", StatusCompleted, got)
	}
}

func TestClone_IndependentRunFromSameDefinition(t *testing.T) {
	template := NewWorkflow("template")
	template.SetMaxConcurrentSteps(3)
	template.AddContext("seed", "value")

	var runs atomic.Int64
	a := NewStep("a", func(ctx context.Context, c *Context) (any, error) {
		runs.Add(1)
		return nil, nil
	})
	b := NewStep("b", nopStep)
	listener := &recordingListener{}
	b.AddListener(listener)
	a.AddNextStep(b)

	if err := template.AddStep(a); err != nil {
		t.Fatalf("AddStep failed: %v", err)
	}
	if err := template.AddStep(b); err != nil {
		t.Fatalf("AddStep failed: %v", err)
	}

	first := template.Clone()
	second := template.Clone()

	if _, err := first.Execute(context.Background()); err != nil {
		t.Fatalf("first clone Execute failed: %v", err)
	}
	if _, err := second.Execute(context.Background()); err != nil {
		t.Fatalf("second clone Execute failed: %v", err)
	}

	if got := runs.Load(); got != 2 {
		t.Fatalf("expected step a to run once per clone, got %d", got)
	}
	if listener.successes != 2 {
		t.Fatalf("listeners must carry over to clones, got %d successes", listener.successes)
	}

	// The template itself was never consumed.
	if got := template.Status(); got != StatusNotStarted {
		t.Fatalf("template must stay %q, got %q", StatusNotStarted, got)
	}
	tplStep, err := template.GetStepByName("a")
	if err != nil {
		t.Fatalf("GetStepByName failed: %v", err)
	}
	if tplStep.Status() != StatusNotStarted {
		t.Fatalf("template steps must stay %q, got %q", StatusNotStarted, tplStep.Status())
	}

	// Clone remaps graph edges onto the new instances.
	cloneB, err := first.GetStepByName("b")
	if err != nil {
		t.Fatalf("GetStepByName failed: %v", err)
	}
	if cloneB == b {
		t.Fatalf("clone must not share step instances with the template")
	}
	deps := cloneB.Dependencies()
	if len(deps) != 1 || deps[0].Name() != "a" || deps[0] == a {
		t.Fatalf("clone dependency edges must point at cloned steps, got %v", deps)
	}

	// Seeded context values are copied, not shared.
	if v, _ := first.Context().Get("seed"); v != "value" {
		t.Fatalf("expected seeded context value in clone, got %v", v)
	}
	first.Context().Set("seed", "mutated")
	if v, _ := template.Context().Get("seed"); v != "value" {
		t.Fatalf("mutating a clone's context must not touch the template")
	}
}
