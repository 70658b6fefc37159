package api

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStepConsumed is returned when a Step that already ran is run again.
	// Step instances are single-use; build a fresh Step (or Clone the
	// workflow) to retry.
	ErrStepConsumed = errors.New("step already executed")

	// ErrWorkflowConsumed is returned when Execute is called a second time
	// on the same Workflow instance.
	ErrWorkflowConsumed = errors.New("workflow already executed")

	// ErrDuplicateStep is returned by AddStep when a step with the same
	// name is already part of the workflow.
	ErrDuplicateStep = errors.New("duplicate step name")

	// ErrStepNotFound is returned by GetStepByName for unknown names.
	ErrStepNotFound = errors.New("step not found")
)

// DeadlockError reports that a workflow run stalled: no step was ready,
// none was running, and the steps listed in Remaining never became
// eligible. This happens when the dependency graph contains a cycle or a
// dependency that is not part of the workflow.
//
// There is no single offending step; the workflow as a whole is marked
// Failed.
type DeadlockError struct {
	Workflow  string
	Remaining []string
}

func (e *DeadlockError) Error() string {
	return fmt.Sprintf("workflow %q deadlocked: steps [%s] can never become ready (cycle or unsatisfiable dependency)",
		e.Workflow, strings.Join(e.Remaining, ", "))
}

// StepError wraps the error returned by a step's function, attributing it
// to the step by name. It is the error a failed Workflow.Execute returns,
// and unwraps to the step's own error.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
