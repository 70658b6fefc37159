// Package api defines the core workflow engine types: Step, Workflow, the
// shared run Context, the Observer lifecycle callbacks, and the engine's
// error taxonomy.
//
// Most applications import the root dagrun package, which re-exports
// everything here; this package exists so the scheduler and storage
// backends can depend on the core types without import cycles.
//
// The execution model in one paragraph: a Workflow holds a DAG of
// single-use Steps. Execute dispatches every step whose dependencies have
// completed, keeps at most MaxConcurrentSteps running at once, and blocks
// on a completion channel (never polls) while waiting for readiness to
// change. A step failure stops new dispatch but does not cancel steps
// already in flight. A graph where no step can ever become ready fails
// with a DeadlockError instead of hanging.
package api
