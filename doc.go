// Package dagrun provides a lightweight, embeddable workflow orchestration
// engine for Go: a dependency-aware, bounded-concurrency task executor plus
// a recurring scheduler that runs named workflows on independent intervals
// without overlap.
//
// Dagrun is designed for backend services that need to coordinate multi-step
// jobs (fetch, analyze, act, persist) without introducing external
// infrastructure. It runs fully in-process and integrates cleanly into
// existing codebases.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Step
//  2. Workflow
//  3. Scheduler
//  4. Observer
//  5. Builder
//
// # Step
//
// A Step is the smallest schedulable unit of work: a named function with
// declared dependencies. A step never starts before every step it depends
// on has completed. Steps are single-use; a step that has run once can
// never run again, which makes the lifecycle of every run unambiguous.
//
// StepListeners can be attached at construction time to receive each
// step's terminal outcome exactly once.
//
// # Workflow
//
// A Workflow owns a set of steps and a shared key/value Context, and runs
// the steps under a concurrency bound. Execution honors the dependency
// graph; independent steps run concurrently, up to MaxConcurrentSteps at a
// time. A cyclic or unsatisfiable graph terminates the run as failed in
// bounded time instead of hanging.
//
// The shared Context is deliberately unsynchronized: concurrent steps must
// partition keys by convention or accept last-write-wins races.
//
// When a step fails, no further steps are dispatched, already-running
// steps finish on their own, and the failure is reported through the
// workflow status and Execute's error return. Nothing panics; nothing is
// fatal to the process.
//
// # Scheduler
//
// The Scheduler runs registered workflows periodically, at most one run
// per workflow name at a time. Each launch executes a fresh Clone of the
// registered workflow. A run that outlasts its interval causes the next
// tick to be skipped rather than queued. Run errors are isolated per
// workflow: one misbehaving workflow never halts the others.
//
// Stop is ordered: it blocks until the scheduling loop has exited, while
// in-flight runs are left to finish independently.
//
// An optional Recorder persists a RunRecord per finished run; in-memory,
// SQLite, and Redis backends are provided.
//
// # Observer
//
// Observers receive workflow and step lifecycle events for logging and
// metrics. LoggingObserver writes structured logs via log/slog,
// BasicMetrics keeps atomic counters, and CompositeObserver fans out to
// several observers at once.
//
// # Builder
//
// Builder is the ergonomic way to declare a graph, wiring dependencies by
// step name:
//
//	wf := dagrun.New("cycle").
//	    Step("fetch", fetch).
//	    Step("analyze", analyze, "fetch").
//	    Step("persist", persist, "analyze").
//	    MustBuild()
//
//	wfCtx, err := wf.Execute(ctx)
//
// For examples, see the example tests or the project README.
package dagrun
