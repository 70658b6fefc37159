// Package scheduler triggers recurring, non-overlapping runs of named
// workflows on independent intervals.
//
// Each scheduled workflow acts as a template: every launch executes a
// fresh Clone, so the single-use semantics of Workflow and Step are never
// violated by recurrence. At most one run per workflow name is in flight
// at any time; when a run outlasts its interval, the next due tick is
// simply skipped (backpressure by omission, not a queue of catch-up runs).
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dagrun/dagrun/pkg/api"
)

// DefaultTick is the polling resolution of the scheduling loop. Intervals
// shorter than the tick still fire at most once per tick.
const DefaultTick = 250 * time.Millisecond

// ErrAlreadyStarted is returned by Start when the loop is already running.
var ErrAlreadyStarted = errors.New("scheduler already started")

// EntryStatus reports the state of one scheduled workflow.
type EntryStatus struct {
	Interval time.Duration

	// Running is true while a launched run is still in flight.
	Running bool

	// LastStatus is the terminal status of the most recently finished run,
	// empty before the first run finishes.
	LastStatus api.Status

	// LastDuration is how long the most recently finished run took.
	LastDuration time.Duration

	// LastStarted is when the most recent run was launched.
	LastStarted time.Time

	// LastError is the error of the most recently finished run, nil on
	// success. Run errors never stop the scheduling loop.
	LastError error
}

// entry is one scheduled workflow. lastRun is stamped at launch time, not
// completion time, so a slow run does not cause a burst of catch-up runs.
type entry struct {
	template *api.Workflow
	interval time.Duration

	lastRun      time.Time
	lastStarted  time.Time
	lastStatus   api.Status
	lastDuration time.Duration
	lastErr      error
}

// Scheduler runs registered workflows periodically. It is safe for
// concurrent use; an internal mutex guards the entry and running
// registries, which are mutated by both the tick loop and run-completion
// goroutines.
type Scheduler struct {
	tick     time.Duration
	logger   *slog.Logger
	recorder Recorder

	mu      sync.Mutex
	entries map[string]*entry
	running map[string]struct{}
	started bool

	stopCh   chan struct{}
	loopDone chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTick overrides the polling resolution of the scheduling loop.
func WithTick(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithLogger sets the slog.Logger used for run errors and lifecycle
// messages. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder attaches a Recorder that receives a RunRecord for every
// finished run.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) {
		s.recorder = r
	}
}

// New creates a stopped Scheduler with no entries.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		tick:    DefaultTick,
		logger:  slog.Default(),
		entries: make(map[string]*entry),
		running: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule registers wf to run every interval. It upserts by workflow
// name: a prior entry with the same name is replaced, and its timing state
// is discarded, so the replacement is due on the next tick. An in-flight
// run of the old entry still blocks overlap until it finishes.
//
// The workflow is treated as a template and is never executed directly;
// each launch runs wf.Clone().
func (s *Scheduler) Schedule(wf *api.Workflow, interval time.Duration) error {
	if wf == nil {
		return errors.New("scheduler: workflow must not be nil")
	}
	if wf.Name() == "" {
		return errors.New("scheduler: workflow name must not be empty")
	}
	if interval <= 0 {
		return fmt.Errorf("scheduler: interval must be positive, got %v", interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[wf.Name()] = &entry{
		template: wf,
		interval: interval,
	}
	return nil
}

// Unschedule removes the entry with the given name. It has no effect on a
// run that is already in flight.
func (s *Scheduler) Unschedule(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, name)
}

// Start launches the tick loop. It returns ErrAlreadyStarted if the loop
// is already running. Entries may be scheduled before or after Start.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.stopCh = make(chan struct{})
	s.loopDone = make(chan struct{})
	go s.loop(s.stopCh, s.loopDone)
	return nil
}

// Stop signals the tick loop to exit and blocks until it has. Runs that
// are already in flight are not cancelled; they finish independently and
// still update entry state and the Recorder. Stop on a stopped scheduler
// is a no-op. The scheduler can be started again afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	stopCh, loopDone := s.stopCh, s.loopDone
	s.mu.Unlock()

	close(stopCh)
	<-loopDone
}

// IsRunning reports whether a run of the named workflow is currently in
// flight.
func (s *Scheduler) IsRunning(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[name]
	return ok
}

// GetStatus returns a snapshot of every scheduled entry.
func (s *Scheduler) GetStatus() map[string]EntryStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]EntryStatus, len(s.entries))
	for name, e := range s.entries {
		_, running := s.running[name]
		out[name] = EntryStatus{
			Interval:     e.interval,
			Running:      running,
			LastStatus:   e.lastStatus,
			LastDuration: e.lastDuration,
			LastStarted:  e.lastStarted,
			LastError:    e.lastErr,
		}
	}
	return out
}

func (s *Scheduler) loop(stopCh <-chan struct{}, loopDone chan<- struct{}) {
	defer close(loopDone)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	// First evaluation happens immediately so freshly scheduled entries do
	// not wait out a full tick.
	s.launchDue(time.Now())

	for {
		select {
		case <-stopCh:
			return
		case now := <-ticker.C:
			s.launchDue(now)
		}
	}
}

// launchDue starts a run for every entry that is due and not already in
// flight. lastRun is stamped at launch, not at completion.
func (s *Scheduler) launchDue(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, e := range s.entries {
		if _, busy := s.running[name]; busy {
			// Still running from a previous launch: this tick is skipped,
			// not queued.
			continue
		}
		if !e.lastRun.IsZero() && now.Sub(e.lastRun) < e.interval {
			continue
		}

		run := e.template.Clone()
		s.running[name] = struct{}{}
		e.lastRun = now
		e.lastStarted = now

		go s.execute(name, run)
	}
}

// execute drives a single launched run to completion and publishes its
// outcome. Errors are captured per entry and logged; they never propagate
// into the tick loop, so one misbehaving workflow cannot halt the others.
func (s *Scheduler) execute(name string, wf *api.Workflow) {
	start := time.Now()
	_, err := wf.Execute(context.Background())
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("scheduled run failed",
			slog.String("workflow", name),
			slog.Duration("duration", duration),
			slog.Any("error", err),
		)
	}

	if s.recorder != nil {
		rec := RunRecord{
			ID:        uuid.NewString(),
			Workflow:  name,
			Status:    wf.Status(),
			StartedAt: start,
			Duration:  duration,
		}
		if err != nil {
			rec.Error = err.Error()
		}
		if recErr := s.recorder.Record(context.Background(), rec); recErr != nil {
			s.logger.Error("recording run failed",
				slog.String("workflow", name),
				slog.Any("error", recErr),
			)
		}
	}

	s.mu.Lock()
	delete(s.running, name)
	if e, ok := s.entries[name]; ok {
		// The entry may have been unscheduled or replaced mid-run; only an
		// entry still registered under this name learns the outcome.
		e.lastStatus = wf.Status()
		e.lastDuration = duration
		e.lastErr = err
	}
	s.mu.Unlock()
}
