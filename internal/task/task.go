// Package task models a Task: a named aggregate of Jobs sharing
// lifecycle and completion callbacks (spec.md §3). A Task never owns
// its Jobs — it only counts them — so the back-reference from a Job
// is a lookup relation, kept alive by the caller or the pool's
// snapshot index until its counters close.
package task

import (
	"sync"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/guti2010/execpool/internal/job"
	"github.com/guti2010/execpool/internal/perr"
)

// Callbacks is the Task-level analogue of job.Callbacks: a
// polymorphic capability object, not a closure, run on the supervisor
// goroutine.
type Callbacks interface {
	OnStart(t *Task)
	OnDone(t *Task)
}

// NoopCallbacks is the default Callbacks.
type NoopCallbacks struct{}

func (NoopCallbacks) OnStart(*Task) {}
func (NoopCallbacks) OnDone(*Task)  {}

// Spec is the caller-supplied configuration for a Task.
type Spec struct {
	Name      string
	TimeoutS  float64
	Callbacks Callbacks
	// Stdout/Stderr are the default stdio targets Jobs attached to
	// this Task should use when they don't specify their own.
	Stdout job.Stdio
	Stderr job.Stdio
	Clock  clockz.Clock
}

// Task is a named aggregate of Jobs. It implements job.TaskHandle so
// attached Jobs can report lifecycle transitions without internal/job
// importing internal/task (which would cycle back).
type Task struct {
	Spec

	mu          sync.Mutex
	started     bool
	tstart      time.Time
	tstop       time.Time
	numAdded    int
	numDone     int
	numTerm     int
	closedHooks []func(*Task)
}

// OnClosed registers fn to run (on the supervisor goroutine, after
// OnDone) the moment this Task closes: num_done+num_term==num_added.
// Separate from Callbacks so an embedder (the pool's event bus) can
// observe closure without displacing the caller's own OnDone.
func (t *Task) OnClosed(fn func(*Task)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closedHooks = append(t.closedHooks, fn)
}

// New validates and constructs a Task.
func New(s Spec) (*Task, error) {
	if s.Name == "" {
		return nil, perr.New(perr.ConfigInvalid, "task name must not be empty")
	}
	if s.TimeoutS < 0 {
		return nil, perr.New(perr.ConfigInvalid, "task timeout_s must be >= 0")
	}
	if s.Callbacks == nil {
		s.Callbacks = NoopCallbacks{}
	}
	if s.Clock == nil {
		s.Clock = clockz.RealClock
	}
	return &Task{Spec: s}, nil
}

// Attach records j as belonging to this Task, applying the Task's
// default stdio to the Job when the Job didn't specify its own, and
// increments num_added. Must be called before j is submitted to the
// pool.
func (t *Task) Attach(j *job.Job) {
	t.mu.Lock()
	t.numAdded++
	t.mu.Unlock()
	if j.Stdout == (job.Stdio{}) && t.Stdout != (job.Stdio{}) {
		j.Stdout = t.Stdout
	}
	if j.Stderr == (job.Stdio{}) && t.Stderr != (job.Stdio{}) {
		j.Stderr = t.Stderr
	}
	j.AttachTask(t)
}

// JobStarted implements job.TaskHandle: marks the Task started (and
// fires OnStart) the first time any attached Job becomes active.
func (t *Task) JobStarted() {
	t.mu.Lock()
	first := !t.started
	if first {
		t.started = true
		t.tstart = t.Clock.Now()
	}
	t.mu.Unlock()
	if first {
		t.Callbacks.OnStart(t)
	}
}

// JobFinished implements job.TaskHandle: counts the attached Job as
// done or terminated and, once num_done+num_term==num_added (no
// pending Jobs remain attached), stamps tstop and fires OnDone.
func (t *Task) JobFinished(success bool) {
	t.mu.Lock()
	if success {
		t.numDone++
	} else {
		t.numTerm++
	}
	closed := t.numDone+t.numTerm == t.numAdded
	if closed {
		t.tstop = t.Clock.Now()
	} else {
		t.tstop = time.Time{}
	}
	t.mu.Unlock()
	if closed {
		t.Callbacks.OnDone(t)
		t.mu.Lock()
		hooks := append([]func(*Task){}, t.closedHooks...)
		t.mu.Unlock()
		for _, fn := range hooks {
			fn(t)
		}
	}
}

// TaskName implements job.TaskHandle, letting an attached Job surface
// its owning Task's name without holding a concrete *Task reference.
func (t *Task) TaskName() string { return t.Name }

// Counters returns (num_added, num_done, num_term) for the
// observation endpoint and tests.
func (t *Task) Counters() (added, done, term int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.numAdded, t.numDone, t.numTerm
}

// Started reports whether the Task's first descendant Job has
// started — the condition the observation endpoint's "Tasks"
// collection filters on (spec.md §6).
func (t *Task) Started() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

// Closed reports whether num_done+num_term==num_added (no pending
// Jobs remain attached).
func (t *Task) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.numAdded > 0 && t.numDone+t.numTerm == t.numAdded
}

func (t *Task) TStart() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tstart
}

func (t *Task) TStop() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tstop
}
