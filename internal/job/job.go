// Package job models one external process: its configuration, its
// lifecycle state machine, and the runtime fields the scheduler
// (internal/execpool) fills in as it runs.
package job

import (
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/guti2010/execpool/internal/perr"
	"github.com/guti2010/execpool/internal/size"
)

// OnTimeout resolves the boolean ambiguity of the source scheduler's
// "ontimeout" flag (True = restart, False = terminate) into an
// explicit two-variant enum.
type OnTimeout int

const (
	OnTimeoutTerminate OnTimeout = iota
	OnTimeoutRestart
)

// State is a Job's position in the lifecycle state machine:
//
//	Unsubmitted -> Waiting -> Active -> (FinishedOK | FinishedFail)
//	Active -> Waiting        (memory eviction)
//	Active -> Active         (restart on timeout)
//	Active -> FinishedFail    (timeout+Terminate, global deadline, shutdown)
type State int

const (
	StateUnsubmitted State = iota
	StateWaiting
	StateActive
	StateFinishedOK
	StateFinishedFail
)

func (s State) String() string {
	switch s {
	case StateUnsubmitted:
		return "unsubmitted"
	case StateWaiting:
		return "waiting"
	case StateActive:
		return "active"
	case StateFinishedOK:
		return "finished_ok"
	case StateFinishedFail:
		return "finished_fail"
	default:
		return "unknown"
	}
}

// Callbacks is the polymorphic capability object the design notes call
// for in place of free-form closures: two lightweight operations
// invoked on the supervisor goroutine. Implementations must not block.
type Callbacks interface {
	OnStart(j *Job)
	OnDone(j *Job)
}

// NoopCallbacks is the default Callbacks: both hooks are no-ops.
type NoopCallbacks struct{}

func (NoopCallbacks) OnStart(*Job) {}
func (NoopCallbacks) OnDone(*Job)  {}

// TaskHandle is the narrow interface a Job uses to notify its owning
// Task, avoiding an import cycle between internal/job and
// internal/task (which implements this interface over a *Job).
type TaskHandle interface {
	JobStarted()
	JobFinished(success bool)
	TaskName() string
}

// Spec is the caller-supplied configuration for a Job (spec.md §3).
// It is copied into the Job at construction time; Argv/Workdir/Stdio
// are reused verbatim across restarts.
type Spec struct {
	Name         string
	Argv         []string // empty => "stub" Job that only runs callbacks
	Workdir      string
	TimeoutS     float64
	OnTimeout    OnTimeout
	StartDelayS  float64
	Category     string
	Size         size.Size
	Slowdown     float64
	Stdout       Stdio
	Stderr       Stdio
	OmitAffinity bool
	Callbacks    Callbacks
	Clock        clockz.Clock // nil => clockz.RealClock
}

// Job is one external process plus the runtime bookkeeping the
// scheduler needs (spec.md §3 "Runtime fields set by the pool").
type Job struct {
	Spec

	mu    sync.Mutex
	state State

	task TaskHandle // optional back-reference; relation, not ownership

	// Runtime fields.
	tstart          time.Time
	tstop           time.Time
	pid             int
	workerSlot      int
	vmemSmooth      uint64
	rcode           int
	numTerminations int
	lastErr         error

	cmd       *exec.Cmd
	waitDone  chan struct{}
	waitErr   error
	stdoutTgt resolvedStdio
	stderrTgt resolvedStdio
}

// New validates and constructs a Job in the Unsubmitted state.
// Validation matches execute()'s admission checks in spec.md §4.4:
// name non-empty, timeout_s >= 0, size (if Known) is just a uint64 so
// always valid, slowdown > 0.
func New(s Spec) (*Job, error) {
	if s.Name == "" {
		return nil, perr.New(perr.ConfigInvalid, "job name must not be empty")
	}
	if s.TimeoutS < 0 {
		return nil, perr.New(perr.ConfigInvalid, "job timeout_s must be >= 0")
	}
	if s.Slowdown <= 0 {
		return nil, perr.New(perr.ConfigInvalid, "job slowdown must be > 0")
	}
	if s.Callbacks == nil {
		s.Callbacks = NoopCallbacks{}
	}
	if s.Clock == nil {
		s.Clock = clockz.RealClock
	}
	return &Job{Spec: s, state: StateUnsubmitted}, nil
}

// AttachTask records the owning Task's handle. Must be called before
// the Job is submitted.
func (j *Job) AttachTask(t TaskHandle) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.task = t
}

// State returns the Job's current lifecycle state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

func (j *Job) setState(s State) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
}

// TStart, TStop, PID, WorkerSlot, VMemSmooth, RCode, NumTerminations
// expose the runtime fields read-only (spec.md §6 observation fields).
func (j *Job) TStart() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.tstart
}

func (j *Job) TStop() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.tstop
}

func (j *Job) PID() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.pid
}

func (j *Job) WorkerSlot() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.workerSlot
}

func (j *Job) VMemSmooth() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.vmemSmooth
}

func (j *Job) RCode() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rcode
}

func (j *Job) NumTerminations() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.numTerminations
}

// TaskName returns the name of the Task this Job is attached to, or ""
// if it is unattached — used by the observation endpoint.
func (j *Job) TaskName() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.task == nil {
		return ""
	}
	return j.task.TaskName()
}

// StdoutPipe returns the read side of a PipeStdio()-configured stdout,
// or nil if Stdout was configured some other way. The caller must
// drain it continuously once the Job starts: io.Pipe is unbuffered, so
// an undrained pipe stalls the child the first time its stdout buffer
// fills.
func (j *Job) StdoutPipe() io.Reader {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stdoutTgt.reader
}

// StderrPipe is StdoutPipe's counterpart for a PipeStdio()-configured
// stderr.
func (j *Job) StderrPipe() io.Reader {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stderrTgt.reader
}

func (j *Job) LastError() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastErr
}

// UpdateVMemSmooth applies the spec's monotone high-water-mark
// smoothing: vmem_smooth = max(sample, alpha*vmem_smooth +
// (1-alpha)*sample).
func (j *Job) UpdateVMemSmooth(sample uint64, alpha float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	smoothed := alpha*float64(j.vmemSmooth) + (1-alpha)*float64(sample)
	if smoothed < 0 {
		smoothed = 0
	}
	if uint64(smoothed) > sample {
		j.vmemSmooth = uint64(smoothed)
	} else {
		j.vmemSmooth = sample
	}
}

// Duration reports elapsed wall-clock time since first start, using
// tstop if the Job has finished, now otherwise.
func (j *Job) Duration() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.tstart.IsZero() {
		return 0
	}
	end := j.tstop
	if end.IsZero() {
		end = j.Clock.Now()
	}
	return end.Sub(j.tstart)
}
