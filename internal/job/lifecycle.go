package job

import (
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/guti2010/execpool/internal/affinity"
	"github.com/guti2010/execpool/internal/perr"
)

// defaultGrace is how long Terminate waits after the polite signal
// before forcing a kill, absent an explicit override.
const defaultGrace = 3 * time.Second

// Start spawns the child (or, for a stub Job with empty Argv, just
// runs the callback and makes Poll report an immediate exit with rcode
// 0; the scheduler still calls MarkFinished), applies CPU
// affinity unless OmitAffinity is set, records tstart on the first
// attempt only, and invokes OnStart on the caller goroutine before
// returning — matching the spec's "on_start fires before the
// supervisor considers the Job active".
func (j *Job) Start(workerSlot int, am affinity.Map) error {
	j.mu.Lock()
	firstAttempt := j.tstart.IsZero()
	if firstAttempt {
		j.tstart = j.Clock.Now()
	}
	j.workerSlot = workerSlot
	j.mu.Unlock()

	if len(j.Argv) == 0 {
		// Stub Job: no process body, runs only callbacks.
		j.Callbacks.OnStart(j)
		j.setState(StateActive)
		if j.task != nil {
			j.task.JobStarted()
		}
		j.mu.Lock()
		j.waitDone = make(chan struct{})
		close(j.waitDone)
		j.rcode = 0
		j.mu.Unlock()
		return nil
	}

	if err := j.spawn(); err != nil {
		return err
	}
	j.sleepStartDelay()

	if !j.OmitAffinity {
		if err := affinity.Apply(am, workerSlot, j.pid); err != nil {
			j.lastErr = err // advisory: affinity failure never fails the Job
		}
	}

	j.Callbacks.OnStart(j)
	j.setState(StateActive)
	if j.task != nil {
		j.task.JobStarted()
	}
	return nil
}

// sleepStartDelay blocks the caller for StartDelayS after a successful
// spawn (spec.md §3 "caller-side sleep after spawn"), via the Job's
// clock so fake-clock tests never actually wait.
func (j *Job) sleepStartDelay() {
	if j.StartDelayS <= 0 {
		return
	}
	<-j.Clock.After(time.Duration(j.StartDelayS * float64(time.Second)))
}

// spawn does the os/exec plumbing: stdio resolution, SysProcAttr for
// group-based signaling, Start(), and the background goroutine that
// reaps the exit code without blocking the caller (the same shape as
// the non-blocking waitpid the spec's poll() requires).
func (j *Job) spawn() error {
	cmd := exec.Command(j.Argv[0], j.Argv[1:]...)
	cmd.Dir = j.Workdir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdoutTgt, err := resolve(j.Stdout, os.Stdout)
	if err != nil {
		return err
	}
	stderrFallback := stdoutTgt.writer
	stderrTgt, err := resolve(j.Stderr, os.Stderr)
	if err != nil {
		stdoutTgt.close()
		return err
	}
	if j.Stderr.Kind == StdioMergeIntoStdout {
		stderrTgt = resolvedStdio{writer: stderrFallback}
	}

	cmd.Stdin = nil
	cmd.Stdout = stdoutTgt.writer
	cmd.Stderr = stderrTgt.writer

	if err := cmd.Start(); err != nil {
		stdoutTgt.close()
		stderrTgt.close()
		return perr.Wrap(perr.SpawnFailed, err, "spawn "+j.Argv[0])
	}

	j.mu.Lock()
	j.cmd = cmd
	j.pid = cmd.Process.Pid
	j.stdoutTgt = stdoutTgt
	j.stderrTgt = stderrTgt
	j.waitDone = make(chan struct{})
	done := j.waitDone
	j.mu.Unlock()

	go func() {
		waitErr := cmd.Wait()
		j.mu.Lock()
		j.waitErr = waitErr
		j.rcode = exitCodeOf(waitErr)
		j.stdoutTgt.close()
		j.stderrTgt.close()
		j.mu.Unlock()
		close(done)
	}()

	return nil
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if ee, ok := err.(*exec.ExitError); ok {
		return ee.ExitCode()
	}
	return -1
}

// PollResult is the outcome of a non-blocking liveness check.
type PollResult struct {
	Running bool
	Exited  bool
	RCode   int
}

// Poll performs a non-blocking check of whether the child has exited.
// A stub Job (empty Argv) is always immediately "exited" with rcode 0.
func (j *Job) Poll() PollResult {
	j.mu.Lock()
	done := j.waitDone
	j.mu.Unlock()
	if done == nil {
		return PollResult{Running: true}
	}
	select {
	case <-done:
		j.mu.Lock()
		rc := j.rcode
		j.mu.Unlock()
		return PollResult{Exited: true, RCode: rc}
	default:
		return PollResult{Running: true}
	}
}

// MarkFinished records tstop and the final state/result, firing
// OnDone only when the final attempt's exit code is 0 (spec invariant
// 6). Must be called by the scheduler exactly once per Job.
func (j *Job) MarkFinished(rcode int, terminatedReason perr.Kind) {
	j.mu.Lock()
	j.tstop = j.Clock.Now()
	j.rcode = rcode
	success := rcode == 0 && terminatedReason == ""
	if terminatedReason != "" {
		j.lastErr = perr.New(terminatedReason, "job "+j.Name+" did not complete successfully")
	}
	if success {
		j.state = StateFinishedOK
	} else {
		j.state = StateFinishedFail
	}
	j.mu.Unlock()

	if success {
		j.Callbacks.OnDone(j)
	}
	if j.task != nil {
		j.task.JobFinished(success)
	}
}

// Terminate sends a polite signal to the child's process group, waits
// up to grace for it to exit, then forces a kill. It is safe to call
// on a Job with no live process (no-op). Closes stdio handles on every
// path (spec.md §4.2).
func (j *Job) Terminate(grace time.Duration) {
	if grace <= 0 {
		grace = defaultGrace
	}
	j.mu.Lock()
	cmd := j.cmd
	done := j.waitDone
	j.mu.Unlock()

	if cmd == nil || cmd.Process == nil || done == nil {
		return
	}

	pgid := cmd.Process.Pid
	_ = syscall.Kill(-pgid, syscall.SIGTERM)

	timer := j.Clock.After(grace)
	select {
	case <-done:
		return
	case <-timer:
	}

	_ = syscall.Kill(-pgid, syscall.SIGKILL)
	<-done
}

// Requeue transitions an active Job back to Waiting without finishing
// it — the memory-eviction path of the state machine
// (ACTIVE -> WAITING). No callback fires and Task counters are
// untouched: the Job is expected to be re-admitted later via Start.
func (j *Job) Requeue() {
	j.setState(StateWaiting)
}

// FailSpawn marks a Job that never successfully started (a spawn
// failure at promotion/execute time) as finished-without-success: no
// on_done fires, but an attached Task's counters still close correctly
// by counting it as terminated.
func (j *Job) FailSpawn(err error) {
	j.mu.Lock()
	j.lastErr = err
	j.state = StateFinishedFail
	j.mu.Unlock()
	if j.task != nil {
		j.task.JobFinished(false)
	}
}

// Abandon marks a Job as finished-without-success with no process ever
// consulted — used to clear the waiting queue on pool shutdown, per
// spec.md §4.4 ("clears the waiting queue without invoking on_done").
func (j *Job) Abandon(reason perr.Kind) {
	j.mu.Lock()
	j.lastErr = perr.New(reason, "job "+j.Name+" abandoned")
	j.state = StateFinishedFail
	j.mu.Unlock()
	if j.task != nil {
		j.task.JobFinished(false)
	}
}

// Restart re-spawns the Job with identical argv/workdir/stdio
// (re-opened in append mode), incrementing num_terminations. Per
// spec.md §4.2, restart is only used for a timeout with
// OnTimeout==OnTimeoutRestart, never for memory eviction.
func (j *Job) Restart(am affinity.Map) error {
	j.mu.Lock()
	slot := j.workerSlot
	j.numTerminations++
	j.mu.Unlock()

	if err := j.spawn(); err != nil {
		return err
	}
	j.sleepStartDelay()
	if !j.OmitAffinity {
		if err := affinity.Apply(am, slot, j.pid); err != nil {
			j.lastErr = err
		}
	}
	j.Callbacks.OnStart(j)
	return nil
}
