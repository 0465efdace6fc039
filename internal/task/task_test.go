package task

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/guti2010/execpool/internal/affinity"
	"github.com/guti2010/execpool/internal/job"
)

type recordingCallbacks struct {
	mu         sync.Mutex
	startCount int
	doneCount  int
}

func (c *recordingCallbacks) OnStart(*Task) {
	c.mu.Lock()
	c.startCount++
	c.mu.Unlock()
}

func (c *recordingCallbacks) OnDone(*Task) {
	c.mu.Lock()
	c.doneCount++
	c.mu.Unlock()
}

func newStubJob(t *testing.T, name string) *job.Job {
	t.Helper()
	j, err := job.New(job.Spec{Name: name, Slowdown: 1})
	require.NoError(t, err)
	return j
}

func TestTaskClosesOnlyWhenAllAttachedJobsFinish(t *testing.T) {
	cb := &recordingCallbacks{}
	tsk, err := New(Spec{Name: "batch", Callbacks: cb})
	require.NoError(t, err)

	j1 := newStubJob(t, "j1")
	j2 := newStubJob(t, "j2")
	tsk.Attach(j1)
	tsk.Attach(j2)

	added, done, term := tsk.Counters()
	require.Equal(t, 2, added)
	require.Equal(t, 0, done)
	require.Equal(t, 0, term)

	require.NoError(t, j1.Start(0, affinity.Disabled()))
	require.True(t, tsk.Started(), "task should be started after first Job becomes active")
	require.Equal(t, 1, cb.startCount)

	j1.MarkFinished(0, "")
	require.False(t, tsk.Closed(), "task reported closed with one Job still pending")

	require.NoError(t, j2.Start(0, affinity.Disabled()))
	j2.MarkFinished(1, "terminated")

	require.True(t, tsk.Closed(), "task should be closed once both Jobs finished")
	added, done, term = tsk.Counters()
	require.Equal(t, 2, added)
	require.Equal(t, 1, done)
	require.Equal(t, 1, term)
	require.Equal(t, 1, cb.doneCount)
}

func TestNewRejectsEmptyName(t *testing.T) {
	_, err := New(Spec{Name: ""})
	require.Error(t, err)
}

func TestAttachPropagatesDefaultStdioWhenJobOmitsItsOwn(t *testing.T) {
	tsk, err := New(Spec{Name: "batch", Stdout: job.FileStdio("/tmp/batch.out"), Stderr: job.NullStdio()})
	require.NoError(t, err)

	// A Job left at the zero-value Stdio (the common case: the caller
	// never called any of the job.*Stdio() constructors) picks up the
	// Task's default on Attach.
	withDefaults := newStubJob(t, "uses-default")
	tsk.Attach(withDefaults)
	require.Equal(t, job.FileStdio("/tmp/batch.out"), withDefaults.Stdout)
	require.Equal(t, job.NullStdio(), withDefaults.Stderr)

	// A Job that set its own non-zero-value Stdio keeps it.
	explicit, err := job.New(job.Spec{Name: "own-stdio", Slowdown: 1, Stdout: job.NullStdio(), Stderr: job.NullStdio()})
	require.NoError(t, err)
	tsk.Attach(explicit)
	require.Equal(t, job.NullStdio(), explicit.Stdout)
	require.Equal(t, job.NullStdio(), explicit.Stderr)
}

func TestOnClosedFiresAfterCallbacksOnDone(t *testing.T) {
	cb := &recordingCallbacks{}
	tsk, err := New(Spec{Name: "batch", Callbacks: cb})
	require.NoError(t, err)

	var closedCount, doneSeenAtClose int
	tsk.OnClosed(func(t *Task) {
		closedCount++
		doneSeenAtClose = cb.doneCount
	})

	j := newStubJob(t, "only")
	tsk.Attach(j)
	require.NoError(t, j.Start(0, affinity.Disabled()))
	j.MarkFinished(0, "")

	require.Equal(t, 1, closedCount)
	require.Equal(t, 1, doneSeenAtClose, "OnClosed ran before Callbacks.OnDone")
}
