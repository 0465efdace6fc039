package execpool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"

	"github.com/guti2010/execpool/internal/job"
	"github.com/guti2010/execpool/internal/size"
)

func newPool(t *testing.T, cfg Config) *ExecPool {
	t.Helper()
	if cfg.LatencyS == 0 {
		cfg.LatencyS = 0.05
	}
	if cfg.Grace == 0 {
		cfg.Grace = 100 * time.Millisecond
	}
	p, err := New(cfg)
	require.NoError(t, err)
	return p
}

func newShJob(t *testing.T, name, script string, timeoutS float64, onTimeout job.OnTimeout) *job.Job {
	t.Helper()
	j, err := job.New(job.Spec{
		Name:      name,
		Argv:      []string{"/bin/sh", "-c", script},
		Slowdown:  1,
		TimeoutS:  timeoutS,
		OnTimeout: onTimeout,
		Stdout:    job.NullStdio(),
		Stderr:    job.NullStdio(),
	})
	require.NoError(t, err)
	return j
}

// S1: basic drain.
func TestBasicDrain(t *testing.T) {
	p := newPool(t, Config{WksNum: 1})

	var onDoneCount int
	j, err := job.New(job.Spec{
		Name:      "ok",
		Argv:      []string{"/bin/sh", "-c", "exit 0"},
		Slowdown:  1,
		Stdout:    job.NullStdio(),
		Stderr:    job.NullStdio(),
		Callbacks: &countingJobCallbacks{doneHit: &onDoneCount},
	})
	require.NoError(t, err)

	rc, err := p.Execute(j, false)
	require.NoError(t, err)
	require.Equal(t, 0, rc)
	require.True(t, p.Join(5*time.Second), "Join did not report a clean drain")
	require.Equal(t, 0, j.RCode())
	require.Equal(t, 1, onDoneCount)
}

type countingJobCallbacks struct {
	startHit *int
	doneHit  *int
}

func (c *countingJobCallbacks) OnStart(*job.Job) {
	if c.startHit != nil {
		*c.startHit++
	}
}
func (c *countingJobCallbacks) OnDone(*job.Job) {
	if c.doneHit != nil {
		*c.doneHit++
	}
}

// S2: timeout terminate, driven by a fake clock so the timeout
// threshold is crossed deterministically rather than by racing real
// sleeps against tick latency.
func TestTimeoutTerminate(t *testing.T) {
	clock := clockz.NewFakeClock()
	p := newPool(t, Config{WksNum: 1, Clock: clock})
	var doneCount int
	j, err := job.New(job.Spec{
		Name:      "sleeper",
		Argv:      []string{"/bin/sh", "-c", "sleep 30"},
		Slowdown:  1,
		TimeoutS:  0.2,
		OnTimeout: job.OnTimeoutTerminate,
		Stdout:    job.NullStdio(),
		Stderr:    job.NullStdio(),
		Callbacks: &countingJobCallbacks{doneHit: &doneCount},
		Clock:     clock,
	})
	require.NoError(t, err)

	_, err = p.Execute(j, false)
	require.NoError(t, err)

	result := make(chan bool, 1)
	go func() { result <- p.Join(5 * time.Second) }()

	// Let Join reach its first latency wait, then cross the 200ms
	// timeout threshold in one jump.
	time.Sleep(20 * time.Millisecond)
	clock.Advance(250 * time.Millisecond)
	clock.BlockUntilReady()

	select {
	case drained := <-result:
		require.True(t, drained, "Join did not drain")
	case <-time.After(2 * time.Second):
		t.Fatal("Join did not complete after advancing past the timeout")
	}

	require.NotEqual(t, 0, j.RCode(), "expected non-zero rcode after timeout-terminate")
	require.Equal(t, 0, doneCount, "on_done fired for a terminated job")
}

// S3: timeout restart, also driven by a fake clock. The Job's tstart
// never resets across restarts, so once the clock has advanced past
// the timeout it keeps restarting every tick; the pool must not report
// a clean drain before the caller's deadline elapses.
func TestTimeoutRestart(t *testing.T) {
	clock := clockz.NewFakeClock()
	p := newPool(t, Config{WksNum: 1, Clock: clock})
	j, err := job.New(job.Spec{
		Name:      "restartable",
		Argv:      []string{"/bin/sh", "-c", "sleep 30"},
		Slowdown:  1,
		TimeoutS:  0.15,
		OnTimeout: job.OnTimeoutRestart,
		Stdout:    job.NullStdio(),
		Stderr:    job.NullStdio(),
		Clock:     clock,
	})
	require.NoError(t, err)

	_, err = p.Execute(j, false)
	require.NoError(t, err)

	result := make(chan bool, 1)
	go func() { result <- p.Join(1 * time.Second) }()

	time.Sleep(20 * time.Millisecond)
	clock.Advance(300 * time.Millisecond)
	clock.BlockUntilReady()
	time.Sleep(20 * time.Millisecond)

	require.GreaterOrEqual(t, j.NumTerminations(), 1)

	// Push the fake clock past the 1s global deadline so Join gives up.
	clock.Advance(900 * time.Millisecond)
	clock.BlockUntilReady()

	select {
	case drained := <-result:
		require.False(t, drained, "Join reported a clean drain for a pool that never finishes")
	case <-time.After(2 * time.Second):
		t.Fatal("Join did not return after its deadline elapsed")
	}
}

// S5: FIFO blocking under a memory budget.
func TestFIFOBlocking(t *testing.T) {
	p := newPool(t, Config{WksNum: 1, VMLimitBytes: 512 * 1024 * 1024})

	q1 := newShJob(t, "q1", "sleep 30", 0, job.OnTimeoutTerminate)
	q1.Category = "batch"
	q1.Size = size.Known(10)

	q2 := newShJob(t, "q2", "exit 0", 0, job.OnTimeoutTerminate)
	q2.Category = "batch"
	q2.Size = size.Known(1)

	// Seed history so q1's predicted vmem (1GB) exceeds the 512MB
	// budget and q2's predicted vmem (100MB) would otherwise fit.
	p.history = append(p.history,
		completedRecord{category: "batch", size: 10, sizeOK: true, vmem: 1 << 30},
		completedRecord{category: "batch", size: 1, sizeOK: true, vmem: 100 << 20},
	)

	_, err := p.Execute(q1, false)
	require.NoError(t, err)
	_, err = p.Execute(q2, false)
	require.NoError(t, err)

	p.mu.Lock()
	headIsQ1 := len(p.waiting) > 0 && p.waiting[0].Name == "q1"
	q2InWaiting := false
	for _, j := range p.waiting {
		if j.Name == "q2" {
			q2InWaiting = true
		}
	}
	p.mu.Unlock()

	require.True(t, headIsQ1, "expected q1 to be queued at the head of the waiting queue")
	require.True(t, q2InWaiting, "expected q2 to be waiting behind q1, not overtaking it")

	q1.Terminate(0)
	p.Shutdown()
}

// S4 / invariant 7: evicting J also evicts every active same-category
// Job K with K.size >= J.size, and both are requeued with the smaller
// Job first so the larger one yields and retries later.
func TestChainedEviction(t *testing.T) {
	p := newPool(t, Config{WksNum: 2, VMLimitBytes: 1 << 30})

	a := newShJob(t, "a", "sleep 30", 0, job.OnTimeoutTerminate)
	a.Category = "batch"
	a.Size = size.Known(1)

	b := newShJob(t, "b", "sleep 30", 0, job.OnTimeoutTerminate)
	b.Category = "batch"
	b.Size = size.Known(10)

	_, err := p.Execute(a, false)
	require.NoError(t, err)
	_, err = p.Execute(b, false)
	require.NoError(t, err)

	p.mu.Lock()
	activeBefore := len(p.active)
	p.mu.Unlock()
	require.Equal(t, 2, activeBefore, "expected both jobs active before eviction")

	// Force both over budget: a's smoothed sample alone already exceeds
	// the 1GB limit, which must evict the whole same-category chain.
	a.UpdateVMemSmooth(2<<30, 0.5)
	b.UpdateVMemSmooth(10<<20, 0.5)

	p.evict()

	p.mu.Lock()
	activeAfter := len(p.active)
	headName := ""
	if len(p.waiting) > 0 {
		headName = p.waiting[0].Name
	}
	curWksNum := p.curWksNum
	p.mu.Unlock()

	require.Equal(t, 0, activeAfter, "expected chained eviction to clear both active jobs")
	require.Equal(t, "a", headName, "expected smaller Job a to be requeued ahead of b")
	require.Equal(t, 1, curWksNum, "expected cur_wks_num to shrink by one eviction round")

	p.Shutdown()
}

func TestShutdownIsIdempotent(t *testing.T) {
	p := newPool(t, Config{WksNum: 1})
	j := newShJob(t, "long", "sleep 30", 0, job.OnTimeoutTerminate)
	_, err := p.Execute(j, false)
	require.NoError(t, err)

	p.Shutdown()
	p.Shutdown() // must not panic or double-terminate
	require.False(t, p.Alive())
	require.Equal(t, job.StateFinishedFail, j.State())
}
