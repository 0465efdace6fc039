// Package execpool implements the supervisor: a FIFO waiting queue and
// a bounded active set of Jobs, admission control, the periodic
// supervisor tick (poll, timeout enforcement, memory sampling, chained
// eviction, promotion), and pool shutdown.
package execpool

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
	"go.uber.org/zap"

	"github.com/guti2010/execpool/internal/affinity"
	"github.com/guti2010/execpool/internal/job"
	"github.com/guti2010/execpool/internal/memprobe"
	"github.com/guti2010/execpool/internal/perr"
	"github.com/guti2010/execpool/internal/size"
	"github.com/guti2010/execpool/internal/task"
)

// defaultLatency is what "latency_s configured 0" auto-chooses,
// per spec.md §4.4.
const defaultLatency = 2500 * time.Millisecond

// Config is the caller-supplied pool configuration (spec.md §6).
type Config struct {
	WksNum int // configured slot count, must be >= 1

	// Affinity. AfnStep == 0 disables CPU pinning entirely.
	AfnStep     int
	CoreThreads int // default 1 if unset
	Nodes       int // default 1 if unset
	CrossNodes  bool

	VMLimitBytes uint64 // 0 = unlimited
	LatencyS     float64
	Alpha        float64 // vmem_smooth blend factor, default 0.5
	Grace        time.Duration

	Clock  clockz.Clock   // nil => clockz.RealClock
	Probe  memprobe.Probe // nil => memprobe.NewGopsutilProbe()
	Logger *zap.Logger    // nil => zap.NewNop()
}

// ExecPool is the scheduler/supervisor over a bounded slot set.
type ExecPool struct {
	mu sync.Mutex

	runID        uuid.UUID
	wksNum       int
	curWksNum    int
	affinityMap  affinity.Map
	vmLimitBytes uint64
	latency      time.Duration
	alpha        float64
	grace        time.Duration

	clock clockz.Clock
	probe memprobe.Probe

	waiting   []*job.Job
	active    map[int]*job.Job // slot -> Job
	submitted map[string]bool
	tasks     map[string]*task.Task
	history   []completedRecord
	finished  []*job.Job

	tstart           time.Time
	alive            bool
	finalizeReq      bool
	probeDegraded    bool

	hooks   *hookz.Hooks[Event]
	bgCtx   context.Context
	metrics *metricz.Registry
	tracer  *tracez.Tracer
	log     *zap.Logger
}

type completedRecord struct {
	category string
	size     uint64
	sizeOK   bool
	vmem     uint64
}

// New validates cfg and constructs an ExecPool in the alive state.
func New(cfg Config) (*ExecPool, error) {
	if cfg.WksNum < 1 {
		return nil, perr.New(perr.ConfigInvalid, "execpool: wks_num must be >= 1")
	}
	if cfg.Alpha == 0 {
		cfg.Alpha = 0.5
	}
	if cfg.Alpha < 0 || cfg.Alpha > 1 {
		return nil, perr.New(perr.ConfigInvalid, "execpool: alpha must be in [0,1]")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockz.RealClock
	}
	if cfg.Probe == nil {
		cfg.Probe = memprobe.NewGopsutilProbe()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	var am affinity.Map
	if cfg.AfnStep > 0 {
		coreThreads := cfg.CoreThreads
		if coreThreads < 1 {
			coreThreads = 1
		}
		nodes := cfg.Nodes
		if nodes < 1 {
			nodes = 1
		}
		var err error
		am, err = affinity.New(coreThreads, nodes, cfg.AfnStep, cfg.CrossNodes)
		if err != nil {
			return nil, err
		}
	} else {
		am = affinity.Disabled()
	}

	latency := time.Duration(cfg.LatencyS * float64(time.Second))
	if latency <= 0 {
		latency = defaultLatency
	}

	metrics, tracer := newObservability()
	p := &ExecPool{
		runID:        uuid.New(),
		wksNum:       cfg.WksNum,
		curWksNum:    cfg.WksNum,
		affinityMap:  am,
		vmLimitBytes: cfg.VMLimitBytes,
		latency:      latency,
		alpha:        cfg.Alpha,
		grace:        cfg.Grace,
		clock:        cfg.Clock,
		probe:        cfg.Probe,
		active:       make(map[int]*job.Job),
		submitted:    make(map[string]bool),
		tasks:        make(map[string]*task.Task),
		tstart:       cfg.Clock.Now(),
		alive:        true,
		hooks:        hookz.New[Event](),
		bgCtx:        context.Background(),
		metrics:      metrics,
		tracer:       tracer,
		log:          cfg.Logger,
	}
	return p, nil
}

// RegisterTask makes t visible to the observation snapshot (internal/observe)
// once its first Job starts. The pool never owns t's lifetime.
func (p *ExecPool) RegisterTask(t *task.Task) {
	p.mu.Lock()
	p.tasks[t.Name] = t
	p.mu.Unlock()
	t.OnClosed(func(t *task.Task) {
		p.emit(EventTaskCompleted, Event{TaskName: t.Name})
	})
}

// Tasks returns every Task ever registered, for the observation snapshot.
func (p *ExecPool) Tasks() []*task.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*task.Task, 0, len(p.tasks))
	for _, t := range p.tasks {
		out = append(out, t)
	}
	return out
}

// Waiting returns a snapshot slice of the waiting queue, head first.
func (p *ExecPool) Waiting() []*job.Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*job.Job, len(p.waiting))
	copy(out, p.waiting)
	return out
}

// Finished returns every Job that has exited, in completion order, for
// the observation endpoint's Failures collection.
func (p *ExecPool) Finished() []*job.Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*job.Job, len(p.finished))
	copy(out, p.finished)
	return out
}

// Active returns a snapshot slice of the active set.
func (p *ExecPool) Active() []*job.Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*job.Job, 0, len(p.active))
	for _, j := range p.active {
		out = append(out, j)
	}
	return out
}

// RunID is a unique identifier for this pool instance, stamped in log
// lines and exposed over the status endpoint to correlate a run
// across logs, metrics and the HTTP surface.
func (p *ExecPool) RunID() string {
	return p.runID.String()
}

// Alive reports whether the pool has not yet been shut down.
func (p *ExecPool) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

// CurWksNum reports the current (possibly shrunk) active-slot budget.
func (p *ExecPool) CurWksNum() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.curWksNum
}

func (p *ExecPool) totalVmemLocked() uint64 {
	var total uint64
	for _, j := range p.active {
		total += j.VMemSmooth()
	}
	return total
}

func (p *ExecPool) predictedVmemLocked(category string, sz size.Size) uint64 {
	value, ok := sz.Value()
	if category == "" || !ok {
		return 0
	}
	var best uint64
	for _, rec := range p.history {
		if rec.category != category || !rec.sizeOK {
			continue
		}
		if rec.size <= value && rec.vmem > best {
			best = rec.vmem
		}
	}
	return best
}

func (p *ExecPool) freeSlotLocked() int {
	for s := 0; s < p.curWksNum; s++ {
		if _, busy := p.active[s]; !busy {
			return s
		}
	}
	return -1
}

func (p *ExecPool) recordCompletionLocked(j *job.Job) {
	value, ok := j.Size.Value()
	p.history = append(p.history, completedRecord{
		category: j.Category,
		size:     value,
		sizeOK:   ok,
		vmem:     j.VMemSmooth(),
	})
}

// Shutdown performs idempotent pool finalization: it sets the
// finalization flag (a running Join sees it on its next wake and
// returns false) and itself terminates every active Job and clears the
// waiting queue without firing on_done. Safe to call from a signal
// handler goroutine.
func (p *ExecPool) Shutdown() {
	p.mu.Lock()
	already := p.finalizeReq
	p.finalizeReq = true
	p.mu.Unlock()
	if already {
		return
	}
	p.drainAll(true)
}

// Close releases the hook bus. Call once the pool is fully drained.
func (p *ExecPool) Close() {
	p.hooks.Close()
}

// fitsLocked applies the admission rule: predicted bytes added to the
// current active total must stay within budget, unless the budget is
// unlimited. A Job whose own predicted vmem already exceeds the limit
// waits regardless of how empty the active set is — admitting it
// anyway would defeat the FIFO-blocking guarantee of spec.md §4.4
// "Promotion" (a Job at the head that does not fit blocks everything
// behind it).
func (p *ExecPool) fitsLocked(predicted uint64) bool {
	if p.vmLimitBytes == 0 {
		return true
	}
	return predicted+p.totalVmemLocked() <= p.vmLimitBytes
}
