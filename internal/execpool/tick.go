package execpool

import (
	"fmt"
	"sort"
	"time"

	"github.com/guti2010/execpool/internal/job"
	"github.com/guti2010/execpool/internal/perr"
)

// Join runs the supervisor loop: on each wake it polls every active
// Job, enforces timeouts, samples memory, evicts on budget pressure,
// and promotes waiting Jobs onto freed slots. It returns true once both
// the waiting queue and the active set have drained, false if
// globalTimeout (0 = no deadline) elapses first or shutdown was
// requested, in which case every active Job is terminated and the
// waiting queue is cleared without firing on_done.
func (p *ExecPool) Join(globalTimeout time.Duration) bool {
	var deadline time.Time
	if globalTimeout > 0 {
		deadline = p.clock.Now().Add(globalTimeout)
	}

	for {
		p.mu.Lock()
		finalize := p.finalizeReq
		drained := len(p.waiting) == 0 && len(p.active) == 0
		p.mu.Unlock()

		if drained && !finalize {
			return true
		}
		if finalize || (!deadline.IsZero() && !p.clock.Now().Before(deadline)) {
			p.drainAll(finalize)
			return false
		}

		p.tick()

		p.mu.Lock()
		drained = len(p.waiting) == 0 && len(p.active) == 0
		p.mu.Unlock()
		if drained {
			return true
		}

		<-p.clock.After(p.latency)
	}
}

// tick performs one supervisor pass: poll/timeout/sample over active
// Jobs, then eviction, then promotion.
func (p *ExecPool) tick() {
	p.mu.Lock()
	actives := make(map[int]*job.Job, len(p.active))
	for slot, j := range p.active {
		actives[slot] = j
	}
	p.mu.Unlock()

	for slot, j := range actives {
		p.mu.Lock()
		_, stillActive := p.active[slot]
		p.mu.Unlock()
		if !stillActive {
			continue // evicted earlier in this same pass via a chained sibling
		}

		pr := j.Poll()
		if pr.Exited {
			p.finishSlot(slot, j, pr.RCode, "")
			continue
		}

		if j.TimeoutS > 0 {
			elapsed := p.clock.Now().Sub(j.TStart())
			if elapsed > time.Duration(j.TimeoutS*float64(time.Second)) {
				if j.OnTimeout == job.OnTimeoutRestart {
					j.Terminate(p.grace)
					if err := j.Restart(p.affinityMap); err != nil {
						p.mu.Lock()
						delete(p.active, slot)
						p.mu.Unlock()
						j.FailSpawn(err)
						continue
					}
					p.emit(EventJobRestarted, Event{JobName: j.Name, Category: j.Category})
				} else {
					j.Terminate(p.grace)
					final := j.Poll()
					p.finishSlot(slot, j, final.RCode, perr.Terminated)
				}
				continue
			}
		}

		p.sampleOne(j)
	}

	p.mu.Lock()
	overBudget := p.vmLimitBytes > 0 && p.totalVmemLocked() > p.vmLimitBytes
	p.mu.Unlock()
	if overBudget {
		p.evict()
	}

	p.promote()
}

func (p *ExecPool) sampleOne(j *job.Job) {
	sample, err := p.probe.SampleTree(p.bgCtx, j.PID())
	if err != nil {
		p.mu.Lock()
		degraded := p.probeDegraded
		if !degraded {
			p.probeDegraded = true
			p.vmLimitBytes = 0
		}
		p.mu.Unlock()
		return
	}
	j.UpdateVMemSmooth(sample.Total(), p.alpha)
}

// finishSlot records a Job's exit (successful or not), frees its slot,
// and files it into the completion history used by predicted vmem.
func (p *ExecPool) finishSlot(slot int, j *job.Job, rcode int, reason perr.Kind) {
	_, span := p.tracer.StartSpan(p.bgCtx, spanJobRun)
	span.SetTag(tagJobName, j.Name)
	span.SetTag(tagCategory, j.Category)
	span.SetTag(tagRCode, fmt.Sprintf("%d", rcode))
	defer span.Finish()

	p.mu.Lock()
	p.recordCompletionLocked(j)
	p.finished = append(p.finished, j)
	delete(p.active, slot)
	p.mu.Unlock()

	j.MarkFinished(rcode, reason)
	p.emit(EventJobFinished, Event{JobName: j.Name, Category: j.Category, RCode: rcode})
}

// evict implements chained rescheduling (spec.md §4.4 "Eviction").
func (p *ExecPool) evict() {
	p.mu.Lock()
	defer p.mu.Unlock()

	slots := make([]int, 0, len(p.active))
	for s := range p.active {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(a, b int) bool {
		return p.active[slots[a]].VMemSmooth() > p.active[slots[b]].VMemSmooth()
	})

	evictedAny := false
	for _, s := range slots {
		if p.totalVmemLocked() <= p.vmLimitBytes {
			break
		}
		j, ok := p.active[s]
		if !ok {
			continue // already swept up as part of an earlier chain this round
		}

		chain := []*job.Job{j}
		if j.Category != "" {
			if _, ok := j.Size.Value(); ok {
				for s2, k := range p.active {
					if s2 == s || k.Category != j.Category {
						continue
					}
					if ge, comparable := k.Size.GreaterOrEqual(j.Size); comparable && ge {
						chain = append(chain, k)
					}
				}
			}
		}

		// Smallest first: prepended in this order, the smallest evicted
		// Job lands at the new queue head and is promoted first, while
		// the largest waits longest (spec.md §4.4).
		sort.Slice(chain, func(a, b int) bool {
			va, _ := chain[a].Size.Value()
			vb, _ := chain[b].Size.Value()
			return va < vb
		})

		for _, cj := range chain {
			cj.Terminate(p.grace)
			for s3, v := range p.active {
				if v == cj {
					delete(p.active, s3)
					break
				}
			}
			cj.Requeue()
			p.emit(EventJobEvicted, Event{JobName: cj.Name, Category: cj.Category})
		}
		p.waiting = append(append(make([]*job.Job, 0, len(chain)), chain...), p.waiting...)
		evictedAny = true
	}

	if evictedAny && p.curWksNum > 1 {
		p.curWksNum--
	}
}

// promote admits waiting Jobs onto free slots in strict FIFO order
// (spec.md §4.4 "Promotion").
func (p *ExecPool) promote() {
	for {
		p.mu.Lock()
		if len(p.waiting) == 0 {
			p.mu.Unlock()
			return
		}
		slot := p.freeSlotLocked()
		if slot < 0 {
			p.mu.Unlock()
			return
		}
		head := p.waiting[0]
		predicted := p.predictedVmemLocked(head.Category, head.Size)
		if !p.fitsLocked(predicted) {
			p.mu.Unlock()
			return // head blocks promotion behind it: strict FIFO
		}
		p.waiting = p.waiting[1:]
		p.active[slot] = head
		p.mu.Unlock()

		if err := head.Start(slot, p.affinityMap); err != nil {
			p.mu.Lock()
			delete(p.active, slot)
			p.mu.Unlock()
			head.FailSpawn(err)
			continue
		}
		p.emit(EventJobStarted, Event{JobName: head.Name, Category: head.Category})
	}
}

// drainAll terminates every active Job and clears the waiting queue
// without firing on_done (spec.md §4.4 "Pool shutdown" / §5
// "Cancellation").
func (p *ExecPool) drainAll(finalize bool) {
	p.mu.Lock()
	if !p.alive {
		p.mu.Unlock()
		return
	}
	actives := make(map[int]*job.Job, len(p.active))
	for s, j := range p.active {
		actives[s] = j
	}
	waiting := p.waiting
	p.waiting = nil
	p.mu.Unlock()

	reason := perr.DeadlineExceeded
	if finalize {
		reason = perr.Terminated
	}

	for s, j := range actives {
		j.Terminate(p.grace)
		final := j.Poll()
		p.mu.Lock()
		delete(p.active, s)
		p.finished = append(p.finished, j)
		p.mu.Unlock()
		j.MarkFinished(final.RCode, reason)
	}
	for _, j := range waiting {
		j.Abandon(reason)
	}

	p.mu.Lock()
	p.alive = false
	p.mu.Unlock()
}
