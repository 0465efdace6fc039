package execpool

import (
	"fmt"
	"time"

	"github.com/guti2010/execpool/internal/affinity"
	"github.com/guti2010/execpool/internal/job"
	"github.com/guti2010/execpool/internal/perr"
)

// Execute admits j to the pool (spec.md §4.4 "Admission"). In sync
// mode it runs j inline on the caller goroutine and returns its exit
// code. In async mode it starts j immediately when a slot is free and
// its predicted vmem fits the budget, otherwise appends it to the FIFO
// waiting queue; the returned int is 0 on successful scheduling and 1
// when the Job is rejected (empty name, already submitted) or an
// immediate spawn attempt failed.
func (p *ExecPool) Execute(j *job.Job, sync bool) (int, error) {
	if j.Name == "" {
		return 1, perr.New(perr.ConfigInvalid, "execute: job name must not be empty")
	}

	p.mu.Lock()
	if p.submitted[j.Name] {
		p.mu.Unlock()
		return 1, perr.New(perr.ConfigInvalid, "execute: job "+j.Name+" already submitted")
	}
	p.submitted[j.Name] = true
	p.mu.Unlock()

	if sync {
		return p.executeSync(j)
	}
	return p.executeAsync(j)
}

func (p *ExecPool) executeSync(j *job.Job) (int, error) {
	if err := j.Start(-1, affinity.Disabled()); err != nil {
		return 1, err
	}
	for {
		pr := j.Poll()
		if pr.Exited {
			_, span := p.tracer.StartSpan(p.bgCtx, spanJobRun)
			span.SetTag(tagJobName, j.Name)
			span.SetTag(tagCategory, j.Category)
			span.SetTag(tagRCode, fmt.Sprintf("%d", pr.RCode))
			span.Finish()

			p.mu.Lock()
			p.recordCompletionLocked(j)
			p.mu.Unlock()
			j.MarkFinished(pr.RCode, "")
			return pr.RCode, nil
		}
		<-p.clock.After(25 * time.Millisecond)
	}
}

func (p *ExecPool) executeAsync(j *job.Job) (int, error) {
	p.mu.Lock()
	// A non-empty waiting queue already has a head blocking on
	// something; a freshly submitted Job must queue behind it rather
	// than jump straight into a free slot, or FIFO promotion order
	// (spec.md §4.4 "Promotion") would be violated at admission time.
	predicted := p.predictedVmemLocked(j.Category, j.Size)
	slot := p.freeSlotLocked()
	admit := len(p.waiting) == 0 && slot >= 0 && p.fitsLocked(predicted)
	if admit {
		p.active[slot] = j
	}
	p.mu.Unlock()

	if !admit {
		p.mu.Lock()
		p.waiting = append(p.waiting, j)
		p.mu.Unlock()
		return 0, nil
	}

	if err := j.Start(slot, p.affinityMap); err != nil {
		p.mu.Lock()
		delete(p.active, slot)
		p.mu.Unlock()
		j.FailSpawn(err)
		return 1, err
	}
	p.emit(EventJobStarted, Event{JobName: j.Name, Category: j.Category})
	return 0, nil
}
