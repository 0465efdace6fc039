package execpool

import (
	"context"
	"time"

	"github.com/zoobzio/hookz"
	"go.uber.org/zap"

	"github.com/guti2010/execpool/internal/logging"
)

// Event keys published on the pool's asynchronous hook bus. These are
// a second, non-blocking channel for external subscribers (metrics,
// audit logs); they are independent of the synchronous
// job.Callbacks/task.Callbacks contract, which still runs on the
// supervisor goroutine.
const (
	EventJobStarted    = hookz.Key("job.started")
	EventJobFinished   = hookz.Key("job.finished")
	EventJobEvicted    = hookz.Key("job.evicted")
	EventJobRestarted  = hookz.Key("job.restarted")
	EventTaskCompleted = hookz.Key("task.completed")
)

// Event is the payload delivered for every key above; fields not
// relevant to a given key are left zero.
type Event struct {
	JobName   string
	TaskName  string
	Category  string
	RCode     int
	Timestamp time.Time
}

// OnEvent subscribes handler to one of the Event* keys. The handler
// runs on hookz's own dispatch goroutine, never on the supervisor
// goroutine, so it may take its time without stalling admission.
func (p *ExecPool) OnEvent(key hookz.Key, handler func(Event)) error {
	_, err := p.hooks.Hook(key, func(_ context.Context, e Event) error {
		handler(e)
		return nil
	})
	return err
}

func (p *ExecPool) emit(key hookz.Key, e Event) {
	e.Timestamp = p.clock.Now()
	_ = p.hooks.Emit(p.bgCtx, key, e)
	p.countEvent(key)
	p.logEvent(key, e)
}

// logEvent mirrors every lifecycle transition onto the pool's
// structured logger, scoped to the Job or Task it concerns.
func (p *ExecPool) logEvent(key hookz.Key, e Event) {
	switch key {
	case EventJobStarted:
		logging.ForJob(p.log, e.JobName, e.Category).Info("job started")
	case EventJobFinished:
		logging.ForJob(p.log, e.JobName, e.Category).Info("job finished", zap.Int("rcode", e.RCode))
	case EventJobEvicted:
		logging.ForJob(p.log, e.JobName, e.Category).Info("job evicted")
	case EventJobRestarted:
		logging.ForJob(p.log, e.JobName, e.Category).Info("job restarted on timeout")
	case EventTaskCompleted:
		logging.ForTask(p.log, e.TaskName).Info("task completed")
	}
}

// countEvent mirrors the hookz event bus into the metricz counters a
// caller can read synchronously via Metrics(), without subscribing to
// a hook handler.
func (p *ExecPool) countEvent(key hookz.Key) {
	switch key {
	case EventJobStarted:
		p.metrics.Counter(metricJobsStarted).Inc()
	case EventJobFinished:
		p.metrics.Counter(metricJobsFinished).Inc()
	case EventJobEvicted:
		p.metrics.Counter(metricJobsEvicted).Inc()
	case EventJobRestarted:
		p.metrics.Counter(metricJobsRestarted).Inc()
	case EventTaskCompleted:
		p.metrics.Counter(metricTasksCompleted).Inc()
	}
}
