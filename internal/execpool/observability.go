package execpool

import (
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Internal metricz/tracez keys, parallel to the hookz Event bus:
// counters and spans a caller can read directly off the pool without
// subscribing to hooks, grounded on the same metricz.Registry /
// tracez.Tracer pairing the reference pack's pipeline connectors use
// per-component.
const (
	metricJobsStarted  = metricz.Key("execpool.jobs.started.total")
	metricJobsFinished = metricz.Key("execpool.jobs.finished.total")
	metricJobsEvicted  = metricz.Key("execpool.jobs.evicted.total")
	metricJobsRestarted = metricz.Key("execpool.jobs.restarted.total")
	metricTasksCompleted = metricz.Key("execpool.tasks.completed.total")

	spanJobRun = tracez.Key("execpool.job.run")

	tagJobName  = tracez.Tag("job.name")
	tagCategory = tracez.Tag("job.category")
	tagRCode    = tracez.Tag("job.rcode")
)

func newObservability() (*metricz.Registry, *tracez.Tracer) {
	m := metricz.New()
	m.Counter(metricJobsStarted)
	m.Counter(metricJobsFinished)
	m.Counter(metricJobsEvicted)
	m.Counter(metricJobsRestarted)
	m.Counter(metricTasksCompleted)
	return m, tracez.New()
}

// Metrics exposes the pool's metricz.Registry for direct inspection
// (e.g. wiring into a custom exporter) alongside the Prometheus
// surface internal/httpapi serves.
func (p *ExecPool) Metrics() *metricz.Registry {
	return p.metrics
}

// Tracer exposes the pool's tracez.Tracer so an embedder can pull
// completed spans for its own diagnostics.
func (p *ExecPool) Tracer() *tracez.Tracer {
	return p.tracer
}
