package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/guti2010/execpool/internal/execpool"
)

// Metrics wraps the Prometheus collectors backing GET /metrics. Gauges
// are refreshed from a pool snapshot on every scrape rather than
// pushed by the supervisor, keeping the collector stateless between
// scrapes.
type Metrics struct {
	registry *prometheus.Registry
	pool     *execpool.ExecPool

	activeJobs    prometheus.Gauge
	waitingJobs   prometheus.Gauge
	curWksNum     prometheus.Gauge
	failuresTotal prometheus.Gauge
}

// NewMetrics registers the pool's gauges on a dedicated registry (not
// the global default, so multiple pools in one process don't collide).
func NewMetrics(p *execpool.ExecPool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pool:     p,
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "execpool_active_jobs",
			Help: "Number of Jobs currently in the active set.",
		}),
		waitingJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "execpool_waiting_jobs",
			Help: "Number of Jobs currently in the FIFO waiting queue.",
		}),
		curWksNum: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "execpool_cur_wks_num",
			Help: "Current worker-slot budget, shrunk by memory-pressure eviction.",
		}),
		failuresTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "execpool_failures_total",
			Help: "Number of finished Jobs observed with a non-zero exit code.",
		}),
	}
	m.registry.MustRegister(m.activeJobs, m.waitingJobs, m.curWksNum, m.failuresTotal)
	return m
}

func (m *Metrics) refresh() {
	m.activeJobs.Set(float64(len(m.pool.Active())))
	m.waitingJobs.Set(float64(len(m.pool.Waiting())))
	m.curWksNum.Set(float64(m.pool.CurWksNum()))

	failures := 0
	for _, j := range m.pool.Finished() {
		if j.RCode() != 0 {
			failures++
		}
	}
	m.failuresTotal.Set(float64(failures))
}
