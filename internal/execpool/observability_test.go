package execpool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/guti2010/execpool/internal/job"
	"github.com/guti2010/execpool/internal/task"
)

func TestLoggerReceivesJobLifecycleEvents(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	cfg := Config{WksNum: 1, LatencyS: 0.05, Grace: 100 * time.Millisecond, Logger: zap.New(core)}
	p, err := New(cfg)
	require.NoError(t, err)

	j, err := job.New(job.Spec{Name: "logged", Argv: []string{"/bin/sh", "-c", "exit 0"}, Slowdown: 1, Stdout: job.NullStdio(), Stderr: job.NullStdio()})
	require.NoError(t, err)

	_, err = p.Execute(j, false)
	require.NoError(t, err)
	require.True(t, p.Join(5*time.Second))

	messages := make([]string, 0)
	for _, e := range logs.All() {
		messages = append(messages, e.Message)
	}
	require.Contains(t, messages, "job started")
	require.Contains(t, messages, "job finished")
}

func TestMetricsCountEventsIncludingTaskCompleted(t *testing.T) {
	p := newPool(t, Config{WksNum: 1})
	j, err := job.New(job.Spec{Name: "x", Slowdown: 1})
	require.NoError(t, err)
	tsk, err := task.New(task.Spec{Name: "batch"})
	require.NoError(t, err)
	p.RegisterTask(tsk)
	tsk.Attach(j)

	require.Equal(t, float64(0), p.Metrics().Counter(metricTasksCompleted).Value())

	_, err = p.Execute(j, false)
	require.NoError(t, err)
	require.True(t, p.Join(5*time.Second))

	require.Equal(t, float64(1), p.Metrics().Counter(metricJobsStarted).Value())
	require.Equal(t, float64(1), p.Metrics().Counter(metricJobsFinished).Value())
	require.Equal(t, float64(1), p.Metrics().Counter(metricTasksCompleted).Value())
}
