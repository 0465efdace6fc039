package observe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/guti2010/execpool/internal/execpool"
	"github.com/guti2010/execpool/internal/job"
)

func TestBuildSeparatesJobsAndFailures(t *testing.T) {
	p, err := execpool.New(execpool.Config{WksNum: 2, LatencyS: 0.05})
	require.NoError(t, err)

	ok, err := job.New(job.Spec{Name: "ok", Argv: []string{"/bin/sh", "-c", "exit 0"}, Slowdown: 1, Stdout: job.NullStdio(), Stderr: job.NullStdio()})
	require.NoError(t, err)
	bad, err := job.New(job.Spec{Name: "bad", Argv: []string{"/bin/sh", "-c", "exit 3"}, Slowdown: 1, Stdout: job.NullStdio(), Stderr: job.NullStdio()})
	require.NoError(t, err)

	_, err = p.Execute(ok, false)
	require.NoError(t, err)
	_, err = p.Execute(bad, false)
	require.NoError(t, err)
	require.True(t, p.Join(5*time.Second), "Join did not drain")

	snap := Build(p)
	require.Empty(t, snap.Jobs, "expected no non-finished Jobs after drain")
	require.Len(t, snap.Failures, 1)
	require.Equal(t, "bad", snap.Failures[0].Name)
}
