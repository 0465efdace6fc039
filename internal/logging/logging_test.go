package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestForJobAttachesNameAndCategory(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	logging := ForJob(base, "build-1", "batch")
	logging.Info("job started")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "build-1", entries[0].ContextMap()["job"])
	require.Equal(t, "batch", entries[0].ContextMap()["category"])
}

func TestForTaskAttachesName(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	logging := ForTask(base, "execpoold-batch")
	logging.Info("task completed")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "execpoold-batch", entries[0].ContextMap()["task"])
}

func TestNewBuildsLoggerInBothModes(t *testing.T) {
	prod, err := New(false)
	require.NoError(t, err)
	require.NotNil(t, prod)

	dev, err := New(true)
	require.NoError(t, err)
	require.NotNil(t, dev)
}
