package flow2

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/complyhq/flow2/pkg/flow2/checkpoint"
)

// TestDefaultRunConfig tests executor defaults.
func TestDefaultRunConfig(t *testing.T) {
	cfg := defaultRunConfig()

	assert.Equal(t, 1000, cfg.maxIterations)
	assert.Nil(t, cfg.store)
	assert.Empty(t, cfg.runID)
	assert.False(t, cfg.snapshotEachNode)
	assert.False(t, cfg.checkpointFailureFatal)
	assert.Zero(t, cfg.maxPauseAge)
	assert.NotNil(t, cfg.now)
	assert.NotNil(t, cfg.metrics)
	assert.NotNil(t, cfg.spans)
	assert.False(t, cfg.tracingEnabled)
}

// TestRunOptions tests option application.
func TestRunOptions(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	runID := checkpoint.NewRunID()
	frozen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	cfg := defaultRunConfig()
	for _, opt := range []RunOption{
		WithMaxIterations(50),
		WithStore(store),
		WithRunID(runID),
		WithSnapshotEachNode(),
		WithCheckpointFailureFatal(),
		WithMaxPauseAge(7 * 24 * time.Hour),
		WithClock(func() time.Time { return frozen }),
	} {
		opt(&cfg)
	}

	assert.Equal(t, 50, cfg.maxIterations)
	assert.Same(t, store, cfg.store)
	assert.Equal(t, runID, cfg.runID)
	assert.True(t, cfg.snapshotEachNode)
	assert.True(t, cfg.checkpointFailureFatal)
	assert.Equal(t, 7*24*time.Hour, cfg.maxPauseAge)
	assert.True(t, cfg.now().Equal(frozen))
}

// TestRunOptions_IgnoreInvalid tests that nonsense values keep defaults.
func TestRunOptions_IgnoreInvalid(t *testing.T) {
	cfg := defaultRunConfig()
	WithMaxIterations(0)(&cfg)
	WithMaxIterations(-5)(&cfg)
	WithClock(nil)(&cfg)
	WithMetrics(nil)(&cfg)
	WithTracing(nil)(&cfg)

	assert.Equal(t, 1000, cfg.maxIterations)
	assert.NotNil(t, cfg.now)
	assert.NotNil(t, cfg.metrics)
	assert.False(t, cfg.tracingEnabled)
}
