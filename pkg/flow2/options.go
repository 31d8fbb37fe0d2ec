package flow2

import (
	"log/slog"
	"time"

	"github.com/complyhq/flow2/pkg/flow2/checkpoint"
	"github.com/complyhq/flow2/pkg/flow2/observability"
)

// runConfig holds configuration for graph execution.
type runConfig struct {
	maxIterations int

	store checkpoint.Store
	runID string

	// snapshotEachNode persists a checkpoint at every node boundary, not
	// only at pause points.
	snapshotEachNode bool

	// checkpointFailureFatal aborts the run when a node-boundary snapshot
	// fails. Pause checkpoints are always fatal regardless: a pause that
	// was not durably persisted cannot be resumed.
	checkpointFailureFatal bool

	maxPauseAge time.Duration
	now         func() time.Time

	logger         *slog.Logger
	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
	tracingEnabled bool
}

// defaultRunConfig returns the default execution configuration.
func defaultRunConfig() runConfig {
	return runConfig{
		maxIterations: 1000,
		now:           time.Now,
		metrics:       observability.NoopMetrics{},
		spans:         observability.NoopSpanManager{},
	}
}

// RunOption configures execution behavior for Run and Resume.
type RunOption func(*runConfig)

// WithMaxIterations sets the maximum number of node executions.
// Default: 1000
//
// This prevents infinite loops from hanging forever. If a graph
// exceeds this limit, Run returns ErrMaxIterations.
func WithMaxIterations(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.maxIterations = n
		}
	}
}

// WithStore sets the checkpoint store. A store is required for graphs
// containing review gates; without one a pause cannot be made durable and
// Run fails with ErrStoreRequired.
func WithStore(store checkpoint.Store) RunOption {
	return func(c *runConfig) {
		c.store = store
	}
}

// WithRunID sets the run identifier used for checkpoint keys.
// Must be a version-4 UUID. If unset, the context's run ID is used.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}

// WithSnapshotEachNode persists a checkpoint at every node boundary instead
// of only at pause points and terminal states.
func WithSnapshotEachNode() RunOption {
	return func(c *runConfig) {
		c.snapshotEachNode = true
	}
}

// WithCheckpointFailureFatal aborts the run when a node-boundary snapshot
// fails. By default such failures are logged and execution continues;
// pause-point checkpoints are always fatal.
func WithCheckpointFailureFatal() RunOption {
	return func(c *runConfig) {
		c.checkpointFailureFatal = true
	}
}

// WithMaxPauseAge sets how long a paused checkpoint stays resumable.
// Zero (the default) means paused runs never expire.
func WithMaxPauseAge(d time.Duration) RunOption {
	return func(c *runConfig) {
		c.maxPauseAge = d
	}
}

// WithClock overrides the time source. Test seam for expiry checks.
func WithClock(now func() time.Time) RunOption {
	return func(c *runConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRunLogger sets the logger used for engine-level events.
// Defaults to the execution context's logger.
func WithRunLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics recorder. Defaults to no-op.
func WithMetrics(m observability.MetricsRecorder) RunOption {
	return func(c *runConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracing enables OTel span creation using the given span manager.
func WithTracing(spans observability.SpanManager) RunOption {
	return func(c *runConfig) {
		if spans != nil {
			c.spans = spans
			c.tracingEnabled = true
		}
	}
}
