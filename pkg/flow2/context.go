package flow2

import (
	"context"
	"log/slog"
	"time"

	"github.com/complyhq/flow2/pkg/flow2/checkpoint"
)

// Decision verdicts delivered by human approvers.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// Decision is a human approval decision for a named gate stage.
type Decision struct {
	Stage     string    `json:"stage"`
	Verdict   string    `json:"verdict"` // approve | reject
	Comment   string    `json:"comment,omitempty"`
	DecidedBy string    `json:"decided_by"`
	DecidedAt time.Time `json:"decided_at"`
}

// Approved reports whether the verdict is an approval.
func (d Decision) Approved() bool {
	return d.Verdict == DecisionApprove
}

// Context provides execution context to nodes.
// It extends context.Context with engine services and metadata.
//
// Context is immutable after creation. The executor creates derived contexts
// for each node with updated NodeID and enriched logger.
type Context interface {
	context.Context

	// Logger returns the configured logger, enriched with run and node
	// context. Never returns nil - defaults to slog.Default() if not
	// configured.
	Logger() *slog.Logger

	// Checkpointer returns the checkpoint store, or nil if not configured.
	// Nodes should check for nil before using.
	Checkpointer() checkpoint.Store

	// RunID returns the unique identifier for this execution run.
	// Auto-generated if not configured.
	RunID() string

	// NodeID returns the current node being executed.
	// Empty string before execution starts.
	NodeID() string

	// Decision returns the pending human decision for the given gate stage,
	// or nil. It is non-nil only while the run is re-entering the node it
	// paused at, before the review node has consumed the decision.
	Decision(stage string) *Decision
}

// executionContext is the internal implementation of Context.
type executionContext struct {
	context.Context

	logger       *slog.Logger
	checkpointer checkpoint.Store
	runID        string
	nodeID       string
}

// Logger returns the configured logger.
func (c *executionContext) Logger() *slog.Logger {
	return c.logger
}

// Checkpointer returns the checkpoint store.
func (c *executionContext) Checkpointer() checkpoint.Store {
	return c.checkpointer
}

// RunID returns the run identifier.
func (c *executionContext) RunID() string {
	return c.runID
}

// NodeID returns the current node identifier.
func (c *executionContext) NodeID() string {
	return c.nodeID
}

// Decision returns nil; pending decisions are injected by Resume via a
// wrapping context.
func (c *executionContext) Decision(string) *Decision {
	return nil
}

// ContextOption configures a Context.
type ContextOption func(*executionContext)

// WithLogger sets the logger for the context.
// The logger will be enriched with run_id and node_id during execution.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(c *executionContext) {
		c.logger = logger
	}
}

// WithCheckpointer sets the checkpoint store exposed to nodes.
func WithCheckpointer(store checkpoint.Store) ContextOption {
	return func(c *executionContext) {
		c.checkpointer = store
	}
}

// WithContextRunID sets the run identifier for the context.
// If not set, a version-4 UUID is auto-generated.
// This is used for logging and tracing. For checkpointing, use
// WithRunID() as a RunOption with Run().
func WithContextRunID(id string) ContextOption {
	return func(c *executionContext) {
		c.runID = id
	}
}

// NewContext creates an execution context from a standard context.
// The returned Context wraps the provided context.Context and adds
// engine services and metadata.
//
// Example:
//
//	ctx := flow2.NewContext(context.Background(),
//	    flow2.WithLogger(myLogger),
//	    flow2.WithContextRunID(runID))
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	ec := &executionContext{
		Context: ctx,
		logger:  slog.Default(),
		runID:   checkpoint.NewRunID(),
	}

	for _, opt := range opts {
		opt(ec)
	}

	return ec
}

// withNodeID returns a new context with the given node ID set.
// Used internally by the executor to enrich the context per-node.
func (c *executionContext) withNodeID(nodeID string) *executionContext {
	return &executionContext{
		Context:      c.Context,
		logger:       c.logger.With("run_id", c.runID, "node_id", nodeID),
		checkpointer: c.checkpointer,
		runID:        c.runID,
		nodeID:       nodeID,
	}
}

// decisionContext wraps any Context with a pending human decision.
// Resume uses it to re-enter the paused node; the decision is visible only to
// the re-entered node and cleared before execution moves on.
type decisionContext struct {
	Context
	d *Decision
}

// Decision returns the pending decision if it targets the given stage.
func (c *decisionContext) Decision(stage string) *Decision {
	if c.d == nil || c.d.Stage != stage {
		return c.Context.Decision(stage)
	}
	d := *c.d
	return &d
}
