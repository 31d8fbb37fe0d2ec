package flow2

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/complyhq/flow2/pkg/flow2/checkpoint"
	"github.com/complyhq/flow2/pkg/flow2/observability"
)

// RunStatus is the caller-visible outcome of a Run or Resume call.
type RunStatus string

// Run outcomes.
const (
	StatusCompleted    RunStatus = "completed"
	StatusFailed       RunStatus = "failed"
	StatusWaitingHuman RunStatus = "waiting_human"
)

// Outcome is the result of driving a run until it completes, fails, or
// suspends at a review gate.
type Outcome[S any] struct {
	RunID  string
	Status RunStatus
	State  S

	// Pause fields, set when Status is StatusWaitingHuman.
	PausedNodeID  string
	Stage         string
	ApprovalToken string

	// Reason explains a deliberate termination (e.g. a rejected review).
	Reason string
}

// Run executes the graph with the given initial state.
//
// The run proceeds node by node from the entry point until it reaches END,
// a node terminates it, a node signals a pause, or a node fails:
//
//   - END or Terminate: the outcome is StatusCompleted and, when a store is
//     configured, a final checkpoint captures the terminal status and
//     decision history.
//   - Pause: a checkpoint with status paused is persisted together with a
//     fresh single-use approval token, and the outcome is
//     StatusWaitingHuman. The caller delivers the token to an approver and
//     later calls Resume; Run returns without blocking.
//   - Node error: the run is marked failed, the triggering error is captured
//     on the checkpoint, and the error is returned. A paused checkpoint is
//     never left dangling for a failed attempt.
//
// Example:
//
//	ctx := flow2.NewContext(context.Background())
//	out, err := compiled.Run(ctx, initial, flow2.WithStore(store))
//	if err == nil && out.Status == flow2.StatusWaitingHuman {
//	    notify(out.ApprovalToken)
//	}
func (cg *CompiledGraph[S]) Run(ctx Context, state S, opts ...RunOption) (Outcome[S], error) {
	var zero Outcome[S]
	if ctx == nil {
		return zero, ErrNilContext
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = ctx.Logger()
	}

	runID := cfg.runID
	if runID == "" {
		runID = ctx.RunID()
	}
	if cfg.store != nil && !checkpoint.ValidRunID(runID) {
		return zero, fmt.Errorf("%w: %q", checkpoint.ErrInvalidRunID, runID)
	}
	cfg.runID = runID

	cp := checkpoint.New(runID, cg.id, nil)
	return cg.drive(ctx, state, cg.entryPoint, &cfg, cp, nil)
}

// drive walks the graph from startNode. It is shared by Run and Resume;
// pending carries the human decision when re-entering a paused node.
func (cg *CompiledGraph[S]) drive(fgCtx Context, state S, startNode string, cfg *runConfig, cp *checkpoint.Checkpoint, pending *Decision) (outcome Outcome[S], runErr error) {
	observability.LogRunStart(cfg.logger, cfg.runID, cg.id)
	startTime := time.Now()

	var tracingCtx context.Context = fgCtx
	var runSpan trace.Span
	if cfg.tracingEnabled {
		tracingCtx, runSpan = cfg.spans.StartRunSpan(fgCtx, cg.id, cfg.runID)
		defer func() {
			cfg.spans.EndSpanWithError(runSpan, runErr)
		}()
	}

	if pending != nil {
		fgCtx = &decisionContext{Context: fgCtx, d: pending}
	}

	outcome, nodeCount, runErr := cg.runLoop(tracingCtx, fgCtx, state, startNode, cfg, cp)

	duration := time.Since(startTime)
	cfg.metrics.RecordRun(fgCtx, string(outcome.Status), duration)

	if runErr != nil {
		lastNode := ""
		switch e := runErr.(type) {
		case *NodeError:
			lastNode = e.NodeID
		case *MaxIterationsError:
			lastNode = e.LastNodeID
		case *CancellationError:
			lastNode = e.NodeID
		}
		observability.LogRunError(cfg.logger, cfg.runID, runErr, lastNode)
	} else {
		observability.LogRunComplete(cfg.logger, cfg.runID, float64(duration.Milliseconds()), nodeCount)
	}

	return outcome, runErr
}

// runLoop executes nodes sequentially until END, a pause, a termination, or
// an error. Returns the outcome and the number of nodes executed.
func (cg *CompiledGraph[S]) runLoop(tracingCtx context.Context, fgCtx Context, state S, startNode string, cfg *runConfig, cp *checkpoint.Checkpoint) (Outcome[S], int, error) {
	current := startNode
	iterations := 0
	nodeCount := 0

	fail := func(state S, err error) (Outcome[S], int, error) {
		cg.finalize(fgCtx, cfg, cp, state, checkpoint.StatusFailed, err.Error())
		return Outcome[S]{RunID: cfg.runID, Status: StatusFailed, State: state}, nodeCount, err
	}

	for current != END {
		iterations++
		if iterations > cfg.maxIterations {
			return fail(state, &MaxIterationsError{
				Max:        cfg.maxIterations,
				LastNodeID: current,
				State:      state,
			})
		}

		// Check for cancellation before executing node
		select {
		case <-fgCtx.Done():
			return fail(state, &CancellationError{
				NodeID:       current,
				State:        state,
				Cause:        fgCtx.Err(),
				WasExecuting: false,
			})
		default:
		}

		observability.LogNodeStart(cfg.logger, current)

		nodeTracingCtx := tracingCtx
		var nodeSpan trace.Span
		if cfg.tracingEnabled {
			nodeTracingCtx, nodeSpan = cfg.spans.StartNodeSpan(tracingCtx, current)
		}

		nodeStart := time.Now()
		res, nodeErr := cg.executeNode(fgCtx, current, state)
		nodeDuration := time.Since(nodeStart)
		nodeDurationMs := float64(nodeDuration.Milliseconds())

		cfg.metrics.RecordNodeExecution(nodeTracingCtx, current, nodeDuration, nodeErr)
		if cfg.tracingEnabled {
			cfg.spans.EndSpanWithError(nodeSpan, nodeErr)
		}

		// The pending decision is consumed by the first re-entered node;
		// later nodes never observe it.
		if dc, ok := fgCtx.(*decisionContext); ok {
			fgCtx = dc.Context
		}

		if nodeErr != nil {
			observability.LogNodeError(cfg.logger, current, nodeErr)
			cp.Trace = append(cp.Trace, checkpoint.TraceEntry{
				NodeID: current, StartedAt: nodeStart.UTC(), DurationMs: nodeDurationMs, Status: "failed",
			})
			return fail(state, nodeErr)
		}

		state = res.State()
		nodeCount++

		if res.IsPause() {
			cp.Trace = append(cp.Trace, checkpoint.TraceEntry{
				NodeID: current, StartedAt: nodeStart.UTC(), DurationMs: nodeDurationMs, Status: "paused",
			})
			out, err := cg.pause(fgCtx, cfg, cp, state, current, res.Stage(), res.Reason())
			return out, nodeCount, err
		}

		observability.LogNodeComplete(cfg.logger, current, nodeDurationMs)

		if res.IsTerminate() {
			cp.Trace = append(cp.Trace, checkpoint.TraceEntry{
				NodeID: current, StartedAt: nodeStart.UTC(), DurationMs: nodeDurationMs, Status: "terminated",
			})
			cp.CurrentNodeID = current
			cg.finalize(fgCtx, cfg, cp, state, checkpoint.StatusCompleted, "")
			return Outcome[S]{
				RunID:  cfg.runID,
				Status: StatusCompleted,
				State:  state,
				Reason: res.Reason(),
			}, nodeCount, nil
		}

		cp.Trace = append(cp.Trace, checkpoint.TraceEntry{
			NodeID: current, StartedAt: nodeStart.UTC(), DurationMs: nodeDurationMs, Status: "ok",
		})
		cp.CurrentNodeID = current

		next, err := cg.nextNode(fgCtx, state, current)
		if err != nil {
			return fail(state, err)
		}

		// Snapshot at the node boundary if configured
		if cfg.store != nil && cfg.snapshotEachNode && next != END {
			if err := cg.snapshot(fgCtx, cfg, cp, state, current); err != nil {
				return fail(state, err)
			}
		}

		current = next
	}

	cg.finalize(fgCtx, cfg, cp, state, checkpoint.StatusCompleted, "")
	return Outcome[S]{RunID: cfg.runID, Status: StatusCompleted, State: state}, nodeCount, nil
}

// pause persists a paused checkpoint with a fresh approval token and builds
// the waiting outcome. A pause that cannot be persisted fails the run: an
// unpersisted pause would be unresumable.
func (cg *CompiledGraph[S]) pause(fgCtx Context, cfg *runConfig, cp *checkpoint.Checkpoint, state S, nodeID, stage, reason string) (Outcome[S], error) {
	failed := Outcome[S]{RunID: cfg.runID, Status: StatusFailed, State: state}

	if stage == "" {
		return failed, &NodeError{NodeID: nodeID, Op: "pause", Err: fmt.Errorf("pause signaled without a gate stage")}
	}
	if cfg.store == nil {
		return failed, &CheckpointError{NodeID: nodeID, Op: "save", Err: ErrStoreRequired}
	}

	stateBytes, err := json.Marshal(state)
	if err != nil {
		return failed, &CheckpointError{NodeID: nodeID, Op: "serialize", Err: err}
	}

	token, err := checkpoint.NewToken()
	if err != nil {
		return failed, &CheckpointError{NodeID: nodeID, Op: "token", Err: err}
	}

	cp.GraphState = stateBytes
	cp.Status = checkpoint.StatusPaused
	cp.PausedAtNodeID = nodeID
	cp.PausedAt = cfg.now().UTC()
	cp.OpenGate(stage, token)

	data, err := cp.Marshal()
	if err != nil {
		return failed, &CheckpointError{NodeID: nodeID, Op: "marshal", Err: err}
	}
	if err := cfg.store.Save(cp); err != nil {
		return failed, &CheckpointError{NodeID: nodeID, Op: "save", Err: err}
	}

	observability.LogPause(cfg.logger, cfg.runID, nodeID, stage)
	observability.LogCheckpoint(cfg.logger, cfg.runID, nodeID, len(data))
	cfg.metrics.RecordPause(fgCtx, stage)
	cfg.metrics.RecordCheckpoint(fgCtx, nodeID, int64(len(data)))

	return Outcome[S]{
		RunID:         cfg.runID,
		Status:        StatusWaitingHuman,
		State:         state,
		PausedNodeID:  nodeID,
		Stage:         stage,
		ApprovalToken: token,
		Reason:        reason,
	}, nil
}

// snapshot persists a node-boundary checkpoint for a progressing run.
// Failures are logged and skipped unless checkpointFailureFatal is set; the
// planned pause points remain the durable source of truth.
func (cg *CompiledGraph[S]) snapshot(fgCtx Context, cfg *runConfig, cp *checkpoint.Checkpoint, state S, nodeID string) error {
	stateBytes, err := json.Marshal(state)
	if err != nil {
		if cfg.checkpointFailureFatal {
			return &CheckpointError{NodeID: nodeID, Op: "serialize", Err: err}
		}
		observability.LogCheckpointError(cfg.logger, nodeID, "serialize", err)
		return nil
	}

	cp.GraphState = stateBytes
	// A progressing run is persisted as resumed; paused is reserved for
	// review gates.
	cp.Status = checkpoint.StatusResumed
	cp.PausedAtNodeID = ""
	if cp.PausedAt.IsZero() {
		cp.PausedAt = cfg.now().UTC()
	}

	if err := cfg.store.Save(cp); err != nil {
		if cfg.checkpointFailureFatal {
			return &CheckpointError{NodeID: nodeID, Op: "save", Err: err}
		}
		observability.LogCheckpointError(cfg.logger, nodeID, "save", err)
		return nil
	}

	size := len(cp.GraphState)
	observability.LogCheckpoint(cfg.logger, cfg.runID, nodeID, size)
	cfg.metrics.RecordCheckpoint(fgCtx, nodeID, int64(size))
	return nil
}

// finalize writes the terminal checkpoint update for audit and export.
// Best-effort: the run outcome is already decided, so persistence failures
// are logged rather than surfaced.
func (cg *CompiledGraph[S]) finalize(fgCtx Context, cfg *runConfig, cp *checkpoint.Checkpoint, state S, status checkpoint.Status, lastError string) {
	if cfg.store == nil {
		return
	}

	stateBytes, err := json.Marshal(state)
	if err != nil {
		observability.LogCheckpointError(cfg.logger, cp.CurrentNodeID, "serialize", err)
		return
	}

	cp.GraphState = stateBytes
	cp.Status = status
	cp.PausedAtNodeID = ""
	cp.LastError = lastError
	if cp.PausedAt.IsZero() {
		// PausedAt doubles as the last status-transition timestamp for runs
		// that never reached a review gate.
		cp.PausedAt = cfg.now().UTC()
	}

	if err := cfg.store.Save(cp); err != nil {
		observability.LogCheckpointError(cfg.logger, cp.CurrentNodeID, "save", err)
	}
}

// executeNode executes a single node with panic recovery.
// Returns the node result and any error (including wrapped panics).
func (cg *CompiledGraph[S]) executeNode(ctx Context, nodeID string, state S) (result Result[S], err error) {
	fn, exists := cg.getNode(nodeID)
	if !exists {
		// This shouldn't happen if compilation was successful
		return Continue(state), &NodeError{
			NodeID: nodeID,
			Op:     "lookup",
			Err:    fmt.Errorf("node not found: %s", nodeID),
		}
	}

	nodeCtx := nodeContext(ctx, nodeID)

	// Panic recovery
	defer func() {
		if r := recover(); r != nil {
			result = Continue(state)
			err = &PanicError{
				NodeID: nodeID,
				Value:  r,
				Stack:  string(debug.Stack()),
			}
		}
	}()

	result, err = fn(nodeCtx, state)
	if err != nil {
		return result, &NodeError{
			NodeID: nodeID,
			Op:     "execute",
			Err:    err,
		}
	}

	return result, nil
}

// nodeContext derives a node-scoped context with an enriched logger.
func nodeContext(ctx Context, nodeID string) Context {
	switch c := ctx.(type) {
	case *executionContext:
		return c.withNodeID(nodeID)
	case *decisionContext:
		return &decisionContext{Context: nodeContext(c.Context, nodeID), d: c.d}
	}
	return ctx
}

// nextNode determines the next node to execute.
// Checks conditional edges first, then simple edges.
func (cg *CompiledGraph[S]) nextNode(ctx Context, state S, current string) (string, error) {
	// Check for conditional edge first
	if router, exists := cg.getRouter(current); exists {
		next := router(nodeContext(ctx, current), state)

		// Validate router result
		if next == "" {
			return "", &RouterError{
				FromNode: current,
				Returned: next,
				Err:      ErrInvalidRouterResult,
			}
		}

		if next != END {
			if _, exists := cg.getNode(next); !exists {
				return "", &RouterError{
					FromNode: current,
					Returned: next,
					Err:      ErrRouterTargetNotFound,
				}
			}
		}

		return next, nil
	}

	// Use simple edges
	edges := cg.getEdges(current)
	if len(edges) == 0 {
		// No outgoing edges - this shouldn't happen if compilation was successful
		return "", &NodeError{
			NodeID: current,
			Op:     "routing",
			Err:    fmt.Errorf("no outgoing edge from node %s", current),
		}
	}

	// Multiple simple edges from one node aren't supported; the engine is
	// strictly sequential per run.
	return edges[0], nil
}
