package flow2

import (
	"encoding/json"
	"fmt"

	"github.com/complyhq/flow2/pkg/flow2/checkpoint"
	"github.com/complyhq/flow2/pkg/flow2/observability"
)

// ResumeRequest carries an out-of-band human decision back into a paused run.
// The token arrives from an approval link and is treated as untrusted input.
type ResumeRequest struct {
	Token     string `json:"token"`
	Decision  string `json:"decision"` // approve | reject
	DecidedBy string `json:"decided_by"`
	Comment   string `json:"comment,omitempty"`
}

// Resume continues a paused run with a human decision.
//
// The token is resolved to a run, the checkpoint is loaded and validated, and
// the state machine guards are applied: the checkpoint must be paused, not
// expired, produced by this graph, and the token must belong to the gate the
// run is currently waiting on. Any violation returns a *ResumeError (or
// checkpoint.ErrNotFound for unknown tokens); a resume failure is never
// reported as success, and a second resume against an already-resumed
// checkpoint is rejected rather than re-applied.
//
// On acceptance the decision is recorded on the gate, the checkpoint flips to
// resumed, and execution re-enters the node that requested the pause with the
// decision visible through the Context. That node either continues forward
// (approve) or terminates the run (reject), and may pause again at a later
// gate (e.g. escalated EDD review) under the exact same contract.
//
// Example:
//
//	out, err := compiled.Resume(ctx, store, flow2.ResumeRequest{
//	    Token:     tokenFromLink,
//	    Decision:  flow2.DecisionApprove,
//	    DecidedBy: "j.reviewer@example.com",
//	})
func (cg *CompiledGraph[S]) Resume(ctx Context, store checkpoint.Store, req ResumeRequest, opts ...RunOption) (Outcome[S], error) {
	var zero Outcome[S]

	if ctx == nil {
		return zero, ErrNilContext
	}
	if store == nil {
		return zero, ErrStoreRequired
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.store = store
	if cfg.logger == nil {
		cfg.logger = ctx.Logger()
	}

	if req.Decision != DecisionApprove && req.Decision != DecisionReject {
		return zero, fmt.Errorf("%w: decision must be %q or %q", ErrInvalidResume, DecisionApprove, DecisionReject)
	}

	// Off-format and unknown tokens resolve to not found; the store never
	// raises on untrusted token input.
	ref, err := store.ResolveToken(req.Token)
	if err != nil {
		return zero, err
	}

	cp, err := store.Load(ref.RunID)
	if err != nil {
		return zero, err
	}
	if err := checkpoint.ValidateCheckpoint(cp); err != nil {
		return zero, err
	}

	reject := func(reason, detail string) (Outcome[S], error) {
		cfg.metrics.RecordResume(ctx, ref.Stage, false)
		observability.LogResumeRejected(cfg.logger, cp.RunID, reason)
		return zero, &ResumeError{RunID: cp.RunID, Reason: reason, Detail: detail}
	}

	if cp.GraphID != cg.id || cp.Flow != checkpoint.Flow {
		cfg.metrics.RecordResume(ctx, ref.Stage, false)
		return zero, fmt.Errorf("%w: checkpoint %s/%s, graph %s/%s",
			ErrGraphMismatch, cp.Flow, cp.GraphID, checkpoint.Flow, cg.id)
	}
	if cp.Status != checkpoint.StatusPaused {
		return reject("not_paused", fmt.Sprintf("checkpoint status is %q", cp.Status))
	}
	if checkpoint.IsExpired(cp, cfg.maxPauseAge, cfg.now()) {
		return reject("expired", fmt.Sprintf("paused at %s, max age %s", cp.PausedAt.Format("2006-01-02T15:04:05Z07:00"), cfg.maxPauseAge))
	}

	// The run waits on its most recently opened gate; the token must belong
	// to it. An older gate's token against a later pause is a stage mismatch,
	// not a fresh approval.
	gate := cp.GateByToken(req.Token)
	if gate == nil || len(cp.Gates) == 0 || cp.Gates[len(cp.Gates)-1] != gate {
		return reject("stage_mismatch", "token does not belong to the awaited gate")
	}
	if gate.Stage != ref.Stage {
		return reject("stage_mismatch", fmt.Sprintf("token indexed for stage %q, gate is %q", ref.Stage, gate.Stage))
	}
	if gate.Decided() {
		return reject("already_decided", fmt.Sprintf("gate %q already decided %q", gate.Stage, gate.Decision))
	}

	startNode := cp.PausedAtNodeID
	if !cg.HasNode(startNode) {
		return reject("node_mismatch", fmt.Sprintf("paused node %q does not exist in graph %q", startNode, cg.id))
	}

	var state S
	if err := json.Unmarshal(cp.GraphState, &state); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrDeserializeState, err)
	}

	now := cfg.now().UTC()
	decision := Decision{
		Stage:     gate.Stage,
		Verdict:   req.Decision,
		Comment:   req.Comment,
		DecidedBy: req.DecidedBy,
		DecidedAt: now,
	}

	// Record the decision and the resumed transition durably before
	// re-entering the graph, so a crash mid-resume cannot lose the decision
	// or leave the checkpoint replayable as paused.
	gate.Decision = decision.Verdict
	gate.DecisionComment = decision.Comment
	gate.DecidedBy = decision.DecidedBy
	gate.DecidedAt = &now
	cp.Status = checkpoint.StatusResumed
	cp.PausedAtNodeID = ""
	cp.ResumedAt = &now
	if err := store.Save(cp); err != nil {
		return zero, &CheckpointError{NodeID: startNode, Op: "save", Err: err}
	}

	cfg.metrics.RecordResume(ctx, gate.Stage, true)
	observability.LogResume(cfg.logger, cp.RunID, startNode, gate.Stage, decision.Verdict)

	cfg.runID = cp.RunID
	return cg.drive(ctx, state, startNode, &cfg, cp, &decision)
}
