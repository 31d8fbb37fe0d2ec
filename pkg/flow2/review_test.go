package flow2

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complyhq/flow2/pkg/flow2/checkpoint"
)

// reviewGraph builds a single-gate flow: intake -> stage1 gate -> publish.
func reviewGraph(t *testing.T) *CompiledGraph[Review] {
	t.Helper()

	publish := func(ctx Context, s Review) (Result[Review], error) {
		s.Done = true
		return Continue(s), nil
	}

	graph := NewGraph[Review]("doc-review-v1").
		AddNode("intake", makeTrackingNode("intake", new([]string))).
		AddNode("stage1_review", stage1Node()).
		AddNode("publish", publish).
		AddEdge("intake", "stage1_review").
		AddEdge("stage1_review", "publish").
		AddEdge("publish", END).
		SetEntry("intake")

	compiled, err := graph.Compile()
	require.NoError(t, err)
	return compiled
}

// TestReviewNode_PausesWithToken tests the pause outcome and its checkpoint.
func TestReviewNode_PausesWithToken(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	runID := checkpoint.NewRunID()
	compiled := reviewGraph(t)

	out, err := compiled.Run(testCtx(), Review{DocID: "doc-1"},
		WithStore(store), WithRunID(runID))

	require.NoError(t, err)
	assert.Equal(t, StatusWaitingHuman, out.Status)
	assert.Equal(t, runID, out.RunID)
	assert.Equal(t, "stage1_review", out.PausedNodeID)
	assert.Equal(t, "stage1", out.Stage)
	assert.True(t, checkpoint.ValidToken(out.ApprovalToken), "token %q", out.ApprovalToken)
	assert.False(t, out.State.Done)

	cp, err := store.Load(runID)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusPaused, cp.Status)
	assert.Equal(t, "stage1_review", cp.PausedAtNodeID)
	require.Len(t, cp.Gates, 1)
	assert.Equal(t, "stage1", cp.Gates[0].Stage)
	assert.Equal(t, out.ApprovalToken, cp.Gates[0].Token)
	assert.False(t, cp.Gates[0].Decided())

	// The token resolves back to its run.
	ref, err := store.ResolveToken(out.ApprovalToken)
	require.NoError(t, err)
	assert.Equal(t, runID, ref.RunID)
	assert.Equal(t, "stage1", ref.Stage)
}

// TestReviewNode_PauseWithoutStore tests that gates require a store.
func TestReviewNode_PauseWithoutStore(t *testing.T) {
	compiled := reviewGraph(t)

	out, err := compiled.Run(testCtx(), Review{DocID: "doc-1"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreRequired)
	assert.Equal(t, StatusFailed, out.Status)
}

// TestReviewNode_ApproveCompletes tests the approve path end to end.
func TestReviewNode_ApproveCompletes(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	runID := checkpoint.NewRunID()
	compiled := reviewGraph(t)

	out, err := compiled.Run(testCtx(), Review{DocID: "doc-1"},
		WithStore(store), WithRunID(runID))
	require.NoError(t, err)
	require.Equal(t, StatusWaitingHuman, out.Status)

	out, err = compiled.Resume(testCtx(), store, ResumeRequest{
		Token:     out.ApprovalToken,
		Decision:  DecisionApprove,
		DecidedBy: "j.reviewer@example.com",
		Comment:   "checks out",
	})

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	assert.True(t, out.State.Done)

	// The decision is annotated into the state by the gate.
	require.NotNil(t, out.State.Stage1)
	assert.Equal(t, DecisionApprove, out.State.Stage1.Verdict)
	assert.Equal(t, "j.reviewer@example.com", out.State.Stage1.DecidedBy)
	assert.Equal(t, "checks out", out.State.Stage1.Comment)

	cp, err := store.Load(runID)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusCompleted, cp.Status)
	assert.Empty(t, cp.PausedAtNodeID)
	require.NotNil(t, cp.ResumedAt)
	require.Len(t, cp.Gates, 1)
	assert.Equal(t, "approve", cp.Gates[0].Decision)
}

// TestReviewNode_RejectTerminates tests the reject path.
func TestReviewNode_RejectTerminates(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	runID := checkpoint.NewRunID()
	compiled := reviewGraph(t)

	out, err := compiled.Run(testCtx(), Review{DocID: "doc-1"},
		WithStore(store), WithRunID(runID))
	require.NoError(t, err)

	out, err = compiled.Resume(testCtx(), store, ResumeRequest{
		Token:     out.ApprovalToken,
		Decision:  DecisionReject,
		DecidedBy: "j.reviewer@example.com",
	})

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Contains(t, out.Reason, "rejected")
	// publish never ran
	assert.False(t, out.State.Done)

	cp, err := store.Load(runID)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusCompleted, cp.Status)
	assert.Equal(t, "reject", cp.Gates[0].Decision)
}

// TestReviewNode_TwoStageEscalation tests stage1 -> edd gate sequencing.
func TestReviewNode_TwoStageEscalation(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	runID := checkpoint.NewRunID()

	graph := NewGraph[Review]("doc-review-v1").
		AddNode("stage1_review", stage1Node()).
		AddNode("edd_review", eddNode()).
		AddNode("publish", func(ctx Context, s Review) (Result[Review], error) {
			s.Done = true
			return Continue(s), nil
		}).
		AddEdge("stage1_review", "edd_review").
		AddEdge("edd_review", "publish").
		AddEdge("publish", END).
		SetEntry("stage1_review")
	compiled, err := graph.Compile()
	require.NoError(t, err)

	// First pause: primary gate.
	out, err := compiled.Run(testCtx(), Review{DocID: "doc-1"},
		WithStore(store), WithRunID(runID))
	require.NoError(t, err)
	require.Equal(t, StatusWaitingHuman, out.Status)
	assert.Equal(t, "stage1", out.Stage)
	stage1Token := out.ApprovalToken

	// Approving stage1 re-enters and pauses again at the EDD gate.
	out, err = compiled.Resume(testCtx(), store, ResumeRequest{
		Token:     stage1Token,
		Decision:  DecisionApprove,
		DecidedBy: "j.reviewer@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, StatusWaitingHuman, out.Status)
	assert.Equal(t, "edd", out.Stage)
	assert.Equal(t, "edd_review", out.PausedNodeID)
	assert.NotEqual(t, stage1Token, out.ApprovalToken)

	cp, err := store.Load(runID)
	require.NoError(t, err)
	require.Len(t, cp.Gates, 2)
	assert.Equal(t, "approve", cp.Gates[0].Decision)
	assert.False(t, cp.Gates[1].Decided())

	// The stale stage1 token cannot act on the EDD pause.
	_, err = compiled.Resume(testCtx(), store, ResumeRequest{
		Token:     stage1Token,
		Decision:  DecisionApprove,
		DecidedBy: "m.attacker@example.com",
	})
	require.Error(t, err)
	var resumeErr *ResumeError
	require.ErrorAs(t, err, &resumeErr)
	assert.Equal(t, "stage_mismatch", resumeErr.Reason)

	// The EDD token completes the run.
	out, err = compiled.Resume(testCtx(), store, ResumeRequest{
		Token:     out.ApprovalToken,
		Decision:  DecisionApprove,
		DecidedBy: "m.edd@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	assert.True(t, out.State.Done)
	require.NotNil(t, out.State.Stage1)
	require.NotNil(t, out.State.EDD)
}

// TestReviewNode_EmptyStage_Panics tests builder validation.
func TestReviewNode_EmptyStage_Panics(t *testing.T) {
	assert.Panics(t, func() {
		ReviewNode("",
			func(s Review) *Decision { return nil },
			func(s Review, d Decision) Review { return s },
		)
	})
}

// TestReviewNode_RecordedDecisionShortCircuits tests idempotent re-entry:
// a state that already carries a decision passes the gate without pausing.
func TestReviewNode_RecordedDecisionShortCircuits(t *testing.T) {
	compiled := reviewGraph(t)

	decided := Review{
		DocID: "doc-1",
		Stage1: &Decision{
			Stage:     "stage1",
			Verdict:   DecisionApprove,
			DecidedBy: "j.reviewer@example.com",
			DecidedAt: time.Now().UTC(),
		},
	}

	out, err := compiled.Run(testCtx(), decided)

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	assert.True(t, out.State.Done)
}
