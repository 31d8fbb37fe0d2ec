package checkpoint

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNew tests checkpoint construction defaults.
func TestNew(t *testing.T) {
	runID := NewRunID()
	cp := New(runID, "doc-review-v1", json.RawMessage(`{}`))

	assert.Equal(t, runID, cp.RunID)
	assert.Equal(t, "doc-review-v1", cp.GraphID)
	assert.Equal(t, Flow, cp.Flow)
	assert.False(t, cp.CreatedAt.IsZero())
	assert.Empty(t, cp.Gates)
}

// TestCheckpoint_MarshalRoundTrip tests JSON persistence fidelity.
func TestCheckpoint_MarshalRoundTrip(t *testing.T) {
	cp := New(NewRunID(), "doc-review-v1", json.RawMessage(`{"doc_id":"doc-1","risk":{"risk_score":55}}`))
	cp.Status = StatusPaused
	cp.CurrentNodeID = "triage"
	cp.PausedAtNodeID = "stage1_review"
	cp.PausedAt = time.Now().UTC()
	token, err := NewToken()
	require.NoError(t, err)
	cp.OpenGate(StagePrimary, token)

	data, err := cp.Marshal()
	require.NoError(t, err)

	loaded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, cp.RunID, loaded.RunID)
	assert.Equal(t, cp.Status, loaded.Status)
	assert.Equal(t, cp.PausedAtNodeID, loaded.PausedAtNodeID)
	assert.JSONEq(t, string(cp.GraphState), string(loaded.GraphState))
	require.Len(t, loaded.Gates, 1)
	assert.Equal(t, token, loaded.Gates[0].Token)
}

// TestCheckpoint_GateLookups tests Gate and GateByToken.
func TestCheckpoint_GateLookups(t *testing.T) {
	cp := New(NewRunID(), "doc-review-v1", json.RawMessage(`{}`))
	t1, err := NewToken()
	require.NoError(t, err)
	t2, err := NewToken()
	require.NoError(t, err)

	cp.OpenGate(StagePrimary, t1)
	cp.Gates[0].Decision = "approve"
	cp.OpenGate(StageEDD, t2)

	require.NotNil(t, cp.Gate(StagePrimary))
	assert.Equal(t, t1, cp.Gate(StagePrimary).Token)
	require.NotNil(t, cp.GateByToken(t2))
	assert.Equal(t, StageEDD, cp.GateByToken(t2).Stage)
	assert.Nil(t, cp.Gate("unknown"))
	assert.Nil(t, cp.GateByToken("0123456789abcdef0123456789abcdef"))
}

// TestCheckpoint_OpenGate_ReplacesUndecidedToken tests the one-live-token
// invariant: reopening an undecided gate replaces its token in place.
func TestCheckpoint_OpenGate_ReplacesUndecidedToken(t *testing.T) {
	cp := New(NewRunID(), "doc-review-v1", json.RawMessage(`{}`))
	t1, err := NewToken()
	require.NoError(t, err)
	t2, err := NewToken()
	require.NoError(t, err)

	cp.OpenGate(StagePrimary, t1)
	cp.OpenGate(StagePrimary, t2)

	require.Len(t, cp.Gates, 1)
	assert.Equal(t, t2, cp.Gates[0].Token)
}

// TestCheckpoint_OpenGate_DecidedGateGetsNewEntry tests that a decided gate
// is never reopened; a fresh gate is appended instead.
func TestCheckpoint_OpenGate_DecidedGateGetsNewEntry(t *testing.T) {
	cp := New(NewRunID(), "doc-review-v1", json.RawMessage(`{}`))
	t1, err := NewToken()
	require.NoError(t, err)
	t2, err := NewToken()
	require.NoError(t, err)

	cp.OpenGate(StagePrimary, t1)
	cp.Gates[0].Decision = "approve"
	cp.OpenGate(StagePrimary, t2)

	require.Len(t, cp.Gates, 2)
	assert.Equal(t, t1, cp.Gates[0].Token)
	assert.Equal(t, t2, cp.Gates[1].Token)
	assert.False(t, cp.Gates[1].Decided())
}

// TestCheckpoint_Clone tests deep-copy independence.
func TestCheckpoint_Clone(t *testing.T) {
	cp := New(NewRunID(), "doc-review-v1", json.RawMessage(`{"a":1}`))
	token, err := NewToken()
	require.NoError(t, err)
	cp.OpenGate(StagePrimary, token)
	now := time.Now().UTC()
	cp.ResumedAt = &now
	cp.Trace = []TraceEntry{{NodeID: "triage", Status: "ok"}}

	clone := cp.Clone()
	clone.GraphState[2] = 'b'
	clone.Gates[0].Decision = "reject"
	*clone.ResumedAt = now.Add(time.Hour)
	clone.Trace[0].NodeID = "other"

	assert.JSONEq(t, `{"a":1}`, string(cp.GraphState))
	assert.Empty(t, cp.Gates[0].Decision)
	assert.True(t, cp.ResumedAt.Equal(now))
	assert.Equal(t, "triage", cp.Trace[0].NodeID)
}
