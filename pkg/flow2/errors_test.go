package flow2

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestNodeError_Unwrap tests error chain traversal through NodeError.
func TestNodeError_Unwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := &NodeError{NodeID: "fetch", Op: "execute", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "fetch")
	assert.Contains(t, err.Error(), "execute")
}

// TestResumeError_Unwrap tests that every resume rejection matches
// ErrInvalidResume.
func TestResumeError_Unwrap(t *testing.T) {
	err := &ResumeError{RunID: "run-1", Reason: "not_paused", Detail: `checkpoint status is "completed"`}

	assert.ErrorIs(t, err, ErrInvalidResume)
	assert.Contains(t, err.Error(), "run-1")
	assert.Contains(t, err.Error(), "not_paused")
}

// TestCheckpointError_Unwrap tests checkpoint error chains.
func TestCheckpointError_Unwrap(t *testing.T) {
	err := &CheckpointError{NodeID: "gate", Op: "save", Err: ErrStoreRequired}

	assert.ErrorIs(t, err, ErrStoreRequired)
	assert.Contains(t, err.Error(), "save")
	assert.Contains(t, err.Error(), "gate")
}

// TestRouterError_Unwrap tests router error chains.
func TestRouterError_Unwrap(t *testing.T) {
	err := &RouterError{FromNode: "triage", Returned: "ghost", Err: ErrRouterTargetNotFound}

	assert.ErrorIs(t, err, ErrRouterTargetNotFound)
	assert.Contains(t, err.Error(), "triage")
	assert.Contains(t, err.Error(), "ghost")
}

// TestMaxIterationsError_Unwrap tests the iteration limit sentinel.
func TestMaxIterationsError_Unwrap(t *testing.T) {
	err := &MaxIterationsError{Max: 1000, LastNodeID: "loop"}

	assert.ErrorIs(t, err, ErrMaxIterations)
	assert.Contains(t, err.Error(), "1000")
	assert.Contains(t, err.Error(), "loop")
}

// TestPanicError_Message tests panic error formatting.
func TestPanicError_Message(t *testing.T) {
	err := &PanicError{NodeID: "score", Value: "index out of range", Stack: "stack trace"}

	assert.Contains(t, err.Error(), "score")
	assert.Contains(t, err.Error(), "index out of range")
}
