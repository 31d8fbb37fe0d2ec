package checkpoint

import (
	"encoding/json"
	"time"
)

// Flow is the workflow family identifier stamped on every checkpoint.
// Resume rejects checkpoints produced by a different flow.
const Flow = "flow2"

// Status is the persisted lifecycle state of a run.
type Status string

// Checkpoint lifecycle states. "running" is transient and never persisted.
const (
	StatusPaused    Status = "paused"
	StatusResumed   Status = "resumed"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ValidStatus reports whether s is one of the four persisted states.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPaused, StatusResumed, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Approval gate stages. A run may pass through any number of named gates;
// in practice the review flow uses the primary gate and an escalated EDD gate.
const (
	StagePrimary = "stage1"
	StageEDD     = "edd"
)

// Gate is one human approval point on a run. A gate is created when the run
// pauses at its stage, carries the single-use token delivered to the approver,
// and records the decision once it arrives.
type Gate struct {
	Stage    string    `json:"stage"`
	Token    string    `json:"token"`
	IssuedAt time.Time `json:"issued_at"`

	// Decision fields, empty until the approver acts.
	Decision        string     `json:"decision,omitempty"` // "approve" or "reject"
	DecisionComment string     `json:"decision_comment,omitempty"`
	DecidedBy       string     `json:"decided_by,omitempty"`
	DecidedAt       *time.Time `json:"decided_at,omitempty"`
}

// Decided reports whether the gate has received a decision.
func (g *Gate) Decided() bool {
	return g.Decision != ""
}

// TraceEntry records one node execution for audit and export.
type TraceEntry struct {
	NodeID     string    `json:"node_id"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs float64   `json:"duration_ms"`
	Status     string    `json:"status"` // "ok", "paused", "terminated", "failed"
}

// Checkpoint is the persisted snapshot of a run. It contains everything the
// driver needs to resume execution on a later process invocation: the graph
// identity, the position in the graph, the full serialized working state, and
// the approval gates passed through so far.
//
// The run ID is the sole primary key and is immutable once created. It must be
// a version-4 UUID; stores validate it before building any storage key.
type Checkpoint struct {
	RunID   string `json:"run_id"`
	GraphID string `json:"graph_id"`
	Flow    string `json:"flow"`

	CurrentNodeID  string `json:"current_node_id"`
	PausedAtNodeID string `json:"paused_at_node_id,omitempty"`

	// GraphState is the full serialized working state of the run. It is
	// opaque to the store; the driver depends on it round-tripping exactly.
	GraphState json.RawMessage `json:"graph_state"`

	Status Status `json:"status"`

	CreatedAt time.Time  `json:"created_at"`
	PausedAt  time.Time  `json:"paused_at"`
	ResumedAt *time.Time `json:"resumed_at,omitempty"`

	// LastError holds the triggering error for failed runs.
	LastError string `json:"last_error,omitempty"`

	Gates []*Gate      `json:"gates,omitempty"`
	Trace []TraceEntry `json:"trace,omitempty"`
}

// New creates a checkpoint for a run of the given graph.
func New(runID, graphID string, state []byte) *Checkpoint {
	return &Checkpoint{
		RunID:      runID,
		GraphID:    graphID,
		Flow:       Flow,
		GraphState: state,
		CreatedAt:  time.Now().UTC(),
	}
}

// Marshal serializes the checkpoint to JSON.
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal deserializes a checkpoint from JSON.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Gate returns the gate for the given stage, or nil.
func (c *Checkpoint) Gate(stage string) *Gate {
	for _, g := range c.Gates {
		if g.Stage == stage {
			return g
		}
	}
	return nil
}

// GateByToken returns the gate holding the given token, or nil.
func (c *Checkpoint) GateByToken(token string) *Gate {
	for _, g := range c.Gates {
		if g.Token == token {
			return g
		}
	}
	return nil
}

// OpenGate appends a gate for stage with a fresh token and returns it.
// If an undecided gate already exists for the stage its token is replaced,
// preserving the invariant of at most one live token per stage.
func (c *Checkpoint) OpenGate(stage, token string) *Gate {
	if g := c.Gate(stage); g != nil && !g.Decided() {
		g.Token = token
		g.IssuedAt = time.Now().UTC()
		return g
	}
	g := &Gate{
		Stage:    stage,
		Token:    token,
		IssuedAt: time.Now().UTC(),
	}
	c.Gates = append(c.Gates, g)
	return g
}

// Clone returns a deep copy of the checkpoint.
func (c *Checkpoint) Clone() *Checkpoint {
	cp := *c
	if c.GraphState != nil {
		cp.GraphState = make(json.RawMessage, len(c.GraphState))
		copy(cp.GraphState, c.GraphState)
	}
	if c.ResumedAt != nil {
		t := *c.ResumedAt
		cp.ResumedAt = &t
	}
	if c.Gates != nil {
		cp.Gates = make([]*Gate, len(c.Gates))
		for i, g := range c.Gates {
			gc := *g
			if g.DecidedAt != nil {
				t := *g.DecidedAt
				gc.DecidedAt = &t
			}
			cp.Gates[i] = &gc
		}
	}
	if c.Trace != nil {
		cp.Trace = make([]TraceEntry, len(c.Trace))
		copy(cp.Trace, c.Trace)
	}
	return &cp
}
