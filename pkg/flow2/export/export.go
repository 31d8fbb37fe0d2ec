// Package export reconstructs human-auditable approval packages from run
// checkpoints. It is strictly read-only: building a package never mutates
// engine state, and every optional field is defaulted so a failed run that
// never reached completion still exports.
package export

import (
	"encoding/json"
	"time"

	"github.com/complyhq/flow2/pkg/flow2/checkpoint"
)

// Outcome classifications for an exported run.
const (
	OutcomeApproved   = "approved"
	OutcomeRejected   = "rejected"
	OutcomeFailed     = "failed"
	OutcomeIncomplete = "incomplete"
)

// Step is one executed node in the audit trail.
type Step struct {
	NodeID     string    `json:"node_id"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs float64   `json:"duration_ms"`
	Status     string    `json:"status"`
}

// StageDecision is one approval gate's recorded outcome.
type StageDecision struct {
	Stage     string     `json:"stage"`
	Decision  string     `json:"decision"` // empty when the gate was never decided
	Comment   string     `json:"comment,omitempty"`
	DecidedBy string     `json:"decided_by,omitempty"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}

// RiskSummary carries the triage signal captured in graph state, when present.
type RiskSummary struct {
	Score   int      `json:"score"`
	Path    string   `json:"path,omitempty"`
	Reasons []string `json:"reasons,omitempty"`
}

// Package is a self-contained audit document for one run.
type Package struct {
	RunID       string    `json:"run_id"`
	GraphID     string    `json:"graph_id"`
	Flow        string    `json:"flow"`
	Outcome     string    `json:"outcome"`
	GeneratedAt time.Time `json:"generated_at"`

	CreatedAt time.Time  `json:"created_at"`
	PausedAt  time.Time  `json:"paused_at,omitempty"`
	ResumedAt *time.Time `json:"resumed_at,omitempty"`

	// Document holds the reviewed document's metadata when the graph state
	// carries a top-level "document" object.
	Document map[string]any `json:"document,omitempty"`

	Risk      RiskSummary     `json:"risk"`
	Decisions []StageDecision `json:"decisions"`
	Trace     []Step          `json:"trace"`

	LastError string `json:"last_error,omitempty"`
}

// stateView is the conventional shape export looks for inside graph state.
// States that embed these keys get richer packages; everything is optional.
type stateView struct {
	Document map[string]any `json:"document"`
	Risk     *struct {
		RiskScore int      `json:"risk_score"`
		Path      string   `json:"path"`
		Reasons   []string `json:"reasons"`
	} `json:"risk"`
}

// Build assembles an approval package from a checkpoint.
func Build(cp *checkpoint.Checkpoint) *Package {
	p := &Package{
		RunID:       cp.RunID,
		GraphID:     cp.GraphID,
		Flow:        cp.Flow,
		Outcome:     classify(cp),
		GeneratedAt: time.Now().UTC(),
		CreatedAt:   cp.CreatedAt,
		PausedAt:    cp.PausedAt,
		Decisions:   []StageDecision{},
		Trace:       []Step{},
		LastError:   cp.LastError,
	}
	if cp.ResumedAt != nil {
		t := *cp.ResumedAt
		p.ResumedAt = &t
	}

	for _, g := range cp.Gates {
		d := StageDecision{
			Stage:     g.Stage,
			Decision:  g.Decision,
			Comment:   g.DecisionComment,
			DecidedBy: g.DecidedBy,
		}
		if g.DecidedAt != nil {
			t := *g.DecidedAt
			d.DecidedAt = &t
		}
		p.Decisions = append(p.Decisions, d)
	}

	for _, e := range cp.Trace {
		p.Trace = append(p.Trace, Step{
			NodeID:     e.NodeID,
			StartedAt:  e.StartedAt,
			DurationMs: e.DurationMs,
			Status:     e.Status,
		})
	}

	// Graph state is opaque to the store and may be absent or unreadable for
	// failed runs; anything that doesn't decode is simply left defaulted.
	var view stateView
	if len(cp.GraphState) > 0 && json.Unmarshal(cp.GraphState, &view) == nil {
		p.Document = view.Document
		if view.Risk != nil {
			p.Risk = RiskSummary{
				Score:   view.Risk.RiskScore,
				Path:    view.Risk.Path,
				Reasons: view.Risk.Reasons,
			}
		}
	}

	return p
}

// classify derives the final outcome from status and gate decisions.
func classify(cp *checkpoint.Checkpoint) string {
	if cp.Status == checkpoint.StatusFailed {
		return OutcomeFailed
	}
	for _, g := range cp.Gates {
		if g.Decision == "reject" {
			return OutcomeRejected
		}
	}
	if cp.Status == checkpoint.StatusCompleted {
		return OutcomeApproved
	}
	return OutcomeIncomplete
}
