package checkpoint

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ValidationError carries every structural violation found in a candidate
// checkpoint, so callers can report a complete diagnostic rather than the
// first failure.
type ValidationError struct {
	Violations []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("checkpoint validation failed: %s", strings.Join(e.Violations, "; "))
}

// Validate parses raw bytes and runs structural validation on the result.
func Validate(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, &ValidationError{Violations: []string{fmt.Sprintf("unparseable: %v", err)}}
	}
	if err := ValidateCheckpoint(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ValidateCheckpoint performs structural checks on a loaded checkpoint before
// it is trusted: required fields, status domain, flow compatibility, and the
// paused-node/status coupling. All violations are collected.
func ValidateCheckpoint(c *Checkpoint) error {
	var v []string

	if !ValidRunID(c.RunID) {
		v = append(v, fmt.Sprintf("run_id %q is not a version-4 UUID", c.RunID))
	}
	if c.GraphID == "" {
		v = append(v, "graph_id is required")
	}
	if c.Flow != Flow {
		v = append(v, fmt.Sprintf("flow %q does not match %q", c.Flow, Flow))
	}
	if !ValidStatus(c.Status) {
		v = append(v, fmt.Sprintf("status %q is not one of paused/resumed/completed/failed", c.Status))
	}
	if len(c.GraphState) == 0 {
		v = append(v, "graph_state is required")
	} else if !json.Valid(c.GraphState) {
		v = append(v, "graph_state is not valid JSON")
	}
	if c.CreatedAt.IsZero() {
		v = append(v, "created_at is required")
	}
	if c.PausedAt.IsZero() {
		v = append(v, "paused_at is required")
	}

	// paused_at_node_id is non-empty iff the run is paused.
	if c.Status == StatusPaused && c.PausedAtNodeID == "" {
		v = append(v, "paused checkpoint has no paused_at_node_id")
	}
	if c.Status != StatusPaused && c.PausedAtNodeID != "" {
		v = append(v, fmt.Sprintf("status %q checkpoint has paused_at_node_id %q", c.Status, c.PausedAtNodeID))
	}

	for i, g := range c.Gates {
		if g.Stage == "" {
			v = append(v, fmt.Sprintf("gate %d has no stage", i))
		}
		if g.Token != "" && !ValidToken(g.Token) {
			v = append(v, fmt.Sprintf("gate %q token has invalid format", g.Stage))
		}
		if g.Decision != "" && g.Decision != "approve" && g.Decision != "reject" {
			v = append(v, fmt.Sprintf("gate %q decision %q is not approve/reject", g.Stage, g.Decision))
		}
	}

	if len(v) > 0 {
		return &ValidationError{Violations: v}
	}
	return nil
}

// IsExpired reports whether a checkpoint's pause is older than maxAge at the
// given instant. Pure time comparison; enforcement is a caller decision.
// A non-positive maxAge means checkpoints never expire.
func IsExpired(c *Checkpoint, maxAge time.Duration, now time.Time) bool {
	if maxAge <= 0 || c.PausedAt.IsZero() {
		return false
	}
	return now.Sub(c.PausedAt) > maxAge
}
