// Package checkpoint provides the durable snapshot record for paused runs and
// the stores that persist it.
package checkpoint

import (
	"errors"
	"fmt"
	"time"
)

// Store persists run checkpoints and the approval-token index.
// Implementations must be safe for concurrent use across runs; callers
// serialize writes to the same run ID externally.
type Store interface {
	// Save durably writes the entire checkpoint, replacing any previous
	// record for the run. Writes are crash-safe: readers never observe a
	// partially written record. Save also maintains the token index for
	// every gate on the checkpoint; index failures are logged and do not
	// fail the save, because the checkpoint itself is the source of truth.
	Save(cp *Checkpoint) error

	// Load retrieves a checkpoint by run ID.
	// Returns ErrNotFound if no record exists, or a *MalformedError if the
	// stored bytes do not parse and cannot be recovered.
	Load(runID string) (*Checkpoint, error)

	// UpdateStatus loads the checkpoint, sets the status, applies the
	// optional mutation, and saves. Returns ErrNotFound for unknown runs.
	UpdateStatus(runID string, status Status, apply func(*Checkpoint)) error

	// List returns lightweight metadata for every stored checkpoint.
	// Operational visibility only; never on the driver's critical path.
	List() ([]Info, error)

	// Delete removes a run's checkpoint. Deleting an unknown run is not an
	// error.
	Delete(runID string) error

	// ResolveToken maps an approval token to its run and stage.
	// Off-format and unknown tokens both return ErrNotFound, never a parse
	// error, since tokens arrive from untrusted input.
	ResolveToken(token string) (TokenRef, error)

	// IndexToken records a token -> (run, stage) mapping. Mappings are
	// append-only during normal operation; tokens are never reused across
	// runs.
	IndexToken(token, runID, stage string) error

	// Close releases any resources.
	Close() error
}

// TokenRef is the target of an approval token.
type TokenRef struct {
	RunID string `json:"run_id"`
	Stage string `json:"stage"`
}

// Info is checkpoint metadata without the full graph state.
type Info struct {
	RunID          string
	GraphID        string
	Status         Status
	PausedAtNodeID string
	CreatedAt      time.Time
	PausedAt       time.Time
	Size           int64
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates an unknown run ID or approval token.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")

	// ErrMalformed indicates a durable record that does not parse.
	ErrMalformed = errors.New("malformed checkpoint")

	// ErrInvalidRunID indicates a run ID that is not a version-4 UUID.
	ErrInvalidRunID = errors.New("invalid run ID")
)

// MalformedError reports a corrupt durable record that survived the store's
// best-effort recovery attempt.
type MalformedError struct {
	// RunID is the run whose record failed to parse.
	RunID string
	// Err is the underlying parse error.
	Err error
}

// Error implements the error interface.
func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed checkpoint for run %s: %v", e.RunID, e.Err)
}

// Unwrap returns ErrMalformed for errors.Is support.
func (e *MalformedError) Unwrap() error {
	return ErrMalformed
}
