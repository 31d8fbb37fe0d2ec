package checkpoint

import (
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory checkpoint store for testing and examples.
// Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string][]byte
	tokens map[string]TokenRef
	closed bool
}

// NewMemoryStore creates a new in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:   make(map[string][]byte),
		tokens: make(map[string]TokenRef),
	}
}

// Save implements Store.
func (m *MemoryStore) Save(cp *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if !ValidRunID(cp.RunID) {
		return fmt.Errorf("%w: %q", ErrInvalidRunID, cp.RunID)
	}

	data, err := cp.Marshal()
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if _, err := Unmarshal(data); err != nil {
		return fmt.Errorf("verify checkpoint: %w", err)
	}

	m.runs[cp.RunID] = data
	for _, g := range cp.Gates {
		if g.Token != "" {
			m.tokens[g.Token] = TokenRef{RunID: cp.RunID, Stage: g.Stage}
		}
	}
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(runID string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	if !ValidRunID(runID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRunID, runID)
	}

	data, ok := m.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	cp, err := Unmarshal(data)
	if err != nil {
		return nil, &MalformedError{RunID: runID, Err: err}
	}
	return cp, nil
}

// UpdateStatus implements Store.
func (m *MemoryStore) UpdateStatus(runID string, status Status, apply func(*Checkpoint)) error {
	cp, err := m.Load(runID)
	if err != nil {
		return err
	}
	cp.Status = status
	if apply != nil {
		apply(cp)
	}
	return m.Save(cp)
}

// List implements Store.
func (m *MemoryStore) List() ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	infos := make([]Info, 0, len(m.runs))
	for runID, data := range m.runs {
		cp, err := Unmarshal(data)
		if err != nil {
			continue
		}
		infos = append(infos, Info{
			RunID:          runID,
			GraphID:        cp.GraphID,
			Status:         cp.Status,
			PausedAtNodeID: cp.PausedAtNodeID,
			CreatedAt:      cp.CreatedAt,
			PausedAt:       cp.PausedAt,
			Size:           int64(len(data)),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.runs, runID)
	return nil
}

// ResolveToken implements Store.
func (m *MemoryStore) ResolveToken(token string) (TokenRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return TokenRef{}, ErrStoreClosed
	}
	if !ValidToken(token) {
		return TokenRef{}, ErrNotFound
	}
	ref, ok := m.tokens[token]
	if !ok {
		return TokenRef{}, ErrNotFound
	}
	return ref, nil
}

// IndexToken implements Store.
func (m *MemoryStore) IndexToken(token, runID, stage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if !ValidToken(token) {
		return fmt.Errorf("invalid token format")
	}
	if !ValidRunID(runID) {
		return fmt.Errorf("%w: %q", ErrInvalidRunID, runID)
	}
	m.tokens[token] = TokenRef{RunID: runID, Stage: stage}
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.runs = nil
	m.tokens = nil
	return nil
}

// Len returns the number of stored checkpoints. Useful for testing.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runs)
}

// Corrupt overwrites the stored bytes for a run. Test hook for exercising
// malformed-record handling.
func (m *MemoryStore) Corrupt(runID string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[runID] = data
}
