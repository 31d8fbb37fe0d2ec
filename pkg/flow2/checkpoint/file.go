package checkpoint

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore persists one JSON record per run under a data directory, with an
// auxiliary tokens/ directory mapping approval tokens to runs. It is suitable
// for single-process production use.
//
// Writes are crash-safe: the record is marshaled, verified to re-parse, written
// to a temp file in the same directory, fsynced, and atomically renamed over
// the canonical path. Writers to the same run are serialized with a per-run
// lock so concatenated records cannot be produced; Load still carries a
// best-effort first-record recovery for files written before that guarantee.
type FileStore struct {
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	runLock map[string]*sync.Mutex
	closed  bool
}

const tokenDir = "tokens"

// NewFileStore creates a file-backed store rooted at dir, creating the
// directory tree if needed.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Join(dir, tokenDir), 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &FileStore{
		dir:     dir,
		logger:  logger,
		runLock: make(map[string]*sync.Mutex),
	}, nil
}

// lockRun returns the write lock for a run, creating it on first use.
func (s *FileStore) lockRun(runID string) (*sync.Mutex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	l, ok := s.runLock[runID]
	if !ok {
		l = &sync.Mutex{}
		s.runLock[runID] = l
	}
	return l, nil
}

func (s *FileStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *FileStore) runPath(runID string) string {
	return filepath.Join(s.dir, runID+".json")
}

func (s *FileStore) tokenPath(token string) string {
	return filepath.Join(s.dir, tokenDir, token+".json")
}

// Save implements Store.
func (s *FileStore) Save(cp *Checkpoint) error {
	if !ValidRunID(cp.RunID) {
		return fmt.Errorf("%w: %q", ErrInvalidRunID, cp.RunID)
	}

	lock, err := s.lockRun(cp.RunID)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()

	data, err := cp.Marshal()
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	// Verify the bytes deserialize before they replace the canonical record.
	if _, err := Unmarshal(data); err != nil {
		return fmt.Errorf("verify checkpoint: %w", err)
	}

	if err := s.writeAtomic(s.runPath(cp.RunID), data); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	// Token index is a secondary write. The checkpoint is the source of
	// truth and the index can be rebuilt from it, so failures are logged
	// and never roll back the save.
	for _, g := range cp.Gates {
		if g.Token == "" {
			continue
		}
		if err := s.IndexToken(g.Token, cp.RunID, g.Stage); err != nil {
			s.logger.Warn("token index write failed",
				slog.String("run_id", cp.RunID),
				slog.String("stage", g.Stage),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// writeAtomic writes data to a temp file in the target directory, fsyncs it,
// and renames it over path.
func (s *FileStore) writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Load implements Store.
func (s *FileStore) Load(runID string) (*Checkpoint, error) {
	if s.isClosed() {
		return nil, ErrStoreClosed
	}
	if !ValidRunID(runID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRunID, runID)
	}

	data, err := os.ReadFile(s.runPath(runID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	cp, err := Unmarshal(data)
	if err == nil {
		return cp, nil
	}

	// Narrow crash window from older writers: a duplicated write leaves two
	// concatenated records. Recover the first well-formed one, loudly.
	if recovered, rerr := firstRecord(data); rerr == nil {
		s.logger.Warn("recovered checkpoint from concatenated record",
			slog.String("run_id", runID),
			slog.Int("raw_bytes", len(data)),
		)
		return recovered, nil
	}

	return nil, &MalformedError{RunID: runID, Err: err}
}

// firstRecord decodes the first complete JSON object from data and validates
// it as a checkpoint.
func firstRecord(data []byte) (*Checkpoint, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var c Checkpoint
	if err := dec.Decode(&c); err != nil {
		return nil, err
	}
	if c.RunID == "" {
		return nil, errors.New("recovered record has no run ID")
	}
	return &c, nil
}

// UpdateStatus implements Store.
func (s *FileStore) UpdateStatus(runID string, status Status, apply func(*Checkpoint)) error {
	cp, err := s.Load(runID)
	if err != nil {
		return err
	}
	cp.Status = status
	if apply != nil {
		apply(cp)
	}
	return s.Save(cp)
}

// List implements Store.
func (s *FileStore) List() ([]Info, error) {
	if s.isClosed() {
		return nil, ErrStoreClosed
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	var infos []Info
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		runID := strings.TrimSuffix(e.Name(), ".json")
		if !ValidRunID(runID) {
			continue
		}
		cp, err := s.Load(runID)
		if err != nil {
			s.logger.Warn("skipping unreadable checkpoint",
				slog.String("run_id", runID),
				slog.String("error", err.Error()),
			)
			continue
		}
		fi, err := e.Info()
		var size int64
		if err == nil {
			size = fi.Size()
		}
		infos = append(infos, Info{
			RunID:          cp.RunID,
			GraphID:        cp.GraphID,
			Status:         cp.Status,
			PausedAtNodeID: cp.PausedAtNodeID,
			CreatedAt:      cp.CreatedAt,
			PausedAt:       cp.PausedAt,
			Size:           size,
		})
	}
	return infos, nil
}

// Delete implements Store. Token index records are left in place; they are
// append-only and resolve to a run that no longer loads.
func (s *FileStore) Delete(runID string) error {
	if s.isClosed() {
		return ErrStoreClosed
	}
	if !ValidRunID(runID) {
		return fmt.Errorf("%w: %q", ErrInvalidRunID, runID)
	}
	if err := os.Remove(s.runPath(runID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// ResolveToken implements Store.
func (s *FileStore) ResolveToken(token string) (TokenRef, error) {
	if s.isClosed() {
		return TokenRef{}, ErrStoreClosed
	}
	if !ValidToken(token) {
		return TokenRef{}, ErrNotFound
	}

	data, err := os.ReadFile(s.tokenPath(token))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return TokenRef{}, ErrNotFound
		}
		return TokenRef{}, fmt.Errorf("read token index: %w", err)
	}

	var ref TokenRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return TokenRef{}, fmt.Errorf("parse token index: %w", err)
	}
	return ref, nil
}

// IndexToken implements Store.
func (s *FileStore) IndexToken(token, runID, stage string) error {
	if s.isClosed() {
		return ErrStoreClosed
	}
	if !ValidToken(token) {
		return fmt.Errorf("invalid token format")
	}
	if !ValidRunID(runID) {
		return fmt.Errorf("%w: %q", ErrInvalidRunID, runID)
	}

	data, err := json.Marshal(TokenRef{RunID: runID, Stage: stage})
	if err != nil {
		return err
	}
	return s.writeAtomic(s.tokenPath(token), data)
}

// Close implements Store.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
