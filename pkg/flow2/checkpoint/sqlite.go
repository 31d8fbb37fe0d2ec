package checkpoint

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists checkpoints and the token index to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore creates a SQLite checkpoint store at path
// (e.g. "./checkpoints.db", or ":memory:" for testing).
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoints (
			run_id TEXT PRIMARY KEY,
			graph_id TEXT NOT NULL,
			status TEXT NOT NULL,
			paused_at_node TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			paused_at TEXT NOT NULL DEFAULT '',
			data BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create checkpoints table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS approval_tokens (
			token TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			stage TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create token table: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
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

	pausedAt := ""
	if !cp.PausedAt.IsZero() {
		pausedAt = cp.PausedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err = s.db.Exec(`
		INSERT INTO checkpoints (run_id, graph_id, status, paused_at_node, created_at, paused_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			graph_id = excluded.graph_id,
			status = excluded.status,
			paused_at_node = excluded.paused_at_node,
			paused_at = excluded.paused_at,
			data = excluded.data
	`, cp.RunID, cp.GraphID, string(cp.Status), cp.PausedAtNodeID,
		cp.CreatedAt.UTC().Format(time.RFC3339Nano), pausedAt, data)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	// Secondary write; the checkpoint row is the source of truth.
	for _, g := range cp.Gates {
		if g.Token == "" {
			continue
		}
		if err := s.indexTokenLocked(g.Token, cp.RunID, g.Stage); err != nil {
			s.logger.Warn("token index write failed",
				slog.String("run_id", cp.RunID),
				slog.String("stage", g.Stage),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(runID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if !ValidRunID(runID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRunID, runID)
	}

	var data []byte
	err := s.db.QueryRow(`
		SELECT data FROM checkpoints WHERE run_id = ?
	`, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	cp, err := Unmarshal(data)
	if err != nil {
		if recovered, rerr := firstRecord(data); rerr == nil {
			s.logger.Warn("recovered checkpoint from concatenated record",
				slog.String("run_id", runID),
				slog.Int("raw_bytes", len(data)),
			)
			return recovered, nil
		}
		return nil, &MalformedError{RunID: runID, Err: err}
	}
	return cp, nil
}

// UpdateStatus implements Store.
func (s *SQLiteStore) UpdateStatus(runID string, status Status, apply func(*Checkpoint)) error {
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
func (s *SQLiteStore) List() ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT run_id, graph_id, status, paused_at_node, created_at, paused_at, LENGTH(data)
		FROM checkpoints
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		var info Info
		var status, createdAt, pausedAt string
		if err := rows.Scan(&info.RunID, &info.GraphID, &status, &info.PausedAtNodeID, &createdAt, &pausedAt, &info.Size); err != nil {
			return nil, fmt.Errorf("scan checkpoint info: %w", err)
		}
		info.Status = Status(status)
		info.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if pausedAt != "" {
			info.PausedAt, _ = time.Parse(time.RFC3339Nano, pausedAt)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return infos, nil
}

// Delete implements Store. Token rows are left in place; they resolve to a
// run that no longer loads.
func (s *SQLiteStore) Delete(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if !ValidRunID(runID) {
		return fmt.Errorf("%w: %q", ErrInvalidRunID, runID)
	}

	if _, err := s.db.Exec(`DELETE FROM checkpoints WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// ResolveToken implements Store.
func (s *SQLiteStore) ResolveToken(token string) (TokenRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return TokenRef{}, ErrStoreClosed
	}
	if !ValidToken(token) {
		return TokenRef{}, ErrNotFound
	}

	var ref TokenRef
	err := s.db.QueryRow(`
		SELECT run_id, stage FROM approval_tokens WHERE token = ?
	`, token).Scan(&ref.RunID, &ref.Stage)
	if errors.Is(err, sql.ErrNoRows) {
		return TokenRef{}, ErrNotFound
	}
	if err != nil {
		return TokenRef{}, fmt.Errorf("resolve token: %w", err)
	}
	return ref, nil
}

// IndexToken implements Store.
func (s *SQLiteStore) IndexToken(token, runID, stage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	return s.indexTokenLocked(token, runID, stage)
}

func (s *SQLiteStore) indexTokenLocked(token, runID, stage string) error {
	if !ValidToken(token) {
		return fmt.Errorf("invalid token format")
	}
	if !ValidRunID(runID) {
		return fmt.Errorf("%w: %q", ErrInvalidRunID, runID)
	}

	_, err := s.db.Exec(`
		INSERT INTO approval_tokens (token, run_id, stage)
		VALUES (?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			run_id = excluded.run_id,
			stage = excluded.stage
	`, token, runID, stage)
	if err != nil {
		return fmt.Errorf("index token: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
