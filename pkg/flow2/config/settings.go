package config

import (
	"fmt"
	"time"
)

// Store backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Settings is the typed view of a flow2 deployment configuration.
type Settings struct {
	// StoreBackend selects the checkpoint store: "file" or "sqlite".
	StoreBackend string
	// DataDir is the file store's root directory.
	DataDir string
	// SQLitePath is the sqlite store's database path.
	SQLitePath string
	// MaxPauseAge is how long a paused run stays resumable. Zero disables
	// expiry.
	MaxPauseAge time.Duration
	// LogLevel is the slog level name: debug, info, warn, error.
	LogLevel string
}

// Defaults for Settings fields.
const (
	DefaultDataDir    = "./flow2-data"
	DefaultSQLitePath = "./flow2.db"
	DefaultLogLevel   = "info"
)

// Load reads Settings out of a Config, applying defaults for missing keys.
func Load(c Config) (Settings, error) {
	s := Settings{
		StoreBackend: c.String("store", BackendFile),
		DataDir:      c.String("data_dir", DefaultDataDir),
		SQLitePath:   c.String("sqlite_path", DefaultSQLitePath),
		MaxPauseAge:  c.Duration("max_pause_age", 0),
		LogLevel:     c.String("log_level", DefaultLogLevel),
	}

	if s.StoreBackend != BackendFile && s.StoreBackend != BackendSQLite {
		return Settings{}, fmt.Errorf("unknown store backend %q", s.StoreBackend)
	}
	switch s.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return Settings{}, fmt.Errorf("unknown log level %q", s.LogLevel)
	}

	return s, nil
}
