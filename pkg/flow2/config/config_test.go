package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConfig_Accessors tests typed extraction with defaults.
func TestConfig_Accessors(t *testing.T) {
	c := New(map[string]any{
		"store":         "sqlite",
		"max_pause_age": "168h",
		"snapshot":      true,
		"max_iters":     500,
		"sampling":      0.5,
	})

	assert.Equal(t, "sqlite", c.String("store", "file"))
	assert.Equal(t, "file", c.String("missing", "file"))
	assert.Equal(t, "file", c.String("snapshot", "file"), "wrong type falls back")

	assert.Equal(t, 168*time.Hour, c.Duration("max_pause_age", 0))
	assert.Equal(t, time.Minute, c.Duration("missing", time.Minute))

	assert.True(t, c.Bool("snapshot", false))
	assert.False(t, c.Bool("missing", false))

	assert.Equal(t, 500, c.Int("max_iters", 1000))
	assert.Equal(t, 1000, c.Int("sampling", 1000), "fractional float falls back")

	assert.True(t, c.Has("store"))
	assert.False(t, c.Has("missing"))
}

// TestConfig_DurationNumericSeconds tests numeric durations read as seconds,
// the shape YAML and JSON parsers produce.
func TestConfig_DurationNumericSeconds(t *testing.T) {
	c := New(map[string]any{
		"from_float": float64(90),
		"from_int":   120,
	})

	assert.Equal(t, 90*time.Second, c.Duration("from_float", 0))
	assert.Equal(t, 120*time.Second, c.Duration("from_int", 0))
}

// TestConfig_NilMap tests that a nil map behaves as empty.
func TestConfig_NilMap(t *testing.T) {
	c := New(nil)
	assert.Equal(t, "x", c.String("anything", "x"))
	assert.NotNil(t, c.Raw())
}

// TestFromYAML tests YAML parsing.
func TestFromYAML(t *testing.T) {
	c, err := FromYAML([]byte(`
store: file
data_dir: /var/lib/flow2
max_pause_age: 72h
log_level: debug
`))
	require.NoError(t, err)
	assert.Equal(t, "file", c.String("store", ""))
	assert.Equal(t, "/var/lib/flow2", c.String("data_dir", ""))
	assert.Equal(t, 72*time.Hour, c.Duration("max_pause_age", 0))

	_, err = FromYAML([]byte("store: [unbalanced"))
	assert.Error(t, err)
}

// TestFromJSON tests JSON parsing.
func TestFromJSON(t *testing.T) {
	c, err := FromJSON([]byte(`{"store": "sqlite", "sqlite_path": "/data/flow2.db"}`))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", c.String("store", ""))
	assert.Equal(t, "/data/flow2.db", c.String("sqlite_path", ""))

	_, err = FromJSON([]byte(`{broken`))
	assert.Error(t, err)
}

// TestFromFile tests extension-based dispatch.
func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "flow2.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("store: file\n"), 0o644))
	c, err := FromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "file", c.String("store", ""))

	tomlPath := filepath.Join(dir, "flow2.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte("store = 'file'\n"), 0o644))
	_, err = FromFile(tomlPath)
	assert.Error(t, err)

	_, err = FromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

// TestLoadSettings tests the typed settings view.
func TestLoadSettings(t *testing.T) {
	s, err := Load(New(nil))
	require.NoError(t, err)
	assert.Equal(t, BackendFile, s.StoreBackend)
	assert.Equal(t, DefaultDataDir, s.DataDir)
	assert.Equal(t, DefaultSQLitePath, s.SQLitePath)
	assert.Zero(t, s.MaxPauseAge)
	assert.Equal(t, DefaultLogLevel, s.LogLevel)

	s, err = Load(New(map[string]any{
		"store":         "sqlite",
		"sqlite_path":   "/data/flow2.db",
		"max_pause_age": "168h",
		"log_level":     "warn",
	}))
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, s.StoreBackend)
	assert.Equal(t, "/data/flow2.db", s.SQLitePath)
	assert.Equal(t, 7*24*time.Hour, s.MaxPauseAge)
	assert.Equal(t, "warn", s.LogLevel)
}

// TestLoadSettings_Invalid tests settings validation.
func TestLoadSettings_Invalid(t *testing.T) {
	_, err := Load(New(map[string]any{"store": "postgres"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store backend")

	_, err = Load(New(map[string]any{"log_level": "trace"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown log level")
}
