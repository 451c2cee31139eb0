package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.Server.Addr)
	assert.Equal(t, 100*1024, cfg.Server.MaxInputSize)
	assert.Equal(t, 3, cfg.Pipeline.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.Pipeline.RetryBaseDelay.Std())
	assert.Equal(t, 500*time.Millisecond, cfg.Stream.PollInterval.Std())
	assert.Equal(t, 600, cfg.Stream.MaxPolls)
	assert.Equal(t, 3, cfg.Pipeline.MaxRerunIterations)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "healerd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9999"
pipeline:
  max_retries: 5
  inter_test_delay: 2s
stream:
  max_polls: 50
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, 5, cfg.Pipeline.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.InterTestDelay.Std())
	assert.Equal(t, 50, cfg.Stream.MaxPolls)
	// Untouched sections keep defaults.
	assert.Equal(t, 100*1024, cfg.Server.MaxInputSize)
}

func TestLoad_EnvOverridesWin(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("HEALERD_ADDR", ":7777")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "test-key", cfg.LLM.APIKey)
	assert.Equal(t, ":7777", cfg.Server.Addr)
}

func TestLoad_MalformedFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{nope"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
