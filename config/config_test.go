package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MINUTES_DATA_DIR", dir)
	t.Setenv("MINUTES_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "recordings"), cfg.DocumentsDir)
	assert.Equal(t, filepath.Join(dir, "minutes.sqlite"), cfg.DatabasePath)
	assert.Equal(t, filepath.Join(dir, "inbox"), cfg.InboxDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "llama3.2", cfg.Summarization.Model)
	assert.Equal(t, "allow", cfg.Pipeline.OverlapPolicy)
	assert.Equal(t, 5, cfg.Pipeline.RecentLimit)
	assert.Equal(t, time.Second, cfg.Capture.Tick)
	assert.Equal(t, "monitor", cfg.Capture.SystemDevice)
	assert.True(t, cfg.Notifications.Desktop)
}

func TestFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "minutes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: `+dir+`
log_level: debug
summarization:
  model: mistral
  timeout: 90s
pipeline:
  overlap_policy: reject
`), 0o644))

	t.Setenv("MINUTES_PIPELINE_OVERLAP_POLICY", "queue")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "mistral", cfg.Summarization.Model)
	assert.Equal(t, 90*time.Second, cfg.Summarization.Timeout)
	assert.Equal(t, "queue", cfg.Pipeline.OverlapPolicy)
}

func TestInvalidValues(t *testing.T) {
	t.Setenv("MINUTES_DATA_DIR", t.TempDir())
	t.Setenv("MINUTES_CONFIG", "")

	t.Setenv("MINUTES_PIPELINE_OVERLAP_POLICY", "sometimes")
	_, err := Load("")
	assert.ErrorContains(t, err, "OverlapPolicy")

	t.Setenv("MINUTES_PIPELINE_OVERLAP_POLICY", "allow")
	t.Setenv("MINUTES_TRANSCRIPTION_URL", "not a url")
	_, err = Load("")
	assert.ErrorContains(t, err, "URL")
}

func TestMissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
