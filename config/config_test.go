package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Queue.PollInterval)
	assert.Equal(t, 5, cfg.Queue.BatchSize)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 24*time.Hour, cfg.Lifecycle.CheckInterval)
	assert.Equal(t, 180, cfg.Lifecycle.ReviewWindowDays)
	assert.True(t, cfg.Lifecycle.EnableAutoTransfer)
	assert.False(t, cfg.Lifecycle.EnableAutoDestruction)
	assert.True(t, cfg.Lifecycle.EnableAutoReview)
	assert.Equal(t, 3, cfg.Lifecycle.TransferPriority)
	assert.Equal(t, 180*24*time.Hour, cfg.Lifecycle.ReviewWindow())
	assert.Same(t, cfg, Get())
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yaml := []byte("queue:\n  batch_size: 10\nlifecycle:\n  enable_auto_destruction: true\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644))
	t.Setenv("DATABASE_URL", "postgres://archive@localhost/archive")
	t.Setenv("RETENTION_QUEUE_MAX_ATTEMPTS", "7")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Queue.BatchSize)
	assert.True(t, cfg.Lifecycle.EnableAutoDestruction)
	assert.Equal(t, "postgres://archive@localhost/archive", cfg.Database.URL)
	assert.Equal(t, 7, cfg.Queue.MaxAttempts)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yaml := []byte("logging:\n  format: xml\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644))

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoadDotEnvFile_DoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("# comment\nRETENTION_TEST_A=\"from-file\"\nRETENTION_TEST_B=file\n"), 0o644))
	t.Setenv("RETENTION_TEST_B", "from-env")
	t.Setenv("RETENTION_TEST_A", "")
	os.Unsetenv("RETENTION_TEST_A")

	require.NoError(t, loadDotEnvFile(envFile))
	t.Cleanup(func() { os.Unsetenv("RETENTION_TEST_A") })

	assert.Equal(t, "from-file", os.Getenv("RETENTION_TEST_A"))
	assert.Equal(t, "from-env", os.Getenv("RETENTION_TEST_B"))
}
