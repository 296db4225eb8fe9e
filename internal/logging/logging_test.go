package logging_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightwatch-dev/nightwatch/internal/logging"
)

func restoreDefault(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestSetup_InstallsDefaultLogger(t *testing.T) {
	restoreDefault(t)

	logger, err := logging.Setup("", "debug")
	require.NoError(t, err)
	require.NotNil(t, logger)

	assert.Same(t, logger, slog.Default(), "package-level slog calls must route through the configured logger")
	assert.NoError(t, logging.CloseFile())
}

func TestSetup_DefaultLoggerReachesFileSink(t *testing.T) {
	restoreDefault(t)

	path := filepath.Join(t.TempDir(), "nightwatch.log")
	_, err := logging.Setup(path, "info")
	require.NoError(t, err)

	// Logged through the package-level default, not the returned logger:
	// this is how the rest of the tree logs.
	slog.Info("poll batch finished", "polled", 3)

	require.NoError(t, logging.CloseFile())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "poll batch finished")
	assert.Contains(t, string(data), "polled=3")
}

func TestSetup_LevelFiltersFileSink(t *testing.T) {
	restoreDefault(t)

	path := filepath.Join(t.TempDir(), "nightwatch.log")
	_, err := logging.Setup(path, "error")
	require.NoError(t, err)

	slog.Info("suppressed detail")
	slog.Error("poll batch failed")

	require.NoError(t, logging.CloseFile())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "suppressed detail")
	assert.Contains(t, string(data), "poll batch failed")
}

func TestSetup_CreatesLogDir(t *testing.T) {
	restoreDefault(t)

	path := filepath.Join(t.TempDir(), "logs", "nested", "nightwatch.log")
	_, err := logging.Setup(path, "info")
	require.NoError(t, err)

	slog.Warn("scheduler tick overran")
	require.NoError(t, logging.CloseFile())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
