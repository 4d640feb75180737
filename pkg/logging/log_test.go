package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsLevels(t *testing.T) {
	for _, level := range []string{"", "info", "DEBUG", " trace ", "error"} {
		_, err := options(level)
		assert.NoError(t, err, "level %q", level)
	}
	_, err := options("loud")
	assert.ErrorContains(t, err, "unknown log level")
}

func TestOpenFileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "ssmfwd.log")

	logger, closer, err := OpenFile(path, "info")
	require.NoError(t, err)
	logger.Info("hello", "tunnel", "i-1")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), "i-1")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestOpenFileBadLevel(t *testing.T) {
	_, _, err := OpenFile(filepath.Join(t.TempDir(), "x.log"), "loud")
	assert.Error(t, err)
}
