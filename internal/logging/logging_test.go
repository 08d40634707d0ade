package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/powerpolicy/internal/config"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	log, err := New(config.LogConfig{Path: path, Level: "debug"})
	require.NoError(t, err)

	log.Debug("hello")
	log.Info("api ok")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"hello"`)
	require.Contains(t, string(data), `"msg":"api ok"`)
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(config.LogConfig{})
	require.Error(t, err)

	_, err = New(config.LogConfig{Path: filepath.Join(t.TempDir(), "x.log"), Level: "shouty"})
	require.ErrorContains(t, err, "log level")
}
