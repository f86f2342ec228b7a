package log

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestLogger_Levels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.log")
	l, err := NewLogger(path, false)
	require.NoError(t, err)
	defer l.Close()

	var console bytes.Buffer
	l.SetConsole(&console)
	log := slog.New(l.Handler())

	log.Debug("hidden")
	log.Info("started", "node", "192.168.0.10")
	log.Warn("decode failed", "from", "192.168.0.20")

	content := readFile(t, path)
	assert.NotContains(t, content, "hidden")
	assert.Contains(t, content, "msg=started node=192.168.0.10")
	assert.Contains(t, content, "decode failed")
	assert.Equal(t, "WARN decode failed from=192.168.0.20\n", console.String())

	l.SetDebug(true)
	log.With("device", "001101").Debug("visible")
	assert.Contains(t, readFile(t, path), "msg=visible device=001101")
}

func TestLogger_Rotate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.log")
	l, err := NewLogger(path, false)
	require.NoError(t, err)
	defer l.Close()
	log := slog.New(l.Handler())

	log.Info("before")
	rotated := filepath.Join(dir, "node.log.1")
	require.NoError(t, os.Rename(path, rotated))

	log.Info("still old file")
	require.NoError(t, l.Rotate())
	log.Info("after")

	assert.Contains(t, readFile(t, rotated), "still old file")
	assert.NotContains(t, readFile(t, rotated), "after")
	assert.Contains(t, readFile(t, path), "after")
}

func TestLogger_Close(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.log")
	l, err := NewLogger(path, false)
	require.NoError(t, err)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	require.NoError(t, l.Rotate(), "閉じた後の Rotate は何もしない")

	n, err := l.Write([]byte("dropped\n"))
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Empty(t, readFile(t, path))
}

func TestNewLogger_InvalidPath(t *testing.T) {
	_, err := NewLogger(filepath.Join(t.TempDir(), "missing", "node.log"), false)
	assert.Error(t, err)
}
