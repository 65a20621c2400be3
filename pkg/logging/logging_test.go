package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingWriter is a helper for testing error propagation.
type failingWriter struct{}

func (fw *failingWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

func restoreDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"DEBUG": slog.LevelDebug,
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"Warn":  slog.LevelWarn,
		"ERROR": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestSetup_TextFiltersByLevel(t *testing.T) {
	restoreDefault(t)
	var out bytes.Buffer

	logger, closer, err := Setup(Config{Level: "WARN", Format: "text"}, &out)
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("hidden")
	slog.Warn("shown", "card", "sd0")

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "msg=shown")
	assert.Contains(t, out.String(), "card=sd0")
}

func TestSetup_JSONToFile(t *testing.T) {
	restoreDefault(t)
	path := filepath.Join(t.TempDir(), "sdcard.log")
	var out bytes.Buffer

	logger, closer, err := Setup(Config{Level: "DEBUG", Format: "json", File: path}, &out)
	require.NoError(t, err)

	logger.Debug("block read", "addr", 7)
	require.NoError(t, closer.Close())
	require.NoError(t, closer.Close(), "second close is a no-op")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"msg":"block read"`)
	assert.Contains(t, string(content), `"addr":7`)
	assert.Equal(t, out.String(), string(content))
}

func TestSetup_BadFile(t *testing.T) {
	restoreDefault(t)
	_, _, err := Setup(Config{File: filepath.Join(t.TempDir(), "missing", "x.log")}, nil)
	assert.Error(t, err)
}

func TestTeeWriter_ErrorPropagation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tee.log")
	f, err := os.Create(path)
	require.NoError(t, err)

	w := &teeWriter{target: &failingWriter{}, file: f}
	n, err := w.Write([]byte("line\n"))
	assert.Equal(t, 5, n)
	assert.EqualError(t, err, "write failed")
	require.NoError(t, w.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(content), "line"), "file still receives the record")
}
