package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	require.NoError(t, Configure("INFO", FormatText, "stdout"))
	buf := &bytes.Buffer{}
	SetOutput(buf)
	t.Cleanup(func() {
		_ = Configure("INFO", FormatText, "stdout")
	})
	return buf
}

func TestLevelFiltering(t *testing.T) {
	buf := resetLogger(t)
	SetLevel("warn")

	Info("hidden %d", 1)
	Warn("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown 2")
	assert.Equal(t, LevelWarn, GetLevel())
}

func TestSetLevel_IgnoresUnknown(t *testing.T) {
	resetLogger(t)
	SetLevel("debug")
	SetLevel("verbose")
	assert.Equal(t, LevelDebug, GetLevel())
}

func TestConfigure_JSON(t *testing.T) {
	resetLogger(t)
	require.NoError(t, Configure("DEBUG", FormatJSON, "stdout"))
	buf := &bytes.Buffer{}
	SetOutput(buf)

	Debug("request %s served", "abc")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "DEBUG", entry["level"])
	assert.Equal(t, "request abc served", entry["msg"])
}

func TestConfigure_FileOutput(t *testing.T) {
	resetLogger(t)
	path := filepath.Join(t.TempDir(), "dittoweb.log")

	require.NoError(t, Configure("INFO", FormatText, path))
	Error("disk says %q", "no")
	require.NoError(t, Configure("INFO", FormatText, "stdout"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `[ERROR] disk says "no"`))
}

func TestConfigure_BadPath(t *testing.T) {
	resetLogger(t)
	err := Configure("INFO", FormatText, filepath.Join(t.TempDir(), "missing", "x.log"))
	assert.Error(t, err)
}
