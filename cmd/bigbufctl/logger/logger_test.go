package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_LevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	closeLog, err := Init(Options{Level: "debug", Format: "json", Output: &buf})
	require.NoError(t, err)
	defer closeLog()

	Debug("chapter drawn", "pfn", 4)
	assert.Contains(t, buf.String(), `"msg":"chapter drawn"`)
	assert.Contains(t, buf.String(), `"pfn":4`)

	buf.Reset()
	_, err = Init(Options{Output: &buf})
	require.NoError(t, err)
	Info("hidden")
	Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestInit_Console(t *testing.T) {
	var buf bytes.Buffer
	_, err := Init(Options{Level: "info", Format: "console", Output: &buf})
	require.NoError(t, err)

	Info("allocated", "size", 4096)
	out := buf.String()
	assert.Contains(t, out, "allocated")
	assert.Contains(t, out, "size=4096")
	assert.NotContains(t, out, `"msg"`)
}

func TestInit_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bigbuf.log")
	closeLog, err := Init(Options{Level: "info", File: path})
	require.NoError(t, err)
	Info("released", "size", 4096)
	require.NoError(t, closeLog())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "released")
}

func TestInit_Errors(t *testing.T) {
	_, err := Init(Options{Level: "loud"})
	require.Error(t, err)
	_, err = Init(Options{Format: "xml"})
	require.Error(t, err)

	level, err := ParseLevel("ERROR")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelError, level)
}
