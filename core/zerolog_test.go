package core

import (
	"bytes"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(zerolog.New(&buf), LevelInfo).
		With(map[string]any{"session_id": "s1"})

	logger.Debug("hidden")
	logger.Info("gloss dispatched", "gloss", "hello")
	logger.Warn("clip missing")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, sonic.UnmarshalString(lines[0], &first))
	assert.Equal(t, "info", first["level"])
	assert.Equal(t, "gloss dispatched", first["message"])
	assert.Equal(t, "hello", first["gloss"])
	assert.Equal(t, "s1", first["session_id"])

	assert.Contains(t, lines[1], `"level":"warn"`)
}

func TestWriterLoggerConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LevelWarn)

	logger.Info("not shown")
	logger.Warn("player stop failed", "gloss", "clap")

	out := buf.String()
	assert.NotContains(t, out, "not shown")
	assert.Contains(t, out, "player stop failed")
	assert.Contains(t, out, "clap")
	assert.Equal(t, 1, strings.Count(strings.TrimSpace(out), "\n")+1)
}
