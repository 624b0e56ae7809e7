// ABOUTME: Tests for the colorized slog handler.
// ABOUTME: Runs with color disabled so output can be matched as plain text.

package main

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
}

func TestColorHandler(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	logger := slog.New(newColorHandler(&buf, slog.LevelInfo))

	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	logger.With("component", "gateway").WithGroup("req").Warn("slow", "ms", 12)
	line := buf.String()
	assert.Contains(t, line, "WRN slow")
	assert.Contains(t, line, " component=gateway")
	assert.Contains(t, line, " req.ms=12")
	assert.True(t, bytes.HasSuffix(buf.Bytes(), []byte("\n")))
}
