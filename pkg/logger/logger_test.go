package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, cfg *Config) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l := &Logger{
		Logger: slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: cfg.Level.ToSlogLevel()})),
		config: cfg,
	}
	return l, &buf
}

func TestLoggerEmitsAtConfiguredLevel(t *testing.T) {
	cfg := NewConfig()
	cfg.Level = LevelWarn
	l, buf := newTestLogger(t, cfg)

	l.Debug("should not appear")
	assert.Empty(t, buf.String())

	l.Warn("should appear")
	assert.Contains(t, buf.String(), "should appear")
}

func TestParseLevelRejectsUnknown(t *testing.T) {
	_, err := ParseLevel("trace")
	require.Error(t, err)
}

func TestParseFormatRejectsUnknown(t *testing.T) {
	_, err := ParseFormat("xml")
	require.Error(t, err)
}
