package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Format: FormatJSON, Output: &buf})

	l.Debug("hidden")
	l.Info("document embedded", "chunks", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "document embedded", rec["msg"])
	assert.Equal(t, ServiceName, rec["service"])
	assert.EqualValues(t, 3, rec["chunks"])
	assert.NotContains(t, rec, slog.SourceKey)
}

func TestNew_TextWithSourceOnDebug(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Format: FormatText, Output: &buf})

	l.Debug("claimed")

	out := buf.String()
	assert.Contains(t, out, "msg=claimed")
	assert.Contains(t, out, "source=logger/logger_test.go:")
}

func TestValidFormat(t *testing.T) {
	assert.True(t, ValidFormat("json"))
	assert.True(t, ValidFormat("text"))
	assert.False(t, ValidFormat("yaml"))
}
