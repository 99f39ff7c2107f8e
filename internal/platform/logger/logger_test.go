package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTagsEntriesWithService(t *testing.T) {
	var buf bytes.Buffer
	log := New("guestgate", WithOutput(&buf))
	log.Info("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "guestgate", entry["service"])
	assert.Equal(t, "hello", entry["msg"])
}

func TestNewHonorsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New("guestgate", WithOutput(&buf), WithLevel(slog.LevelWarn))

	log.Info("dropped")
	assert.Zero(t, buf.Len())

	log.Warn("kept")
	assert.NotZero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}
