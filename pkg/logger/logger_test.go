package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "debug", Format: FormatJSON, Output: &buf, Service: "questbot"})

	l.Debug("quest issued", QuestID(7), UserID(3), Err(errors.New("boom")))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "quest issued", rec["msg"])
	assert.Equal(t, "questbot", rec["service"])
	assert.EqualValues(t, 7, rec["quest_id"])
	assert.Equal(t, "boom", rec["error"])
}

func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "warn", Format: FormatText, Output: &buf})

	l.Info("hidden")
	assert.Zero(t, buf.Len())

	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestContextPropagation(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Output: &buf})

	ctx := WithContext(context.Background(), l)
	ctx, id := WithRequestID(ctx)
	require.NotEmpty(t, id)

	FromContext(ctx).Info("hello")
	assert.Contains(t, buf.String(), id)

	assert.Equal(t, slog.Default(), FromContext(context.Background()))
}
