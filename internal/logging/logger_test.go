package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_WritesJSONToOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "warn", Format: "json", Output: &buf})

	logger.Info("dropped")
	logger.WithRunID("run-1").Warn("kept", slog.String("table", "posts"))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "kept", record["msg"])
	assert.Equal(t, "run-1", record["run_id"])
	assert.Equal(t, "posts", record["table"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.NotNil(t, FromContext(ctx).Logger)
	assert.Empty(t, GetRunID(ctx))

	logger := NewLogger(Config{Output: &bytes.Buffer{}})
	runID := NewRunID()
	ctx = WithRunIDContext(WithLogger(ctx, logger), runID)

	assert.Same(t, logger, FromContext(ctx))
	assert.Equal(t, runID, GetRunID(ctx))
	_, err := uuid.Parse(runID)
	assert.NoError(t, err)
}

func TestMultiHandler_FansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := newMultiHandler(
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	logger := slog.New(h).With("k", "v")

	logger.Info("info line")
	logger.Error("error line")

	assert.Contains(t, a.String(), "info line")
	assert.Contains(t, a.String(), "error line")
	assert.NotContains(t, b.String(), "info line")
	assert.Contains(t, b.String(), "k=v")
}
