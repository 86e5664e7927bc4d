package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/Pliploop/MuLOOC/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTestLoggerCapturesFields tests that TestLogger records structured fields
func TestTestLoggerCapturesFields(t *testing.T) {
	testLogger, buffer := NewTestLogger(LevelDebug)

	testLogger.Debug("built contrastive matrices", BatchSizeKey, 2, ViewsKey, 2)
	testLogger.Warn("skipping unreadable item", PathKey, "/data/a.wav", "error", fmt.Errorf("bad header"))

	require.NotEmpty(t, buffer.String())
	assert.True(t, testLogger.ContainsMessage("built contrastive matrices"))
	assert.True(t, testLogger.ContainsField(BatchSizeKey, 2.0)) // JSON numbers decode as float64
	assert.True(t, testLogger.ContainsField("error", "bad header"))
	assert.Equal(t, 1, testLogger.CountMessage("skipping unreadable item"))
}

// TestTestLoggerWith tests contextual fields
func TestTestLoggerWith(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)

	child := testLogger.With(ComponentKey, "sampling", ModelNameKey, "Sampler")
	child.Info("strategy drawn", StrategyKey, "adjacent")

	assert.True(t, testLogger.ContainsField(ComponentKey, "sampling"))
	assert.True(t, testLogger.ContainsField(StrategyKey, "adjacent"))
}

// TestTestLoggerLevels tests level filtering
func TestTestLoggerLevels(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)
	ctx := context.Background()

	assert.True(t, testLogger.Enabled(ctx, LevelWarn))
	assert.False(t, testLogger.Enabled(ctx, LevelDebug))

	testLogger.Debug("hidden")
	testLogger.Info("shown")
	assert.False(t, testLogger.ContainsMessage("hidden"))
	assert.True(t, testLogger.ContainsMessage("shown"))
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

// TestZerologLogger tests the zerolog backend
func TestZerologLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelInfo)

	logger.Debug("dropped")
	logger.With(HeadKey, "invariant").Info("head loss", LossKey, 1.25)
	logger.Error("decode failed", "error", fmt.Errorf("eof"))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)

	assert.Equal(t, "info", entries[0]["level"])
	assert.Equal(t, "head loss", entries[0]["message"])
	assert.Equal(t, "invariant", entries[0][HeadKey])
	assert.Equal(t, 1.25, entries[0][LossKey])

	assert.Equal(t, "error", entries[1]["level"])
	assert.Equal(t, "eof", entries[1]["error"])

	assert.False(t, logger.Enabled(context.Background(), LevelDebug))
	assert.True(t, logger.Enabled(context.Background(), LevelError))
}

// TestZerologWarnings tests that errors.Warn is routed with structured fields
func TestZerologWarnings(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelDebug)
	logger.InstallWarnings()
	defer errors.SetZerologWarnFunc(nil)

	errors.Warn(errors.NewUndefinedLossWarning("pitch", "no positive pairs in batch", 0))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "warn", entries[0]["level"])
	assert.Equal(t, "pitch", entries[0]["head"])
	assert.Equal(t, "UndefinedLossWarning", entries[0]["type"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetLoggerIgnoresNil(t *testing.T) {
	before := GetLogger()
	SetLogger(nil)
	assert.Same(t, before, GetLogger())
}
