package app

import (
	"bytes"
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openarchive/retention-service/config"
)

func TestLifecycleConfig(t *testing.T) {
	got := LifecycleConfig(config.LifecycleConfig{
		ReviewWindowDays:            90,
		PermanentTransferAfterYears: 25,
		EnableAutoTransfer:          true,
		EnableAutoDestruction:       true,
		TransferPriority:            7,
	})

	assert.Equal(t, 90*24*time.Hour, got.Retention.ReviewWindow)
	assert.Equal(t, 25, got.Retention.PermanentTransferAfterYears)
	assert.True(t, got.EnableAutoTransfer)
	assert.True(t, got.EnableAutoDestruction)
	assert.False(t, got.EnableAutoReview)
	assert.Equal(t, 7, got.TransferPriority)
}

func TestWorkerID(t *testing.T) {
	assert.Equal(t, "dispatcher-a", WorkerID("dispatcher-a"))

	generated := WorkerID("")
	assert.True(t, strings.HasSuffix(generated, "-"+strconv.Itoa(os.Getpid())), generated)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LoggingConfig{Level: "warn", Format: "json"}, "retention-service", &buf)

	logger.Info().Msg("dropped")
	logger.Warn().Str("component", "test").Msg("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "retention-service", entry["service"])
	assert.Equal(t, "warn", entry["level"])
}

func TestNewLogger_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LoggingConfig{Level: "loud", Format: "json"}, "svc", &buf)
	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
