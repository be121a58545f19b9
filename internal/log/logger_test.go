package log

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigureSetsServiceAndLevel(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "warn", Output: &buf, Service: "orchestrator-test", Version: "1.2.3"})

	L().Info().Msg("should be filtered")
	L().Warn().Msg("should appear")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "orchestrator-test", entry["service"])
	require.Equal(t, "1.2.3", entry["version"])
	require.Equal(t, "warn", entry["level"])
}

func TestSetLevelRejectsInvalidLevel(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf})

	err := SetLevel(context.Background(), "test", "not-a-level")
	require.ErrorIs(t, err, ErrInvalidLogLevel)
}

func TestSetLevelEmitsAuditEntry(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "info", Output: &buf})
	buf.Reset()

	require.NoError(t, SetLevel(context.Background(), "config-reload", "debug"))

	found := false
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["event"] == "log.level_changed" {
			found = true
			require.Equal(t, "config-reload", entry["reason"])
			require.Equal(t, "debug", entry["to"])
		}
	}
	require.True(t, found, "expected an audit entry for log.level_changed")
}

func TestWithComponentAnnotatesLogger(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf})

	WithComponent("discovery").Info().Msg("scanning")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "discovery", entry["component"])
}
