package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require := require.New(t)

	tests := []struct {
		name  string
		level Level
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"", InfoLevel},
		{"Warning", WarnLevel},
		{"warn", WarnLevel},
		{"error", ErrorLevel},
		{"CRITICAL", FatalLevel},
	}

	for _, tt := range tests {
		level, err := ParseLevel(tt.name)
		require.NoError(err, tt.name)
		require.Equal(tt.level, level, tt.name)
	}

	_, err := ParseLevel("verbose")
	require.Error(err)
}

func TestSlogWriterJSON(t *testing.T) {
	require := require.New(t)
	t.Setenv("ENV", "")

	var buf bytes.Buffer
	l := NewSlogWriter(&buf, InfoLevel, false)

	l.Debug("hidden")
	require.Zero(buf.Len())

	l.With("port", "/dev/ttyUSB0").Info("connected", "state", "Subscribed")

	var record map[string]any
	require.NoError(json.Unmarshal(buf.Bytes(), &record))
	require.Equal("connected", record["msg"])
	require.Equal("/dev/ttyUSB0", record["port"])
	require.Equal("Subscribed", record["state"])
	require.Contains(record, "ts")

	buf.Reset()
	l.SetLevel(DebugLevel)
	require.Equal(DebugLevel, l.Level())
	l.Debug("visible")
	require.NotZero(buf.Len())
}
