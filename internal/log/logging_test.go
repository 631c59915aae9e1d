package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/remapd/keycode"
	"github.com/Alia5/remapd/remap"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		level   slog.Level
		wantErr bool
	}{
		{in: "trace", level: LevelTrace},
		{in: "DEBUG", level: slog.LevelDebug},
		{in: "", level: slog.LevelInfo},
		{in: "warning", level: slog.LevelWarn},
		{in: "error", level: slog.LevelError},
		{in: "loud", level: slog.LevelInfo, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			l, err := ParseLevel(tt.in)
			assert.Equal(t, tt.level, l)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewLoggerSplitsStreams(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := NewLogger(LevelTrace, &stdout, &stderr)

	logger.Log(t.Context(), LevelTrace, "trace line")
	logger.Info("info line", "device", "/dev/input/event3")
	logger.Error("error line")

	assert.Contains(t, stdout.String(), "level=TRACE")
	assert.Contains(t, stdout.String(), "info line")
	assert.Contains(t, stdout.String(), "device=/dev/input/event3")
	assert.NotContains(t, stdout.String(), "error line")
	assert.Contains(t, stderr.String(), "error line")
	assert.NotContains(t, stderr.String(), "info line")

	stdout.Reset()
	quiet := NewLogger(slog.LevelWarn, &stdout, &stderr)
	quiet.Info("hidden")
	assert.Empty(t, stdout.String())
}

func TestEventLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewEventLogger(&buf).(*eventLogger)
	l.now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }

	l.Log(true, "/dev/input/event3", remap.KeyEvent(keycode.MustParse("KEY_A"), remap.Pressed))
	l.Log(false, "remapd-kbd", remap.SyncEvent())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "12:00:00.000000 IN  /dev/input/event3 KEY_A pressed", lines[0])
	assert.Equal(t, "12:00:00.000000 OUT remapd-kbd SYN_REPORT", lines[1])

	NewEventLogger(nil).Log(true, "x", remap.SyncEvent())
}
