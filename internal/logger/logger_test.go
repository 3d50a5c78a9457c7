package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{" warn ", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"info", LevelInfo},
		{"", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestParseLevels(t *testing.T) {
	def, comps, err := ParseLevels("warn, websocket=debug ,chat=error")
	require.NoError(t, err)
	assert.Equal(t, LevelWarn, def)
	assert.Equal(t, map[string]Level{"websocket": LevelDebug, "chat": LevelError}, comps)

	def, comps, err = ParseLevels("")
	require.NoError(t, err)
	assert.Equal(t, LevelInfo, def)
	assert.Empty(t, comps)

	for _, bad := range []string{"loud", "chat=loud", "=debug"} {
		_, _, err := ParseLevels(bad)
		assert.Error(t, err, bad)
	}
}

func TestComponentOverrides(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	require.NoError(t, Configure("warn,websocket=debug"))
	defer Configure("")

	chat, socket := New("chat"), New("websocket")
	chat.Info("hidden %d", 1)
	chat.Warn("shown %d", 2)
	socket.Debug("frame %s", "in")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN][chat] shown 2")
	assert.Contains(t, out, "[DEBUG][websocket] frame in")

	// A new spec drops earlier overrides
	require.NoError(t, Configure("error"))
	assert.False(t, socket.Enabled(LevelDebug))
	assert.True(t, chat.Enabled(LevelError))
}

func TestSetMinLevelKeepsOverrides(t *testing.T) {
	require.NoError(t, Configure("info,drafts=error"))
	defer Configure("")

	SetMinLevel(LevelDebug)
	assert.True(t, New("chat").Enabled(LevelDebug))
	assert.False(t, New("drafts").Enabled(LevelWarn))
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "LEVEL(9)", Level(9).String())
}
