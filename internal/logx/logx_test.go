package logx

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"info", LevelInfo, false},
		{"WARN", LevelWarn, false},
		{"error", LevelError, false},
		{"", LevelInfo, false},
		{"bad", LevelInfo, true},
	}
	for _, c := range cases {
		got, err := ParseLevel(c.in)
		if c.wantErr {
			assert.Error(t, err, c.in)
			continue
		}
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestAlertIgnoresLevel(t *testing.T) {
	var buf bytes.Buffer
	prev := SetOutput(&buf)
	defer SetOutput(prev)
	require.NoError(t, SetLevel("error"))
	defer SetLevel("info")

	Warnf("hidden %d", 1)
	Alertf("decryption failed for %s", "patient")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "[ALERT] decryption failed for patient")
}
