package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{" WARN ", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			lvl, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, lvl.Level())
		})
	}
}

func TestNew(t *testing.T) {
	for _, f := range []Format{FormatJSON, FormatConsole, ""} {
		logger, lvl, err := New("debug", f)
		require.NoError(t, err)
		require.NotNil(t, logger)
		assert.Equal(t, zapcore.DebugLevel, lvl.Level())
	}

	_, _, err := New("info", "xml")
	assert.Error(t, err)

	logger, lvl, err := New("loud", FormatJSON)
	require.NoError(t, err)
	assert.NotNil(t, logger)
	assert.Equal(t, zapcore.InfoLevel, lvl.Level())
}
