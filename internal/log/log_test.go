package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	var tests = []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{" error ", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestSetLogger(t *testing.T) {
	prev := Logger()
	defer SetLogger(prev)

	nop := zap.NewNop()
	SetLogger(nop)
	assert.Same(t, nop, Logger())
}

func TestInit_EnablesLevel(t *testing.T) {
	prev := Logger()
	defer SetLogger(prev)

	l := Init("debug")
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l = Init("error")
	assert.False(t, l.Core().Enabled(zapcore.WarnLevel))
}
