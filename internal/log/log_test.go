package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelError, ParseLevel(" ERROR "))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
}

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { SetLevel(LevelInfo) })

	SetLevel(LevelDebug)
	assert.Equal(t, zapcore.DebugLevel, atomLevel.Level())
	SetLevel(LevelError)
	assert.Equal(t, zapcore.ErrorLevel, atomLevel.Level())
}

func TestLoggingDoesNotPanicOnOddPairs(t *testing.T) {
	assert.NotPanics(t, func() {
		Info("odd", "key")
		Error("failed", errors.New("boom"), "k", 1, "dangling")
		Debug("quiet")
	})
}
