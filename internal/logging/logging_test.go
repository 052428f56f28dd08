// File: internal/logging/logging_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package logging

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func capture(t *testing.T) *bytes.Buffer {
	var buf bytes.Buffer
	SetOutput(&buf)
	prev := CurrentLevel()
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(prev)
	})
	return &buf
}

func TestLoggerLevels(t *testing.T) {
	buf := capture(t)

	lg := New("pool")
	SetLevel(LevelInfo)
	lg.Debugf("hidden %d", 1)
	lg.Infof("page %d", 2)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "INFO [pool] page 2")

	SetLevel(LevelNone)
	buf.Reset()
	lg.Errorf("quiet")
	lg.Fatalf("quiet")
	assert.Empty(t, buf.String())
	assert.False(t, lg.Enabled(LevelFatal))
}

func TestLevelChangeReachesExistingLoggers(t *testing.T) {
	buf := capture(t)

	lg := New("scheduler")
	SetLevel(LevelError)
	lg.Infof("before")
	assert.Empty(t, buf.String())

	SetLevel(LevelDebug)
	assert.True(t, lg.Enabled(LevelDebug))
	lg.Debugf("after")
	assert.Contains(t, buf.String(), "DEBUG [scheduler] after")
	assert.Equal(t, zapcore.DebugLevel, level.Level())
}

func TestFatalfDoesNotExit(t *testing.T) {
	buf := capture(t)
	SetLevel(LevelFatal)

	New("fatal").With("thread", 7).Fatalf("boom")
	out := buf.String()
	assert.Contains(t, out, "FATAL [fatal] boom")
	assert.Contains(t, out, `"thread": 7`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
	assert.Equal(t, "FATAL", LevelFatal.String())
	for _, l := range []Level{LevelNone, LevelFatal, LevelError, LevelInfo, LevelDebug} {
		assert.Equal(t, l, fromZap(l.zap()))
	}
}
