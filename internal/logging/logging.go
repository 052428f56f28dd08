// File: internal/logging/logging.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Leveled component loggers backed by zap. Every line is tagged with its
// component, e.g. "INFO [scheduler] worker task#0 started". The level is a
// process-wide zap.AtomicLevel so it can be changed while running.

package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents the logging level.
type Level int32

const (
	// LevelNone disables all logging.
	LevelNone Level = iota
	// LevelFatal keeps only fatal diagnostics.
	LevelFatal
	// LevelError enables error logging.
	LevelError
	// LevelInfo enables info and error logging.
	LevelInfo
	// LevelDebug enables all logging.
	LevelDebug
)

// levelOff sits above every zap level, so nothing is enabled.
const levelOff = zapcore.FatalLevel + 1

var levelNames = map[Level]string{
	LevelNone:  "NONE",
	LevelFatal: "FATAL",
	LevelError: "ERROR",
	LevelInfo:  "INFO",
	LevelDebug: "DEBUG",
}

func (l Level) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return fmt.Sprintf("Level(%d)", int32(l))
}

// ParseLevel maps a config string onto a Level. Unknown names yield LevelInfo.
func ParseLevel(s string) Level {
	for l, name := range levelNames {
		if name == s {
			return l
		}
	}
	return LevelInfo
}

func (l Level) zap() zapcore.Level {
	switch {
	case l <= LevelNone:
		return levelOff
	case l == LevelFatal:
		return zapcore.FatalLevel
	case l == LevelError:
		return zapcore.ErrorLevel
	case l == LevelInfo:
		return zapcore.InfoLevel
	}
	return zapcore.DebugLevel
}

func fromZap(z zapcore.Level) Level {
	switch {
	case z >= levelOff:
		return LevelNone
	case z >= zapcore.FatalLevel:
		return LevelFatal
	case z >= zapcore.ErrorLevel:
		return LevelError
	case z >= zapcore.InfoLevel:
		return LevelInfo
	}
	return LevelDebug
}

// redirect is the swappable sink behind every component logger.
type redirect struct {
	mu sync.Mutex
	w  io.Writer
}

func (r *redirect) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w.Write(p)
}

func (r *redirect) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.w.(zapcore.WriteSyncer); ok {
		return s.Sync()
	}
	return nil
}

// keepRunning replaces zap's exit on Fatal; internal/fatal owns termination.
type keepRunning struct{}

func (keepRunning) OnWrite(*zapcore.CheckedEntry, []zapcore.Field) {}

var (
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sink  = &redirect{w: os.Stderr}
	base  = newBase()
)

func newBase() *zap.Logger {
	enc := zapcore.EncoderConfig{
		TimeKey:          "ts",
		LevelKey:         "level",
		NameKey:          "component",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeTime:       zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000000"),
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeName:       func(n string, pe zapcore.PrimitiveArrayEncoder) { pe.AppendString("[" + n + "]") },
		ConsoleSeparator: " ",
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), sink, level)
	return zap.New(core, zap.WithFatalHook(keepRunning{}))
}

// SetLevel changes the process-wide log level.
func SetLevel(l Level) { level.SetLevel(l.zap()) }

// CurrentLevel returns the process-wide log level.
func CurrentLevel() Level { return fromZap(level.Level()) }

// SetOutput redirects all component loggers.
func SetOutput(w io.Writer) {
	sink.mu.Lock()
	sink.w = w
	sink.mu.Unlock()
}

// Sync flushes buffered entries.
func Sync() error { return base.Sync() }

// Logger tags messages with a component name.
type Logger struct {
	s *zap.SugaredLogger
}

// New returns a logger for the named component.
func New(component string) *Logger {
	return &Logger{s: base.Named(component).Sugar()}
}

// With returns a child logger carrying the given key/value pairs.
func (lg *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{s: lg.s.With(keysAndValues...)}
}

// Enabled reports whether messages at l are emitted.
func (lg *Logger) Enabled(l Level) bool {
	if l <= LevelNone {
		return true
	}
	return level.Enabled(l.zap())
}

// Debugf logs debug information.
func (lg *Logger) Debugf(format string, v ...any) { lg.s.Debugf(format, v...) }

// Infof logs informational messages.
func (lg *Logger) Infof(format string, v ...any) { lg.s.Infof(format, v...) }

// Errorf logs errors.
func (lg *Logger) Errorf(format string, v ...any) { lg.s.Errorf(format, v...) }

// Fatalf logs a fatal diagnostic. It does not exit; see internal/fatal.
func (lg *Logger) Fatalf(format string, v ...any) { lg.s.Fatalf(format, v...) }
