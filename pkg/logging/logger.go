// Package logging provides the leveled logger used by every actor in the
// runtime, wrapping the standard library's log.Logger the same way the
// process runtime this package was adapted from does.
package logging

import (
	"fmt"
	"log"
	"os"
	"sync"
)

const calldepth = 3

const (
	levelInfo  = "INFO"
	levelWarn  = "WARN"
	levelError = "ERROR"
	levelDebug = "DEBUG"
	levelFatal = "FATAL"
)

// Logger is the interface every actor obtains through For.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})
}

func level(prefix, message string) string {
	return fmt.Sprintf("[%s]: %s", prefix, message)
}

// StdLogger is the default Logger implementation, a thin prefixed wrapper
// around the standard library logger.
type StdLogger struct {
	*log.Logger
	mu    sync.Mutex
	debug bool
}

// New creates a logger writing to os.Stderr under the given name prefix.
func New(name string) *StdLogger {
	return &StdLogger{
		Logger: log.New(os.Stderr, name+" ", log.LstdFlags),
	}
}

// ToggleDebug enables or disables Debug/Debugf output, returning the new value.
func (l *StdLogger) ToggleDebug(enabled bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debug = enabled
	return l.debug
}

func (l *StdLogger) isDebug() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.debug
}

func (l *StdLogger) Info(v ...interface{}) {
	_ = l.Output(calldepth, level(levelInfo, fmt.Sprint(v...)))
}

func (l *StdLogger) Infof(format string, v ...interface{}) {
	_ = l.Output(calldepth, level(levelInfo, fmt.Sprintf(format, v...)))
}

func (l *StdLogger) Warn(v ...interface{}) {
	_ = l.Output(calldepth, level(levelWarn, fmt.Sprint(v...)))
}

func (l *StdLogger) Warnf(format string, v ...interface{}) {
	_ = l.Output(calldepth, level(levelWarn, fmt.Sprintf(format, v...)))
}

func (l *StdLogger) Error(v ...interface{}) {
	_ = l.Output(calldepth, level(levelError, fmt.Sprint(v...)))
}

func (l *StdLogger) Errorf(format string, v ...interface{}) {
	_ = l.Output(calldepth, level(levelError, fmt.Sprintf(format, v...)))
}

func (l *StdLogger) Debug(v ...interface{}) {
	if l.isDebug() {
		_ = l.Output(calldepth, level(levelDebug, fmt.Sprint(v...)))
	}
}

func (l *StdLogger) Debugf(format string, v ...interface{}) {
	if l.isDebug() {
		_ = l.Output(calldepth, level(levelDebug, fmt.Sprintf(format, v...)))
	}
}

func (l *StdLogger) Fatal(v ...interface{}) {
	_ = l.Output(calldepth, level(levelFatal, fmt.Sprint(v...)))
	os.Exit(1)
}

func (l *StdLogger) Fatalf(format string, v ...interface{}) {
	_ = l.Output(calldepth, level(levelFatal, fmt.Sprintf(format, v...)))
	os.Exit(1)
}

var (
	debugMu      sync.Mutex
	debugEnabled bool
)

// SetDebug toggles debug-level output for every logger created after this call.
func SetDebug(enabled bool) {
	debugMu.Lock()
	defer debugMu.Unlock()
	debugEnabled = enabled
}

// For returns a new logger for the given display name (e.g. "transfer-12").
func For(name string) Logger {
	l := New(name)
	debugMu.Lock()
	enabled := debugEnabled
	debugMu.Unlock()
	l.ToggleDebug(enabled)
	return l
}
