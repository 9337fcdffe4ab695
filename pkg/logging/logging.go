// Package logging provides leveled logging for jp2tiles. Messages go through
// the standard log package and, once SetLogger has been called with a log
// file, into a size-rotated file.
package logging

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/natefinch/lumberjack"
)

// ModeFlag is the minimum severity that gets written
type ModeFlag uint

const (
	DebugMode ModeFlag = iota
	InfoMode
	WarningMode
	ErrorMode
	CriticalMode
	SilentMode
)

// ParseMode converts a level name from configuration into a ModeFlag
func ParseMode(level string) (ModeFlag, error) {
	switch level {
	case "debug":
		return DebugMode, nil
	case "", "info":
		return InfoMode, nil
	case "warning", "warn":
		return WarningMode, nil
	case "error":
		return ErrorMode, nil
	case "critical":
		return CriticalMode, nil
	case "silent":
		return SilentMode, nil
	}
	return InfoMode, fmt.Errorf("unknown log level %q", level)
}

// Logger provides a way for the application to log messages at different severities.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Criticalf(format string, args ...interface{})

	// Shutdown makes sure logs are closed.
	Shutdown()
}

var (
	mu     sync.RWMutex
	mode   = InfoMode
	logger Logger = stdLogger{out: log.Default()}
)

// SetLogMode sets the severity required for a log message to be printed.
// SetLogMode(WarningMode) keeps Warningf, Errorf and Criticalf output.
func SetLogMode(newMode ModeFlag) {
	mu.Lock()
	mode = newMode
	mu.Unlock()
}

func enabled(m ModeFlag) bool {
	mu.RLock()
	defer mu.RUnlock()
	return mode <= m
}

func current() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debugf(format string, args ...interface{}) {
	if enabled(DebugMode) {
		current().Debugf(format, args...)
	}
}

func Infof(format string, args ...interface{}) {
	if enabled(InfoMode) {
		current().Infof(format, args...)
	}
}

func Warningf(format string, args ...interface{}) {
	if enabled(WarningMode) {
		current().Warningf(format, args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if enabled(ErrorMode) {
		current().Errorf(format, args...)
	}
}

func Criticalf(format string, args ...interface{}) {
	if enabled(CriticalMode) {
		current().Criticalf(format, args...)
	}
}

// Shutdown closes the log file, if any
func Shutdown() {
	current().Shutdown()
}

// LogConfig selects where log messages go
type LogConfig struct {
	Logfile string `yaml:"file" toml:"logfile"`
	MaxSize int    `yaml:"maxSize" toml:"max_log_size"`
	MaxAge  int    `yaml:"maxAge" toml:"max_log_age"`
}

// SetLogger creates a logger that saves to a rotating log file. Without a
// log file, messages keep going to stderr.
func (c *LogConfig) SetLogger() {
	if c == nil || c.Logfile == "" {
		Debugf("No log file specified, logging to stderr")
		return
	}
	l := &lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize, // megabytes
		MaxAge:   c.MaxAge,  // days
	}
	SetOutput(l)
}

// SetOutput sends log messages to w. If w is an io.Closer it is closed by Shutdown.
func SetOutput(w io.Writer) {
	l := stdLogger{out: log.New(w, "", log.LstdFlags)}
	if c, ok := w.(io.Closer); ok {
		l.closer = c
	}
	mu.Lock()
	logger = l
	mu.Unlock()
}

type stdLogger struct {
	out    *log.Logger
	closer io.Closer
}

func (l stdLogger) Debugf(format string, args ...interface{}) {
	l.out.Printf("   DEBUG "+format, args...)
}

func (l stdLogger) Infof(format string, args ...interface{}) {
	l.out.Printf("    INFO "+format, args...)
}

func (l stdLogger) Warningf(format string, args ...interface{}) {
	l.out.Printf(" WARNING "+format, args...)
}

func (l stdLogger) Errorf(format string, args ...interface{}) {
	l.out.Printf("   ERROR "+format, args...)
}

func (l stdLogger) Criticalf(format string, args ...interface{}) {
	l.out.Printf("CRITICAL "+format, args...)
}

func (l stdLogger) Shutdown() {
	if l.closer != nil {
		l.closer.Close()
	}
}

// TimeLog adds elapsed time to logging.
// Example:
//
//	tlog := logging.NewTimeLog()
//	...
//	tlog.Debugf("decoded tile")  // Appends elapsed time since NewTimeLog() to message.
type TimeLog struct {
	start time.Time
}

func NewTimeLog() TimeLog {
	return TimeLog{time.Now()}
}

func (t TimeLog) Debugf(format string, args ...interface{}) {
	Debugf(format+": %s", append(args, time.Since(t.start))...)
}

func (t TimeLog) Infof(format string, args ...interface{}) {
	Infof(format+": %s", append(args, time.Since(t.start))...)
}

func (t TimeLog) Warningf(format string, args ...interface{}) {
	Warningf(format+": %s", append(args, time.Since(t.start))...)
}

func (t TimeLog) Errorf(format string, args ...interface{}) {
	Errorf(format+": %s", append(args, time.Since(t.start))...)
}
