// Package logging provides leveled logging for tomoproj. Messages go through
// the standard log package, optionally into a size-rotated log file.
package logging

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/lumberjack"
)

// ModeFlag is the minimum severity that gets written.
type ModeFlag uint

const (
	DebugMode ModeFlag = iota
	InfoMode
	WarningMode
	ErrorMode
	CriticalMode
	SilentMode
)

var (
	mu   sync.RWMutex
	mode = InfoMode
	file *lumberjack.Logger
)

// ParseMode parses a level name such as "debug" or "warning".
func ParseMode(s string) (ModeFlag, error) {
	switch strings.ToLower(s) {
	case "debug":
		return DebugMode, nil
	case "info", "":
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
	return InfoMode, fmt.Errorf("unknown log level %q", s)
}

// SetLogMode sets the severity required for a message to be printed.
// SetLogMode(WarningMode) keeps Warningf, Errorf and Criticalf output;
// SilentMode turns logging off.
func SetLogMode(newMode ModeFlag) {
	mu.Lock()
	mode = newMode
	mu.Unlock()
}

// Mode returns the current log mode.
func Mode() ModeFlag {
	mu.RLock()
	defer mu.RUnlock()
	return mode
}

func enabled(m ModeFlag) bool {
	return Mode() <= m
}

func Debugf(format string, args ...interface{}) {
	if enabled(DebugMode) {
		log.Printf("   DEBUG "+format, args...)
	}
}

func Infof(format string, args ...interface{}) {
	if enabled(InfoMode) {
		log.Printf("    INFO "+format, args...)
	}
}

func Warningf(format string, args ...interface{}) {
	if enabled(WarningMode) {
		log.Printf(" WARNING "+format, args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if enabled(ErrorMode) {
		log.Printf("   ERROR "+format, args...)
	}
}

func Criticalf(format string, args ...interface{}) {
	if enabled(CriticalMode) {
		log.Printf("CRITICAL "+format, args...)
	}
}

// LogConfig selects an optional rotating log file.
type LogConfig struct {
	Logfile string `yaml:"logfile" toml:"logfile"`

	// MaxSize is the size in megabytes at which the file is rotated
	MaxSize int `yaml:"maxLogSize" toml:"max_log_size"`

	// MaxAge is the number of days rotated files are kept
	MaxAge int `yaml:"maxLogAge" toml:"max_log_age"`
}

// SetLogger routes log output into the configured file. An empty Logfile
// keeps the standard log output.
func (c *LogConfig) SetLogger() {
	if c == nil || c.Logfile == "" {
		Debugf("Sending log messages to stderr since no log file specified.")
		return
	}
	l := &lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize,
		MaxAge:   c.MaxAge,
	}

	mu.Lock()
	prev := file
	file = l
	mu.Unlock()

	log.SetOutput(l)
	if prev != nil {
		prev.Close()
	}
	Infof("Sending log messages to %s", c.Logfile)
}

// Shutdown closes the log file, if any.
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
		file = nil
	}
}

// TimeLog appends the time elapsed since its creation to every message.
//
//	tlog := logging.NewTimeLog()
//	...
//	tlog.Infof("projected %d LORs", n) // "projected 10 LORs: 1.2s"
type TimeLog struct {
	start time.Time
}

func NewTimeLog() TimeLog {
	return TimeLog{start: time.Now()}
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
