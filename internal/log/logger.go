// SPDX-License-Identifier: MIT

// Package log is the process-wide leveled logger. Messages go through a
// charmbracelet/log backend; the level check happens before formatting so
// disabled debug lines cost one atomic load.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	charm "github.com/charmbracelet/log"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levels = [...]struct {
	name  string
	charm charm.Level
}{
	LevelDebug: {"DEBUG", charm.DebugLevel},
	LevelInfo:  {"INFO", charm.InfoLevel},
	LevelWarn:  {"WARN", charm.WarnLevel},
	LevelError: {"ERROR", charm.ErrorLevel},
	LevelFatal: {"FATAL", charm.FatalLevel},
}

func (l LogLevel) String() string {
	if int(l) < len(levels) {
		return levels[l].name
	}
	return "UNKNOWN"
}

// ParseLevel converts a case-insensitive level name. Unknown names give
// LevelInfo and false.
func ParseLevel(s string) (LogLevel, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "WARNING" {
		s = "WARN"
	}
	for l, lv := range levels {
		if lv.name == s {
			return LogLevel(l), true
		}
	}
	return LevelInfo, false
}

var (
	current atomic.Uint32
	backend = charm.NewWithOptions(os.Stderr, charm.Options{
		ReportTimestamp: true,
		TimeFormat:      time.StampMicro,
		Prefix:          "trap",
	})
)

func init() {
	SetLevel(LevelInfo)
}

// SetLevel sets the global level.
func SetLevel(level LogLevel) {
	if int(level) >= len(levels) {
		level = LevelFatal
	}
	current.Store(uint32(level))
	backend.SetLevel(levels[level].charm)
}

// GetLevel returns the global level.
func GetLevel() LogLevel {
	return LogLevel(current.Load())
}

// SetOutput redirects all log output to w. The TUI uses it while it owns
// the terminal.
func SetOutput(w io.Writer) {
	backend.SetOutput(w)
}

// Enabled reports whether a message at level would be written.
func Enabled(level LogLevel) bool {
	return level >= GetLevel()
}

func logf(level LogLevel, format string, v []any) {
	if !Enabled(level) {
		return
	}
	backend.Log(levels[level].charm, fmt.Sprintf(format, v...))
}

func Debugf(format string, v ...any) { logf(LevelDebug, format, v) }

func Infof(format string, v ...any) { logf(LevelInfo, format, v) }

func Warnf(format string, v ...any) { logf(LevelWarn, format, v) }

func Errorf(format string, v ...any) { logf(LevelError, format, v) }

// Fatalf logs regardless of level and exits with status 1.
func Fatalf(format string, v ...any) {
	backend.Fatal(fmt.Sprintf(format, v...))
}
