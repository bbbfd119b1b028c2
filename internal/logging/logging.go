// Package logging builds the process logger. It is created once in main and
// passed to every component that logs.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
)

// TimeFormat matches the day-first timestamps of the run start/end lines.
const TimeFormat = "02-01-2006 15:04:05 PM"

// Levels accepted on the command line.
const (
	LevelInfo  = "INFO"
	LevelDebug = "DEBUG"
)

// ParseLevel maps a command line level onto a logger level. Only INFO and
// DEBUG are accepted.
func ParseLevel(s string) (log.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case LevelInfo:
		return log.InfoLevel, nil
	case LevelDebug:
		return log.DebugLevel, nil
	default:
		return log.InfoLevel, fmt.Errorf("unknown log level %q: want %s or %s", s, LevelInfo, LevelDebug)
	}
}

// New returns a logger writing to w at the given level.
func New(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		Level:           level,
		Prefix:          "ngocrawl",
		ReportTimestamp: true,
		TimeFormat:      TimeFormat,
		ReportCaller:    level == log.DebugLevel,
	})
}
