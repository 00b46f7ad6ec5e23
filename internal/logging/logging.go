// Package logging builds the process logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// New returns a logger writing to stdout at the named level. Unknown or
// empty levels fall back to info.
func New(level, prefix string) *log.Logger {
	return NewWithWriter(os.Stdout, level, prefix)
}

func NewWithWriter(w io.Writer, level, prefix string) *log.Logger {
	logger := log.New(w)
	logger.SetPrefix(prefix)
	logger.SetReportTimestamp(true)
	logger.SetTimeFormat(time.DateTime)
	logger.SetReportCaller(true)
	logger.SetLevel(ParseLevel(level))
	return logger
}

func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// Discard returns a logger that drops everything, for tests.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
