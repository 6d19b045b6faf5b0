// Package logging builds the console logger the harness uses for its own progress
// messages, as opposed to the captured output of the binaries under test.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

type Options struct {
	// Level is the minimum level: debug, info, warn or error.
	Level  string
	Output io.Writer
	Prefix string
	// ReportTimestamp adds a millisecond timestamp to every entry.
	ReportTimestamp bool
}

// ParseLevel accepts the level names used on the command line.
func ParseLevel(level string) (log.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return log.DebugLevel, nil
	case "", "info":
		return log.InfoLevel, nil
	case "warn", "warning":
		return log.WarnLevel, nil
	case "error":
		return log.ErrorLevel, nil
	default:
		return log.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// New builds the harness logger. It can be passed wherever a framework.Logger is
// expected; Printf entries carry no level and are never filtered.
func New(opts Options) (*log.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	return log.NewWithOptions(opts.Output, log.Options{
		Level:           level,
		Prefix:          opts.Prefix,
		TimeFormat:      "15:04:05.000",
		ReportTimestamp: opts.ReportTimestamp,
	}), nil
}
