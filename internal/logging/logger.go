// Package logging builds the hclog loggers used by the command line tool.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	envJSON  = "ICOTOOL_JSON_LOG"
	envLevel = "ICOTOOL_LOG_LEVEL"
)

// NewLogger creates an hclog logger writing to output, stderr when nil.
// An empty level falls back to GetLogLevel.
func NewLogger(name, level string, output io.Writer) hclog.Logger {
	if output == nil {
		output = os.Stderr
	}
	if level == "" {
		level = GetLogLevel()
	}

	jsonFormat := os.Getenv(envJSON) == "1"
	if !jsonFormat {
		output = NewPrefixWriter(name+": ", output)
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(level),
		JSONFormat: jsonFormat,
		Output:     output,
		TimeFormat: "2006-01-02T15:04:05Z",
		TimeFn: func() time.Time {
			return time.Now().UTC()
		},
	})
}

// GetLogLevel returns the level named by the environment, warn by default.
func GetLogLevel() string {
	level := os.Getenv(envLevel)
	if level == "" {
		level = "warn"
	}
	return level
}
