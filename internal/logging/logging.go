// Package logging configures the process-wide zerolog logger shared by the
// ipcbind server, host and CLI.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. Packages derive their own loggers
// from it through Component.
var Logger zerolog.Logger

// Level aliases zerolog.Level.
type Level = zerolog.Level

const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
)

// Config selects level, destination and format of log output.
type Config struct {
	Level Level
	// Output defaults to os.Stderr so stdout stays free for command results.
	Output io.Writer
	// Pretty writes colored console lines instead of JSON.
	Pretty bool
}

// Settings builds a Config from the textual settings of the configuration
// file and flags.
func Settings(level string, pretty bool) Config {
	return Config{Level: ParseLevel(level), Output: os.Stderr, Pretty: pretty}
}

// Init replaces the process-wide logger.
func Init(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	zerolog.TimeFieldFormat = time.RFC3339
	Logger = zerolog.New(out).Level(cfg.Level).With().Timestamp().Logger()
}

// ParseLevel maps DEBUG, INFO, WARN (or WARNING) and ERROR, in any case, to
// a level. Anything else is INFO.
func ParseLevel(level string) Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		return WarnLevel
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		return InfoLevel
	}
	return parsed
}

// Component returns a child logger tagged with component=name.
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

func init() {
	Init(Settings("INFO", false))
}
