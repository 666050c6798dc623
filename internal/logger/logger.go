// Package logger wraps zerolog for application logging.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration.
type Config struct {
	Level      string
	Format     string // "console" or "json"
	Path       string // directory for log files; empty disables file output
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Logger wraps zerolog with its rotating file writer.
type Logger struct {
	zerolog.Logger
	rotator *lumberjack.Logger
}

// New creates a logger writing to the console and, when a path is configured,
// a rotated file.
func New(cfg *Config) *Logger {
	output := consoleOutput(cfg.Format)

	var rotator *lumberjack.Logger
	if cfg.Path != "" {
		if err := os.MkdirAll(cfg.Path, 0o750); err == nil {
			rotator = &lumberjack.Logger{
				Filename:   filepath.Join(cfg.Path, "sportarr.log"),
				MaxSize:    positiveOrDefault(cfg.MaxSizeMB, 10),
				MaxBackups: positiveOrDefault(cfg.MaxBackups, 5),
				MaxAge:     positiveOrDefault(cfg.MaxAgeDays, 30),
				Compress:   cfg.Compress,
				LocalTime:  true,
			}
			fileWriter := zerolog.ConsoleWriter{
				Out:        rotator,
				TimeFormat: time.RFC3339,
				NoColor:    true,
			}
			output = io.MultiWriter(output, fileWriter)
		}
	}

	l := zerolog.New(output).
		Level(parseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()

	return &Logger{Logger: l, rotator: rotator}
}

// Close closes the log file if one is open.
func (l *Logger) Close() error {
	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

// WithComponent returns a child logger tagged with a component field.
func (l *Logger) WithComponent(component string) zerolog.Logger {
	return l.Logger.With().Str("component", component).Logger()
}

func consoleOutput(format string) io.Writer {
	if format == "json" {
		return os.Stdout
	}
	return zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func positiveOrDefault(val, def int) int {
	if val <= 0 {
		return def
	}
	return val
}
