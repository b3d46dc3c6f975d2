package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Format selects the log output encoding.
type Format string

const (
	// FormatAuto picks text for a TTY stderr and JSON otherwise.
	FormatAuto Format = "auto"
	// FormatJSON forces JSON output.
	FormatJSON Format = "json"
	// FormatText forces human-readable output.
	FormatText Format = "text"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// Format is the output encoding (auto, json, text).
	Format Format
	// FilePath is the path to a log file. Empty means stderr only.
	FilePath string
	// MaxSizeMB is the maximum file size in MB before rotation (default: 10).
	MaxSizeMB int
	// MaxFiles is the maximum number of rotated files to keep (default: 5).
	MaxFiles int
}

// DefaultConfig returns stderr-only logging at info level.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Format:    FormatAuto,
		MaxSizeMB: 10,
		MaxFiles:  5,
	}
}

// Setup initializes logging and returns the logger and a cleanup function.
// The cleanup function closes the log file when file logging is enabled.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	var output io.Writer = os.Stderr
	cleanup := func() {}

	if cfg.FilePath != "" {
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		maxFiles := cfg.MaxFiles
		if maxFiles <= 0 {
			maxFiles = 5
		}
		writer, err := NewRotatingWriter(cfg.FilePath, maxSize, maxFiles)
		if err != nil {
			return nil, nil, err
		}
		output = io.MultiWriter(writer, os.Stderr)
		cleanup = func() { _ = writer.Close() }
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var handler slog.Handler
	switch resolveFormat(cfg) {
	case FormatText:
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	return slog.New(handler), cleanup, nil
}

// SetupDefault initializes logging and installs it as the default logger.
func SetupDefault(cfg Config) (func(), error) {
	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cleanup, nil
}

// resolveFormat maps FormatAuto onto a concrete encoding.
// File logging always uses JSON so the file stays machine-parseable.
func resolveFormat(cfg Config) Format {
	switch cfg.Format {
	case FormatJSON, FormatText:
		return cfg.Format
	}
	if cfg.FilePath != "" {
		return FormatJSON
	}
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return FormatText
	}
	return FormatJSON
}

// ParseLevel converts a string level to slog.Level. Unknown values map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
