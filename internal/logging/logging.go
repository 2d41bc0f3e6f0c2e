// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls log level and destinations.
type Config struct {
	Level string `mapstructure:"level" toml:"level" yaml:"level"`

	// File enables a rotating log file next to stderr output.
	File       string `mapstructure:"file" toml:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" toml:"max_age_days" yaml:"max_age_days"`

	// Format of stderr output: auto (console on a terminal, JSON otherwise),
	// console, json or none.
	Format string `mapstructure:"format" toml:"format" yaml:"format"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
		Format:     "auto",
	}
}

// New builds a logger from cfg. The returned closer flushes the log file, if
// any, and must be called on exit.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	return newLogger(cfg, os.Stderr, isTerminal(os.Stderr))
}

func newLogger(cfg Config, stderr io.Writer, tty bool) (zerolog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}

	var writers []io.Writer
	switch strings.ToLower(cfg.Format) {
	case "", "auto":
		if tty {
			writers = append(writers, console(stderr))
		} else {
			writers = append(writers, stderr)
		}
	case "console":
		writers = append(writers, console(stderr))
	case "json":
		writers = append(writers, stderr)
	case "none":
	default:
		return zerolog.Nop(), nopCloser{}, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		writers = append(writers, rotating)
		closer = rotating
	}

	var out io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		out = writers[0]
	default:
		out = zerolog.MultiLevelWriter(writers...)
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return logger, closer, nil
}

// ParseLevel parses a level name in any case. Empty means info.
func ParseLevel(s string) (zerolog.Level, error) {
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	l, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return l, nil
}

func console(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
