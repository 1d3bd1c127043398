// Package logger builds the leveled logger shared by the CLI and dashboard.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration.
type Config struct {
	Level      string
	File       string // rotated log file; empty writes to Stderr only
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	Stderr     io.Writer // defaults to os.Stderr
}

// Logger wraps a charmbracelet logger and the file it may own.
type Logger struct {
	*log.Logger
	file io.Closer
}

// New creates a logger. With a File configured, records go to the rotating
// file and, at debug level, to Stderr as well.
func New(cfg Config) (*Logger, error) {
	level, err := log.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = log.WarnLevel
	}

	stderr := cfg.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	var (
		writer io.Writer = stderr
		closer io.Closer
	)
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, err
		}
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		closer = fileWriter
		writer = fileWriter
		if level == log.DebugLevel {
			writer = io.MultiWriter(stderr, fileWriter)
		}
	}

	l := log.NewWithOptions(writer, log.Options{
		ReportCaller:    level == log.DebugLevel,
		ReportTimestamp: true,
		Level:           level,
		Prefix:          "edufocus",
	})
	return &Logger{Logger: l, file: closer}, nil
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
