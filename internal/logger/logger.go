package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration.
type Config struct {
	Level string // debug, info, warn, error
	File  string // optional rotated log file, written alongside stderr
	JSON  bool
}

// New builds the process logger. The returned closer releases the log file, if any.
func New(cfg Config) (*log.Logger, io.Closer, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		writer io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		writer = io.MultiWriter(os.Stderr, fileWriter)
		closer = fileWriter
	}

	opts := log.Options{
		ReportTimestamp: true,
		ReportCaller:    level == log.DebugLevel,
		Level:           level,
		Prefix:          "timeblocker",
	}
	if cfg.JSON {
		opts.Formatter = log.JSONFormatter
	}
	return log.NewWithOptions(writer, opts), closer, nil
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

func parseLevel(raw string) (log.Level, error) {
	if strings.TrimSpace(raw) == "" {
		return log.InfoLevel, nil
	}
	level, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return 0, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
