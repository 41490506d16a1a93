// Package logging builds the shared charmbracelet logger from config.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/hochfrequenz/chat-export-orchestrator/internal/config"
)

const timeFormat = "2006-01-02 15:04:05"

// New creates a logger writing to w with the configured level and formatter.
// An unknown level falls back to info.
func New(w io.Writer, cfg config.LogConfig) *log.Logger {
	level, err := log.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = log.InfoLevel
	}

	opts := log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      timeFormat,
		ReportCaller:    level == log.DebugLevel,
	}
	if strings.EqualFold(cfg.Format, "json") {
		opts.Formatter = log.JSONFormatter
	}
	return log.NewWithOptions(w, opts)
}

// Setup creates a stderr logger and installs it as the package default
func Setup(cfg config.LogConfig) *log.Logger {
	logger := New(os.Stderr, cfg)
	log.SetDefault(logger)
	return logger
}
