// Package app assembles the components shared by the full-mode entry
// points: logger, metrics, stores, measurement source, caches and the risk
// and trend services.
package app

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/periop-risk-mcp-server/internal/domain"
)

// NewLogger builds a logger from the logging config. Unknown levels fall
// back to info. An MCP server speaking over stdio must pass forceStderr so
// that log lines never mix with protocol frames on stdout.
func NewLogger(cfg domain.LoggingConfig, forceStderr bool) *logrus.Logger {
	logger := logrus.New()

	if strings.EqualFold(cfg.Format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetOutput(logOutput(cfg.Output, forceStderr))
	return logger
}

func logOutput(output string, forceStderr bool) io.Writer {
	if forceStderr {
		return os.Stderr
	}
	switch strings.ToLower(output) {
	case "stderr":
		return os.Stderr
	default:
		return os.Stdout
	}
}
