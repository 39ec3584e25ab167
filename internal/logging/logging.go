// Package logging configures the process-wide structured logger every
// other package derives its own component entry from via
// logrus.WithField("component", ...), the pattern used throughout this
// tree (authservice, writer, the store backends).
package logging

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Configure builds the root logger for level (one of logrus's parse
// level names: "debug", "info", "warn", "error", ...), formatted as
// JSON so log lines are machine-parseable by whatever aggregates
// graphauthd's output.
func Configure(level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	logger := logrus.New()
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	return logger, nil
}
