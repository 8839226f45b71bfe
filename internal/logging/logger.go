// Package logging provides structured logging for the streamer, wrapping
// logrus the way the teacher's pkg/logger and infrastructure/logging
// packages do.
package logging

import (
	"context"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	connectorKey contextKey = "connector"
	jobKey       contextKey = "job"
)

// Logger wraps logrus.Logger with the fields mstream components attach
// consistently: connector name and job name.
type Logger struct {
	*logrus.Logger
}

// Config controls level and output format.
type Config struct {
	Level  string
	Format string
}

// New builds a Logger from Config, defaulting to info/json on bad input.
func New(cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.EqualFold(cfg.Format, "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	l.SetOutput(os.Stdout)

	return &Logger{Logger: l}
}

// NewDefault returns an info-level, JSON-formatted logger.
func NewDefault() *Logger {
	return New(Config{Level: "info", Format: "json"})
}

// WithConnector returns a context carrying the connector name for log
// enrichment by WithContext.
func WithConnector(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, connectorKey, name)
}

// WithJob returns a context carrying the job name for log enrichment.
func WithJob(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, jobKey, name)
}

// WithContext returns a log entry enriched with any connector/job name
// carried on ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := logrus.NewEntry(l.Logger)
	if v, ok := ctx.Value(connectorKey).(string); ok && v != "" {
		entry = entry.WithField("connector", v)
	}
	if v, ok := ctx.Value(jobKey).(string); ok && v != "" {
		entry = entry.WithField("job", v)
	}
	return entry
}

// WithError returns a log entry carrying the given error.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithError(err)
}
