// Package logger builds the process-wide logrus logger from the launcher's
// logging configuration.
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/evalphobia/logrus_sentry"
	"github.com/sirupsen/logrus"
)

// Config mirrors the launcher's logging section.
type Config struct {
	Verbosity int    // 0=fatal, 1=error, 2=warn, 3=info, 4=debug, 5=trace
	Format    string // text|json
	Color     bool
	SentryDSN string // optional, errors and worse are forwarded to sentry
}

// verbosityLevels maps the launcher's numeric verbosity onto logrus levels.
var verbosityLevels = []logrus.Level{
	logrus.FatalLevel,
	logrus.ErrorLevel,
	logrus.WarnLevel,
	logrus.InfoLevel,
	logrus.DebugLevel,
	logrus.TraceLevel,
}

// New creates a configured logger writing to stderr.
func New(cfg Config) (*logrus.Logger, error) {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter creates a configured logger writing to out.
func NewWithWriter(cfg Config, out io.Writer) (*logrus.Logger, error) {
	log := logrus.New()
	log.Out = out

	if cfg.Verbosity < 0 || cfg.Verbosity >= len(verbosityLevels) {
		return nil, fmt.Errorf("log verbosity %d out of range [0, %d]", cfg.Verbosity, len(verbosityLevels)-1)
	}
	log.SetLevel(verbosityLevels[cfg.Verbosity])

	switch cfg.Format {
	case "", "text":
		log.Formatter = &logrus.TextFormatter{
			ForceColors:   cfg.Color,
			DisableColors: !cfg.Color,
			FullTimestamp: true,
		}
	case "json":
		log.Formatter = &logrus.JSONFormatter{}
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	if cfg.SentryDSN != "" {
		hook, err := logrus_sentry.NewSentryHook(cfg.SentryDSN, []logrus.Level{
			logrus.PanicLevel,
			logrus.FatalLevel,
			logrus.ErrorLevel,
		})
		if err != nil {
			return nil, fmt.Errorf("sentry hook: %w", err)
		}
		log.Hooks.Add(hook)
	}

	return log, nil
}

// Discard returns a logger that drops everything. Components fall back to it
// when constructed without a logger.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.Out = io.Discard
	log.SetLevel(logrus.PanicLevel)
	return log
}

// OrDiscard returns log, or a discarding logger when log is nil.
func OrDiscard(log logrus.FieldLogger) logrus.FieldLogger {
	if log == nil {
		return Discard()
	}
	return log
}
