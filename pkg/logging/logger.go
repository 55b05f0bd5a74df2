// Package logging wraps zerolog with the service-identity fields and
// env-driven level/format selection the teacher's pkg/logging applies
// uniformly across components.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New creates a logger tagged with service/version, reading its level and
// output format from EDGE_LOG_LEVEL/EDGE_LOG_FORMAT.
func New(serviceName, serviceVersion string) zerolog.Logger {
	level := os.Getenv("EDGE_LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	var logger zerolog.Logger
	if format := os.Getenv("EDGE_LOG_FORMAT"); format == "console" || format == "pretty" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	return logger.With().
		Str("service", serviceName).
		Str("version", serviceVersion).
		Logger()
}

// WithComponent returns a child logger tagged with a component name,
// matching the "component" field convention used throughout this repo's
// packages (session.Registry, executor.Executor, subscription.Manager,
// discovery.Service).
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}
