package common

import (
	"log/slog"
	"os"
)

// LoggingOpts contains the options for the logger setup.
type LoggingOpts struct {
	// Service name, added as 'service' tag to all log messages.
	Service string

	// JSON enables JSON-formatted log output.
	JSON bool

	// Debug lowers the log level to debug.
	Debug bool

	// Version, added as 'version' tag to all log messages.
	Version string
}

// SetupLogger creates a structured logger according to the given options.
func SetupLogger(opts *LoggingOpts) (log *slog.Logger) {
	logLevel := slog.LevelInfo
	if opts.Debug {
		logLevel = slog.LevelDebug
	}

	if opts.JSON {
		log = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	} else {
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	}

	if opts.Service != "" {
		log = log.With("service", opts.Service)
	}
	if opts.Version != "" {
		log = log.With("version", opts.Version)
	}
	return log
}
