// Package slogx configures the service-wide structured logger and carries
// request-scoped loggers through context. Every log line is tagged with the
// service name, build version and environment so aggregated output from
// several deployments stays attributable.
package slogx

import (
	"log/slog"
	"os"
	"strings"
)

// Config selects the handler and the fields stamped on every record.
type Config struct {
	Service string
	Version string
	Env     string // "dev" additionally records source locations
	Level   string // "debug", "info", "warn" or "error"
	Format  string // "text" for local reading, anything else means JSON
}

// New builds the logger described by cfg and installs it as the slog
// default, so code without access to a context still logs consistently.
func New(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		AddSource: cfg.Env == "dev",
		Level:     parseLevel(cfg.Level),
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With(
		"service", cfg.Service,
		"version", cfg.Version,
		"env", cfg.Env,
	)

	slog.SetDefault(logger)
	return logger
}

func parseLevel(lvl string) slog.Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
