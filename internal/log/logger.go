// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config captures options for configuring the global logger.
type Config struct {
	Level   string    // optional log level ("debug", "info", etc.)
	Output  io.Writer // optional writer (defaults to os.Stderr)
	Service string    // optional service name attached to every log entry
	Version string    // optional build version attached to every log entry
}

var (
	mu         sync.RWMutex
	once       sync.Once
	base       zerolog.Logger
	configured bool
)

// Configure initialises the global zerolog logger. The first call wins; later
// calls only adjust the level.
func Configure(cfg Config) {
	once.Do(func() {
		writer := cfg.Output
		if writer == nil {
			writer = os.Stderr
		}

		service := cfg.Service
		if service == "" {
			service = os.Getenv("LISTENPATH_LOG_SERVICE")
			if service == "" {
				service = "listenpath"
			}
		}

		zerolog.TimeFieldFormat = time.RFC3339

		ctx := zerolog.New(writer).With().Timestamp().Str("service", service)
		if cfg.Version != "" {
			ctx = ctx.Str("version", cfg.Version)
		}

		mu.Lock()
		base = ctx.Logger()
		configured = true
		mu.Unlock()
	})
	SetLevel(cfg.Level)
}

// SetLevel updates the global level. Unknown or empty levels fall back to
// LISTENPATH_LOG_LEVEL and then to info.
func SetLevel(level string) {
	parsed := zerolog.InfoLevel
	if level == "" {
		level = os.Getenv("LISTENPATH_LOG_LEVEL")
	}
	if level != "" {
		if l, err := zerolog.ParseLevel(level); err == nil {
			parsed = l
		}
	}
	zerolog.SetGlobalLevel(parsed)
}

func logger() zerolog.Logger {
	mu.RLock()
	ok := configured
	l := base
	mu.RUnlock()
	if ok {
		return l
	}
	Configure(Config{})
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Base returns the configured base logger instance.
func Base() zerolog.Logger {
	return logger()
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return logger().With().Str(FieldComponent, component).Logger()
}

// Derive attaches arbitrary fields to a child logger using the provided builder function.
func Derive(build func(*zerolog.Context)) zerolog.Logger {
	ctx := logger().With()
	if build != nil {
		build(&ctx)
	}
	return ctx.Logger()
}
