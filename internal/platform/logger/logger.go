package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Options struct {
	Level string // debug|info|warn|error (default info)
	JSON  bool   // false => consola legible (dev)
	App   string
}

// New construye el zerolog.Logger del servicio.
func New(opts Options) zerolog.Logger {
	level := parseLevel(opts.Level)

	var l zerolog.Logger
	if opts.JSON {
		l = zerolog.New(os.Stdout)
	} else {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	ctx := l.Level(level).With().Timestamp()
	if strings.TrimSpace(opts.App) != "" {
		ctx = ctx.Str("app", strings.TrimSpace(opts.App))
	}
	return ctx.Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
