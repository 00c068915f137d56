// Package logging builds the structured logger shared by the server and the
// console.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — slog + tint
// ────────────────────────────────────────────────────────────────────
// log/slog gives us key/value logging ("status", 200) instead of format
// strings, which makes logs greppable and machine-readable. tint is a
// slog.Handler that renders those records with colours and short
// timestamps, which is much easier to read in a terminal during a demo.
// Code only ever sees *slog.Logger, so swapping the handler later (JSON
// for production, say) touches this file only.
package logging

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// ParseLevel maps "debug", "info", "warn" and "error" to a slog.Level.
// Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// New returns a tint-backed logger writing to w at the given level.
// Colours are disabled when noColor is true (for example when w is a file).
func New(w io.Writer, level string, noColor bool) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      ParseLevel(level),
		TimeFormat: time.Kitchen,
		NoColor:    noColor,
	}))
}
