// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

// Package logging owns the process-wide zerolog logger. The daemon calls
// Init once after loading configuration; packages that need structured
// output either receive a zerolog.Logger at construction or use the
// package-level event starters.
//
// Log chains must end in .Msg() or .Send(), otherwise nothing is emitted.
package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config selects the output shape of the process logger.
type Config struct {
	// Level is the minimum emitted level (trace through panic). Unknown or
	// empty values fall back to info.
	Level string

	// Format is "json" for production or "console" for development.
	Format string

	// Caller annotates events with the emitting file and line.
	Caller bool

	// Timestamp annotates events with an RFC3339 timestamp.
	Timestamp bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

var (
	mu   sync.RWMutex
	root zerolog.Logger
)

//nolint:gochecknoinits // logging must work before configuration is loaded
func init() {
	root = build(Config{Level: "info", Format: "json", Timestamp: true})
}

// Init reconfigures the process logger. Calling it again replaces the
// previous configuration.
func Init(cfg Config) {
	mu.Lock()
	root = build(cfg)
	mu.Unlock()
}

func build(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(out)
	ctx := logger.With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// Logger returns the process logger for handing to component constructors.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Debug starts a debug-level event on the process logger.
func Debug() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return root.Debug()
}

// Info starts an info-level event on the process logger.
func Info() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return root.Info()
}

// Warn starts a warn-level event on the process logger.
func Warn() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return root.Warn()
}

// Error starts an error-level event on the process logger.
func Error() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return root.Error()
}

// Fatal starts a fatal-level event; os.Exit(1) fires when Msg is called.
func Fatal() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return root.Fatal()
}
