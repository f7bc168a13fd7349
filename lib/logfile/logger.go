// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logfile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewLogger returns the process logger. Records go to console as text
// when console is a terminal and as JSON otherwise, and, when the
// manager is enabled, as text lines through the manager.
func NewLogger(manager *Manager, console io.Writer, level slog.Level) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}

	var consoleHandler slog.Handler
	if file, ok := console.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		consoleHandler = slog.NewTextHandler(console, options)
	} else {
		consoleHandler = slog.NewJSONHandler(console, options)
	}

	if manager == nil || !manager.Enabled() {
		return slog.New(consoleHandler)
	}
	return slog.New(teeHandler{consoleHandler, slog.NewTextHandler(manager, options)})
}

// teeHandler hands each record to every enabled handler.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range t {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, handler := range t {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := make(teeHandler, len(t))
	for i, handler := range t {
		derived[i] = handler.WithAttrs(attrs)
	}
	return derived
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	derived := make(teeHandler, len(t))
	for i, handler := range t {
		derived[i] = handler.WithGroup(name)
	}
	return derived
}
