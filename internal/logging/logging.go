// Package logging wires the process logger: human-readable text on the
// console plus an optional JSON file sink with size-based rotation,
// rotated generations compressed with gzip.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
)

// Options selects the sinks for Setup.
type Options struct {
	Level   slog.Level // console threshold; the file sink records everything
	Console io.Writer  // defaults to os.Stderr
	File    string     // JSON sink path, empty disables it
}

// Setup builds the process logger. The returned closer flushes and
// closes the file sink; it is non-nil even when no file is configured.
func Setup(opts Options) (*slog.Logger, io.Closer, error) {
	if opts.Console == nil {
		opts.Console = os.Stderr
	}
	console := slog.NewTextHandler(opts.Console, &slog.HandlerOptions{Level: opts.Level})

	if opts.File == "" {
		return slog.New(console), nopCloser{}, nil
	}

	fw, err := NewRotatingWriter(opts.File, DefaultMaxSize, DefaultBackups)
	if err != nil {
		return nil, nil, err
	}
	file := slog.NewJSONHandler(fw, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewMultiHandler(console, file)), fw, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// MultiHandler fans one record out to several handlers.
type MultiHandler struct {
	handlers []slog.Handler
}

func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: hs}
}

func (m *MultiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &MultiHandler{handlers: hs}
}
