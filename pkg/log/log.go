// Package log wraps log/slog construction for the kmerkit CLI and provides
// context helpers plus a capturing handler for tests.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// LoggerConfig is a minimal, convenient set of options.
type LoggerConfig struct {
	Version string

	// If Out is nil, stderr is used. Stdout is reserved for pipeline data.
	Out io.Writer

	Level slog.Level
	JSON  bool // true => JSON output, false => text
}

// NewLogger creates a configured *slog.Logger.
func NewLogger(cfg LoggerConfig) *slog.Logger {
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: cfg.Level})
	} else {
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: cfg.Level})
	}

	logger := slog.New(handler)
	if cfg.Version != "" {
		logger = logger.With(slog.String("version", cfg.Version))
	}
	return logger
}

// nopHandler is a tiny no-op slog.Handler.
type nopHandler struct{}

func (n *nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (n *nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (n *nopHandler) WithAttrs(attrs []slog.Attr) slog.Handler  { return n }
func (n *nopHandler) WithGroup(name string) slog.Handler        { return n }

// NewNopLogger returns a logger that discards all log events.
func NewNopLogger() *slog.Logger {
	return slog.New(&nopHandler{})
}

var _ slog.Handler = (*nopHandler)(nil)

///////////////////////////////////////////////////////////////////////////////
// Context helpers
///////////////////////////////////////////////////////////////////////////////

type ctxKeyType struct{}

var ctxKey ctxKeyType

// ContextWithLogger stores lg on ctx.
func ContextWithLogger(ctx context.Context, lg *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey, lg)
}

// FromContext returns the logger from ctx or a nop logger.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return NewNopLogger()
	}
	if v := ctx.Value(ctxKey); v != nil {
		if lg, ok := v.(*slog.Logger); ok && lg != nil {
			return lg
		}
	}
	return NewNopLogger()
}

///////////////////////////////////////////////////////////////////////////////
// Test handler (simple, thread-safe)
///////////////////////////////////////////////////////////////////////////////

// LoggedEntry is one captured log record.
type LoggedEntry struct {
	Time  time.Time
	Level slog.Level
	Msg   string
	Attrs map[string]any
}

// TestHandler captures structured entries for assertions.
type TestHandler struct {
	mu      sync.Mutex
	Entries []LoggedEntry
}

func (h *TestHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *TestHandler) Handle(_ context.Context, r slog.Record) error {
	e := LoggedEntry{
		Time:  r.Time,
		Level: r.Level,
		Msg:   r.Message,
		Attrs: map[string]any{},
	}
	r.Attrs(func(a slog.Attr) bool {
		e.Attrs[a.Key] = a.Value.Any()
		return true
	})
	h.mu.Lock()
	h.Entries = append(h.Entries, e)
	h.mu.Unlock()
	return nil
}

func (h *TestHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *TestHandler) WithGroup(_ string) slog.Handler      { return h }

// NewTestLogger returns a logger that records to the returned TestHandler.
func NewTestLogger() (*slog.Logger, *TestHandler) {
	th := &TestHandler{}
	return slog.New(th), th
}

// FindEntries copies entries that match pred.
func (h *TestHandler) FindEntries(pred func(LoggedEntry) bool) []LoggedEntry {
	h.mu.Lock()
	entries := append([]LoggedEntry(nil), h.Entries...)
	h.mu.Unlock()

	out := make([]LoggedEntry, 0)
	for _, e := range entries {
		if pred(e) {
			out = append(out, e)
		}
	}
	return out
}

var _ slog.Handler = (*TestHandler)(nil)
