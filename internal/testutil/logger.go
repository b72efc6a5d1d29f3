// Package testutil provides test utilities for structured logging.
package testutil

import (
	"context"
	"log/slog"
	"sync"
	"testing"
)

// NewTestLogger returns a logger that writes to t.Log().
// Logs only appear on test failure or when running with -v.
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (n int, err error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}

// Recorder is a slog.Handler that keeps every record for assertions.
type Recorder struct {
	mu      sync.Mutex
	records []slog.Record
	attrs   []slog.Attr
	parent  *Recorder
}

// NewRecorder returns a logger backed by a Recorder.
func NewRecorder() (*slog.Logger, *Recorder) {
	r := &Recorder{}
	return slog.New(r), r
}

// Enabled implements slog.Handler. Every level is recorded.
func (r *Recorder) Enabled(context.Context, slog.Level) bool { return true }

// Handle implements slog.Handler.
func (r *Recorder) Handle(_ context.Context, rec slog.Record) error {
	rec = rec.Clone()
	rec.AddAttrs(r.attrs...)
	root := r.root()
	root.mu.Lock()
	defer root.mu.Unlock()
	root.records = append(root.records, rec)
	return nil
}

// WithAttrs implements slog.Handler.
func (r *Recorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Recorder{attrs: append(append([]slog.Attr(nil), r.attrs...), attrs...), parent: r.root()}
}

// WithGroup implements slog.Handler. Groups are flattened.
func (r *Recorder) WithGroup(string) slog.Handler { return r }

func (r *Recorder) root() *Recorder {
	if r.parent != nil {
		return r.parent
	}
	return r
}

// Messages returns the messages logged at level or above, in order.
func (r *Recorder) Messages(level slog.Level) []string {
	root := r.root()
	root.mu.Lock()
	defer root.mu.Unlock()
	var out []string
	for _, rec := range root.records {
		if rec.Level >= level {
			out = append(out, rec.Message)
		}
	}
	return out
}

// Attr returns the value of key on the first record with msg.
func (r *Recorder) Attr(msg, key string) (slog.Value, bool) {
	root := r.root()
	root.mu.Lock()
	defer root.mu.Unlock()
	for _, rec := range root.records {
		if rec.Message != msg {
			continue
		}
		var found slog.Value
		ok := false
		rec.Attrs(func(a slog.Attr) bool {
			if a.Key == key {
				found, ok = a.Value, true
				return false
			}
			return true
		})
		return found, ok
	}
	return slog.Value{}, false
}
