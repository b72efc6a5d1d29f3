// Package logging builds the process logger.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	slogseq "github.com/sokkalf/slog-seq"
)

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Options configures New.
type Options struct {
	// Level is debug, info, warn or error.
	Level string
	// Format is text or json.
	Format string
	// SeqURL enables an additional Seq sink when set.
	SeqURL string
	// AddSource includes the caller in every record.
	AddSource bool
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: must be debug, info, warn or error", s)
	}
	return level, nil
}

// New returns a logger writing to w and a cleanup function that flushes
// any remote sink. The cleanup function is never nil.
func New(w io.Writer, opts Options) (*slog.Logger, func(), error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	handlerOpts := &slog.HandlerOptions{Level: level, AddSource: opts.AddSource}

	var console slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", FormatText:
		console = slog.NewTextHandler(w, handlerOpts)
	case FormatJSON:
		console = slog.NewJSONHandler(w, handlerOpts)
	default:
		return nil, nil, fmt.Errorf("invalid log format %q: must be text or json", opts.Format)
	}

	if opts.SeqURL == "" {
		return slog.New(console), func() {}, nil
	}

	_, seqHandler := slogseq.NewLogger(
		opts.SeqURL,
		slogseq.WithBatchSize(1),
		slogseq.WithFlushInterval(500*time.Millisecond),
		slogseq.WithHandlerOptions(handlerOpts),
	)

	// Seq unavailable, console only
	if seqHandler == nil {
		return slog.New(console), func() {}, nil
	}

	logger := slog.New(&multiHandler{handlers: []slog.Handler{console, seqHandler}})
	return logger, func() { seqHandler.Close() }, nil
}

// multiHandler forwards log records to multiple handlers.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}
