// Package tracing times the stages of a single request. Spans nest through
// the context and the finished tree is logged one line per span.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type contextKey struct{}

// Span is one timed stage. A nil *Span is valid and records nothing.
type Span struct {
	name    string
	traceID string
	start   time.Time

	mu       sync.Mutex
	duration time.Duration
	ended    bool
	attrs    []slog.Attr
	children []*Span
}

// Start opens a root span for traceID, usually the request id.
func Start(ctx context.Context, name, traceID string) (context.Context, *Span) {
	s := &Span{name: name, traceID: traceID, start: time.Now()}
	return context.WithValue(ctx, contextKey{}, s), s
}

// Child opens a span under the one in ctx. Without a parent it returns ctx
// unchanged and a nil span.
func Child(ctx context.Context, name string) (context.Context, *Span) {
	parent := FromContext(ctx)
	if parent == nil {
		return ctx, nil
	}
	s := &Span{name: name, traceID: parent.traceID, start: time.Now()}
	parent.mu.Lock()
	parent.children = append(parent.children, s)
	parent.mu.Unlock()
	return context.WithValue(ctx, contextKey{}, s), s
}

// FromContext returns the innermost span in ctx, or nil.
func FromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(contextKey{}).(*Span)
	return s
}

// End fixes the span's duration. Later calls are ignored.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.duration = time.Since(s.start)
		s.ended = true
	}
}

// SetAttr attaches a key/value pair that is logged with the span.
func (s *Span) SetAttr(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.attrs = append(s.attrs, slog.Any(key, value))
	s.mu.Unlock()
}

func (s *Span) Name() string { return s.name }

// Duration is zero until End is called.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

// Log writes the span and its descendants at debug level.
func (s *Span) Log(ctx context.Context, logger *slog.Logger) {
	if s == nil || !logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	s.log(ctx, logger, 0)
}

func (s *Span) log(ctx context.Context, logger *slog.Logger, depth int) {
	s.mu.Lock()
	attrs := append([]slog.Attr{
		slog.String("trace_id", s.traceID),
		slog.String("span", s.name),
		slog.Int("depth", depth),
		slog.Int64("duration_us", s.duration.Microseconds()),
	}, s.attrs...)
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()

	logger.LogAttrs(ctx, slog.LevelDebug, "span", attrs...)
	for _, c := range children {
		c.log(ctx, logger, depth+1)
	}
}
