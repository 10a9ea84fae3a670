package audit

import (
	"context"
	"log/slog"
	"sync"
)

// Sink receives finished request records. Write is best-effort: callers
// never alter a client-visible outcome because a sink failed.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, rec Record) error

// Write calls f.
func (f SinkFunc) Write(ctx context.Context, rec Record) error {
	return f(ctx, rec)
}

// DefaultMemorySize bounds a MemorySink built with a non-positive size.
const DefaultMemorySize = 1024

// MemorySink keeps the most recent records in a bounded ring. Meant for
// tests and development.
type MemorySink struct {
	mu    sync.Mutex
	ring  []Record
	next  int
	total int
}

// NewMemorySink builds a ring holding up to size records.
func NewMemorySink(size int) *MemorySink {
	if size <= 0 {
		size = DefaultMemorySize
	}
	return &MemorySink{ring: make([]Record, size)}
}

// Write stores the record, overwriting the oldest once the ring is full.
// Never errors.
func (s *MemorySink) Write(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ring[s.next] = rec
	s.next = (s.next + 1) % len(s.ring)
	s.total++
	return nil
}

// Records returns the retained records, oldest first.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.total
	if n > len(s.ring) {
		n = len(s.ring)
	}
	out := make([]Record, 0, n)
	start := s.next - n
	if start < 0 {
		start += len(s.ring)
	}
	for i := 0; i < n; i++ {
		out = append(out, s.ring[(start+i)%len(s.ring)])
	}
	return out
}

// Len reports how many records are currently retained.
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.total > len(s.ring) {
		return len(s.ring)
	}
	return s.total
}

// Total reports how many records were ever written, including those the
// ring has since overwritten.
func (s *MemorySink) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// SlogSink emits one structured log line per record, Error level for
// failed calls and Info otherwise.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink builds a sink over the given logger, falling back to
// slog.Default when nil.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

// Write logs the record. Never errors.
func (s *SlogSink) Write(ctx context.Context, rec Record) error {
	level := slog.LevelInfo
	if rec.IsError {
		level = slog.LevelError
	}
	s.logger.LogAttrs(ctx, level, "API Request",
		slog.String("method", rec.Method),
		slog.String("endpoint", rec.Endpoint),
		slog.Int("status", rec.Status),
		slog.Int64("response_time_ms", rec.ResponseTimeMs),
		slog.Bool("is_error", rec.IsError),
	)
	return nil
}

// MultiSink fans a record out to several sinks. Every sink is attempted;
// the first error encountered is returned.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink builds a fan-out over the given sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Write delivers the record to every sink.
func (s *MultiSink) Write(ctx context.Context, rec Record) error {
	var first error
	for _, sink := range s.sinks {
		if err := sink.Write(ctx, rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}
