package events

import (
	"context"
	"log/slog"
	"sync"
)

// SlogSink writes events to a structured logger. This is the default sink;
// external indexers tail the log stream.
type SlogSink struct {
	log *slog.Logger
}

// NewSlogSink creates a sink writing to the given logger.
func NewSlogSink(log *slog.Logger) *SlogSink {
	return &SlogSink{log: log}
}

// Emit logs the event with stable field names.
func (s *SlogSink) Emit(_ context.Context, event Event) error {
	attrs := []any{
		slog.String("event_id", event.ID),
		slog.String("event_type", string(event.Type)),
		slog.Time("event_time", event.Timestamp),
		slog.String("operation", event.Operation),
		slog.String("subject", event.Subject),
		slog.String("actor", event.Actor),
	}
	for k, v := range event.Fields {
		attrs = append(attrs, slog.String(k, v))
	}
	s.log.Info("event", attrs...)
	return nil
}

// MemorySink retains events in order. Intended for tests and for the
// in-process query API.
type MemorySink struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemorySink creates an empty memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Emit appends the event.
func (s *MemorySink) Emit(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// All returns a copy of every retained event in emission order.
func (s *MemorySink) All() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event(nil), s.events...)
}

// ByType returns retained events of one type in emission order.
func (s *MemorySink) ByType(eventType Type) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// MultiSink fans events out to several sinks. A failing sink is skipped; the
// remaining sinks still receive the event.
type MultiSink struct {
	sinks []Sink
	log   *slog.Logger
}

// NewMultiSink creates a fan-out sink.
func NewMultiSink(log *slog.Logger, sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks, log: log}
}

// Emit delivers the event to every sink.
func (s *MultiSink) Emit(ctx context.Context, event Event) error {
	for _, sink := range s.sinks {
		if err := sink.Emit(ctx, event); err != nil {
			s.log.Warn("Event sink failed",
				slog.String("event_type", string(event.Type)),
				slog.String("event_id", event.ID),
				"err", err)
		}
	}
	return nil
}
