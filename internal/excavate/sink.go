package excavate

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/nao1215/excavate/internal/model"
)

// Sink receives emitted events. Emit must be safe for concurrent use.
// An error is logged by the engine and does not stop processing.
type Sink interface {
	Emit(ctx context.Context, ev *model.Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev *model.Event) error

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, ev *model.Event) error {
	return f(ctx, ev)
}

// MultiSink fans events out to several sinks. Every sink receives every
// event; the errors are joined.
type MultiSink []Sink

// Emit forwards ev to every sink.
func (m MultiSink) Emit(ctx context.Context, ev *model.Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemorySink keeps events in memory in emission order.
type MemorySink struct {
	mu     sync.Mutex
	events []*model.Event
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Emit appends ev.
func (s *MemorySink) Emit(_ context.Context, ev *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// Events returns a copy of the collected events.
func (s *MemorySink) Events() []*model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

// OfType returns the collected events of the given type.
func (s *MemorySink) OfType(t model.EventType) []*model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.Event
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
