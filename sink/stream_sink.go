package sink

import (
	"chat-relay/domain/event"
	"chat-relay/observability"
	"context"
	"sync"
)

// StreamSink buffers the events of one subscription between the fan-out
// and the connection writing them. Consume never blocks: when the buffer is
// full the event is dropped and the sink is marked lagged, the subscription
// then ends and the client resumes from its last cursor.
type StreamSink struct {
	events     chan event.DomainEvent
	lagged     chan struct{}
	once       sync.Once
	monitoring *observability.MonitoringManager
}

func NewStreamSink(bufferSize int, monitoring *observability.MonitoringManager) *StreamSink {
	return &StreamSink{
		events:     make(chan event.DomainEvent, bufferSize),
		lagged:     make(chan struct{}),
		monitoring: monitoring,
	}
}

func (s *StreamSink) Consume(_ context.Context, e event.DomainEvent) error {
	select {
	case <-s.lagged:
		// Anything after a gap is useless to the subscriber.
		return nil
	default:
	}
	select {
	case s.events <- e:
		return nil
	default:
		if s.monitoring != nil {
			s.monitoring.IncrEventsDropped()
		}
		s.MarkLagged()
		return nil
	}
}

// MarkLagged flags the subscription as having missed at least one event.
func (s *StreamSink) MarkLagged() {
	s.once.Do(func() {
		if s.monitoring != nil {
			s.monitoring.IncrLaggedStreams()
		}
		close(s.lagged)
	})
}

// Events is read by the subscription owning the sink.
func (s *StreamSink) Events() <-chan event.DomainEvent { return s.events }

// Lagged is closed once an event was missed.
func (s *StreamSink) Lagged() <-chan struct{} { return s.lagged }
