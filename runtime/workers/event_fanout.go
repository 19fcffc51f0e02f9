package workers

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/observability"
	"context"
	"log/slog"
	"time"
)

// EventFanoutWorker is the single consumer of the fan-out queue.
// Events are delivered one after the other, so two events of a conversation
// reach every sink in the order they were published.
// Each Consume gets a sinkTimeout deadline and sinks must return by it.
// Sinks doing I/O, like the search sink, only buffer in Consume and work
// in a worker of their own.
type EventFanoutWorker struct {
	log            *slog.Logger
	permanentSinks []contract.EventSink
	registry       contract.IRegistry
	events         <-chan event.DomainEvent
	sinkTimeout    time.Duration
	monitoring     *observability.MonitoringManager
}

func NewEventFanoutWorker(
	log *slog.Logger,
	permanentSinks []contract.EventSink,
	registry contract.IRegistry,
	events <-chan event.DomainEvent,
	sinkTimeout time.Duration,
	monitoring *observability.MonitoringManager,
) *EventFanoutWorker {
	return &EventFanoutWorker{
		log:            log,
		permanentSinks: permanentSinks,
		registry:       registry,
		events:         events,
		sinkTimeout:    sinkTimeout,
		monitoring:     monitoring,
	}
}

func (w *EventFanoutWorker) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-w.events:
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping fan-out")
			return nil
		}
	}
}

// Fanout delivers one event to the permanent sinks then to the streams
// interested in it.
func (w *EventFanoutWorker) Fanout(ctx context.Context, evt event.DomainEvent) {
	for _, sink := range w.permanentSinks {
		w.consume(ctx, sink, evt)
	}
	for _, sink := range w.targets(evt) {
		w.consume(ctx, sink, evt)
	}
}

func (w *EventFanoutWorker) targets(evt event.DomainEvent) []contract.EventSink {
	switch e := evt.(type) {
	case event.MessageAppended:
		return w.registry.SinksForConversation(e.ConversationKey())
	case event.SummaryUpdated:
		return w.registry.SinksForAccount(e.Owner())
	default:
		w.log.Warn("Unknown event type, not routed", "event", evt)
		return nil
	}
}

func (w *EventFanoutWorker) consume(ctx context.Context, sink contract.EventSink, evt event.DomainEvent) {
	sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
	defer cancel()
	if err := sink.Consume(sinkCtx, evt); err != nil {
		w.log.Debug("Sink refused event", "conversation", evt.ConversationKey(), "error", err)
		if w.monitoring != nil {
			w.monitoring.IncrSinkErrors()
		}
		return
	}
	if w.monitoring != nil {
		w.monitoring.IncrEventsDelivered()
	}
}
