// Package runtime handles event propagation to live subscribers.
// It orchestrates the relay without containing business logic or domain rules.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/runtime/workers"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// lagger is implemented by stream sinks that can be told they missed an event.
type lagger interface {
	MarkLagged()
}

// gapTracker is implemented by permanent sinks that repair a missed event
// on their own, from the store.
type gapTracker interface {
	Missed(evt event.DomainEvent)
}

type Orchestrator struct {
	mu             sync.Mutex
	log            *slog.Logger
	permanentSinks []contract.EventSink
	extraWorkers   []contract.Worker
	supervisor     contract.ISupervisor
	registry       contract.IRegistry
	domainEvents   chan event.DomainEvent
	sinkTimeout    time.Duration
	monitoring     *observability.MonitoringManager
	stopped        atomic.Bool
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor,
	registry contract.IRegistry, monitoring *observability.MonitoringManager,
	bufferSize int, sinkTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		log:          log,
		supervisor:   supervisor,
		registry:     registry,
		domainEvents: make(chan event.DomainEvent, bufferSize),
		sinkTimeout:  sinkTimeout,
		monitoring:   monitoring,
	}
}

// RegisterSinks adds sinks receiving every event, whatever the subscribers.
// It must be called before Start.
func (o *Orchestrator) RegisterSinks(sinks ...contract.EventSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.permanentSinks = append(o.permanentSinks, sinks...)
}

// AddWorkers supervises extra workers next to the fan-out.
func (o *Orchestrator) AddWorkers(w ...contract.Worker) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.extraWorkers = append(o.extraWorkers, w...)
}

func (o *Orchestrator) Registry() contract.IRegistry { return o.registry }

// QueueLen reports the fan-out queue occupancy.
func (o *Orchestrator) QueueLen() (int, int) {
	return len(o.domainEvents), cap(o.domainEvents)
}

// Publish enqueues committed events in order. The caller holds the
// conversation lock, so events of one conversation enter the queue in seq
// order. When the queue stays full for sinkTimeout, the streams that should
// have received the event are marked lagged: they end and resume from their
// cursor instead of silently missing a message.
func (o *Orchestrator) Publish(ctx context.Context, events ...event.DomainEvent) error {
	if o.stopped.Load() {
		return errors.ErrFanoutStopped
	}
	var overflow int
	for _, evt := range events {
		if o.enqueue(ctx, evt) {
			continue
		}
		overflow++
		o.lagTargets(evt)
	}
	if overflow > 0 {
		return fmt.Errorf("%w: %d events not queued", errors.ErrUnavailable, overflow)
	}
	return nil
}

func (o *Orchestrator) enqueue(ctx context.Context, evt event.DomainEvent) bool {
	select {
	case o.domainEvents <- evt:
		return true
	default:
	}
	timer := time.NewTimer(o.sinkTimeout)
	defer timer.Stop()
	select {
	case o.domainEvents <- evt:
		return true
	case <-timer.C:
	case <-ctx.Done():
	}
	o.log.Warn("Fan-out queue full, dropping event", "conversation", evt.ConversationKey())
	if o.monitoring != nil {
		o.monitoring.IncrPublishOverflows()
	}
	return false
}

func (o *Orchestrator) lagTargets(evt event.DomainEvent) {
	var sinks []contract.EventSink
	switch e := evt.(type) {
	case event.MessageAppended:
		sinks = o.registry.SinksForConversation(e.ConversationKey())
	case event.SummaryUpdated:
		sinks = o.registry.SinksForAccount(e.Owner())
	}
	for _, sink := range sinks {
		if l, ok := sink.(lagger); ok {
			l.MarkLagged()
		}
	}
	o.mu.Lock()
	permanent := o.permanentSinks
	o.mu.Unlock()
	for _, sink := range permanent {
		if g, ok := sink.(gapTracker); ok {
			g.Missed(evt)
		}
	}
}

// Start registers the fan-out and the extra workers then runs the
// supervisor. It blocks until Stop is called or ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	fanoutWorker := workers.NewEventFanoutWorker(
		o.log,
		o.permanentSinks,
		o.registry,
		o.domainEvents,
		o.sinkTimeout,
		o.monitoring,
	)
	o.supervisor.Add(fanoutWorker)
	o.supervisor.Add(o.extraWorkers...)
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers",
		"permanent_sinks", len(o.permanentSinks), "workers", len(o.extraWorkers)+1)
	o.supervisor.Run(ctx)
	return nil
}

// Drain refuses new publications and waits until the fan-out queue is
// empty or ctx ends. The workers keep running, Stop ends them.
func (o *Orchestrator) Drain(ctx context.Context) error {
	o.stopped.Store(true)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for len(o.domainEvents) > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("fan-out queue not drained, %d events left: %w", len(o.domainEvents), ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// Stop initiates a graceful shutdown: workers are cancelled and later
// publications are refused.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.stopped.Store(true)
	o.supervisor.Stop()
}
