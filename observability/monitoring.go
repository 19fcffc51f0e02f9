package observability

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// MonitoringStats is the latest health sample, served by the debug server.
type MonitoringStats struct {
	// --- RELAY COUNTERS ---
	MessagesAppended uint64 `json:"messages_appended"`
	EventsDelivered  uint64 `json:"events_delivered"`
	EventsDropped    uint64 `json:"events_dropped"`
	SinkErrors       uint64 `json:"sink_errors"`
	LaggedStreams    uint64 `json:"lagged_streams"`
	PublishOverflows uint64 `json:"publish_overflows"`

	// --- FAN-OUT ---
	QueueLength           int `json:"queue_length"`
	QueueCapacity         int `json:"queue_capacity"`
	MessageSubscriptions  int `json:"message_subscriptions"`
	SummarySubscriptions  int `json:"summary_subscriptions"`
	ConversationsInFlight int `json:"conversations_in_flight"`

	// --- SYSTEM METRICS ---
	CPUPercent float64   `json:"cpu_percent"`
	RSSMb      uint64    `json:"rss_mb"`
	AllocMemMb uint64    `json:"alloc_mem_mb"`
	NumGC      uint32    `json:"num_gc"`
	Goroutines int       `json:"goroutines"`
	SampledAt  time.Time `json:"sampled_at"`
}

// MonitoringManager aggregates relay counters, safe for concurrent use.
type MonitoringManager struct {
	log         *slog.Logger
	mu          sync.RWMutex
	latestStats MonitoringStats

	messagesAppended atomic.Uint64
	eventsDelivered  atomic.Uint64
	eventsDropped    atomic.Uint64
	sinkErrors       atomic.Uint64
	laggedStreams    atomic.Uint64
	publishOverflows atomic.Uint64
}

func NewMonitoringManager(log *slog.Logger) *MonitoringManager {
	return &MonitoringManager{log: log}
}

func (mm *MonitoringManager) IncrMessagesAppended() { mm.messagesAppended.Add(1) }

func (mm *MonitoringManager) IncrEventsDelivered() { mm.eventsDelivered.Add(1) }

// IncrEventsDropped counts events a full stream buffer refused.
func (mm *MonitoringManager) IncrEventsDropped() { mm.eventsDropped.Add(1) }

func (mm *MonitoringManager) IncrSinkErrors() { mm.sinkErrors.Add(1) }

func (mm *MonitoringManager) IncrLaggedStreams() { mm.laggedStreams.Add(1) }

// IncrPublishOverflows counts events the fan-out queue could not take.
func (mm *MonitoringManager) IncrPublishOverflows() { mm.publishOverflows.Add(1) }

// Update stores a new sample. Counters and Go runtime figures are filled
// in here, the caller provides the fan-out and process figures.
func (mm *MonitoringManager) Update(sample MonitoringStats) MonitoringStats {
	sample.MessagesAppended = mm.messagesAppended.Load()
	sample.EventsDelivered = mm.eventsDelivered.Load()
	sample.EventsDropped = mm.eventsDropped.Load()
	sample.SinkErrors = mm.sinkErrors.Load()
	sample.LaggedStreams = mm.laggedStreams.Load()
	sample.PublishOverflows = mm.publishOverflows.Load()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	sample.AllocMemMb = m.Alloc / 1024 / 1024
	sample.NumGC = m.NumGC
	sample.Goroutines = runtime.NumGoroutine()
	if sample.SampledAt.IsZero() {
		sample.SampledAt = time.Now().UTC()
	}

	mm.mu.Lock()
	mm.latestStats = sample
	mm.mu.Unlock()
	return sample
}

func (mm *MonitoringManager) GetLatest() MonitoringStats {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.latestStats
}
