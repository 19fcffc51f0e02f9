package workers

import (
	"chat-relay/contract"
	"chat-relay/observability"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// QueueGauge reports the fan-out queue occupancy.
type QueueGauge interface {
	QueueLen() (length int, capacity int)
}

// HealthMonitoringWorker samples the relay every metricInterval and logs
// the result. The sample is kept in the MonitoringManager for the debug server.
type HealthMonitoringWorker struct {
	log            *slog.Logger
	monitoring     *observability.MonitoringManager
	registry       contract.IRegistry
	queue          QueueGauge
	inFlight       func() int
	metricInterval time.Duration
	proc           *process.Process
}

func NewHealthMonitoringWorker(
	log *slog.Logger,
	monitoring *observability.MonitoringManager,
	registry contract.IRegistry,
	queue QueueGauge,
	inFlight func() int,
	metricInterval time.Duration,
) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{
		log:            log,
		monitoring:     monitoring,
		registry:       registry,
		queue:          queue,
		inFlight:       inFlight,
		metricInterval: metricInterval,
	}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.C:
			w.Sample()
		}
	}
}

// Sample takes one measurement. Process figures are best effort.
func (w *HealthMonitoringWorker) Sample() observability.MonitoringStats {
	var stats observability.MonitoringStats
	stats.QueueLength, stats.QueueCapacity = w.queue.QueueLen()
	stats.MessageSubscriptions, stats.SummarySubscriptions = w.registry.Count()
	if w.inFlight != nil {
		stats.ConversationsInFlight = w.inFlight()
	}
	w.sampleProcess(&stats)

	stats = w.monitoring.Update(stats)
	w.log.Info("Relay health",
		"queue", stats.QueueLength,
		"queue_capacity", stats.QueueCapacity,
		"message_streams", stats.MessageSubscriptions,
		"summary_streams", stats.SummarySubscriptions,
		"appended", stats.MessagesAppended,
		"delivered", stats.EventsDelivered,
		"dropped", stats.EventsDropped,
		"lagged", stats.LaggedStreams,
		"cpu", stats.CPUPercent,
		"rss_mb", stats.RSSMb,
	)
	return stats
}

func (w *HealthMonitoringWorker) sampleProcess(stats *observability.MonitoringStats) {
	if w.proc == nil {
		p, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			w.log.Debug("Error while retrieving process", "err", err)
			return
		}
		w.proc = p
	}
	cpu, err := w.proc.CPUPercent()
	if err != nil {
		w.log.Debug("Error while finding process cpu usage", "err", err)
	} else {
		stats.CPUPercent = cpu
	}
	mem, err := w.proc.MemoryInfo()
	if err != nil {
		w.log.Debug("Error while finding process ram usage", "err", err)
	} else {
		stats.RSSMb = mem.RSS / 1024 / 1024
	}
}
