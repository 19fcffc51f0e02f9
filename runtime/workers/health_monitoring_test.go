package workers

import (
	"chat-relay/mocks"
	"chat-relay/observability"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixedQueue struct{ length, capacity int }

func (q fixedQueue) QueueLen() (int, int) { return q.length, q.capacity }

func TestHealthMonitoringWorker_Sample(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	monitoring := observability.NewMonitoringManager(slog.Default())
	monitoring.IncrMessagesAppended()

	mockRegistry.EXPECT().Count().Return(4, 2).Times(1)

	w := NewHealthMonitoringWorker(slog.Default(), monitoring, mockRegistry,
		fixedQueue{length: 1, capacity: 64}, func() int { return 3 }, time.Second)

	stats := w.Sample()

	req.Equal(1, stats.QueueLength)
	req.Equal(64, stats.QueueCapacity)
	req.Equal(4, stats.MessageSubscriptions)
	req.Equal(2, stats.SummarySubscriptions)
	req.Equal(3, stats.ConversationsInFlight)
	req.Equal(uint64(1), stats.MessagesAppended)
	req.Equal(stats, monitoring.GetLatest())
}
