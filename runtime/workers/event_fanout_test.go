package workers

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/mocks"
	"chat-relay/observability"
	"chat-relay/sink"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestEventFanoutWorker_Fanout(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	permanentSink := mocks.NewMockEventSink(ctrl)
	streamSink := mocks.NewMockEventSink(ctrl)
	monitoring := observability.NewMonitoringManager(log)

	fanoutWorker := NewEventFanoutWorker(
		log, []contract.EventSink{permanentSink},
		mockRegistry, nil, 10*time.Second, monitoring)

	key, _ := domain.NewConversationKey("alice", "bob")
	evt := event.MessageAppended{Message: domain.Message{Conversation: key, Seq: 1}}

	// Given two streams watch the conversation
	mockRegistry.EXPECT().SinksForConversation(key).
		Return([]contract.EventSink{streamSink, streamSink}).Times(1)
	// Then the permanent sink and both streams consume the event
	permanentSink.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)
	streamSink.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(2)

	// When an event is handled by the worker
	fanoutWorker.Fanout(context.Background(), evt)

	req.Equal(uint64(3), monitoring.Update(observability.MonitoringStats{}).EventsDelivered)
}

func TestEventFanoutWorker_RoutesSummaryToOwner(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	ownerSink := mocks.NewMockEventSink(ctrl)

	fanoutWorker := NewEventFanoutWorker(slog.Default(), nil, mockRegistry, nil, time.Second, nil)

	evt := event.SummaryUpdated{Summary: domain.ConversationSummary{Owner: "bob", Conversation: "p2p:alice:bob"}}
	mockRegistry.EXPECT().SinksForAccount(domain.AccountID("bob")).
		Return([]contract.EventSink{ownerSink}).Times(1)
	ownerSink.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)

	fanoutWorker.Fanout(context.Background(), evt)
}

func TestEventFanoutWorker_SinkTimeout(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)

	mockRegistry := mocks.NewMockIRegistry(ctrl)
	slowSink := mocks.NewMockEventSink(ctrl)
	nextSink := mocks.NewMockEventSink(ctrl)

	sinkTimeout := 20 * time.Millisecond
	fanoutWorker := NewEventFanoutWorker(
		log, nil, mockRegistry, nil, sinkTimeout, nil)

	evt := event.MessageAppended{Message: domain.Message{Conversation: "p2p:alice:bob"}}
	mockRegistry.EXPECT().SinksForConversation(gomock.Any()).
		Return([]contract.EventSink{slowSink, nextSink}).Times(1)
	// Given a sink that waits for its deadline
	slowSink.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, evt event.DomainEvent) error {
			<-ctx.Done()
			return ctx.Err()
		}).Times(1)
	// Then the next sink is still served
	nextSink.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	start := time.Now()
	fanoutWorker.Fanout(context.Background(), evt)
	req.Less(time.Since(start), time.Second)
}

func TestEventFanoutWorker_Search_Index_Stays_Off_The_Fanout_Path(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	slowIndex := mocks.NewMockIIndex(ctrl)

	// Given an index that would take far longer than the sink deadline,
	// behind a search sink flushing after every message
	slowIndex.EXPECT().Index(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, ...domain.Message) error {
			time.Sleep(500 * time.Millisecond)
			return nil
		}).Times(0)
	searchSink := sink.NewSearchSink(slowIndex, nil, nil, slog.Default(), 1, time.Hour)

	sinkTimeout := 20 * time.Millisecond
	fanoutWorker := NewEventFanoutWorker(slog.Default(), []contract.EventSink{searchSink},
		mockRegistry, nil, sinkTimeout, nil)
	mockRegistry.EXPECT().SinksForConversation(gomock.Any()).Return(nil).Times(1)

	// When the fan-out hands it a message
	start := time.Now()
	fanoutWorker.Fanout(context.Background(),
		event.MessageAppended{Message: domain.Message{Conversation: "p2p:alice:bob", Seq: 1}})

	// Then the fan-out returns at once, indexing is left to the sink's worker
	req.Less(time.Since(start), sinkTimeout)
}

func TestEventFanoutWorker_Run_Preserves_Order(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	sink := mocks.NewMockEventSink(ctrl)
	events := make(chan event.DomainEvent, 10)

	fanoutWorker := NewEventFanoutWorker(slog.Default(), nil, mockRegistry, events, time.Second, nil)

	received := make(chan uint64, 10)
	mockRegistry.EXPECT().SinksForConversation(gomock.Any()).
		Return([]contract.EventSink{sink}).AnyTimes()
	sink.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, evt event.DomainEvent) error {
			received <- evt.(event.MessageAppended).Message.Seq
			return nil
		}).Times(5)

	for seq := uint64(1); seq <= 5; seq++ {
		events <- event.MessageAppended{Message: domain.Message{Conversation: "p2p:alice:bob", Seq: seq}}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = fanoutWorker.Run(ctx)
		close(done)
	}()

	for seq := uint64(1); seq <= 5; seq++ {
		select {
		case got := <-received:
			req.Equal(seq, got)
		case <-time.After(time.Second):
			req.Fail("event not delivered")
		}
	}
	cancel()
	<-done
}
