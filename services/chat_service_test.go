package services

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/sink"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type chatFixture struct {
	service       *ChatService
	messages      repositories.MessageRepository
	conversations repositories.ConversationRepository
	orchestrator  *runtime.Orchestrator
	monitoring    *observability.MonitoringManager
}

func newChatFixture(t *testing.T, connectionBuffer int, opts ...ChatOption) chatFixture {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelError)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	accounts := repositories.NewAccountRepository(db, log, repositories.DefaultRetryPolicy())
	for _, id := range []domain.AccountID{"alice", "bob", "carol"} {
		_, err := accounts.Create(context.Background(), domain.Account{
			ID:          id,
			DisplayName: string(id),
			Email:       string(id) + "@example.com",
			CreatedAt:   time.Now().UTC(),
		}, "hash")
		require.NoError(t, err)
	}

	monitoring := observability.NewMonitoringManager(log)
	orchestrator := runtime.NewOrchestrator(log, workers.NewSupervisor(log, 10*time.Millisecond),
		runtime.NewRegistry(), monitoring, 1024, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = orchestrator.Start(ctx) }()
	t.Cleanup(func() {
		orchestrator.Stop()
		cancel()
	})

	messages := repositories.NewMessageRepository(db, log, repositories.DefaultRetryPolicy())
	conversations := repositories.NewConversationRepository(db)
	service := NewChatService(log, messages, conversations, accounts, orchestrator, monitoring, ChatConfig{
		MaxContentLength:     20,
		ConnectionBufferSize: connectionBuffer,
		SearchLimit:          10,
	}, opts...)
	return chatFixture{
		service:       service,
		messages:      messages,
		conversations: conversations,
		orchestrator:  orchestrator,
		monitoring:    monitoring,
	}
}

func aliceBob(t *testing.T) domain.ConversationKey {
	key, err := domain.NewConversationKey("alice", "bob")
	require.NoError(t, err)
	return key
}

func TestChatService_SendMessage(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newChatFixture(t, 16)

	m, err := f.service.SendMessage(ctx, "bob", "alice", "  hello alice ")
	req.NoError(err)
	req.Equal(aliceBob(t), m.Conversation)
	req.Equal(uint64(1), m.Seq)
	req.Equal("hello alice", m.Text)

	_, err = f.service.SendMessage(ctx, "bob", "nobody", "hi")
	req.ErrorIs(err, errors.ErrNotFound)

	_, err = f.service.SendMessage(ctx, "bob", "bob", "hi")
	req.ErrorIs(err, errors.ErrInvalidConversation)

	summaries, err := f.service.ListConversations(ctx, "alice")
	req.NoError(err)
	req.Len(summaries, 1)
	req.Equal(domain.AccountID("bob"), summaries[0].Counterpart)
	req.Equal("hello alice", summaries[0].LastMessageText)
}

func TestChatService_Append_Rejections_Leave_No_Trace(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newChatFixture(t, 16)
	key := aliceBob(t)

	// Streams watching the conversation and both participants.
	registry := f.orchestrator.Registry()
	conversationStream := sink.NewStreamSink(8, nil)
	registry.SubscribeConversation("watch-conversation", key, conversationStream)
	accountStreams := map[domain.AccountID]*sink.StreamSink{}
	for _, owner := range []domain.AccountID{"alice", "bob"} {
		accountStreams[owner] = sink.NewStreamSink(8, nil)
		registry.SubscribeAccount("watch-"+string(owner), owner, accountStreams[owner])
	}

	_, err := f.service.Append(ctx, key, "carol", "let me in")
	req.ErrorIs(err, errors.ErrInvalidSender)
	_, err = f.service.Append(ctx, key, "alice", " \n\t ")
	req.ErrorIs(err, errors.ErrEmptyText)
	_, err = f.service.Append(ctx, key, "alice", strings.Repeat("é", 21))
	req.ErrorIs(err, errors.ErrMessageTooLong)

	messages, err := f.service.ListMessages(ctx, "alice", key, nil)
	req.NoError(err)
	req.Empty(messages)
	for _, owner := range []domain.AccountID{"alice", "bob", "carol"} {
		summaries, err := f.service.ListConversations(ctx, owner)
		req.NoError(err)
		req.Empty(summaries)
	}

	// Exactly at the limit is accepted, and its events are the first ones
	// the streams see.
	_, err = f.service.Append(ctx, key, "alice", strings.Repeat("é", 20))
	req.NoError(err)

	first := func(stream *sink.StreamSink) event.DomainEvent {
		select {
		case evt := <-stream.Events():
			return evt
		case <-time.After(time.Second):
			req.Fail("no event delivered")
			return nil
		}
	}
	appended, ok := first(conversationStream).(event.MessageAppended)
	req.True(ok)
	req.Equal(uint64(1), appended.Message.Seq)
	req.Empty(conversationStream.Events())
	for owner, stream := range accountStreams {
		updated, ok := first(stream).(event.SummaryUpdated)
		req.True(ok, owner)
		req.Equal(uint64(1), updated.Summary.LastSeq)
		req.Empty(stream.Events())
	}
}

func TestChatService_Concurrent_Appends_Are_Serialized(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newChatFixture(t, 16)
	key := aliceBob(t)
	const writers = 40

	var wg sync.WaitGroup
	seqs := make(chan uint64, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sender := domain.AccountID("alice")
			if i%2 == 0 {
				sender = "bob"
			}
			m, err := f.service.Append(ctx, key, sender, fmt.Sprintf("m%d", i))
			if err != nil {
				t.Errorf("append: %v", err)
				return
			}
			seqs <- m.Seq
		}()
	}
	wg.Wait()
	close(seqs)

	seen := make(map[uint64]bool)
	for seq := range seqs {
		req.False(seen[seq], "seq %d allocated twice", seq)
		seen[seq] = true
	}
	req.Len(seen, writers)

	messages, err := f.service.ListMessages(ctx, "bob", key, nil)
	req.NoError(err)
	req.Len(messages, writers)
	for i, m := range messages {
		req.Equal(uint64(i+1), m.Seq)
		if i > 0 {
			req.False(m.CreatedAt.Before(messages[i-1].CreatedAt))
		}
	}
	for _, owner := range []domain.AccountID{"alice", "bob"} {
		summaries, err := f.service.ListConversations(ctx, owner)
		req.NoError(err)
		req.Len(summaries, 1)
		req.Equal(uint64(writers), summaries[0].LastSeq)
		req.Equal(messages[writers-1].ID, summaries[0].LastMessageID)
	}
}

func TestChatService_ListMessages_Requires_Participation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newChatFixture(t, 16)

	_, err := f.service.ListMessages(ctx, "carol", aliceBob(t), nil)
	req.ErrorIs(err, errors.ErrNotParticipant)
	req.ErrorIs(err, errors.ErrUnauthorized)

	_, err = f.service.SubscribeMessages(ctx, "carol", aliceBob(t), nil)
	req.ErrorIs(err, errors.ErrNotParticipant)

	_, err = f.service.ListMessages(ctx, "alice", "p2p:bob:alice", nil)
	req.ErrorIs(err, errors.ErrInvalidConversation)
}

func TestChatService_SubscribeMessages_Backlog_Then_Live(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f := newChatFixture(t, 16)
	key := aliceBob(t)

	for i := range 3 {
		_, err := f.service.Append(ctx, key, "alice", fmt.Sprintf("old %d", i))
		req.NoError(err)
	}

	cursor := domain.Cursor(1)
	sub, err := f.service.SubscribeMessages(ctx, "bob", key, &cursor)
	req.NoError(err)
	defer sub.Close()

	for _, expected := range []uint64{2, 3} {
		m, err := sub.Next(ctx)
		req.NoError(err)
		req.Equal(expected, m.Seq)
	}

	_, err = f.service.Append(ctx, key, "bob", "live")
	req.NoError(err)
	m, err := sub.Next(ctx)
	req.NoError(err)
	req.Equal(uint64(4), m.Seq)
	req.Equal("live", m.Text)
	req.Equal(domain.Cursor(4), sub.Cursor())
}

func TestChatService_SubscribeMessages_Cursor_Past_Head(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f := newChatFixture(t, 16)
	key := aliceBob(t)

	for range 3 {
		_, err := f.service.Append(ctx, key, "alice", "before")
		req.NoError(err)
	}

	ahead := domain.Cursor(100)
	_, err := f.service.SubscribeMessages(ctx, "bob", key, &ahead)
	req.ErrorIs(err, errors.ErrInvalidCursor)
	conversations, _ := f.orchestrator.Registry().Count()
	req.Zero(conversations)

	// At the head the next live message is the first one delivered.
	head := domain.Cursor(3)
	sub, err := f.service.SubscribeMessages(ctx, "bob", key, &head)
	req.NoError(err)
	defer sub.Close()
	_, err = f.service.Append(ctx, key, "alice", "after")
	req.NoError(err)
	m, err := sub.Next(ctx)
	req.NoError(err)
	req.Equal(uint64(4), m.Seq)
}

func TestChatService_SubscribeMessages_No_Gap_No_Duplicate_Under_Load(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	f := newChatFixture(t, 512)
	key := aliceBob(t)
	const total = 200

	// Writers start before the subscription so that the backlog read
	// races with live events.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range total {
			_, err := f.service.Append(ctx, key, "alice", fmt.Sprintf("n%d", i))
			if err != nil {
				t.Errorf("append: %v", err)
				return
			}
		}
	}()

	sub, err := f.service.SubscribeMessages(ctx, "bob", key, nil)
	req.NoError(err)
	defer sub.Close()

	for expected := uint64(1); expected <= total; expected++ {
		m, err := sub.Next(ctx)
		req.NoError(err)
		req.Equal(expected, m.Seq)
	}
	wg.Wait()
}

func TestChatService_Lagged_Subscriber_Resumes_From_Cursor(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f := newChatFixture(t, 1)
	key := aliceBob(t)

	sub, err := f.service.SubscribeMessages(ctx, "bob", key, nil)
	req.NoError(err)
	defer sub.Close()

	for i := range 5 {
		_, err := f.service.Append(ctx, key, "alice", fmt.Sprintf("burst %d", i))
		req.NoError(err)
	}
	req.Eventually(func() bool {
		select {
		case <-sub.sink.Lagged():
			return true
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)

	// The buffered event is still delivered before the lag is reported.
	m, err := sub.Next(ctx)
	req.NoError(err)
	req.Equal(uint64(1), m.Seq)
	_, err = sub.Next(ctx)
	req.ErrorIs(err, errors.ErrSubscriberLagged)
	sub.Close()

	cursor := sub.Cursor()
	resumed, err := f.service.SubscribeMessages(ctx, "bob", key, &cursor)
	req.NoError(err)
	defer resumed.Close()
	for expected := uint64(2); expected <= 5; expected++ {
		m, err := resumed.Next(ctx)
		req.NoError(err)
		req.Equal(expected, m.Seq)
	}

	stats := f.monitoring.Update(observability.MonitoringStats{})
	req.Equal(uint64(1), stats.LaggedStreams)
}

func TestChatService_SubscribeMessages_Close_Unregisters(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newChatFixture(t, 4)

	sub, err := f.service.SubscribeMessages(ctx, "alice", aliceBob(t), nil)
	req.NoError(err)
	conversations, _ := f.orchestrator.Registry().Count()
	req.Equal(1, conversations)

	sub.Close()
	sub.Close()
	conversations, _ = f.orchestrator.Registry().Count()
	req.Equal(0, conversations)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = sub.Next(cancelled)
	req.ErrorIs(err, context.Canceled)
}

func TestChatService_SubscribeConversationSummaries(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f := newChatFixture(t, 16)

	_, err := f.service.SendMessage(ctx, "alice", "carol", "first")
	req.NoError(err)

	sub, err := f.service.SubscribeConversationSummaries(ctx, "alice")
	req.NoError(err)
	defer sub.Close()

	snapshot, err := sub.Next(ctx)
	req.NoError(err)
	req.Equal(domain.AccountID("carol"), snapshot.Counterpart)
	req.Equal("first", snapshot.LastMessageText)

	// bob and carol talking must not reach alice.
	_, err = f.service.SendMessage(ctx, "bob", "carol", "private")
	req.NoError(err)
	_, err = f.service.SendMessage(ctx, "bob", "alice", "hey alice")
	req.NoError(err)

	update, err := sub.Next(ctx)
	req.NoError(err)
	req.Equal(domain.AccountID("alice"), update.Owner)
	req.Equal(domain.AccountID("bob"), update.Counterpart)
	req.Equal(domain.AccountID("bob"), update.LastSenderID)
	req.Equal("hey alice", update.LastMessageText)
	req.Equal(uint64(1), update.LastSeq)
}

type wordCensor struct{}

func (wordCensor) Censor(text string) (string, []string) {
	if strings.Contains(text, "idiot") {
		return strings.ReplaceAll(text, "idiot", "*****"), []string{"idiot"}
	}
	return text, nil
}

func TestChatService_Censor(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, 4, WithCensor(wordCensor{}))

	m, err := f.service.Append(context.Background(), aliceBob(t), "alice", "you idiot")
	req.NoError(err)
	req.Equal("you *****", m.Text)
}

func TestChatService_SearchMessages(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	t.Run("disabled without index", func(t *testing.T) {
		f := newChatFixture(t, 4)
		_, err := f.service.SearchMessages(ctx, "alice", "hello", 5)
		require.ErrorIs(t, err, errors.ErrUnavailable)
	})

	t.Run("foreign results are dropped and limit is capped", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		index := mocks.NewMockIIndex(ctrl)
		f := newChatFixture(t, 4, WithSearchIndex(index))

		index.EXPECT().Search(gomock.Any(), domain.AccountID("alice"), "hello", 10).
			Return([]domain.Message{
				{Conversation: aliceBob(t), Seq: 1, Text: "hello"},
				{Conversation: "p2p:bob:carol", Seq: 1, Text: "hello"},
			}, nil).Times(1)

		found, err := f.service.SearchMessages(ctx, "alice", " hello ", 1000)
		req.NoError(err)
		req.Len(found, 1)
		req.Equal(aliceBob(t), found[0].Conversation)

		_, err = f.service.SearchMessages(ctx, "alice", "  ", 5)
		req.ErrorIs(err, errors.ErrInvalidArgument)
	})
}
