package sink_test

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/repositories"
	"chat-relay/sink"
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// recordingIndex keeps the seqs it was given, per call.
type recordingIndex struct {
	mu    sync.Mutex
	calls [][]uint64
	fail  int
}

func (r *recordingIndex) Index(_ context.Context, messages ...domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail > 0 {
		r.fail--
		return stderrors.New("index unavailable")
	}
	seqs := make([]uint64, 0, len(messages))
	for _, m := range messages {
		seqs = append(seqs, m.Seq)
	}
	r.calls = append(r.calls, seqs)
	return nil
}

func (r *recordingIndex) Search(context.Context, domain.AccountID, string, int) ([]domain.Message, error) {
	return nil, nil
}

func (r *recordingIndex) indexed() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []uint64
	for _, call := range r.calls {
		all = append(all, call...)
	}
	return all
}

type searchFixture struct {
	index      *recordingIndex
	messages   repositories.MessageRepository
	watermarks repositories.SearchWatermarkRepository
	key        domain.ConversationKey
}

func newSearchFixture(t *testing.T) searchFixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	log := logs.GetLoggerFromLevel(slog.LevelError)
	key, err := domain.NewConversationKey("alice", "bob")
	require.NoError(t, err)
	return searchFixture{
		index:      &recordingIndex{},
		messages:   repositories.NewMessageRepository(db, log, repositories.DefaultRetryPolicy()),
		watermarks: repositories.NewSearchWatermarkRepository(db, log, repositories.DefaultRetryPolicy()),
		key:        key,
	}
}

func (f searchFixture) sink(maxBatch int, interval time.Duration) *sink.SearchSink {
	return sink.NewSearchSink(f.index, f.messages, f.watermarks,
		logs.GetLoggerFromLevel(slog.LevelError), maxBatch, interval)
}

// send commits n messages and returns their events.
func (f searchFixture) send(t *testing.T, n int) []event.MessageAppended {
	t.Helper()
	events := make([]event.MessageAppended, 0, n)
	for range n {
		result, err := f.messages.Append(context.Background(), f.key, "alice", "hello harbour")
		require.NoError(t, err)
		events = append(events, event.MessageAppended{Message: result.Message})
	}
	return events
}

func (f searchFixture) watermark(t *testing.T) uint64 {
	t.Helper()
	seqs, err := f.watermarks.IndexedSeqs(context.Background())
	require.NoError(t, err)
	return seqs[f.key]
}

func TestSearchSink_Consume_Only_Buffers(t *testing.T) {
	req := require.New(t)
	f := newSearchFixture(t)
	s := f.sink(3, time.Hour)

	for _, evt := range f.send(t, 3) {
		req.NoError(s.Consume(context.Background(), evt))
	}
	req.NoError(s.Consume(context.Background(), event.SummaryUpdated{}))
	req.Empty(f.index.indexed())

	// The full batch wakes the worker
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	req.Eventually(func() bool { return len(f.index.indexed()) == 3 }, time.Second, 5*time.Millisecond)
	req.Equal([]uint64{1, 2, 3}, f.index.indexed())
	req.Equal(uint64(3), f.watermark(t))

	cancel()
	req.NoError(<-done)
}

func TestSearchSink_Run_Flushes_On_Tick_And_On_Exit(t *testing.T) {
	req := require.New(t)
	f := newSearchFixture(t)

	ticking := f.sink(100, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ticking.Run(ctx) }()
	req.NoError(ticking.Consume(ctx, f.send(t, 1)[0]))
	req.Eventually(func() bool { return len(f.index.indexed()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	req.NoError(<-done)

	g := newSearchFixture(t)
	idle := g.sink(100, time.Hour)
	ctx, cancel = context.WithCancel(context.Background())
	go func() { done <- idle.Run(ctx) }()
	req.NoError(idle.Consume(ctx, g.send(t, 1)[0]))
	cancel()
	req.NoError(<-done)
	req.Equal([]uint64{1}, g.index.indexed())
}

func TestSearchSink_Flush_Reads_Back_A_Hole(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newSearchFixture(t)
	s := f.sink(10, time.Hour)

	// Given the event of seq 2 never reached the sink
	events := f.send(t, 3)
	req.NoError(s.Consume(ctx, events[0]))
	req.NoError(s.Consume(ctx, events[2]))

	req.NoError(s.Flush(ctx))
	req.Equal([]uint64{1, 2, 3}, f.index.indexed())
	req.Equal(uint64(3), f.watermark(t))
}

func TestSearchSink_Missed_Event_Is_Indexed_From_Store(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newSearchFixture(t)
	s := f.sink(10, time.Hour)

	events := f.send(t, 2)
	req.NoError(s.Consume(ctx, events[0]))
	req.NoError(s.Flush(ctx))

	// The fan-out could not queue the last message
	s.Missed(events[1])
	s.Missed(event.SummaryUpdated{})
	req.NoError(s.Flush(ctx))

	req.Equal([]uint64{1, 2}, f.index.indexed())
	req.Equal(uint64(2), f.watermark(t))
}

func TestSearchSink_CatchUp_Indexes_What_Was_Lost(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newSearchFixture(t)

	// Given a previous run indexed seq 1 only
	f.send(t, 3)
	req.NoError(f.watermarks.SetIndexedSeqs(ctx, map[domain.ConversationKey]uint64{f.key: 1}))

	s := f.sink(10, time.Hour)
	req.NoError(s.CatchUp(ctx))
	req.Equal([]uint64{2, 3}, f.index.indexed())
	req.Equal(uint64(3), f.watermark(t))

	// Up to date: nothing more to index
	req.NoError(f.sink(10, time.Hour).CatchUp(ctx))
	req.Equal([]uint64{2, 3}, f.index.indexed())
}

func TestSearchSink_Failed_Flush_Is_Retried(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newSearchFixture(t)
	f.index.fail = 1
	s := f.sink(10, time.Hour)

	req.NoError(s.Consume(ctx, f.send(t, 1)[0]))
	req.Error(s.Flush(ctx))
	req.Zero(f.watermark(t))

	req.NoError(s.Flush(ctx))
	req.Equal([]uint64{1}, f.index.indexed())
	req.Equal(uint64(1), f.watermark(t))
}
