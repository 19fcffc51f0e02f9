package sink

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/search"
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// MessageLog is the store the index catches up from.
type MessageLog interface {
	ListMessages(ctx context.Context, key domain.ConversationKey, since *domain.Cursor) ([]domain.Message, error)
	Heads(ctx context.Context) (map[domain.ConversationKey]uint64, error)
}

// Watermarks persists the last indexed seq of every conversation.
type Watermarks interface {
	IndexedSeqs(ctx context.Context) (map[domain.ConversationKey]uint64, error)
	SetIndexedSeqs(ctx context.Context, seqs map[domain.ConversationKey]uint64) error
}

// pendingFactor bounds the buffer to that many batches. Past it, messages
// are not kept and their conversation is read back from the store instead.
const pendingFactor = 16

// SearchSink feeds appended messages to the search index.
//
// Consume only buffers: indexing runs in Run, a supervised worker, so a
// slow index never holds the fan-out. A batch is flushed when it reaches
// maxBatch messages or at the next tick of flushInterval.
//
// Every conversation has a watermark, the last seq known to be indexed.
// A conversation whose buffered messages do not follow its watermark, or
// which missed an event, is re-read from the message store after the
// watermark. Run starts by catching up every conversation whose head is
// past its watermark, so events lost at shutdown are indexed at boot.
type SearchSink struct {
	index         search.IIndex
	messages      MessageLog
	watermarks    Watermarks
	log           *slog.Logger
	maxBatch      int
	flushInterval time.Duration
	indexTimeout  time.Duration
	wake          chan struct{}

	mu      sync.Mutex
	pending []domain.Message
	dirty   map[domain.ConversationKey]struct{}

	// flushMu serialises flushes, indexed is only used under it.
	flushMu sync.Mutex
	indexed map[domain.ConversationKey]uint64
}

func NewSearchSink(index search.IIndex, messages MessageLog, watermarks Watermarks,
	log *slog.Logger, maxBatch int, flushInterval time.Duration) *SearchSink {
	return &SearchSink{
		index:         index,
		messages:      messages,
		watermarks:    watermarks,
		log:           log,
		maxBatch:      max(maxBatch, 1),
		flushInterval: flushInterval,
		indexTimeout:  10 * time.Second,
		wake:          make(chan struct{}, 1),
		dirty:         make(map[domain.ConversationKey]struct{}),
	}
}

// Consume buffers MessageAppended events, summaries are not indexed.
// It never does I/O.
func (s *SearchSink) Consume(_ context.Context, e event.DomainEvent) error {
	evt, ok := e.(event.MessageAppended)
	if !ok {
		return nil
	}
	s.mu.Lock()
	if len(s.pending) >= s.maxBatch*pendingFactor {
		s.dirty[evt.Message.Conversation] = struct{}{}
	} else {
		s.pending = append(s.pending, evt.Message)
	}
	full := len(s.pending) >= s.maxBatch
	s.mu.Unlock()

	if full {
		s.signal()
	}
	return nil
}

// Missed is told about an event the fan-out could not queue. The
// conversation is read back from the store on the next flush.
func (s *SearchSink) Missed(e event.DomainEvent) {
	if _, ok := e.(event.MessageAppended); !ok {
		return
	}
	s.mu.Lock()
	s.dirty[e.ConversationKey()] = struct{}{}
	s.mu.Unlock()
	s.signal()
}

func (s *SearchSink) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run catches up with the store, then flushes on demand and on every tick.
// The buffer is flushed one last time when ctx ends.
func (s *SearchSink) Run(ctx context.Context) error {
	if err := s.CatchUp(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("search catch-up: %w", err)
	}
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.indexTimeout)
			defer cancel()
			if err := s.Flush(flushCtx); err != nil {
				s.log.Warn("Search index: final flush failed", "error", err)
			}
			return nil
		case <-s.wake:
		case <-ticker.C:
		}
		if err := s.Flush(ctx); err != nil {
			s.log.Warn("Search index: flush failed, retrying on next tick", "error", err)
		}
	}
}

// CatchUp marks every conversation whose head is past its watermark and
// indexes the difference.
func (s *SearchSink) CatchUp(ctx context.Context) error {
	s.flushMu.Lock()
	if err := s.loadWatermarks(ctx); err != nil {
		s.flushMu.Unlock()
		return err
	}
	heads, err := s.messages.Heads(ctx)
	if err != nil {
		s.flushMu.Unlock()
		return err
	}
	behind := 0
	s.mu.Lock()
	for key, head := range heads {
		if head > s.indexed[key] {
			s.dirty[key] = struct{}{}
			behind++
		}
	}
	s.mu.Unlock()
	s.flushMu.Unlock()

	if behind > 0 {
		s.log.Info("Search index behind the message store", "conversations", behind)
	}
	return s.Flush(ctx)
}

// Flush indexes the buffered messages and whatever the dirty
// conversations are missing, then moves the watermarks. On failure the
// conversations involved stay dirty and are retried from the store.
func (s *SearchSink) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	if err := s.loadWatermarks(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	pending, dirty := s.pending, s.dirty
	s.pending = make([]domain.Message, 0, s.maxBatch)
	s.dirty = make(map[domain.ConversationKey]struct{})
	s.mu.Unlock()

	batch, err := s.collect(ctx, pending, dirty)
	if err == nil && len(batch) > 0 {
		indexCtx, cancel := context.WithTimeout(ctx, s.indexTimeout)
		err = s.index.Index(indexCtx, batch...)
		cancel()
	}
	moved := make(map[domain.ConversationKey]uint64)
	if err == nil {
		for _, m := range batch {
			if m.Seq > moved[m.Conversation] {
				moved[m.Conversation] = m.Seq
			}
		}
		err = s.watermarks.SetIndexedSeqs(ctx, moved)
	}
	if err != nil {
		s.redo(pending, dirty)
		return fmt.Errorf("failed to index %d messages: %w", len(batch), err)
	}
	for key, seq := range moved {
		s.indexed[key] = seq
	}
	return nil
}

// collect groups the buffered messages by conversation and keeps those
// following the watermark. A conversation with a hole, or one marked
// dirty, is read from the store after its watermark instead.
func (s *SearchSink) collect(ctx context.Context, pending []domain.Message,
	dirty map[domain.ConversationKey]struct{}) ([]domain.Message, error) {
	byKey := make(map[domain.ConversationKey][]domain.Message)
	for _, m := range pending {
		byKey[m.Conversation] = append(byKey[m.Conversation], m)
	}
	for key := range dirty {
		if _, ok := byKey[key]; !ok {
			byKey[key] = nil
		}
	}

	var batch []domain.Message
	for key, messages := range byKey {
		watermark := s.indexed[key]
		messages = slices.DeleteFunc(messages, func(m domain.Message) bool { return m.Seq <= watermark })
		slices.SortFunc(messages, func(a, b domain.Message) int { return cmp.Compare(a.Seq, b.Seq) })
		messages = slices.CompactFunc(messages, func(a, b domain.Message) bool { return a.Seq == b.Seq })

		_, isDirty := dirty[key]
		if isDirty || !followsWatermark(messages, watermark) {
			var since *domain.Cursor
			if watermark > 0 {
				c := domain.Cursor(watermark)
				since = &c
			}
			stored, err := s.messages.ListMessages(ctx, key, since)
			if err != nil {
				return nil, fmt.Errorf("read back %s: %w", key, err)
			}
			s.log.Debug("Search index: conversation read back from the store",
				"conversation", key, "after", watermark, "messages", len(stored))
			messages = stored
		}
		batch = append(batch, messages...)
	}
	return batch, nil
}

// redo puts a failed flush back so the next one covers it.
func (s *SearchSink) redo(pending []domain.Message, dirty map[domain.ConversationKey]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range pending {
		s.dirty[m.Conversation] = struct{}{}
	}
	for key := range dirty {
		s.dirty[key] = struct{}{}
	}
}

func (s *SearchSink) loadWatermarks(ctx context.Context) error {
	if s.indexed != nil {
		return nil
	}
	seqs, err := s.watermarks.IndexedSeqs(ctx)
	if err != nil {
		return fmt.Errorf("load search watermarks: %w", err)
	}
	if seqs == nil {
		seqs = make(map[domain.ConversationKey]uint64)
	}
	s.indexed = seqs
	return nil
}

func followsWatermark(messages []domain.Message, watermark uint64) bool {
	for i, m := range messages {
		if m.Seq != watermark+uint64(i)+1 {
			return false
		}
	}
	return true
}
