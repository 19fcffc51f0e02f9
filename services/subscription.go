package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/sink"
	"context"
	"sync"
)

// MessageSubscription is one live message stream of one conversation.
// Next must be called from a single goroutine.
type MessageSubscription struct {
	id        string
	key       domain.ConversationKey
	sink      *sink.StreamSink
	registry  contract.IRegistry
	backlog   []domain.Message
	last      uint64
	closeOnce sync.Once
}

// Next returns the next message in seq order. It returns
// ErrSubscriberLagged once the buffered events are drained after an
// overflow; the caller resubscribes from Cursor.
func (s *MessageSubscription) Next(ctx context.Context) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	for len(s.backlog) > 0 {
		m := s.backlog[0]
		s.backlog = s.backlog[1:]
		if m.Seq > s.last {
			s.last = m.Seq
			return m, nil
		}
	}
	return next(ctx, s.sink, s.accept)
}

func (s *MessageSubscription) accept(evt event.DomainEvent) (domain.Message, bool, error) {
	appended, ok := evt.(event.MessageAppended)
	if !ok || appended.Message.Conversation != s.key || appended.Message.Seq <= s.last {
		return domain.Message{}, false, nil
	}
	if appended.Message.Seq != s.last+1 {
		s.sink.MarkLagged()
		return domain.Message{}, false, errors.ErrSubscriberLagged
	}
	s.last = appended.Message.Seq
	return appended.Message, true, nil
}

// Cursor is the position to resume from after an error.
func (s *MessageSubscription) Cursor() domain.Cursor { return domain.Cursor(s.last) }

func (s *MessageSubscription) Close() {
	s.closeOnce.Do(func() { s.registry.UnsubscribeConversation(s.id, s.key) })
}

// SummarySubscription streams the recent-chats rows of one account.
type SummarySubscription struct {
	id        string
	owner     domain.AccountID
	sink      *sink.StreamSink
	registry  contract.IRegistry
	snapshot  []domain.ConversationSummary
	known     map[domain.ConversationKey]uint64
	closeOnce sync.Once
}

// Next returns the snapshot rows first, then each newer row.
// Rows older than one already returned are skipped.
func (s *SummarySubscription) Next(ctx context.Context) (domain.ConversationSummary, error) {
	if err := ctx.Err(); err != nil {
		return domain.ConversationSummary{}, err
	}
	if len(s.snapshot) > 0 {
		summary := s.snapshot[0]
		s.snapshot = s.snapshot[1:]
		return summary, nil
	}
	return next(ctx, s.sink, s.accept)
}

func (s *SummarySubscription) accept(evt event.DomainEvent) (domain.ConversationSummary, bool, error) {
	updated, ok := evt.(event.SummaryUpdated)
	if !ok || updated.Owner() != s.owner {
		return domain.ConversationSummary{}, false, nil
	}
	if updated.Summary.LastSeq <= s.known[updated.Summary.Conversation] {
		return domain.ConversationSummary{}, false, nil
	}
	s.known[updated.Summary.Conversation] = updated.Summary.LastSeq
	return updated.Summary, true, nil
}

func (s *SummarySubscription) Close() {
	s.closeOnce.Do(func() { s.registry.UnsubscribeAccount(s.id, s.owner) })
}

// next waits for the first event accepted by accept. Events buffered before
// a lag are still delivered before ErrSubscriberLagged.
func next[T any](ctx context.Context, stream *sink.StreamSink,
	accept func(event.DomainEvent) (T, bool, error)) (T, error) {
	var zero T
	for {
		var evt event.DomainEvent
		select {
		case evt = <-stream.Events():
		default:
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case evt = <-stream.Events():
			case <-stream.Lagged():
				if len(stream.Events()) > 0 {
					continue
				}
				return zero, errors.ErrSubscriberLagged
			}
		}
		v, ok, err := accept(evt)
		if err != nil {
			return zero, err
		}
		if ok {
			return v, nil
		}
	}
}
