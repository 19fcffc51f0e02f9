package event

import (
	"chat-relay/domain"
)

// DomainEvent is what the fan-out delivers to sinks.
// Every event belongs to exactly one conversation.
type DomainEvent interface {
	ConversationKey() domain.ConversationKey
}

// MessageAppended is emitted once a message is durably stored.
type MessageAppended struct {
	Message domain.Message
}

func (m MessageAppended) ConversationKey() domain.ConversationKey {
	return m.Message.Conversation
}

// SummaryUpdated carries the new recent-chats row of one participant.
type SummaryUpdated struct {
	Summary domain.ConversationSummary
}

func (s SummaryUpdated) ConversationKey() domain.ConversationKey {
	return s.Summary.Conversation
}

func (s SummaryUpdated) Owner() domain.AccountID {
	return s.Summary.Owner
}
