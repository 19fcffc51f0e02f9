package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ConversationSummary is the recent-chats row of one account for one
// conversation. Both participants own their own row.
type ConversationSummary struct {
	Owner           AccountID
	Conversation    ConversationKey
	Counterpart     AccountID
	LastMessageID   uuid.UUID
	LastMessageText string
	LastSenderID    AccountID
	LastMessageAt   time.Time
	LastSeq         uint64
}

// SummaryFor projects the last message of a conversation onto owner's row.
func SummaryFor(owner AccountID, m Message) (ConversationSummary, bool) {
	counterpart, ok := m.Conversation.Counterpart(owner)
	if !ok {
		return ConversationSummary{}, false
	}
	return ConversationSummary{
		Owner:           owner,
		Conversation:    m.Conversation,
		Counterpart:     counterpart,
		LastMessageID:   m.ID,
		LastMessageText: m.Text,
		LastSenderID:    m.SenderID,
		LastMessageAt:   m.CreatedAt,
		LastSeq:         m.Seq,
	}, true
}

// SortSummaries orders rows by most recent activity first,
// ties broken by conversation key.
func SortSummaries(summaries []ConversationSummary) {
	slices.SortStableFunc(summaries, func(a, b ConversationSummary) int {
		if c := b.LastMessageAt.Compare(a.LastMessageAt); c != 0 {
			return c
		}
		return strings.Compare(string(a.Conversation), string(b.Conversation))
	})
}
