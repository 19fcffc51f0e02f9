package api

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"time"

	"github.com/samber/lo"
)

type Empty struct{}

type RegisterRequest struct {
	Email       string `json:"email"`
	Secret      string `json:"secret"`
	DisplayName string `json:"display_name"`
}

type AuthenticateRequest struct {
	Email  string `json:"email"`
	Secret string `json:"secret"`
}

type Session struct {
	Token     string    `json:"token"`
	AccountID string    `json:"account_id"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type RegisterResponse struct {
	Account Account `json:"account"`
	Session Session `json:"session"`
}

type Account struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Initials    string    `json:"initials"`
	ColorTag    string    `json:"color_tag"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"created_at"`
}

type ListAccountsResponse struct {
	Accounts []Account `json:"accounts"`
}

type UpdateProfileRequest struct {
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
}

type SendMessageRequest struct {
	CounterpartID string `json:"counterpart_id"`
	Text          string `json:"text"`
}

type Message struct {
	ID           string    `json:"id"`
	Conversation string    `json:"conversation"`
	Seq          uint64    `json:"seq"`
	Cursor       string    `json:"cursor"`
	SenderID     string    `json:"sender_id"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"created_at"`
}

// ConversationRef names a conversation either by key or by the other
// participant; the key wins when both are set.
type ConversationRef struct {
	ConversationKey string `json:"conversation_key,omitempty"`
	CounterpartID   string `json:"counterpart_id,omitempty"`
}

type ListMessagesRequest struct {
	ConversationRef
	Since string `json:"since,omitempty"`
}

type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
}

type Summary struct {
	Conversation    string    `json:"conversation"`
	Counterpart     string    `json:"counterpart"`
	LastMessageID   string    `json:"last_message_id"`
	LastMessageText string    `json:"last_message_text"`
	LastSenderID    string    `json:"last_sender_id"`
	LastMessageAt   time.Time `json:"last_message_at"`
	LastSeq         uint64    `json:"last_seq"`
}

type ListConversationsResponse struct {
	Summaries []Summary `json:"summaries"`
}

type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type SubscribeMessagesRequest struct {
	ConversationRef
	Since string `json:"since,omitempty"`
}

type MessageEvent struct {
	Message Message `json:"message"`
}

type SummaryEvent struct {
	Summary Summary `json:"summary"`
}

func FromSession(s auth.Session) Session {
	return Session{
		Token:     s.Token,
		AccountID: s.AccountID.String(),
		SessionID: s.SessionID,
		ExpiresAt: s.ExpiresAt,
	}
}

func FromAccount(a domain.Account) Account {
	return Account{
		ID:          a.ID.String(),
		DisplayName: a.DisplayName,
		Initials:    a.Initials,
		ColorTag:    a.ColorTag,
		Email:       a.Email,
		CreatedAt:   a.CreatedAt,
	}
}

func FromAccounts(accounts []domain.Account) []Account {
	return lo.Map(accounts, func(a domain.Account, _ int) Account { return FromAccount(a) })
}

func FromMessage(m domain.Message) Message {
	return Message{
		ID:           m.ID.String(),
		Conversation: m.Conversation.String(),
		Seq:          m.Seq,
		Cursor:       m.Cursor().String(),
		SenderID:     m.SenderID.String(),
		Text:         m.Text,
		CreatedAt:    m.CreatedAt,
	}
}

func FromMessages(messages []domain.Message) []Message {
	return lo.Map(messages, func(m domain.Message, _ int) Message { return FromMessage(m) })
}

func FromSummary(s domain.ConversationSummary) Summary {
	return Summary{
		Conversation:    s.Conversation.String(),
		Counterpart:     s.Counterpart.String(),
		LastMessageID:   s.LastMessageID.String(),
		LastMessageText: s.LastMessageText,
		LastSenderID:    s.LastSenderID.String(),
		LastMessageAt:   s.LastMessageAt,
		LastSeq:         s.LastSeq,
	}
}

func FromSummaries(summaries []domain.ConversationSummary) []Summary {
	return lo.Map(summaries, func(s domain.ConversationSummary, _ int) Summary { return FromSummary(s) })
}

// Resolve turns the reference into a conversation key as seen by caller.
func (r ConversationRef) Resolve(caller domain.AccountID) (domain.ConversationKey, error) {
	if r.ConversationKey != "" {
		return domain.ParseConversationKey(r.ConversationKey)
	}
	return domain.NewConversationKey(caller, domain.AccountID(r.CounterpartID))
}
