package domain

import (
	"chat-relay/errors"
	"fmt"
	"strings"
)

const conversationPrefix = "p2p"

// ConversationKey identifies the unordered pair of accounts taking part
// in a one-to-one conversation: "p2p:<lowest id>:<highest id>".
type ConversationKey string

func (k ConversationKey) String() string { return string(k) }

// NewConversationKey canonicalizes the pair so that (a, b) and (b, a)
// resolve to the same conversation.
func NewConversationKey(a, b AccountID) (ConversationKey, error) {
	if err := validAccountID(a); err != nil {
		return "", err
	}
	if err := validAccountID(b); err != nil {
		return "", err
	}
	if a == b {
		return "", fmt.Errorf("%w: an account cannot talk to itself", errors.ErrInvalidConversation)
	}
	if b < a {
		a, b = b, a
	}
	return ConversationKey(fmt.Sprintf("%s:%s:%s", conversationPrefix, a, b)), nil
}

// ParseConversationKey validates a key received from a client.
func ParseConversationKey(raw string) (ConversationKey, error) {
	key := ConversationKey(raw)
	if _, _, err := key.Participants(); err != nil {
		return "", err
	}
	return key, nil
}

// Participants returns both accounts in canonical order.
func (k ConversationKey) Participants() (AccountID, AccountID, error) {
	parts := strings.Split(string(k), ":")
	if len(parts) != 3 || parts[0] != conversationPrefix {
		return "", "", fmt.Errorf("%w: %q", errors.ErrInvalidConversation, string(k))
	}
	a, b := AccountID(parts[1]), AccountID(parts[2])
	if a == "" || b == "" || a >= b {
		return "", "", fmt.Errorf("%w: %q", errors.ErrInvalidConversation, string(k))
	}
	return a, b, nil
}

func (k ConversationKey) Includes(id AccountID) bool {
	a, b, err := k.Participants()
	if err != nil {
		return false
	}
	return id == a || id == b
}

// Counterpart returns the other participant of the conversation.
func (k ConversationKey) Counterpart(id AccountID) (AccountID, bool) {
	a, b, err := k.Participants()
	if err != nil {
		return "", false
	}
	switch id {
	case a:
		return b, true
	case b:
		return a, true
	default:
		return "", false
	}
}

func validAccountID(id AccountID) error {
	if id == "" || strings.ContainsRune(string(id), ':') {
		return fmt.Errorf("%w: malformed account id %q", errors.ErrInvalidConversation, string(id))
	}
	return nil
}
