// Package domain contains core concepts of the chat system.
// This file defines Message events and related rules.
// Messages are immutable once appended.
package domain

import (
	"chat-relay/errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Message represents an immutable chat event.
type Message struct {
	ID           uuid.UUID // unique identifier
	Conversation ConversationKey
	Seq          uint64 // position inside the conversation, starts at 1
	SenderID     AccountID
	Text         string
	CreatedAt    time.Time
}

// Cursor marks the last message a subscriber has seen.
// Resuming "since" a cursor returns every message with a greater Seq.
type Cursor uint64

func (m Message) Cursor() Cursor { return Cursor(m.Seq) }

func (c Cursor) String() string { return strconv.FormatUint(uint64(c), 10) }

// ParseCursor reads the opaque form handed out to clients.
// An empty string means "from the beginning".
func ParseCursor(raw string) (*Cursor, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", errors.ErrInvalidCursor, raw)
	}
	c := Cursor(v)
	return &c, nil
}

// After reports whether the message comes after the cursor.
// A nil cursor admits every message.
func (c *Cursor) After(m Message) bool {
	return c == nil || m.Seq > uint64(*c)
}
