//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

type IMessageRepository interface {
	Append(ctx context.Context, key domain.ConversationKey, sender domain.AccountID, text string) (AppendResult, error)
	ListMessages(ctx context.Context, key domain.ConversationKey, since *domain.Cursor) ([]domain.Message, error)
}

// AppendResult is everything a single append committed:
// the message and the refreshed summary row of each participant.
type AppendResult struct {
	Message   domain.Message
	Summaries []domain.ConversationSummary
}

type MessageRepository struct {
	db     *badger.DB
	log    *slog.Logger
	policy RetryPolicy
	now    func() time.Time
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, policy RetryPolicy) MessageRepository {
	return MessageRepository{
		db:     db,
		log:    log,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source, tests use it to simulate clock skew.
func (m MessageRepository) WithClock(now func() time.Time) MessageRepository {
	m.now = now
	return m
}

const (
	messageFieldID protowire.Number = iota + 1
	messageFieldConversation
	messageFieldSeq
	messageFieldSender
	messageFieldText
	messageFieldCreatedAt
)

const (
	metaFieldLastSeq protowire.Number = iota + 1
	metaFieldLastAt
)

// conversationMeta is the per-conversation head: the last allocated seq
// and the createdAt it was given.
type conversationMeta struct {
	LastSeq uint64
	LastAt  time.Time
}

func metaKey(key domain.ConversationKey) []byte { return []byte("conv:" + string(key)) }

func messagePrefix(key domain.ConversationKey) []byte { return []byte("msg:" + string(key) + ":") }

// messageKey pads the seq on 20 digits, the width of the largest uint64,
// so that a prefix scan returns messages in seq order.
func messageKey(key domain.ConversationKey, seq uint64) []byte {
	return fmt.Appendf(nil, "msg:%s:%020d", key, seq)
}

// Append allocates the next seq of the conversation and commits, in one
// Badger transaction, the message, the conversation head and the summary
// row of both participants. Either all of them are visible or none.
// createdAt never goes backwards inside a conversation, so createdAt order
// and seq order agree even if the wall clock steps back.
func (m MessageRepository) Append(ctx context.Context, key domain.ConversationKey, sender domain.AccountID, text string) (AppendResult, error) {
	a, b, err := key.Participants()
	if err != nil {
		return AppendResult{}, err
	}
	if sender != a && sender != b {
		return AppendResult{}, fmt.Errorf("%w: %s is not part of %s", errors.ErrInvalidSender, sender, key)
	}

	var result AppendResult
	err = withRetry(ctx, m.log, m.policy, "append message", func() error {
		return m.db.Update(func(txn *badger.Txn) error {
			meta, err := readMeta(txn, key)
			if err != nil {
				return err
			}
			at := m.now()
			if at.Before(meta.LastAt) {
				at = meta.LastAt
			}
			msg := domain.Message{
				ID:           uuid.New(),
				Conversation: key,
				Seq:          meta.LastSeq + 1,
				SenderID:     sender,
				Text:         text,
				CreatedAt:    at,
			}
			if err := txn.Set(messageKey(key, msg.Seq), encodeMessage(msg)); err != nil {
				return err
			}
			meta = conversationMeta{LastSeq: msg.Seq, LastAt: msg.CreatedAt}
			if err := txn.Set(metaKey(key), encodeMeta(meta)); err != nil {
				return err
			}
			summaries, err := upsertSummaries(txn, msg)
			if err != nil {
				return err
			}
			result = AppendResult{Message: msg, Summaries: summaries}
			return nil
		})
	})
	if err != nil {
		return AppendResult{}, err
	}
	m.log.Debug("Message appended", "conversation", key, "seq", result.Message.Seq)
	return result, nil
}

// ListMessages returns the messages after the cursor, oldest first.
// A nil cursor returns the whole history. A cursor past the head of the
// conversation was never handed out and fails with ErrInvalidCursor.
func (m MessageRepository) ListMessages(ctx context.Context, key domain.ConversationKey, since *domain.Cursor) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, _, err := key.Participants(); err != nil {
		return nil, err
	}
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		if since != nil {
			meta, err := readMeta(txn, key)
			if err != nil {
				return err
			}
			if uint64(*since) > meta.LastSeq {
				return fmt.Errorf("%w: %d is past the last message %d of %s",
					errors.ErrInvalidCursor, *since, meta.LastSeq, key)
			}
			if uint64(*since) == meta.LastSeq {
				return nil
			}
		}
		prefix := messagePrefix(key)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		seekKey := prefix
		if since != nil {
			seekKey = messageKey(key, uint64(*since)+1)
		}
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				msg, err := decodeMessage(val)
				if err != nil {
					return err
				}
				messages = append(messages, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return messages, err
}

// Heads returns the last seq of every conversation holding a message.
func (m MessageRepository) Heads(ctx context.Context) (map[domain.ConversationKey]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	heads := make(map[domain.ConversationKey]uint64)
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte("conv:")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := domain.ConversationKey(it.Item().Key()[len(prefix):])
			meta, err := readMeta(txn, key)
			if err != nil {
				return err
			}
			heads[key] = meta.LastSeq
		}
		return nil
	})
	return heads, err
}

func readMeta(txn *badger.Txn, key domain.ConversationKey) (conversationMeta, error) {
	item, err := txn.Get(metaKey(key))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return conversationMeta{}, nil
	}
	if err != nil {
		return conversationMeta{}, err
	}
	var meta conversationMeta
	err = item.Value(func(val []byte) error {
		r, err := decodeRecord(val)
		if err != nil {
			return fmt.Errorf("conversation meta: %w", err)
		}
		meta = conversationMeta{
			LastSeq: r.varint(metaFieldLastSeq),
			LastAt:  r.timestamp(metaFieldLastAt),
		}
		return nil
	})
	return meta, err
}

func encodeMeta(meta conversationMeta) []byte {
	var w recordWriter
	w.varint(metaFieldLastSeq, meta.LastSeq)
	w.timestamp(metaFieldLastAt, meta.LastAt)
	return w.buf
}

func encodeMessage(msg domain.Message) []byte {
	var w recordWriter
	w.blob(messageFieldID, msg.ID[:])
	w.str(messageFieldConversation, string(msg.Conversation))
	w.varint(messageFieldSeq, msg.Seq)
	w.str(messageFieldSender, string(msg.SenderID))
	w.str(messageFieldText, msg.Text)
	w.timestamp(messageFieldCreatedAt, msg.CreatedAt)
	return w.buf
}

func decodeMessage(b []byte) (domain.Message, error) {
	r, err := decodeRecord(b)
	if err != nil {
		return domain.Message{}, fmt.Errorf("message record: %w", err)
	}
	id, err := uuid.FromBytes(r.blob(messageFieldID))
	if err != nil {
		return domain.Message{}, fmt.Errorf("message record id: %w", err)
	}
	return domain.Message{
		ID:           id,
		Conversation: domain.ConversationKey(r.str(messageFieldConversation)),
		Seq:          r.varint(messageFieldSeq),
		SenderID:     domain.AccountID(r.str(messageFieldSender)),
		Text:         r.str(messageFieldText),
		CreatedAt:    r.timestamp(messageFieldCreatedAt),
	}, nil
}
