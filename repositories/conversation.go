//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=../mocks/mock_conversation_repository.go -package=mocks
package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// IConversationRepository reads the recent-chats index.
// Rows are only written by MessageRepository.Append.
type IConversationRepository interface {
	ListConversations(ctx context.Context, owner domain.AccountID) ([]domain.ConversationSummary, error)
	GetSummary(ctx context.Context, owner domain.AccountID, key domain.ConversationKey) (domain.ConversationSummary, error)
}

type ConversationRepository struct {
	db *badger.DB
}

func NewConversationRepository(db *badger.DB) ConversationRepository {
	return ConversationRepository{db: db}
}

const (
	summaryFieldOwner protowire.Number = iota + 1
	summaryFieldConversation
	summaryFieldCounterpart
	summaryFieldLastMessageID
	summaryFieldLastMessageText
	summaryFieldLastSenderID
	summaryFieldLastMessageAt
	summaryFieldLastSeq
)

func summaryPrefix(owner domain.AccountID) []byte { return []byte("summary:" + string(owner) + ":") }

func summaryKey(owner domain.AccountID, key domain.ConversationKey) []byte {
	return []byte("summary:" + string(owner) + ":" + string(key))
}

// ListConversations only scans the owner's prefix, account ids never
// contain ':' so a prefix cannot match another owner.
func (c ConversationRepository) ListConversations(ctx context.Context, owner domain.AccountID) ([]domain.ConversationSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var summaries []domain.ConversationSummary
	err := c.db.View(func(txn *badger.Txn) error {
		prefix := summaryPrefix(owner)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				s, err := decodeSummary(val)
				if err != nil {
					return err
				}
				summaries = append(summaries, s)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	domain.SortSummaries(summaries)
	return summaries, nil
}

func (c ConversationRepository) GetSummary(ctx context.Context, owner domain.AccountID, key domain.ConversationKey) (domain.ConversationSummary, error) {
	if err := ctx.Err(); err != nil {
		return domain.ConversationSummary{}, err
	}
	var summary domain.ConversationSummary
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(summaryKey(owner, key))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: no summary of %s for %s", errors.ErrNotFound, key, owner)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			summary, err = decodeSummary(val)
			return err
		})
	})
	return summary, err
}

// upsertSummaries refreshes the row of both participants inside the
// transaction that stores msg.
func upsertSummaries(txn *badger.Txn, msg domain.Message) ([]domain.ConversationSummary, error) {
	a, b, err := msg.Conversation.Participants()
	if err != nil {
		return nil, err
	}
	summaries := make([]domain.ConversationSummary, 0, 2)
	for _, owner := range []domain.AccountID{a, b} {
		s, ok := domain.SummaryFor(owner, msg)
		if !ok {
			return nil, fmt.Errorf("%w: %s", errors.ErrInvalidConversation, msg.Conversation)
		}
		if err := txn.Set(summaryKey(owner, msg.Conversation), encodeSummary(s)); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

func encodeSummary(s domain.ConversationSummary) []byte {
	var w recordWriter
	w.str(summaryFieldOwner, string(s.Owner))
	w.str(summaryFieldConversation, string(s.Conversation))
	w.str(summaryFieldCounterpart, string(s.Counterpart))
	w.blob(summaryFieldLastMessageID, s.LastMessageID[:])
	w.str(summaryFieldLastMessageText, s.LastMessageText)
	w.str(summaryFieldLastSenderID, string(s.LastSenderID))
	w.timestamp(summaryFieldLastMessageAt, s.LastMessageAt)
	w.varint(summaryFieldLastSeq, s.LastSeq)
	return w.buf
}

func decodeSummary(b []byte) (domain.ConversationSummary, error) {
	r, err := decodeRecord(b)
	if err != nil {
		return domain.ConversationSummary{}, fmt.Errorf("summary record: %w", err)
	}
	id, err := uuid.FromBytes(r.blob(summaryFieldLastMessageID))
	if err != nil {
		return domain.ConversationSummary{}, fmt.Errorf("summary record message id: %w", err)
	}
	return domain.ConversationSummary{
		Owner:           domain.AccountID(r.str(summaryFieldOwner)),
		Conversation:    domain.ConversationKey(r.str(summaryFieldConversation)),
		Counterpart:     domain.AccountID(r.str(summaryFieldCounterpart)),
		LastMessageID:   id,
		LastMessageText: r.str(summaryFieldLastMessageText),
		LastSenderID:    domain.AccountID(r.str(summaryFieldLastSenderID)),
		LastMessageAt:   r.timestamp(summaryFieldLastMessageAt),
		LastSeq:         r.varint(summaryFieldLastSeq),
	}, nil
}
