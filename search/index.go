//go:generate go run go.uber.org/mock/mockgen -source=index.go -destination=../mocks/mock_index.go -package=mocks

// Package search keeps a full-text index of messages.
// The index is fed asynchronously by the fan-out and is eventually
// consistent with the message store.
package search

import (
	"chat-relay/domain"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

const (
	fieldText         = "text"
	fieldParticipant  = "participant"
	fieldConversation = "conversation"
	fieldSeq          = "seq"
	fieldSender       = "sender"
	fieldCreatedAt    = "created_at"
)

// IIndex is what the chat service needs from the search index.
type IIndex interface {
	Index(ctx context.Context, messages ...domain.Message) error
	Search(ctx context.Context, caller domain.AccountID, query string, limit int) ([]domain.Message, error)
}

type Index struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewIndex(writer *bluge.Writer, log *slog.Logger) *Index {
	return &Index{writer: writer, log: log}
}

// Index adds or replaces messages, keyed by message id.
func (i *Index) Index(ctx context.Context, messages ...domain.Message) error {
	if len(messages) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := bluge.NewBatch()
	for _, m := range messages {
		doc, err := toDocument(m)
		if err != nil {
			return err
		}
		batch.Update(doc.ID(), doc)
	}
	if err := i.writer.Batch(batch); err != nil {
		return fmt.Errorf("index batch: %w", err)
	}
	i.log.Debug("Messages indexed", "count", len(messages))
	return nil
}

// Search matches query against message text, restricted to the
// conversations caller takes part in.
func (i *Index) Search(ctx context.Context, caller domain.AccountID, query string, limit int) ([]domain.Message, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("open index reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(query).SetField(fieldText)).
		AddMust(bluge.NewTermQuery(string(caller)).SetField(fieldParticipant))
	request := bluge.NewTopNSearch(limit, q)

	dmi, err := reader.Search(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	var messages []domain.Message
	match, err := dmi.Next()
	for err == nil && match != nil {
		var m domain.Message
		var visitErr error
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			visitErr = fromStoredField(&m, field, value)
			return visitErr == nil
		})
		if err != nil {
			return nil, err
		}
		if visitErr != nil {
			return nil, visitErr
		}
		messages = append(messages, m)
		match, err = dmi.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("iterate search results: %w", err)
	}
	return messages, nil
}

func toDocument(m domain.Message) (*bluge.Document, error) {
	a, b, err := m.Conversation.Participants()
	if err != nil {
		return nil, err
	}
	doc := bluge.NewDocument(m.ID.String()).
		AddField(bluge.NewTextField(fieldText, m.Text).StoreValue()).
		AddField(bluge.NewKeywordField(fieldParticipant, string(a))).
		AddField(bluge.NewKeywordField(fieldParticipant, string(b))).
		AddField(bluge.NewStoredOnlyField(fieldConversation, []byte(m.Conversation))).
		AddField(bluge.NewStoredOnlyField(fieldSeq, []byte(strconv.FormatUint(m.Seq, 10)))).
		AddField(bluge.NewStoredOnlyField(fieldSender, []byte(m.SenderID))).
		AddField(bluge.NewStoredOnlyField(fieldCreatedAt, []byte(strconv.FormatInt(m.CreatedAt.UnixNano(), 10))))
	return doc, nil
}

func fromStoredField(m *domain.Message, field string, value []byte) error {
	switch field {
	case "_id":
		id, err := uuid.ParseBytes(value)
		if err != nil {
			return fmt.Errorf("stored id: %w", err)
		}
		m.ID = id
	case fieldText:
		m.Text = string(value)
	case fieldConversation:
		m.Conversation = domain.ConversationKey(value)
	case fieldSender:
		m.SenderID = domain.AccountID(value)
	case fieldSeq:
		seq, err := strconv.ParseUint(string(value), 10, 64)
		if err != nil {
			return fmt.Errorf("stored seq: %w", err)
		}
		m.Seq = seq
	case fieldCreatedAt:
		nanos, err := strconv.ParseInt(string(value), 10, 64)
		if err != nil {
			return fmt.Errorf("stored created_at: %w", err)
		}
		m.CreatedAt = time.Unix(0, nanos).UTC()
	}
	return nil
}
