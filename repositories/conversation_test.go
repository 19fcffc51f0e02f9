package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_ListConversations_Ordered_By_Last_Activity(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := openDB(t)
	at := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	messages := NewMessageRepository(db, slog.Default(), DefaultRetryPolicy()).
		WithClock(func() time.Time {
			tick++
			return at.Add(time.Duration(tick) * time.Minute)
		})
	conversations := NewConversationRepository(db)

	withBob, _ := domain.NewConversationKey("alice", "bob")
	withCarol, _ := domain.NewConversationKey("alice", "carol")
	withDan, _ := domain.NewConversationKey("alice", "dan")
	for _, key := range []domain.ConversationKey{withBob, withCarol, withDan, withBob} {
		_, err := messages.Append(ctx, key, "alice", "hey")
		req.NoError(err)
	}

	summaries, err := conversations.ListConversations(ctx, "alice")
	req.NoError(err)
	req.Len(summaries, 3)
	req.Equal(withBob, summaries[0].Conversation)
	req.Equal(withDan, summaries[1].Conversation)
	req.Equal(withCarol, summaries[2].Conversation)
	req.Equal(uint64(2), summaries[0].LastSeq)
}

func Test_ListConversations_Only_Owner_Rows(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := openDB(t)
	messages := NewMessageRepository(db, slog.Default(), DefaultRetryPolicy())
	conversations := NewConversationRepository(db)

	key, _ := domain.NewConversationKey("bob", "carol")
	_, err := messages.Append(ctx, key, "bob", "secret")
	req.NoError(err)
	// "bo" is a prefix of "bob", it must not see bob's rows.
	summaries, err := conversations.ListConversations(ctx, "bo")
	req.NoError(err)
	req.Empty(summaries)

	summaries, err = conversations.ListConversations(ctx, "carol")
	req.NoError(err)
	req.Len(summaries, 1)
	req.Equal(domain.AccountID("carol"), summaries[0].Owner)
	req.Equal(domain.AccountID("bob"), summaries[0].Counterpart)
}

func Test_GetSummary_Not_Found(t *testing.T) {
	key, _ := domain.NewConversationKey("alice", "bob")
	_, err := NewConversationRepository(openDB(t)).GetSummary(context.Background(), "alice", key)
	require.ErrorIs(t, err, errors.ErrNotFound)
}
