package repositories

import (
	"chat-relay/domain"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func Test_Describe_Every_Key_Family(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := openDB(t)
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	accounts := NewAccountRepository(db, slog.Default(), DefaultRetryPolicy())
	_, err := accounts.Create(ctx, newAccount("alice", "Alice Martin", "alice@example.com", at), "secret-hash")
	req.NoError(err)
	_, err = accounts.Create(ctx, newAccount("bob", "Bob", "bob@example.com", at.Add(time.Second)), "secret-hash")
	req.NoError(err)

	key, err := domain.NewConversationKey("alice", "bob")
	req.NoError(err)
	_, err = NewMessageRepository(db, slog.Default(), DefaultRetryPolicy()).Append(ctx, key, "alice", "hello bob")
	req.NoError(err)
	req.NoError(NewSessionRepository(db, slog.Default(), DefaultRetryPolicy()).Revoke(ctx, "sid-1", time.Hour))
	req.NoError(NewSearchWatermarkRepository(db, slog.Default(), DefaultRetryPolicy()).
		SetIndexedSeqs(ctx, map[domain.ConversationKey]uint64{key: 1}))

	kinds := make(map[string]Record)
	req.NoError(db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			rec := Describe(string(item.Key()), val)
			kinds[rec.Kind] = rec
		}
		return nil
	}))

	req.NotContains(kinds, "RAW")
	req.Equal("bob", kinds["ACCOUNT"].Entity, "last account key in order")
	req.NotContains(kinds["ACCOUNT"].Detail, "secret-hash")
	req.Contains(kinds["MESSAGE"].Detail, "#1 alice: hello bob")
	req.Equal(string(key), kinds["MESSAGE"].Entity)
	req.Contains(kinds["HEAD"].Detail, "last seq 1")
	req.Contains(kinds["SUMMARY"].Detail, "hello bob")
	req.Contains(kinds, "EMAIL")
	req.Contains(kinds, "ORDER")
	req.Contains(kinds, "REVOKED")
	req.Equal("searchable up to #1", kinds["INDEXED"].Detail)
}

func Test_Describe_Unknown_Key(t *testing.T) {
	req := require.New(t)

	rec := Describe("other:thing", []byte{1, 2, 3})
	req.Equal("RAW", rec.Kind)
	req.Equal("3 bytes", rec.Detail)

	rec = Describe("msg:dm:alice:bob:00000000000000000001", []byte{0xff})
	req.Equal("RAW", rec.Kind)
}
