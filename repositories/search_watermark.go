package repositories

import (
	"chat-relay/domain"
	"context"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"google.golang.org/protobuf/encoding/protowire"
)

const watermarkFieldSeq protowire.Number = 1

// SearchWatermarkRepository stores, per conversation, the last seq the
// search index is known to hold. Every message up to it is searchable.
type SearchWatermarkRepository struct {
	db     *badger.DB
	log    *slog.Logger
	policy RetryPolicy
}

func NewSearchWatermarkRepository(db *badger.DB, log *slog.Logger, policy RetryPolicy) SearchWatermarkRepository {
	return SearchWatermarkRepository{db: db, log: log, policy: policy}
}

func watermarkKey(key domain.ConversationKey) []byte { return []byte("search_seq:" + string(key)) }

func (r SearchWatermarkRepository) IndexedSeqs(ctx context.Context) (map[domain.ConversationKey]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seqs := make(map[domain.ConversationKey]uint64)
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte("search_seq:")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := domain.ConversationKey(it.Item().Key()[len(prefix):])
			err := it.Item().Value(func(val []byte) error {
				rec, err := decodeRecord(val)
				if err != nil {
					return err
				}
				seqs[key] = rec.varint(watermarkFieldSeq)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return seqs, err
}

// SetIndexedSeqs writes all the watermarks in one transaction.
func (r SearchWatermarkRepository) SetIndexedSeqs(ctx context.Context, seqs map[domain.ConversationKey]uint64) error {
	if len(seqs) == 0 {
		return nil
	}
	return withRetry(ctx, r.log, r.policy, "save search watermarks", func() error {
		return r.db.Update(func(txn *badger.Txn) error {
			for key, seq := range seqs {
				var w recordWriter
				w.varint(watermarkFieldSeq, seq)
				if err := txn.Set(watermarkKey(key), w.buf); err != nil {
					return err
				}
			}
			return nil
		})
	})
}
