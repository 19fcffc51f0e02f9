//go:generate go run go.uber.org/mock/mockgen -source=session.go -destination=../mocks/mock_session_repository.go -package=mocks
package repositories

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ISessionRepository remembers logged out sessions until their token expires.
type ISessionRepository interface {
	Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

type SessionRepository struct {
	db     *badger.DB
	log    *slog.Logger
	policy RetryPolicy
}

func NewSessionRepository(db *badger.DB, log *slog.Logger, policy RetryPolicy) SessionRepository {
	return SessionRepository{db: db, log: log, policy: policy}
}

func revokedKey(sessionID string) []byte { return []byte("revoked:" + sessionID) }

// Revoke lets Badger expire the entry, an expired token is rejected anyway.
func (s SessionRepository) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return withRetry(ctx, s.log, s.policy, "revoke session", func() error {
		return s.db.Update(func(txn *badger.Txn) error {
			return txn.SetEntry(badger.NewEntry(revokedKey(sessionID), nil).WithTTL(ttl))
		})
	})
}

func (s SessionRepository) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(revokedKey(sessionID))
		return err
	})
	switch {
	case err == nil:
		return true, nil
	case stderrors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}
