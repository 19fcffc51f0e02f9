//go:generate go run go.uber.org/mock/mockgen -source=account.go -destination=../mocks/mock_account_repository.go -package=mocks
package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"google.golang.org/protobuf/encoding/protowire"
)

type IAccountRepository interface {
	Create(ctx context.Context, account domain.Account, passwordHash string) (domain.Account, error)
	Get(ctx context.Context, id domain.AccountID) (domain.Account, error)
	GetByEmail(ctx context.Context, email string) (domain.Account, string, error)
	List(ctx context.Context, excluding domain.AccountID) ([]domain.Account, error)
	UpdateProfile(ctx context.Context, id domain.AccountID, displayName, email string) (domain.Account, error)
}

type AccountRepository struct {
	db     *badger.DB
	log    *slog.Logger
	policy RetryPolicy
}

func NewAccountRepository(db *badger.DB, log *slog.Logger, policy RetryPolicy) AccountRepository {
	return AccountRepository{db: db, log: log, policy: policy}
}

const (
	accountFieldID protowire.Number = iota + 1
	accountFieldDisplayName
	accountFieldInitials
	accountFieldColorTag
	accountFieldEmail
	accountFieldPasswordHash
	accountFieldCreatedAt
)

func accountKey(id domain.AccountID) []byte { return []byte("account:" + string(id)) }

func emailKey(email string) []byte { return []byte("email:" + email) }

// accountOrderKey indexes accounts by creation time, the 19 digit padding
// keeps the lexicographic order of Badger keys chronological.
func accountOrderKey(a domain.Account) []byte {
	return fmt.Appendf(nil, "account_order:%019d:%s", a.CreatedAt.UnixNano(), a.ID)
}

// Create stores the account and reserves its email.
// The email reservation and the account are written in the same transaction.
func (r AccountRepository) Create(ctx context.Context, account domain.Account, passwordHash string) (domain.Account, error) {
	account.Email = domain.NormalizeEmail(account.Email)
	err := withRetry(ctx, r.log, r.policy, "create account", func() error {
		return r.db.Update(func(txn *badger.Txn) error {
			if _, err := txn.Get(emailKey(account.Email)); err == nil {
				return fmt.Errorf("%w: %s", errors.ErrDuplicateIdentity, account.Email)
			} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if _, err := txn.Get(accountKey(account.ID)); err == nil {
				return fmt.Errorf("%w: account id %s", errors.ErrDuplicateIdentity, account.ID)
			} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := txn.Set(accountKey(account.ID), encodeAccount(account, passwordHash)); err != nil {
				return err
			}
			if err := txn.Set(emailKey(account.Email), []byte(account.ID)); err != nil {
				return err
			}
			return txn.Set(accountOrderKey(account), nil)
		})
	})
	if err != nil {
		return domain.Account{}, err
	}
	return account, nil
}

func (r AccountRepository) Get(ctx context.Context, id domain.AccountID) (domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return domain.Account{}, err
	}
	var account domain.Account
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		account, _, err = readAccount(txn, id)
		return err
	})
	return account, err
}

// GetByEmail returns the account and its password hash.
// The hash never travels further than the auth service.
func (r AccountRepository) GetByEmail(ctx context.Context, email string) (domain.Account, string, error) {
	if err := ctx.Err(); err != nil {
		return domain.Account{}, "", err
	}
	var account domain.Account
	var hash string
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(emailKey(domain.NormalizeEmail(email)))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: email", errors.ErrNotFound)
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		account, hash, err = readAccount(txn, domain.AccountID(id))
		return err
	})
	return account, hash, err
}

// List walks the creation index, oldest account first.
func (r AccountRepository) List(ctx context.Context, excluding domain.AccountID) ([]domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var accounts []domain.Account
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte("account_order:")
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			id := domain.AccountID(key[strings.LastIndexByte(key, ':')+1:])
			if id == excluding {
				continue
			}
			account, _, err := readAccount(txn, id)
			if err != nil {
				return err
			}
			accounts = append(accounts, account)
		}
		return nil
	})
	return accounts, err
}

// UpdateProfile changes the display name and, when it differs, the email.
// Initials follow the new display name, the color tag is kept.
func (r AccountRepository) UpdateProfile(ctx context.Context, id domain.AccountID, displayName, email string) (domain.Account, error) {
	email = domain.NormalizeEmail(email)
	var updated domain.Account
	err := withRetry(ctx, r.log, r.policy, "update profile", func() error {
		return r.db.Update(func(txn *badger.Txn) error {
			account, hash, err := readAccount(txn, id)
			if err != nil {
				return err
			}
			if email != "" && email != account.Email {
				if _, err := txn.Get(emailKey(email)); err == nil {
					return fmt.Errorf("%w: %s", errors.ErrDuplicateIdentity, email)
				} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
					return err
				}
				if err := txn.Delete(emailKey(account.Email)); err != nil {
					return err
				}
				if err := txn.Set(emailKey(email), []byte(id)); err != nil {
					return err
				}
				account.Email = email
			}
			if displayName != "" {
				account.DisplayName = displayName
				account.Initials = domain.Initials(displayName)
			}
			updated = account
			return txn.Set(accountKey(id), encodeAccount(account, hash))
		})
	})
	if err != nil {
		return domain.Account{}, err
	}
	return updated, nil
}

func readAccount(txn *badger.Txn, id domain.AccountID) (domain.Account, string, error) {
	item, err := txn.Get(accountKey(id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Account{}, "", fmt.Errorf("%w: account %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return domain.Account{}, "", err
	}
	var account domain.Account
	var hash string
	err = item.Value(func(val []byte) error {
		account, hash, err = decodeAccount(val)
		return err
	})
	return account, hash, err
}

func encodeAccount(a domain.Account, passwordHash string) []byte {
	var w recordWriter
	w.str(accountFieldID, string(a.ID))
	w.str(accountFieldDisplayName, a.DisplayName)
	w.str(accountFieldInitials, a.Initials)
	w.str(accountFieldColorTag, a.ColorTag)
	w.str(accountFieldEmail, a.Email)
	w.str(accountFieldPasswordHash, passwordHash)
	w.timestamp(accountFieldCreatedAt, a.CreatedAt)
	return w.buf
}

func decodeAccount(b []byte) (domain.Account, string, error) {
	r, err := decodeRecord(b)
	if err != nil {
		return domain.Account{}, "", fmt.Errorf("account record: %w", err)
	}
	return domain.Account{
		ID:          domain.AccountID(r.str(accountFieldID)),
		DisplayName: r.str(accountFieldDisplayName),
		Initials:    r.str(accountFieldInitials),
		ColorTag:    r.str(accountFieldColorTag),
		Email:       r.str(accountFieldEmail),
		CreatedAt:   r.timestamp(accountFieldCreatedAt),
	}, r.str(accountFieldPasswordHash), nil
}
