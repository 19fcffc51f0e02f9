package services

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

var defaultRoles = []string{"user"}

type IAccountService interface {
	Register(ctx context.Context, email, secret, displayName string) (domain.Account, auth.Session, error)
	Authenticate(ctx context.Context, email, secret string) (auth.Session, error)
	Logout(ctx context.Context, identity auth.Identity) error
	GetAccount(ctx context.Context, id domain.AccountID) (domain.Account, error)
	ListOtherAccounts(ctx context.Context, caller domain.AccountID) ([]domain.Account, error)
	UpdateProfile(ctx context.Context, caller domain.AccountID, displayName, email string) (domain.Account, error)
}

// StreamCloser ends the open streams of a session.
type StreamCloser interface {
	Revoke(sessionID string) int
}

type AccountService struct {
	log       *slog.Logger
	accounts  repositories.IAccountRepository
	sessions  repositories.ISessionRepository
	streams   StreamCloser
	tokenizer auth.Tokenizer
	params    auth.PasswordParams
	dummyHash string
	now       func() time.Time
}

type AccountOption func(*AccountService)

// WithStreamCloser makes Logout end the streams the session has open.
func WithStreamCloser(streams StreamCloser) AccountOption {
	return func(s *AccountService) { s.streams = streams }
}

func NewAccountService(log *slog.Logger,
	accounts repositories.IAccountRepository,
	sessions repositories.ISessionRepository,
	tokenizer auth.Tokenizer,
	params auth.PasswordParams,
	opts ...AccountOption) (*AccountService, error) {
	// Unknown emails are compared against this hash so that they cost
	// the same time as a wrong secret.
	dummyHash, err := auth.HashPassword(uuid.NewString(), params)
	if err != nil {
		return nil, fmt.Errorf("hashing failed: %w", err)
	}
	s := &AccountService{
		log:       log,
		accounts:  accounts,
		sessions:  sessions,
		tokenizer: tokenizer,
		params:    params,
		dummyHash: dummyHash,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates the account and opens its first session.
func (s *AccountService) Register(ctx context.Context, email, secret, displayName string) (domain.Account, auth.Session, error) {
	displayName = strings.TrimSpace(displayName)
	// 1. Validate business rules before any expensive cryptographic operation.
	if err := auth.ValidateRegister(auth.RegisterRequest{
		Email:       strings.TrimSpace(email),
		Password:    secret,
		DisplayName: displayName,
	}); err != nil {
		return domain.Account{}, auth.Session{}, err
	}

	// 2. Hash in the service layer, the repository never sees plain secrets.
	hashedPassword, err := auth.HashPassword(secret, s.params)
	if err != nil {
		return domain.Account{}, auth.Session{}, fmt.Errorf("hashing failed: %w", err)
	}

	// 3. Persist, ErrDuplicateIdentity propagates when the email is taken.
	account, err := s.accounts.Create(ctx, domain.Account{
		ID:          domain.AccountID(uuid.NewString()),
		DisplayName: displayName,
		Initials:    domain.Initials(displayName),
		ColorTag:    domain.RandomColorTag(),
		Email:       domain.NormalizeEmail(email),
		CreatedAt:   s.now(),
	}, hashedPassword)
	if err != nil {
		return domain.Account{}, auth.Session{}, err
	}

	// 4. Generate the initial session token
	session, err := s.tokenizer.Generate(account.ID, defaultRoles)
	if err != nil {
		return domain.Account{}, auth.Session{}, err
	}
	s.log.Info("Account registered", "account", account.ID)
	return account, session, nil
}

// Authenticate never tells an unknown email from a wrong secret.
func (s *AccountService) Authenticate(ctx context.Context, email, secret string) (auth.Session, error) {
	account, hash, err := s.accounts.GetByEmail(ctx, email)
	switch {
	case stderrors.Is(err, errors.ErrNotFound):
		_, _ = auth.ComparePassword(secret, s.dummyHash)
		return auth.Session{}, errors.ErrInvalidCredentials
	case err != nil:
		return auth.Session{}, err
	}

	match, err := auth.ComparePassword(secret, hash)
	if err != nil || !match {
		return auth.Session{}, errors.ErrInvalidCredentials
	}
	return s.tokenizer.Generate(account.ID, defaultRoles)
}

// Logout revokes the session until its token would have expired anyway,
// then ends the streams it still has open.
func (s *AccountService) Logout(ctx context.Context, identity auth.Identity) error {
	if err := s.sessions.Revoke(ctx, identity.SessionID, identity.ExpiresAt.Sub(s.now())); err != nil {
		return err
	}
	if s.streams != nil {
		if n := s.streams.Revoke(identity.SessionID); n > 0 {
			s.log.Info("Logout ended open streams", "account", identity.AccountID, "streams", n)
		}
	}
	return nil
}

func (s *AccountService) GetAccount(ctx context.Context, id domain.AccountID) (domain.Account, error) {
	return s.accounts.Get(ctx, id)
}

// ListOtherAccounts is the contact list: everyone but the caller.
func (s *AccountService) ListOtherAccounts(ctx context.Context, caller domain.AccountID) ([]domain.Account, error) {
	return s.accounts.List(ctx, caller)
}

func (s *AccountService) UpdateProfile(ctx context.Context, caller domain.AccountID, displayName, email string) (domain.Account, error) {
	displayName = strings.TrimSpace(displayName)
	email = strings.TrimSpace(email)
	if err := auth.ValidateProfile(auth.ProfileRequest{Email: email, DisplayName: displayName}); err != nil {
		return domain.Account{}, err
	}
	return s.accounts.UpdateProfile(ctx, caller, displayName, email)
}
