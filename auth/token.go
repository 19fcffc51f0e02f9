package auth

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "chat-relay"

// CustomClaims defines the data stored inside the JWT.
// The registered ID claim (jti) holds the session id used for revocation.
type CustomClaims struct {
	AccountID string   `json:"account_id"`
	Roles     []string `json:"roles"`
	jwt.RegisteredClaims
}

// Session is what a client receives after authenticating.
type Session struct {
	Token     string
	AccountID domain.AccountID
	SessionID string
	ExpiresAt time.Time
}

// Identity is the authenticated caller of an operation.
type Identity struct {
	AccountID domain.AccountID
	SessionID string
	Roles     []string
	ExpiresAt time.Time
}

// Tokenizer signs and verifies HS256 session tokens.
type Tokenizer struct {
	secret   []byte
	duration time.Duration
	now      func() time.Time
}

func NewTokenizer(secret string, duration time.Duration) Tokenizer {
	return Tokenizer{secret: []byte(secret), duration: duration, now: time.Now}
}

// Generate opens a new session for the account.
func (t Tokenizer) Generate(accountID domain.AccountID, roles []string) (Session, error) {
	now := t.now()
	expiresAt := now.Add(t.duration)
	sessionID := uuid.NewString()

	claims := &CustomClaims{
		AccountID: string(accountID),
		Roles:     roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   string(accountID),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", errors.ErrTokenGeneration, err)
	}
	return Session{
		Token:     token,
		AccountID: accountID,
		SessionID: sessionID,
		ExpiresAt: jwt.NewNumericDate(expiresAt).Time,
	}, nil
}

// Validate checks signature, algorithm, issuer and expiration.
// Any failure is reported as ErrUnauthorized.
func (t Tokenizer) Validate(tokenString string) (Identity, error) {
	claims := &CustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", errors.ErrUnauthorized, err)
	}
	if !token.Valid || claims.AccountID == "" || claims.ID == "" {
		return Identity{}, fmt.Errorf("%w: incomplete claims", errors.ErrUnauthorized)
	}
	return Identity{
		AccountID: domain.AccountID(claims.AccountID),
		SessionID: claims.ID,
		Roles:     claims.Roles,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
