package auth

import (
	"chat-relay/errors"
	"context"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity injects the caller into ctx for downstream service layers.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the caller or ErrUnauthorized.
func IdentityFromContext(ctx context.Context) (Identity, error) {
	identity, ok := ctx.Value(identityKey).(Identity)
	if !ok || identity.AccountID == "" {
		return Identity{}, errors.ErrUnauthorized
	}
	return identity, nil
}

// RevocationChecker tells whether a session was logged out.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// Authenticator validates bearer tokens for both gRPC and HTTP entry points.
// Streams it lets through are bound to their session and end on logout.
type Authenticator struct {
	tokenizer     Tokenizer
	revocations   RevocationChecker
	streams       *SessionStreams
	publicMethods map[string]struct{}
}

// NewAuthenticator lists the full gRPC method names reachable without a token.
func NewAuthenticator(tokenizer Tokenizer, revocations RevocationChecker, publicMethods ...string) Authenticator {
	public := make(map[string]struct{}, len(publicMethods))
	for _, m := range publicMethods {
		public[m] = struct{}{}
	}
	return Authenticator{
		tokenizer:     tokenizer,
		revocations:   revocations,
		streams:       NewSessionStreams(),
		publicMethods: public,
	}
}

// Streams is handed to the logout path so it can end the open streams.
func (a Authenticator) Streams() *SessionStreams { return a.streams }

// Authenticate checks an "authorization" header value of the form "Bearer <token>".
func (a Authenticator) Authenticate(ctx context.Context, header string) (Identity, error) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return Identity{}, fmt.Errorf("%w: authorization token is missing", errors.ErrUnauthorized)
	}
	identity, err := a.tokenizer.Validate(token)
	if err != nil {
		return Identity{}, err
	}
	if err := a.checkRevoked(ctx, identity.SessionID); err != nil {
		return Identity{}, err
	}
	return identity, nil
}

// BindStream returns a context that ends with ErrSessionRevoked when the
// session of identity logs out. Revocation is checked again once bound, so
// a logout racing with the stream opening still ends it.
func (a Authenticator) BindStream(ctx context.Context, identity Identity) (context.Context, func(), error) {
	streamCtx, release := a.streams.Bind(ctx, identity.SessionID)
	if err := a.checkRevoked(ctx, identity.SessionID); err != nil {
		release()
		return nil, nil, err
	}
	return streamCtx, release, nil
}

func (a Authenticator) checkRevoked(ctx context.Context, sessionID string) error {
	revoked, err := a.revocations.IsRevoked(ctx, sessionID)
	if err != nil {
		return err
	}
	if revoked {
		return ErrSessionRevoked
	}
	return nil
}

func (a Authenticator) authenticateIncoming(ctx context.Context) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: metadata is missing", errors.ErrUnauthorized)
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: authorization token is missing", errors.ErrUnauthorized)
	}
	identity, err := a.Authenticate(ctx, values[0])
	if err != nil {
		return nil, err
	}
	return WithIdentity(ctx, identity), nil
}

func (a Authenticator) isPublicMethod(method string) bool {
	_, ok := a.publicMethods[method]
	return ok
}

// UnaryInterceptor handles JWT validation for incoming unary calls.
func (a Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if a.isPublicMethod(info.FullMethod) {
			return handler(ctx, req)
		}
		newCtx, err := a.authenticateIncoming(ctx)
		if err != nil {
			return nil, errors.MapToGRPCError(err)
		}
		return handler(newCtx, req)
	}
}

// StreamInterceptor does the same for server streams, the identity is
// reachable through the stream context. That context is cancelled with
// ErrSessionRevoked when the session logs out.
func (a Authenticator) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if a.isPublicMethod(info.FullMethod) {
			return handler(srv, ss)
		}
		newCtx, err := a.authenticateIncoming(ss.Context())
		if err != nil {
			return errors.MapToGRPCError(err)
		}
		identity, err := IdentityFromContext(newCtx)
		if err != nil {
			return errors.MapToGRPCError(err)
		}
		streamCtx, release, err := a.BindStream(newCtx, identity)
		if err != nil {
			return errors.MapToGRPCError(err)
		}
		defer release()
		return handler(srv, &identityStream{ServerStream: ss, ctx: streamCtx})
	}
}

type identityStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *identityStream) Context() context.Context { return s.ctx }
