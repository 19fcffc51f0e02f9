package server

import (
	"chat-relay/auth"
	"chat-relay/errors"
	"chat-relay/infrastructure/grpc/api"
	"chat-relay/services"
	"context"
)

type AuthServer struct {
	accountService services.IAccountService
}

// NewAuthServer creates a new gRPC server for authentication.
func NewAuthServer(accountService services.IAccountService) *AuthServer {
	return &AuthServer{accountService: accountService}
}

// Register creates the account and returns its first session.
func (s *AuthServer) Register(ctx context.Context, in *api.RegisterRequest) (*api.RegisterResponse, error) {
	account, session, err := s.accountService.Register(ctx, in.Email, in.Secret, in.DisplayName)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &api.RegisterResponse{
		Account: api.FromAccount(account),
		Session: api.FromSession(session),
	}, nil
}

// Authenticate verifies credentials and returns a session token.
func (s *AuthServer) Authenticate(ctx context.Context, in *api.AuthenticateRequest) (*api.Session, error) {
	session, err := s.accountService.Authenticate(ctx, in.Email, in.Secret)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	out := api.FromSession(session)
	return &out, nil
}

func (s *AuthServer) Logout(ctx context.Context, _ *api.Empty) (*api.Empty, error) {
	identity, err := auth.IdentityFromContext(ctx)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	if err := s.accountService.Logout(ctx, identity); err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &api.Empty{}, nil
}
