package server

import (
	"chat-relay/auth"
	"chat-relay/errors"
	"chat-relay/infrastructure/grpc/api"
	"chat-relay/services"
	"context"
)

type AccountServer struct {
	accountService services.IAccountService
}

func NewAccountServer(accountService services.IAccountService) *AccountServer {
	return &AccountServer{accountService: accountService}
}

func (s *AccountServer) GetMe(ctx context.Context, _ *api.Empty) (*api.Account, error) {
	identity, err := auth.IdentityFromContext(ctx)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	account, err := s.accountService.GetAccount(ctx, identity.AccountID)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	out := api.FromAccount(account)
	return &out, nil
}

func (s *AccountServer) ListOtherAccounts(ctx context.Context, _ *api.Empty) (*api.ListAccountsResponse, error) {
	identity, err := auth.IdentityFromContext(ctx)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	accounts, err := s.accountService.ListOtherAccounts(ctx, identity.AccountID)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &api.ListAccountsResponse{Accounts: api.FromAccounts(accounts)}, nil
}

func (s *AccountServer) UpdateProfile(ctx context.Context, in *api.UpdateProfileRequest) (*api.Account, error) {
	identity, err := auth.IdentityFromContext(ctx)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	account, err := s.accountService.UpdateProfile(ctx, identity.AccountID, in.DisplayName, in.Email)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	out := api.FromAccount(account)
	return &out, nil
}
