package server

import (
	"chat-relay/auth"
	"chat-relay/infrastructure/grpc/api"
	"chat-relay/services"
	"log/slog"

	sdkgrpc "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
)

// New builds the gRPC server exposing the auth, account and chat services.
// Every method but the public ones needs a bearer token.
func New(log *slog.Logger, authenticator auth.Authenticator,
	accountService services.IAccountService, chatService services.IChatService) *grpc.Server {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			sdkgrpc.UnaryLoggingInterceptor(log),
			authenticator.UnaryInterceptor(),
		),
		grpc.ChainStreamInterceptor(
			authenticator.StreamInterceptor(),
		),
	)
	api.RegisterAuthServiceServer(s, NewAuthServer(accountService))
	api.RegisterAccountServiceServer(s, NewAccountServer(accountService))
	api.RegisterChatServiceServer(s, NewChatServer(log, chatService))
	return s
}
