package server

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/infrastructure/grpc/api"
	"chat-relay/services"
	"context"
	stderrors "errors"
	"log/slog"

	"google.golang.org/grpc"
)

type ChatServer struct {
	chatService services.IChatService
	log         *slog.Logger
}

func NewChatServer(log *slog.Logger, chatService services.IChatService) *ChatServer {
	return &ChatServer{chatService: chatService, log: log}
}

// SendMessage appends a message as the session's account.
// The sender also receives it on its own subscriptions.
func (s *ChatServer) SendMessage(ctx context.Context, in *api.SendMessageRequest) (*api.Message, error) {
	identity, err := auth.IdentityFromContext(ctx)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	m, err := s.chatService.SendMessage(ctx, identity.AccountID, domain.AccountID(in.CounterpartID), in.Text)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	out := api.FromMessage(m)
	return &out, nil
}

func (s *ChatServer) ListMessages(ctx context.Context, in *api.ListMessagesRequest) (*api.ListMessagesResponse, error) {
	identity, key, since, err := resolve(ctx, in.ConversationRef, in.Since)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	messages, err := s.chatService.ListMessages(ctx, identity.AccountID, key, since)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &api.ListMessagesResponse{Messages: api.FromMessages(messages)}, nil
}

func (s *ChatServer) ListConversations(ctx context.Context, _ *api.Empty) (*api.ListConversationsResponse, error) {
	identity, err := auth.IdentityFromContext(ctx)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	summaries, err := s.chatService.ListConversations(ctx, identity.AccountID)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &api.ListConversationsResponse{Summaries: api.FromSummaries(summaries)}, nil
}

func (s *ChatServer) SearchMessages(ctx context.Context, in *api.SearchRequest) (*api.ListMessagesResponse, error) {
	identity, err := auth.IdentityFromContext(ctx)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	messages, err := s.chatService.SearchMessages(ctx, identity.AccountID, in.Query, in.Limit)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &api.ListMessagesResponse{Messages: api.FromMessages(messages)}, nil
}

// SubscribeMessages streams the backlog after the cursor then live messages.
// It blocks until the client disconnects. A lagged stream ends with Aborted,
// the client resubscribes from the cursor of the last message it received.
// A logout of the session ends it with Unauthenticated.
func (s *ChatServer) SubscribeMessages(in *api.SubscribeMessagesRequest, stream grpc.ServerStreamingServer[api.MessageEvent]) error {
	ctx := stream.Context()
	identity, key, since, err := resolve(ctx, in.ConversationRef, in.Since)
	if err != nil {
		return errors.MapToGRPCError(err)
	}
	sub, err := s.chatService.SubscribeMessages(ctx, identity.AccountID, key, since)
	if err != nil {
		return errors.MapToGRPCError(err)
	}
	defer sub.Close()

	for {
		m, err := sub.Next(ctx)
		if err != nil {
			return s.endStream(ctx, identity.AccountID, err)
		}
		if err := stream.Send(&api.MessageEvent{Message: api.FromMessage(m)}); err != nil {
			s.log.Error("failed to push message to stream",
				"account", identity.AccountID,
				"conversation", key,
				"error", err)
			return err
		}
	}
}

func (s *ChatServer) SubscribeConversationSummaries(_ *api.Empty, stream grpc.ServerStreamingServer[api.SummaryEvent]) error {
	ctx := stream.Context()
	identity, err := auth.IdentityFromContext(ctx)
	if err != nil {
		return errors.MapToGRPCError(err)
	}
	sub, err := s.chatService.SubscribeConversationSummaries(ctx, identity.AccountID)
	if err != nil {
		return errors.MapToGRPCError(err)
	}
	defer sub.Close()

	for {
		summary, err := sub.Next(ctx)
		if err != nil {
			return s.endStream(ctx, identity.AccountID, err)
		}
		if err := stream.Send(&api.SummaryEvent{Summary: api.FromSummary(summary)}); err != nil {
			s.log.Error("failed to push summary to stream",
				"account", identity.AccountID,
				"error", err)
			return err
		}
	}
}

func (s *ChatServer) endStream(ctx context.Context, account domain.AccountID, err error) error {
	if cause := context.Cause(ctx); stderrors.Is(cause, auth.ErrSessionRevoked) {
		s.log.Info("Stream ended by logout", "account", account)
		return errors.MapToGRPCError(cause)
	}
	if ctx.Err() != nil && stderrors.Is(err, ctx.Err()) {
		s.log.Debug("Client disconnected", "account", account)
		return nil
	}
	s.log.Warn("Stream ended", "account", account, "error", err)
	return errors.MapToGRPCError(err)
}

func resolve(ctx context.Context, ref api.ConversationRef, rawSince string) (auth.Identity, domain.ConversationKey, *domain.Cursor, error) {
	identity, err := auth.IdentityFromContext(ctx)
	if err != nil {
		return auth.Identity{}, "", nil, err
	}
	key, err := ref.Resolve(identity.AccountID)
	if err != nil {
		return auth.Identity{}, "", nil, err
	}
	since, err := domain.ParseCursor(rawSince)
	if err != nil {
		return auth.Identity{}, "", nil, err
	}
	return identity, key, since, nil
}
