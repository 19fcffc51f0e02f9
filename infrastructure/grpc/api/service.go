package api

import (
	"context"

	"google.golang.org/grpc"
)

const (
	AuthService_Register_FullMethodName     = "/chatrelay.v1.AuthService/Register"
	AuthService_Authenticate_FullMethodName = "/chatrelay.v1.AuthService/Authenticate"
	AuthService_Logout_FullMethodName       = "/chatrelay.v1.AuthService/Logout"

	AccountService_GetMe_FullMethodName             = "/chatrelay.v1.AccountService/GetMe"
	AccountService_ListOtherAccounts_FullMethodName = "/chatrelay.v1.AccountService/ListOtherAccounts"
	AccountService_UpdateProfile_FullMethodName     = "/chatrelay.v1.AccountService/UpdateProfile"

	ChatService_SendMessage_FullMethodName                    = "/chatrelay.v1.ChatService/SendMessage"
	ChatService_ListMessages_FullMethodName                   = "/chatrelay.v1.ChatService/ListMessages"
	ChatService_ListConversations_FullMethodName              = "/chatrelay.v1.ChatService/ListConversations"
	ChatService_SearchMessages_FullMethodName                 = "/chatrelay.v1.ChatService/SearchMessages"
	ChatService_SubscribeMessages_FullMethodName              = "/chatrelay.v1.ChatService/SubscribeMessages"
	ChatService_SubscribeConversationSummaries_FullMethodName = "/chatrelay.v1.ChatService/SubscribeConversationSummaries"
)

// PublicMethods are reachable without a session token.
func PublicMethods() []string {
	return []string{AuthService_Register_FullMethodName, AuthService_Authenticate_FullMethodName}
}

type AuthServiceServer interface {
	Register(context.Context, *RegisterRequest) (*RegisterResponse, error)
	Authenticate(context.Context, *AuthenticateRequest) (*Session, error)
	Logout(context.Context, *Empty) (*Empty, error)
}

type AccountServiceServer interface {
	GetMe(context.Context, *Empty) (*Account, error)
	ListOtherAccounts(context.Context, *Empty) (*ListAccountsResponse, error)
	UpdateProfile(context.Context, *UpdateProfileRequest) (*Account, error)
}

type ChatServiceServer interface {
	SendMessage(context.Context, *SendMessageRequest) (*Message, error)
	ListMessages(context.Context, *ListMessagesRequest) (*ListMessagesResponse, error)
	ListConversations(context.Context, *Empty) (*ListConversationsResponse, error)
	SearchMessages(context.Context, *SearchRequest) (*ListMessagesResponse, error)
	SubscribeMessages(*SubscribeMessagesRequest, grpc.ServerStreamingServer[MessageEvent]) error
	SubscribeConversationSummaries(*Empty, grpc.ServerStreamingServer[SummaryEvent]) error
}

func RegisterAuthServiceServer(s grpc.ServiceRegistrar, srv AuthServiceServer) {
	s.RegisterService(&AuthService_ServiceDesc, srv)
}

func RegisterAccountServiceServer(s grpc.ServiceRegistrar, srv AccountServiceServer) {
	s.RegisterService(&AccountService_ServiceDesc, srv)
}

func RegisterChatServiceServer(s grpc.ServiceRegistrar, srv ChatServiceServer) {
	s.RegisterService(&ChatService_ServiceDesc, srv)
}

var AuthService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "chatrelay.v1.AuthService",
	HandlerType: (*AuthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: unaryHandler(AuthService_Register_FullMethodName, AuthServiceServer.Register)},
		{MethodName: "Authenticate", Handler: unaryHandler(AuthService_Authenticate_FullMethodName, AuthServiceServer.Authenticate)},
		{MethodName: "Logout", Handler: unaryHandler(AuthService_Logout_FullMethodName, AuthServiceServer.Logout)},
	},
	Metadata: "chatrelay/v1/chatrelay.proto",
}

var AccountService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "chatrelay.v1.AccountService",
	HandlerType: (*AccountServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetMe", Handler: unaryHandler(AccountService_GetMe_FullMethodName, AccountServiceServer.GetMe)},
		{MethodName: "ListOtherAccounts", Handler: unaryHandler(AccountService_ListOtherAccounts_FullMethodName, AccountServiceServer.ListOtherAccounts)},
		{MethodName: "UpdateProfile", Handler: unaryHandler(AccountService_UpdateProfile_FullMethodName, AccountServiceServer.UpdateProfile)},
	},
	Metadata: "chatrelay/v1/chatrelay.proto",
}

var ChatService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "chatrelay.v1.ChatService",
	HandlerType: (*ChatServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendMessage", Handler: unaryHandler(ChatService_SendMessage_FullMethodName, ChatServiceServer.SendMessage)},
		{MethodName: "ListMessages", Handler: unaryHandler(ChatService_ListMessages_FullMethodName, ChatServiceServer.ListMessages)},
		{MethodName: "ListConversations", Handler: unaryHandler(ChatService_ListConversations_FullMethodName, ChatServiceServer.ListConversations)},
		{MethodName: "SearchMessages", Handler: unaryHandler(ChatService_SearchMessages_FullMethodName, ChatServiceServer.SearchMessages)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "SubscribeMessages",
			Handler:       serverStreamHandler(ChatServiceServer.SubscribeMessages),
			ServerStreams: true,
		},
		{
			StreamName:    "SubscribeConversationSummaries",
			Handler:       serverStreamHandler(ChatServiceServer.SubscribeConversationSummaries),
			ServerStreams: true,
		},
	},
	Metadata: "chatrelay/v1/chatrelay.proto",
}

func unaryHandler[S, Req, Res any](fullMethod string, call func(S, context.Context, *Req) (*Res, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(S), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(S), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func serverStreamHandler[S, Req, Res any](call func(S, *Req, grpc.ServerStreamingServer[Res]) error) grpc.StreamHandler {
	return func(srv any, stream grpc.ServerStream) error {
		in := new(Req)
		if err := stream.RecvMsg(in); err != nil {
			return err
		}
		return call(srv.(S), in, &grpc.GenericServerStream[Req, Res]{ServerStream: stream})
	}
}
