package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// WithToken attaches the session token to every call made with ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}

type AuthServiceClient struct{ cc grpc.ClientConnInterface }

func NewAuthServiceClient(cc grpc.ClientConnInterface) AuthServiceClient {
	return AuthServiceClient{cc: cc}
}

func (c AuthServiceClient) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error) {
	return invoke[RegisterResponse](ctx, c.cc, AuthService_Register_FullMethodName, in, opts)
}

func (c AuthServiceClient) Authenticate(ctx context.Context, in *AuthenticateRequest, opts ...grpc.CallOption) (*Session, error) {
	return invoke[Session](ctx, c.cc, AuthService_Authenticate_FullMethodName, in, opts)
}

func (c AuthServiceClient) Logout(ctx context.Context, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, AuthService_Logout_FullMethodName, &Empty{}, opts)
	return err
}

type AccountServiceClient struct{ cc grpc.ClientConnInterface }

func NewAccountServiceClient(cc grpc.ClientConnInterface) AccountServiceClient {
	return AccountServiceClient{cc: cc}
}

func (c AccountServiceClient) GetMe(ctx context.Context, opts ...grpc.CallOption) (*Account, error) {
	return invoke[Account](ctx, c.cc, AccountService_GetMe_FullMethodName, &Empty{}, opts)
}

func (c AccountServiceClient) ListOtherAccounts(ctx context.Context, opts ...grpc.CallOption) (*ListAccountsResponse, error) {
	return invoke[ListAccountsResponse](ctx, c.cc, AccountService_ListOtherAccounts_FullMethodName, &Empty{}, opts)
}

func (c AccountServiceClient) UpdateProfile(ctx context.Context, in *UpdateProfileRequest, opts ...grpc.CallOption) (*Account, error) {
	return invoke[Account](ctx, c.cc, AccountService_UpdateProfile_FullMethodName, in, opts)
}

type ChatServiceClient struct{ cc grpc.ClientConnInterface }

func NewChatServiceClient(cc grpc.ClientConnInterface) ChatServiceClient {
	return ChatServiceClient{cc: cc}
}

func (c ChatServiceClient) SendMessage(ctx context.Context, in *SendMessageRequest, opts ...grpc.CallOption) (*Message, error) {
	return invoke[Message](ctx, c.cc, ChatService_SendMessage_FullMethodName, in, opts)
}

func (c ChatServiceClient) ListMessages(ctx context.Context, in *ListMessagesRequest, opts ...grpc.CallOption) (*ListMessagesResponse, error) {
	return invoke[ListMessagesResponse](ctx, c.cc, ChatService_ListMessages_FullMethodName, in, opts)
}

func (c ChatServiceClient) ListConversations(ctx context.Context, opts ...grpc.CallOption) (*ListConversationsResponse, error) {
	return invoke[ListConversationsResponse](ctx, c.cc, ChatService_ListConversations_FullMethodName, &Empty{}, opts)
}

func (c ChatServiceClient) SearchMessages(ctx context.Context, in *SearchRequest, opts ...grpc.CallOption) (*ListMessagesResponse, error) {
	return invoke[ListMessagesResponse](ctx, c.cc, ChatService_SearchMessages_FullMethodName, in, opts)
}

func (c ChatServiceClient) SubscribeMessages(ctx context.Context, in *SubscribeMessagesRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[MessageEvent], error) {
	return openServerStream[SubscribeMessagesRequest, MessageEvent](ctx, c.cc,
		&ChatService_ServiceDesc.Streams[0], ChatService_SubscribeMessages_FullMethodName, in, opts)
}

func (c ChatServiceClient) SubscribeConversationSummaries(ctx context.Context, opts ...grpc.CallOption) (grpc.ServerStreamingClient[SummaryEvent], error) {
	return openServerStream[Empty, SummaryEvent](ctx, c.cc,
		&ChatService_ServiceDesc.Streams[1], ChatService_SubscribeConversationSummaries_FullMethodName, &Empty{}, opts)
}

func invoke[Res any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Res, error) {
	out := new(Res)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func openServerStream[Req, Res any](ctx context.Context, cc grpc.ClientConnInterface, desc *grpc.StreamDesc,
	method string, in *Req, opts []grpc.CallOption) (grpc.ServerStreamingClient[Res], error) {
	stream, err := cc.NewStream(ctx, desc, method, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[Req, Res]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
