package main

import (
	"bytes"
	"chat-relay/infrastructure/grpc/api"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fixedPrompt string

func (p fixedPrompt) Secret(string) (string, error) { return string(p), nil }

type fakeAuth struct {
	registered *api.RegisterRequest
	loggedOut  bool
}

func (f *fakeAuth) Register(_ context.Context, in *api.RegisterRequest, _ ...grpc.CallOption) (*api.RegisterResponse, error) {
	f.registered = in
	return &api.RegisterResponse{
		Account: api.Account{ID: "a-1", DisplayName: in.DisplayName},
		Session: api.Session{Token: "tok-1"},
	}, nil
}

func (f *fakeAuth) Authenticate(_ context.Context, in *api.AuthenticateRequest, _ ...grpc.CallOption) (*api.Session, error) {
	if in.Secret != "right" {
		return nil, status.Error(codes.Unauthenticated, "invalid credentials")
	}
	return &api.Session{Token: "tok-2"}, nil
}

func (f *fakeAuth) Logout(context.Context, ...grpc.CallOption) error {
	f.loggedOut = true
	return nil
}

// fakeStream only implements Recv, the embedded nil ClientStream is never used.
type fakeStream[T any] struct {
	grpc.ClientStream
	events []*T
}

func (s *fakeStream[T]) Recv() (*T, error) {
	if len(s.events) == 0 {
		return nil, io.EOF
	}
	evt := s.events[0]
	s.events = s.events[1:]
	return evt, nil
}

type fakeChat struct {
	chatClient
	sent    *api.SendMessageRequest
	history *api.ListMessagesRequest
	stream  []*api.MessageEvent
}

func (f *fakeChat) SendMessage(_ context.Context, in *api.SendMessageRequest, _ ...grpc.CallOption) (*api.Message, error) {
	f.sent = in
	return &api.Message{Seq: 3, Cursor: "3"}, nil
}

func (f *fakeChat) ListMessages(_ context.Context, in *api.ListMessagesRequest, _ ...grpc.CallOption) (*api.ListMessagesResponse, error) {
	f.history = in
	return &api.ListMessagesResponse{Messages: []api.Message{{Seq: 4, SenderID: "bob", Text: "late reply", CreatedAt: time.Now()}}}, nil
}

func (f *fakeChat) SubscribeMessages(context.Context, *api.SubscribeMessagesRequest, ...grpc.CallOption) (grpc.ServerStreamingClient[api.MessageEvent], error) {
	return &fakeStream[api.MessageEvent]{events: f.stream}, nil
}

func Test_ParseCommand(t *testing.T) {
	testCases := map[string]struct {
		args    []string
		wantErr bool
	}{
		"no command":         {args: nil, wantErr: true},
		"unknown":            {args: []string{"dance"}, wantErr: true},
		"send without text":  {args: []string{"send", "bob"}, wantErr: true},
		"login extra arg":    {args: []string{"login", "a@b.c", "x"}, wantErr: true},
		"register long name": {args: []string{"register", "a@b.c", "Ada", "Lovelace"}},
		"history with since": {args: []string{"history", "bob", "12"}},
		"search words":       {args: []string{"search", "hello", "world"}},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := parseCommand(tc.args)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func Test_Execute_Register_And_Login(t *testing.T) {
	req := require.New(t)
	var out bytes.Buffer
	auth := &fakeAuth{}
	c := &cli{out: &out, prompt: fixedPrompt("right"), auth: auth}

	cmd, err := parseCommand([]string{"register", "ada@example.com", "Ada", "Lovelace"})
	req.NoError(err)
	req.NoError(c.execute(context.Background(), cmd))
	req.Equal("Ada Lovelace", auth.registered.DisplayName)
	req.Equal("right", auth.registered.Secret)
	req.Contains(out.String(), "export CHAT_TOKEN=tok-1")

	out.Reset()
	req.NoError(c.execute(context.Background(), command{name: "login", args: []string{"ada@example.com"}}))
	req.Equal("export CHAT_TOKEN=tok-2\n", out.String())

	c.prompt = fixedPrompt("wrong")
	err = c.execute(context.Background(), command{name: "login", args: []string{"ada@example.com"}})
	req.Equal(codes.Unauthenticated, status.Code(err))

	req.NoError(c.execute(context.Background(), command{name: "logout"}))
	req.True(auth.loggedOut)
}

func Test_Execute_Chat_Commands(t *testing.T) {
	req := require.New(t)
	var out bytes.Buffer
	chat := &fakeChat{stream: []*api.MessageEvent{
		{Message: api.Message{Seq: 1, SenderID: "alice", Text: "first"}},
		{Message: api.Message{Seq: 2, SenderID: "bob", Text: "second"}},
	}}
	c := &cli{out: &out, chat: chat}

	req.NoError(c.execute(context.Background(), command{name: "send", args: []string{"bob", "hello", "there"}}))
	req.Equal("hello there", chat.sent.Text)
	req.Equal("bob", chat.sent.CounterpartID)
	req.Contains(out.String(), "sent #3 cursor=3")

	out.Reset()
	req.NoError(c.execute(context.Background(), command{name: "history", args: []string{"bob", "3"}}))
	req.Equal("3", chat.history.Since)
	req.Contains(out.String(), "late reply")

	out.Reset()
	req.NoError(c.execute(context.Background(), command{name: "watch", args: []string{"bob"}}))
	req.Contains(out.String(), "#1")
	req.Contains(out.String(), "second")
}
