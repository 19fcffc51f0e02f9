package e2e

import (
	"chat-relay/infrastructure/grpc/api"
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type testConversationSuite struct {
	BaseGrpcSuite
	alice, bob api.RegisterResponse
}

func TestConversationSuite(t *testing.T) {
	suite.Run(t, &testConversationSuite{})
}

func (s *testConversationSuite) register(ctx context.Context, clients Clients, name string) api.RegisterResponse {
	res, err := clients.Auth.Register(ctx, &api.RegisterRequest{
		Email:       fmt.Sprintf("%s-%s@e2e.test", name, uuid.NewString()[:8]),
		Secret:      "Passw0rd!E2e-" + name,
		DisplayName: name,
	})
	s.Require().NoError(err)
	return *res
}

func (s *testConversationSuite) TestConversationFlow() {
	s.Run("Step 1: Register both participants", func() {
		s.WithRelay("Register alice and bob", func(ctx context.Context, clients Clients) {
			s.alice = s.register(ctx, clients, "alice")
			s.bob = s.register(ctx, clients, "bob")

			_, err := clients.Accounts.GetMe(ctx)
			s.Require().Equal(codes.Unauthenticated, status.Code(err))

			me, err := clients.Accounts.GetMe(api.WithToken(ctx, s.bob.Session.Token))
			s.Require().NoError(err)
			s.Require().Equal(s.bob.Account.ID, me.ID)
		})
	})

	s.Run("Step 2: Live delivery in seq order", func() {
		s.WithRelay("Bob follows, alice writes", func(ctx context.Context, clients Clients) {
			streamCtx, cancel := context.WithCancel(api.WithToken(ctx, s.bob.Session.Token))
			defer cancel()
			stream, err := clients.Chat.SubscribeMessages(streamCtx, &api.SubscribeMessagesRequest{
				ConversationRef: api.ConversationRef{CounterpartID: s.alice.Account.ID},
			})
			s.Require().NoError(err)

			aliceCtx := api.WithToken(ctx, s.alice.Session.Token)
			for i := 1; i <= 3; i++ {
				m, err := clients.Chat.SendMessage(aliceCtx, &api.SendMessageRequest{
					CounterpartID: s.bob.Account.ID,
					Text:          fmt.Sprintf("message %d", i),
				})
				s.Require().NoError(err)
				s.Require().Equal(uint64(i), m.Seq)
			}

			for i := 1; i <= 3; i++ {
				evt, err := stream.Recv()
				s.Require().NoError(err)
				s.Require().Equal(uint64(i), evt.Message.Seq)
				s.Require().Equal(s.alice.Account.ID, evt.Message.SenderID)
			}
		})
	})

	s.Run("Step 3: Resume from a cursor", func() {
		s.WithRelay("Bob reconnects after seq 2", func(ctx context.Context, clients Clients) {
			streamCtx, cancel := context.WithCancel(api.WithToken(ctx, s.bob.Session.Token))
			defer cancel()
			stream, err := clients.Chat.SubscribeMessages(streamCtx, &api.SubscribeMessagesRequest{
				ConversationRef: api.ConversationRef{CounterpartID: s.alice.Account.ID},
				Since:           "2",
			})
			s.Require().NoError(err)

			evt, err := stream.Recv()
			s.Require().NoError(err)
			s.Require().Equal(uint64(3), evt.Message.Seq)
			s.Require().Equal("message 3", evt.Message.Text)
		})
	})

	s.Run("Step 4: Recent chats on both sides", func() {
		s.WithRelay("List conversations", func(ctx context.Context, clients Clients) {
			for _, who := range []api.RegisterResponse{s.alice, s.bob} {
				res, err := clients.Chat.ListConversations(api.WithToken(ctx, who.Session.Token))
				s.Require().NoError(err)
				s.Require().Len(res.Summaries, 1)
				s.Require().Equal(uint64(3), res.Summaries[0].LastSeq)
				s.Require().Equal("message 3", res.Summaries[0].LastMessageText)
			}
		})
	})

	s.Run("Step 5: Logout revokes the token", func() {
		s.WithRelay("Alice logs out", func(ctx context.Context, clients Clients) {
			aliceCtx := api.WithToken(ctx, s.alice.Session.Token)
			s.Require().NoError(clients.Auth.Logout(aliceCtx))
			_, err := clients.Accounts.GetMe(aliceCtx)
			s.Require().Equal(codes.Unauthenticated, status.Code(err))
		})
	})
}
