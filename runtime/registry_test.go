package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/mocks"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestRegistry_SubscribeConversation(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := NewRegistry()
	sink1 := mocks.NewMockEventSink(ctrl)
	sink2 := mocks.NewMockEventSink(ctrl)
	key := domain.ConversationKey("p2p:alice:bob")

	registry.SubscribeConversation("s1", key, sink1)
	registry.SubscribeConversation("s2", key, sink2)

	req.ElementsMatch([]contract.EventSink{sink1, sink2}, registry.SinksForConversation(key))
	req.Empty(registry.SinksForConversation("p2p:alice:carol"))

	registry.UnsubscribeConversation("s1", key)
	req.Equal([]contract.EventSink{sink2}, registry.SinksForConversation(key))

	registry.UnsubscribeConversation("s2", key)
	req.Nil(registry.SinksForConversation(key))
	req.Empty(registry.conversations)
}

func TestRegistry_SubscribeAccount(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := NewRegistry()
	phone := mocks.NewMockEventSink(ctrl)
	laptop := mocks.NewMockEventSink(ctrl)

	registry.SubscribeAccount("phone", "alice", phone)
	registry.SubscribeAccount("laptop", "alice", laptop)
	registry.SubscribeConversation("phone-thread", "p2p:alice:bob", phone)

	req.Len(registry.SinksForAccount("alice"), 2)
	req.Empty(registry.SinksForAccount("bob"))

	conversations, accounts := registry.Count()
	req.Equal(1, conversations)
	req.Equal(2, accounts)

	registry.UnsubscribeAccount("phone", "alice")
	registry.UnsubscribeAccount("unknown", "nobody")
	req.Equal([]contract.EventSink{laptop}, registry.SinksForAccount("alice"))
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	registry := NewRegistry()
	sink := mocks.NewMockEventSink(ctrl)
	key := domain.ConversationKey("p2p:alice:bob")

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		id := string(rune('a' + i%26))
		go func() {
			defer wg.Done()
			registry.SubscribeConversation(id, key, sink)
			registry.UnsubscribeConversation(id, key)
		}()
		go func() {
			defer wg.Done()
			_ = registry.SinksForConversation(key)
			_, _ = registry.Count()
		}()
	}
	wg.Wait()
}
