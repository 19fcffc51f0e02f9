package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"sync"
)

// Set maps a subscriber id to its sink.
type Set map[string]contract.EventSink

// Registry tracks live subscriptions. A subscriber is one stream of one
// connection: an account holding two devices has two subscribers.
type Registry struct {
	mu            sync.RWMutex
	conversations map[domain.ConversationKey]Set // message streams
	accounts      map[domain.AccountID]Set       // recent-chats streams
}

func NewRegistry() *Registry {
	return &Registry{
		conversations: make(map[domain.ConversationKey]Set),
		accounts:      make(map[domain.AccountID]Set),
	}
}

// SinksForConversation returns the sinks of every stream watching the
// conversation. The slice is a snapshot, it is safe to use after the
// subscribers change.
func (r *Registry) SinksForConversation(key domain.ConversationKey) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.conversations[key])
}

func (r *Registry) SinksForAccount(accountID domain.AccountID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.accounts[accountID])
}

func (r *Registry) SubscribeConversation(subscriberID string, key domain.ConversationKey, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subscribe(r.conversations, key, subscriberID, sink)
}

// UnsubscribeConversation leaves no empty set behind.
func (r *Registry) UnsubscribeConversation(subscriberID string, key domain.ConversationKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	unsubscribe(r.conversations, key, subscriberID)
}

func (r *Registry) SubscribeAccount(subscriberID string, accountID domain.AccountID, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subscribe(r.accounts, accountID, subscriberID, sink)
}

func (r *Registry) UnsubscribeAccount(subscriberID string, accountID domain.AccountID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	unsubscribe(r.accounts, accountID, subscriberID)
}

// Count returns the number of live message streams and recent-chats streams.
func (r *Registry) Count() (conversations int, accounts int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, set := range r.conversations {
		conversations += len(set)
	}
	for _, set := range r.accounts {
		accounts += len(set)
	}
	return conversations, accounts
}

func snapshot(set Set) []contract.EventSink {
	if len(set) == 0 {
		return nil
	}
	sinks := make([]contract.EventSink, 0, len(set))
	for _, sink := range set {
		sinks = append(sinks, sink)
	}
	return sinks
}

func subscribe[K comparable](index map[K]Set, key K, subscriberID string, sink contract.EventSink) {
	if _, ok := index[key]; !ok {
		index[key] = make(Set)
	}
	index[key][subscriberID] = sink
}

func unsubscribe[K comparable](index map[K]Set, key K, subscriberID string) {
	members, ok := index[key]
	if !ok {
		return
	}
	delete(members, subscriberID)
	if len(members) == 0 {
		delete(index, key)
	}
}
