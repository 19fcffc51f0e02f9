//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IRegistry keeps track of live subscriptions.
// A subscriber is one stream of one connection, an account may hold several.
type IRegistry interface {
	SinksForConversation(key domain.ConversationKey) []EventSink
	SinksForAccount(accountID domain.AccountID) []EventSink
	SubscribeConversation(subscriberID string, key domain.ConversationKey, sink EventSink)
	UnsubscribeConversation(subscriberID string, key domain.ConversationKey)
	SubscribeAccount(subscriberID string, accountID domain.AccountID, sink EventSink)
	UnsubscribeAccount(subscriberID string, accountID domain.AccountID)
	Count() (conversations int, accounts int)
}

// IPublisher hands committed events over to the fan-out.
type IPublisher interface {
	Publish(ctx context.Context, events ...event.DomainEvent) error
}

type IOrchestrator interface {
	IPublisher
	RegisterSinks(sinks ...EventSink)
	Registry() IRegistry
	Start(ctx context.Context) error
	Stop()
}
