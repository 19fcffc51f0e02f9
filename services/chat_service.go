package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/search"
	"chat-relay/sink"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IChatService interface {
	SendMessage(ctx context.Context, sender, counterpart domain.AccountID, text string) (domain.Message, error)
	Append(ctx context.Context, key domain.ConversationKey, sender domain.AccountID, text string) (domain.Message, error)
	ListMessages(ctx context.Context, caller domain.AccountID, key domain.ConversationKey, since *domain.Cursor) ([]domain.Message, error)
	ListConversations(ctx context.Context, caller domain.AccountID) ([]domain.ConversationSummary, error)
	SearchMessages(ctx context.Context, caller domain.AccountID, query string, limit int) ([]domain.Message, error)
	SubscribeMessages(ctx context.Context, caller domain.AccountID, key domain.ConversationKey, since *domain.Cursor) (*MessageSubscription, error)
	SubscribeConversationSummaries(ctx context.Context, caller domain.AccountID) (*SummarySubscription, error)
}

// Censor rewrites forbidden words of a message text.
type Censor interface {
	Censor(text string) (string, []string)
}

type ChatConfig struct {
	MaxContentLength     int
	ConnectionBufferSize int
	SearchLimit          int
}

type ChatOption func(*ChatService)

// WithCensor enables moderation of every appended text.
func WithCensor(c Censor) ChatOption {
	return func(s *ChatService) { s.censor = c }
}

// WithSearchIndex enables SearchMessages.
func WithSearchIndex(index search.IIndex) ChatOption {
	return func(s *ChatService) { s.index = index }
}

type ChatService struct {
	log           *slog.Logger
	messages      repositories.IMessageRepository
	conversations repositories.IConversationRepository
	accounts      repositories.IAccountRepository
	orchestrator  contract.IOrchestrator
	locks         *runtime.KeyedMutex[domain.ConversationKey]
	monitoring    *observability.MonitoringManager
	censor        Censor
	index         search.IIndex
	cfg           ChatConfig
}

func NewChatService(log *slog.Logger,
	messages repositories.IMessageRepository,
	conversations repositories.IConversationRepository,
	accounts repositories.IAccountRepository,
	orchestrator contract.IOrchestrator,
	monitoring *observability.MonitoringManager,
	cfg ChatConfig,
	opts ...ChatOption) *ChatService {
	s := &ChatService{
		log:           log,
		messages:      messages,
		conversations: conversations,
		accounts:      accounts,
		orchestrator:  orchestrator,
		locks:         runtime.NewKeyedMutex[domain.ConversationKey](),
		monitoring:    monitoring,
		cfg:           cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InFlight reports the conversations with an append in progress.
func (s *ChatService) InFlight() int { return s.locks.Len() }

// SendMessage appends text to the conversation between sender and counterpart.
func (s *ChatService) SendMessage(ctx context.Context, sender, counterpart domain.AccountID, text string) (domain.Message, error) {
	if _, err := s.accounts.Get(ctx, counterpart); err != nil {
		return domain.Message{}, err
	}
	key, err := domain.NewConversationKey(sender, counterpart)
	if err != nil {
		return domain.Message{}, err
	}
	return s.Append(ctx, key, sender, text)
}

// Append commits a message then hands it to the fan-out.
// Appends of one conversation are serialized, the fan-out receives their
// events in seq order. A fan-out failure never undoes the commit.
func (s *ChatService) Append(ctx context.Context, key domain.ConversationKey, sender domain.AccountID, text string) (domain.Message, error) {
	if !key.Includes(sender) {
		return domain.Message{}, fmt.Errorf("%w: %s is not part of %s", errors.ErrInvalidSender, sender, key)
	}
	text, err := s.prepareText(text)
	if err != nil {
		return domain.Message{}, err
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	result, err := s.messages.Append(ctx, key, sender, text)
	if err != nil {
		return domain.Message{}, err
	}
	if s.monitoring != nil {
		s.monitoring.IncrMessagesAppended()
	}

	events := make([]event.DomainEvent, 0, len(result.Summaries)+1)
	events = append(events, event.MessageAppended{Message: result.Message})
	for _, summary := range result.Summaries {
		events = append(events, event.SummaryUpdated{Summary: summary})
	}
	if err := s.orchestrator.Publish(context.WithoutCancel(ctx), events...); err != nil {
		s.log.Warn("Fan-out refused committed message", "conversation", key,
			"seq", result.Message.Seq, "error", err)
	}
	return result.Message, nil
}

func (s *ChatService) prepareText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.ErrEmptyText
	}
	if s.cfg.MaxContentLength > 0 && utf8.RuneCountInString(text) > s.cfg.MaxContentLength {
		return "", fmt.Errorf("%w: more than %d characters", errors.ErrMessageTooLong, s.cfg.MaxContentLength)
	}
	if s.censor != nil {
		censored, words := s.censor.Censor(text)
		if len(words) > 0 {
			s.log.Info("Message censored", "words", len(words))
		}
		text = censored
	}
	return text, nil
}

func (s *ChatService) ListMessages(ctx context.Context, caller domain.AccountID, key domain.ConversationKey, since *domain.Cursor) ([]domain.Message, error) {
	if err := authorize(caller, key); err != nil {
		return nil, err
	}
	return s.messages.ListMessages(ctx, key, since)
}

func (s *ChatService) ListConversations(ctx context.Context, caller domain.AccountID) ([]domain.ConversationSummary, error) {
	return s.conversations.ListConversations(ctx, caller)
}

// SearchMessages looks query up in the conversations caller takes part in.
func (s *ChatService) SearchMessages(ctx context.Context, caller domain.AccountID, query string, limit int) ([]domain.Message, error) {
	if s.index == nil {
		return nil, fmt.Errorf("%w: search is disabled", errors.ErrUnavailable)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty search query", errors.ErrInvalidArgument)
	}
	if limit <= 0 || limit > s.cfg.SearchLimit {
		limit = s.cfg.SearchLimit
	}
	found, err := s.index.Search(ctx, caller, query, limit)
	if err != nil {
		return nil, err
	}
	return lo.Filter(found, func(m domain.Message, _ int) bool {
		return m.Conversation.Includes(caller)
	}), nil
}

// SubscribeMessages streams the messages of key after since, then the live
// ones. The sink is registered before the backlog is read so that nothing
// committed in between is missed; duplicates are skipped by seq.
func (s *ChatService) SubscribeMessages(ctx context.Context, caller domain.AccountID, key domain.ConversationKey, since *domain.Cursor) (*MessageSubscription, error) {
	if err := authorize(caller, key); err != nil {
		return nil, err
	}
	registry := s.orchestrator.Registry()
	sub := &MessageSubscription{
		id:       uuid.NewString(),
		key:      key,
		sink:     sink.NewStreamSink(s.cfg.ConnectionBufferSize, s.monitoring),
		registry: registry,
	}
	if since != nil {
		// The backlog read below rejects a cursor past the head, so last
		// never skips a message that is yet to come.
		sub.last = uint64(*since)
	}
	registry.SubscribeConversation(sub.id, key, sub.sink)

	backlog, err := s.messages.ListMessages(ctx, key, since)
	if err != nil {
		sub.Close()
		return nil, err
	}
	sub.backlog = backlog
	s.log.Debug("Message subscription opened", "conversation", key, "subscriber", sub.id, "backlog", len(backlog))
	return sub, nil
}

// SubscribeConversationSummaries streams caller's recent-chats rows: the
// current snapshot first, then every update.
func (s *ChatService) SubscribeConversationSummaries(ctx context.Context, caller domain.AccountID) (*SummarySubscription, error) {
	registry := s.orchestrator.Registry()
	sub := &SummarySubscription{
		id:       uuid.NewString(),
		owner:    caller,
		sink:     sink.NewStreamSink(s.cfg.ConnectionBufferSize, s.monitoring),
		registry: registry,
		known:    make(map[domain.ConversationKey]uint64),
	}
	registry.SubscribeAccount(sub.id, caller, sub.sink)

	snapshot, err := s.conversations.ListConversations(ctx, caller)
	if err != nil {
		sub.Close()
		return nil, err
	}
	for _, summary := range snapshot {
		sub.known[summary.Conversation] = summary.LastSeq
	}
	sub.snapshot = snapshot
	return sub, nil
}

func authorize(caller domain.AccountID, key domain.ConversationKey) error {
	if _, _, err := key.Participants(); err != nil {
		return err
	}
	if !key.Includes(caller) {
		return errors.ErrNotParticipant
	}
	return nil
}
