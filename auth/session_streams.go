package auth

import (
	"chat-relay/errors"
	"context"
	"fmt"
	"sync"
)

// ErrSessionRevoked is returned for a logged out session, and is the cause
// of the streams it had open.
var ErrSessionRevoked = fmt.Errorf("%w: session has been revoked", errors.ErrUnauthorized)

// SessionStreams ends the open streams of a session when it logs out.
type SessionStreams struct {
	mu      sync.Mutex
	next    uint64
	streams map[string]map[uint64]context.CancelCauseFunc
}

func NewSessionStreams() *SessionStreams {
	return &SessionStreams{streams: make(map[string]map[uint64]context.CancelCauseFunc)}
}

// Bind derives a context cancelled with ErrSessionRevoked when sessionID
// is revoked. release must be called once the stream is over.
func (s *SessionStreams) Bind(ctx context.Context, sessionID string) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	s.mu.Lock()
	s.next++
	id := s.next
	if s.streams[sessionID] == nil {
		s.streams[sessionID] = make(map[uint64]context.CancelCauseFunc)
	}
	s.streams[sessionID][id] = cancel
	s.mu.Unlock()

	return ctx, func() {
		s.mu.Lock()
		delete(s.streams[sessionID], id)
		if len(s.streams[sessionID]) == 0 {
			delete(s.streams, sessionID)
		}
		s.mu.Unlock()
		cancel(context.Canceled)
	}
}

// Revoke ends every stream bound to sessionID and returns how many it ended.
func (s *SessionStreams) Revoke(sessionID string) int {
	s.mu.Lock()
	streams := s.streams[sessionID]
	delete(s.streams, sessionID)
	s.mu.Unlock()

	for _, cancel := range streams {
		cancel(ErrSessionRevoked)
	}
	return len(streams)
}

// Open counts the streams bound to sessionID.
func (s *SessionStreams) Open(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams[sessionID])
}
