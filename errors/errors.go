package errors

import (
	"context"
	stderrors "errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// Gateway
	ErrUnauthorized       = fmt.Errorf("unauthorized")
	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or secret", ErrUnauthorized)
	ErrNotParticipant     = fmt.Errorf("%w: not a participant of the conversation", ErrUnauthorized)
	ErrTokenGeneration    = fmt.Errorf("token generation failed")

	// Identity store
	ErrDuplicateIdentity = fmt.Errorf("identity already exists")
	ErrNotFound          = fmt.Errorf("not found")
	ErrInvalidPassword   = fmt.Errorf("secret does not meet complexity requirements")
	ErrInvalidArgument   = fmt.Errorf("invalid argument")

	// Message store
	ErrInvalidSender       = fmt.Errorf("sender is not a participant of the conversation")
	ErrEmptyText           = fmt.Errorf("message text is empty")
	ErrMessageTooLong      = fmt.Errorf("message text is too long")
	ErrInvalidConversation = fmt.Errorf("invalid conversation key")
	ErrInvalidCursor       = fmt.Errorf("invalid cursor")

	// Storage and fan-out
	ErrUnavailable      = fmt.Errorf("storage unavailable")
	ErrSubscriberLagged = fmt.Errorf("subscriber lagged behind, resubscribe with the last cursor")
	ErrFanoutStopped    = fmt.Errorf("fan-out is not running")

	// Runtime
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no words have been found")
)

// MapToGRPCError translates a domain error into a gRPC status.
// Unknown errors are reported as Internal without leaking their message.
func MapToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(Code(err), publicMessage(err))
}

// Code returns the gRPC code associated with err.
func Code(err error) codes.Code {
	switch {
	case stderrors.Is(err, ErrNotParticipant):
		return codes.PermissionDenied
	case stderrors.Is(err, ErrUnauthorized):
		return codes.Unauthenticated
	case stderrors.Is(err, ErrDuplicateIdentity):
		return codes.AlreadyExists
	case stderrors.Is(err, ErrNotFound):
		return codes.NotFound
	case stderrors.Is(err, ErrInvalidSender):
		return codes.PermissionDenied
	case stderrors.Is(err, ErrEmptyText),
		stderrors.Is(err, ErrMessageTooLong),
		stderrors.Is(err, ErrInvalidConversation),
		stderrors.Is(err, ErrInvalidCursor),
		stderrors.Is(err, ErrInvalidPassword),
		stderrors.Is(err, ErrInvalidArgument):
		return codes.InvalidArgument
	case stderrors.Is(err, ErrUnavailable),
		stderrors.Is(err, ErrFanoutStopped):
		return codes.Unavailable
	case stderrors.Is(err, ErrSubscriberLagged):
		return codes.Aborted
	case stderrors.Is(err, context.Canceled):
		return codes.Canceled
	case stderrors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

func publicMessage(err error) string {
	if Code(err) == codes.Internal {
		return "internal error"
	}
	return err.Error()
}
