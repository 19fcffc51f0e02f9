package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestMapToGRPCError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"unauthorized", ErrUnauthorized, codes.Unauthenticated},
		{"invalid credentials", ErrInvalidCredentials, codes.Unauthenticated},
		{"not a participant", fmt.Errorf("%w: p2p:a:b", ErrNotParticipant), codes.PermissionDenied},
		{"wrapped duplicate", fmt.Errorf("%w: bob@example.com", ErrDuplicateIdentity), codes.AlreadyExists},
		{"not found", ErrNotFound, codes.NotFound},
		{"invalid sender", ErrInvalidSender, codes.PermissionDenied},
		{"empty text", ErrEmptyText, codes.InvalidArgument},
		{"unavailable", fmt.Errorf("%w: conflict", ErrUnavailable), codes.Unavailable},
		{"lagged", ErrSubscriberLagged, codes.Aborted},
		{"canceled", fmt.Errorf("stream: %w", context.Canceled), codes.Canceled},
		{"unknown", fmt.Errorf("disk on fire"), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			st, ok := status.FromError(MapToGRPCError(tt.err))
			req.True(ok)
			req.Equal(tt.code, st.Code())
		})
	}
}

func TestMapToGRPCError_HidesInternalDetails(t *testing.T) {
	req := require.New(t)
	st, _ := status.FromError(MapToGRPCError(fmt.Errorf("secret path /var/lib/badger")))
	req.Equal("internal error", st.Message())
}

func TestMapToGRPCError_KeepsExistingStatus(t *testing.T) {
	req := require.New(t)
	original := status.Error(codes.DeadlineExceeded, "too slow")
	req.Equal(original, MapToGRPCError(original))
	req.NoError(MapToGRPCError(nil))
}
