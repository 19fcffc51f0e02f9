package repositories

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Revoke_Session(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewSessionRepository(openDB(t), slog.Default(), DefaultRetryPolicy())

	revoked, err := repository.IsRevoked(ctx, "s1")
	req.NoError(err)
	req.False(revoked)

	req.NoError(repository.Revoke(ctx, "s1", time.Hour))
	revoked, err = repository.IsRevoked(ctx, "s1")
	req.NoError(err)
	req.True(revoked)

	// An already expired token needs no entry.
	req.NoError(repository.Revoke(ctx, "s2", 0))
	revoked, err = repository.IsRevoked(ctx, "s2")
	req.NoError(err)
	req.False(revoked)
}
