package repositories

import (
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds how hard a repository insists on a transient failure
// before reporting the store as unavailable.
type RetryPolicy struct {
	MaxAttempts uint64
	BaseDelay   time.Duration
}

const maxBackoff = 500 * time.Millisecond

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 5 * time.Millisecond}
}

// isTransient lists the Badger errors worth a second attempt:
// a concurrent transaction touched the same keys, or writes are paused
// while the database is being compacted.
func isTransient(err error) bool {
	return stderrors.Is(err, badger.ErrConflict) ||
		stderrors.Is(err, badger.ErrBlockedWrites)
}

// withRetry runs fn until it succeeds, fails with a non transient error,
// or the attempts are exhausted. Exhaustion surfaces as ErrUnavailable.
func withRetry(ctx context.Context, log *slog.Logger, policy RetryPolicy, op string, fn func() error) error {
	attempts := policy.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	backoff := retry.NewExponential(policy.BaseDelay)
	backoff = retry.WithCappedDuration(maxBackoff, backoff)
	backoff = retry.WithJitterPercent(10, backoff)
	backoff = retry.WithMaxRetries(attempts-1, backoff)

	try := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		try++
		err := fn()
		if err != nil && isTransient(err) {
			log.Debug("Transient storage failure", "op", op, "attempt", try, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil && isTransient(err) {
		return fmt.Errorf("%w: %s after %d attempts: %v", errors.ErrUnavailable, op, try, err)
	}
	return err
}
