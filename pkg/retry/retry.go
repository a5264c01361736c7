// Package retry runs ledger and processor calls under a bounded exponential backoff.
// Only errors whose code metadata marks them retryable are attempted again.
package retry

import (
	"context"
	"time"

	goretry "github.com/sethvargo/go-retry"

	pkgerrors "github.com/angelmondragon/craftstore-backend/pkg/errors"
)

// Policy bounds how often and how fast a call is retried.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
}

// Once never retries.
var Once = Policy{Attempts: 1}

// Do invokes fn until it succeeds, returns a non-retryable error, or the policy is exhausted.
// The last error is returned unwrapped.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	backoff := goretry.WithMaxRetries(uint64(attempts-1), goretry.NewExponential(base))

	return goretry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if pkgerrors.IsRetryable(err) {
			return goretry.RetryableError(err)
		}
		return err
	})
}
