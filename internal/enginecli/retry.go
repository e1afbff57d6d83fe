package enginecli

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// retryPolicy bounds the exponential-backoff-with-jitter retry ceiling
// used for retryable Engine errors (429, 5xx, network) per §5/§7.
type retryPolicy struct {
	maxElapsed time.Duration
}

func newRetryPolicy(maxElapsed time.Duration) retryPolicy {
	if maxElapsed <= 0 {
		maxElapsed = 30 * time.Second
	}
	return retryPolicy{maxElapsed: maxElapsed}
}

// do runs op, retrying with exponential backoff while op returns a
// retryable *Error. A RateLimited error honors RetryAfter when present by
// sleeping that long before returning; the computed backoff interval is
// then waited on top of it.
func (p retryPolicy) do(ctx context.Context, label string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = p.maxElapsed
	bctx := backoff.WithContext(b, ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		apiErr, ok := err.(*Error)
		if !ok || !apiErr.Retryable {
			return backoff.Permanent(err)
		}
		if apiErr.Kind == KindRateLimited && apiErr.RetryAfter > 0 {
			b.NextBackOff() // advance the backoff sequence past the Retry-After wait
			select {
			case <-time.After(time.Duration(apiErr.RetryAfter) * time.Second):
			case <-ctx.Done():
				return backoff.Permanent(ctx.Err())
			}
		}
		return err
	}, bctx, func(err error, wait time.Duration) {
		log.Warn().Str("op", label).Int("attempt", attempt).Dur("wait", wait).Err(err).Msg("engine call retrying")
	})
}
