// Package retry provides the fixed-delay unbounded retry used for both the
// database warm-up and the broker link. Both resources share the same
// policy: keep trying at a constant interval until success or the context
// is canceled.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Forever runs op at a fixed interval until it succeeds or ctx is canceled.
// Every failed attempt is logged at warn level under the given resource
// name. The returned error is non-nil only when ctx ends first.
func Forever(ctx context.Context, logger *zap.Logger, resource string, interval time.Duration, op func(context.Context) error) error {
	policy := backoff.WithContext(backoff.NewConstantBackOff(interval), ctx)

	attempt := 0
	return backoff.RetryNotify(
		func() error {
			attempt++
			return op(ctx)
		},
		policy,
		func(err error, next time.Duration) {
			logger.Warn("connect failed, retrying",
				zap.String("resource", resource),
				zap.Int("attempt", attempt),
				zap.Duration("retry_in", next),
				zap.Error(err))
		},
	)
}
