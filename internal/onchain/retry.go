package onchain

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy controls exponential backoff around contract calls.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// run calls fn until it succeeds, ctx ends or MaxRetries retries are spent,
// doubling the delay after every failed attempt. Each retried failure is
// logged with the contract method that failed.
func (p RetryPolicy) run(ctx context.Context, logger *zap.Logger, method string, fn func(context.Context) error) error {
	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	delay := p.BaseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || attempt > maxRetries {
			return err
		}

		logger.Warn("rpc call retry",
			zap.String("method", method),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
