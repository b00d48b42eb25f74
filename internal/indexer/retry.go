package indexer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	defaultRetryDelay = 100 * time.Millisecond
	maxRetryDelay     = 30 * time.Second
)

// retryPolicy retries an RPC call with doubling delays capped at
// maxRetryDelay.
type retryPolicy struct {
	attempts int
	base     time.Duration
	logger   *zap.Logger
}

func newRetryPolicy(maxRetries int, base time.Duration, logger *zap.Logger) retryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if base <= 0 {
		base = defaultRetryDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return retryPolicy{attempts: maxRetries + 1, base: base, logger: logger}
}

// do runs fn until it succeeds, the attempts run out or ctx ends. Context
// errors returned by fn are final.
func (p retryPolicy) do(ctx context.Context, op string, fn func(context.Context) error) error {
	delay := p.base
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || attempt == p.attempts {
			break
		}
		p.logger.Warn("rpc call failed, retrying", zap.String("op", op), zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, maxRetryDelay)
	}
	return err
}
