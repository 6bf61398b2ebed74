package pipelinemonitor

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
	DefaultMaxJitter  = time.Second
)

// RetryAttempt describes one scheduled retry. It is not persisted.
type RetryAttempt struct {
	Attempt   int
	Delay     time.Duration
	Transient bool
	Err       error
}

// RetryPolicy retries transient failures with exponential backoff and jitter.
// The zero value performs a single attempt.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	// MaxDelay caps the exponential part of the delay. Zero means uncapped.
	MaxDelay time.Duration

	// Jitter returns the random component added to each delay. Defaults to
	// a uniform value in [0, 1s).
	Jitter func() time.Duration
	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error

	Logger  zerolog.Logger
	OnRetry func(RetryAttempt)
}

// ListPolicy is used for paginated enumeration calls, which see the most
// contention.
func ListPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: 2 * time.Second}
}

// DetailPolicy is used for per-resource detail calls.
func DetailPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: DefaultMaxRetries, BaseDelay: DefaultBaseDelay}
}

// HistoryPolicy is used for execution-history lookups on throttle-prone APIs.
func HistoryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, BaseDelay: 500 * time.Millisecond}
}

// Delay returns the backoff before retry number attempt (0-based), without
// jitter: BaseDelay * 2^attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

func (p RetryPolicy) jitter() time.Duration {
	if p.Jitter != nil {
		return p.Jitter()
	}
	return time.Duration(rand.Int63n(int64(DefaultMaxJitter)))
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retry executes fn, retrying transient errors per the policy. Permanent
// errors are returned unchanged after the first call. When retries run out
// the last error is returned joined with ErrRetriesExhausted.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		if Classify(err) != KindTransient {
			return result, err
		}
		if attempt >= maxRetries {
			return result, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt+1, err)
		}

		delay := p.Delay(attempt) + p.jitter()
		p.Logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_retries", maxRetries).
			Dur("delay", delay).
			Msg("transient error, backing off")
		if p.OnRetry != nil {
			p.OnRetry(RetryAttempt{Attempt: attempt + 1, Delay: delay, Transient: true, Err: err})
		}

		if err := p.sleep(ctx, delay); err != nil {
			return result, err
		}
	}
}
