package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryPolicy bounds retries of idempotent steps. Delays double after each
// failed attempt, starting at BaseDelay and capped at MaxDelay.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetry is used when a Lifecycle has no policy configured.
var DefaultRetry = RetryPolicy{Attempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.Attempts < 1 {
		p.Attempts = DefaultRetry.Attempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultRetry.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultRetry.MaxDelay
	}
	return p
}

// Budget is the longest time Do can spend sleeping between attempts.
func (p RetryPolicy) Budget() time.Duration {
	p = p.normalized()
	var total time.Duration
	d := p.BaseDelay
	for i := 1; i < p.Attempts; i++ {
		total += d
		d = min(d*2, p.MaxDelay)
	}
	return total
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// attempts are used up. It returns the last error.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	p = p.normalized()
	delay := p.BaseDelay
	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if !retryable(err) || attempt == p.Attempts {
			break
		}
		lifecycleRetries.WithLabelValues(op).Inc()
		log.Ctx(ctx).Debug().Err(err).Str("op", op).Int("attempt", attempt).Dur("backoff", delay).Msg("retrying")

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(err, ctx.Err())
		case <-t.C:
		}
		delay = min(delay*2, p.MaxDelay)
	}
	return err
}

// retryable reports whether err may go away on its own. Typed lifecycle
// errors other than TransportError are final.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch KindOf(err) {
	case "", KindTransport:
		return true
	}
	return false
}
