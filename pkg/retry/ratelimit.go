package retry

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

// RateLimited delays every retry p triggers until limiter grants a token.
// The limiter is shared by all sessions using the policy, which bounds the
// retry rate across them. Context cancellation during the wait stops retrying.
func RateLimited[T any](p Policy[T], limiter *rate.Limiter) Policy[T] {
	return &rateLimitedPolicy[T]{inner: p, limiter: limiter}
}

type rateLimitedPolicy[T any] struct {
	inner   Policy[T]
	limiter *rate.Limiter
}

func (p *rateLimitedPolicy[T]) Decide(ctx context.Context, latest T) (bool, error) {
	retry, err := p.inner.Decide(ctx, latest)
	if err != nil || !retry || p.limiter == nil {
		return retry, err
	}

	if p.limiter.Burst() < 1 && p.limiter.Limit() != rate.Inf {
		return false, errors.New("rate limiter burst must be at least 1")
	}
	if err := p.limiter.Wait(ctx); err != nil {
		// canceled, or the wait would outlive the context deadline
		return false, nil
	}
	return true, nil
}

func (p *rateLimitedPolicy[T]) Done(ctx context.Context, history []T) bool {
	return p.inner.Done(ctx, history)
}
