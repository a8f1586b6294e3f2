// Package retry provides retry mechanism strategies and implementations
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/jzx17/goretry/pkg/types"
)

// Policy decides, attempt after attempt, whether an operation is retried.
//
// A policy is the caller-supplied transformation from a history of outcomes
// into retry triggers. In result mode T is the operation result type; in
// error mode T is error. Policies are shared between sessions and must keep
// no per-session state of their own: the engine passes the session history
// and an AttemptInfo in ctx instead.
type Policy[T any] interface {
	// Decide evaluates the latest outcome alone and reports whether it
	// triggers a retry. It may block (for example to back off); the
	// engine waits for it. A non-nil error aborts the session.
	Decide(ctx context.Context, latest T) (bool, error)

	// Done reports whether the policy has completed after observing the
	// full ordered history of outcomes that triggered retries. Once Done
	// returns true the session stops at its next check point.
	Done(ctx context.Context, history []T) bool
}

// PolicyFunc adapts a decision function to a Policy that never completes
type PolicyFunc[T any] func(ctx context.Context, latest T) (bool, error)

// Decide implements Policy
func (f PolicyFunc[T]) Decide(ctx context.Context, latest T) (bool, error) {
	return f(ctx, latest)
}

// Done implements Policy
func (f PolicyFunc[T]) Done(context.Context, []T) bool {
	return false
}

// RetryCondition is a function that determines retry conditions
type RetryCondition[T any] func(T) bool

// While retries as long as cond holds for the latest outcome
func While[T any](cond RetryCondition[T]) Policy[T] {
	return PolicyFunc[T](func(_ context.Context, latest T) (bool, error) {
		return cond(latest), nil
	})
}

// Always retries every outcome. Combine it with a bounding policy.
func Always[T any]() Policy[T] {
	return While(func(T) bool { return true })
}

// Never retries nothing; the operation runs exactly once
func Never[T any]() Policy[T] {
	return While(func(T) bool { return false })
}

// When filters the outcomes p may retry: cond must hold before p is consulted
func When[T any](cond RetryCondition[T], p Policy[T]) Policy[T] {
	return &filterPolicy[T]{cond: cond, inner: p}
}

type filterPolicy[T any] struct {
	cond  RetryCondition[T]
	inner Policy[T]
}

func (p *filterPolicy[T]) Decide(ctx context.Context, latest T) (bool, error) {
	if !p.cond(latest) {
		return false, nil
	}
	return p.inner.Decide(ctx, latest)
}

func (p *filterPolicy[T]) Done(ctx context.Context, history []T) bool {
	return p.inner.Done(ctx, history)
}

// Until completes p once done reports true for the history
func Until[T any](p Policy[T], done func(history []T) bool) Policy[T] {
	return &untilPolicy[T]{inner: p, done: done}
}

type untilPolicy[T any] struct {
	inner Policy[T]
	done  func([]T) bool
}

func (p *untilPolicy[T]) Decide(ctx context.Context, latest T) (bool, error) {
	return p.inner.Decide(ctx, latest)
}

func (p *untilPolicy[T]) Done(ctx context.Context, history []T) bool {
	return p.done(history) || p.inner.Done(ctx, history)
}

// MaxRetries lets p trigger at most n retries per session, so the operation
// runs at most n+1 times. A negative n disables the limit.
func MaxRetries[T any](n int, p Policy[T]) Policy[T] {
	return &limitPolicy[T]{max: n, inner: p}
}

// MaxAttempts bounds the total number of attempts per session to n
func MaxAttempts[T any](n int, p Policy[T]) Policy[T] {
	if n < 1 {
		n = 1
	}
	return MaxRetries(n-1, p)
}

type limitPolicy[T any] struct {
	max   int
	inner Policy[T]
}

func (p *limitPolicy[T]) Decide(ctx context.Context, latest T) (bool, error) {
	if p.max >= 0 && InfoFromContext(ctx).Retries >= p.max {
		return false, nil
	}
	return p.inner.Decide(ctx, latest)
}

func (p *limitPolicy[T]) Done(ctx context.Context, history []T) bool {
	if p.max >= 0 && len(history) > p.max {
		return true
	}
	return p.inner.Done(ctx, history)
}

// Within completes p once d has elapsed since the session started.
// The elapsed time is measured on the engine clock.
func Within[T any](d time.Duration, p Policy[T]) Policy[T] {
	return &deadlinePolicy[T]{limit: d, inner: p}
}

type deadlinePolicy[T any] struct {
	limit time.Duration
	inner Policy[T]
}

func (p *deadlinePolicy[T]) Decide(ctx context.Context, latest T) (bool, error) {
	return p.inner.Decide(ctx, latest)
}

func (p *deadlinePolicy[T]) Done(ctx context.Context, history []T) bool {
	info := InfoFromContext(ctx)
	if !info.Start.IsZero() && info.Clock.Since(info.Start) >= p.limit {
		return true
	}
	return p.inner.Done(ctx, history)
}

// Merge combines policies: any member triggers a retry, and the merged
// policy completes only when every member has completed.
func Merge[T any](ps ...Policy[T]) Policy[T] {
	return &mergePolicy[T]{members: ps}
}

type mergePolicy[T any] struct {
	members []Policy[T]
}

func (p *mergePolicy[T]) Decide(ctx context.Context, latest T) (bool, error) {
	for _, m := range p.members {
		retry, err := m.Decide(ctx, latest)
		if err != nil {
			return false, err
		}
		if retry {
			return true, nil
		}
	}
	return false, nil
}

func (p *mergePolicy[T]) Done(ctx context.Context, history []T) bool {
	for _, m := range p.members {
		if !m.Done(ctx, history) {
			return false
		}
	}
	return true
}

// WithBackoff delays every retry triggered by p by b.NextDelay(retry number).
// Context cancellation during the wait stops retrying.
func WithBackoff[T any](p Policy[T], b Backoff) Policy[T] {
	return &backoffPolicy[T]{inner: p, backoff: b}
}

type backoffPolicy[T any] struct {
	inner   Policy[T]
	backoff Backoff
}

func (p *backoffPolicy[T]) Decide(ctx context.Context, latest T) (bool, error) {
	retry, err := p.inner.Decide(ctx, latest)
	if err != nil || !retry {
		return retry, err
	}

	info := InfoFromContext(ctx)
	delay := p.backoff.NextDelay(info.Retries + 1)
	if err := types.Wait(ctx, info.Clock, delay); err != nil {
		return false, nil
	}
	return true, nil
}

func (p *backoffPolicy[T]) Done(ctx context.Context, history []T) bool {
	return p.inner.Done(ctx, history)
}

// Tap calls fn with every outcome p is asked to evaluate, then delegates to p
func Tap[T any](p Policy[T], fn func(ctx context.Context, latest T)) Policy[T] {
	return &tapPolicy[T]{inner: p, fn: fn}
}

type tapPolicy[T any] struct {
	inner Policy[T]
	fn    func(context.Context, T)
}

func (p *tapPolicy[T]) Decide(ctx context.Context, latest T) (bool, error) {
	p.fn(ctx, latest)
	return p.inner.Decide(ctx, latest)
}

func (p *tapPolicy[T]) Done(ctx context.Context, history []T) bool {
	return p.inner.Done(ctx, history)
}

// OnRetryable retries errors marked retryable with types.Retryable, honoring
// their RetryAfter hint
func OnRetryable() Policy[error] {
	return PolicyFunc[error](func(ctx context.Context, err error) (bool, error) {
		if !types.IsRetryable(err) {
			return false, nil
		}
		info := InfoFromContext(ctx)
		if err := types.Wait(ctx, info.Clock, types.GetRetryDelay(err)); err != nil {
			return false, nil
		}
		return true, nil
	})
}

// OnErrors retries errors matching any target by errors.Is
func OnErrors(targets ...error) Policy[error] {
	return While(func(err error) bool {
		return matchesAny(err, targets)
	})
}

// ExceptErrors retries every error except those matching a target by errors.Is.
// Context errors are never retried.
func ExceptErrors(targets ...error) Policy[error] {
	return While(func(err error) bool {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		return !matchesAny(err, targets)
	})
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
