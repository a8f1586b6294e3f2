// Package retry provides backoff algorithm implementations
package retry

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes the wait before a retry.
// Implementations must be stateless: the same Backoff serves every session.
type Backoff interface {
	// NextDelay calculates the delay before the given retry (1-based)
	NextDelay(retry int) time.Duration
}

// BackoffFunc adapts a function to a Backoff
type BackoffFunc func(retry int) time.Duration

// NextDelay implements Backoff
func (f BackoffFunc) NextDelay(retry int) time.Duration {
	return f(retry)
}

// FixedBackoff implements fixed backoff strategy
type FixedBackoff struct {
	delay  time.Duration
	jitter JitterFunc
}

// NewFixedBackoff creates a fixed backoff strategy
func NewFixedBackoff(delay time.Duration, opts ...BackoffStrategyOption) *FixedBackoff {
	b := &FixedBackoff{
		delay: delay,
	}

	for _, opt := range opts {
		opt.applyToFixed(b)
	}

	return b
}

// NextDelay calculates the delay for the next retry
func (b *FixedBackoff) NextDelay(retry int) time.Duration {
	return applyJitterFunc(b.jitter, b.delay)
}

// ExponentialBackoff implements exponential backoff strategy
type ExponentialBackoff struct {
	initialDelay time.Duration
	multiplier   float64
	maxDelay     time.Duration
	jitter       JitterFunc
}

// NewExponentialBackoff creates an exponential backoff strategy
func NewExponentialBackoff(initialDelay time.Duration, opts ...BackoffStrategyOption) *ExponentialBackoff {
	b := &ExponentialBackoff{
		initialDelay: initialDelay,
		multiplier:   2.0,
		maxDelay:     30 * time.Second,
	}

	for _, opt := range opts {
		opt.applyToExponential(b)
	}

	return b
}

// NextDelay calculates the delay for the next retry
func (b *ExponentialBackoff) NextDelay(retry int) time.Duration {
	if retry <= 0 {
		retry = 1
	}

	delay := float64(b.initialDelay) * math.Pow(b.multiplier, float64(retry-1))

	// limit maximum delay, also guards float overflow
	if delay > float64(b.maxDelay) || math.IsInf(delay, 0) || math.IsNaN(delay) {
		delay = float64(b.maxDelay)
	}

	return applyJitterFunc(b.jitter, time.Duration(delay))
}

// LinearBackoff implements linear backoff strategy
type LinearBackoff struct {
	initialDelay time.Duration
	increment    time.Duration
	maxDelay     time.Duration
	jitter       JitterFunc
}

// NewLinearBackoff creates a linear backoff strategy
func NewLinearBackoff(initialDelay, increment time.Duration, opts ...BackoffStrategyOption) *LinearBackoff {
	b := &LinearBackoff{
		initialDelay: initialDelay,
		increment:    increment,
		maxDelay:     30 * time.Second,
	}

	for _, opt := range opts {
		opt.applyToLinear(b)
	}

	return b
}

// NextDelay calculates the delay for the next retry
func (b *LinearBackoff) NextDelay(retry int) time.Duration {
	if retry <= 0 {
		retry = 1
	}

	delay := b.initialDelay + time.Duration(retry-1)*b.increment
	if delay > b.maxDelay {
		delay = b.maxDelay
	}

	return applyJitterFunc(b.jitter, delay)
}

// FibonacciBackoff implements fibonacci backoff strategy
type FibonacciBackoff struct {
	baseDelay time.Duration
	maxDelay  time.Duration
	jitter    JitterFunc
}

// NewFibonacciBackoff creates a fibonacci backoff strategy
func NewFibonacciBackoff(baseDelay time.Duration, opts ...BackoffStrategyOption) *FibonacciBackoff {
	b := &FibonacciBackoff{
		baseDelay: baseDelay,
		maxDelay:  30 * time.Second,
	}

	for _, opt := range opts {
		opt.applyToFibonacci(b)
	}

	return b
}

// NextDelay calculates the delay for the next retry
func (b *FibonacciBackoff) NextDelay(retry int) time.Duration {
	if retry <= 0 {
		retry = 1
	}

	// 1, 1, 2, 3, 5, ...; stop growing once the cap is reached
	prev, cur := int64(0), int64(1)
	for i := 1; i < retry; i++ {
		prev, cur = cur, prev+cur
		if b.baseDelay > 0 && time.Duration(cur) > b.maxDelay/b.baseDelay {
			return applyJitterFunc(b.jitter, b.maxDelay)
		}
	}

	delay := time.Duration(cur) * b.baseDelay
	if delay > b.maxDelay {
		delay = b.maxDelay
	}

	return applyJitterFunc(b.jitter, delay)
}

// JitterFunc jitter function type
type JitterFunc func(time.Duration) time.Duration

// FullJitter full jitter function - random within [0, delay] range
func FullJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(delay) + 1))
}

// EqualJitter equal jitter function - delay/2 + random(0, delay/2)
func EqualJitter(delay time.Duration) time.Duration {
	if delay <= 1 {
		return delay
	}
	half := delay / 2
	return half + time.Duration(rand.Int63n(int64(delay-half)+1))
}

func applyJitterFunc(jitter JitterFunc, delay time.Duration) time.Duration {
	if jitter == nil {
		return delay
	}
	return jitter(delay)
}

// BackoffStrategyOption backoff strategy configuration option
type BackoffStrategyOption interface {
	applyToFixed(*FixedBackoff)
	applyToExponential(*ExponentialBackoff)
	applyToLinear(*LinearBackoff)
	applyToFibonacci(*FibonacciBackoff)
}

type backoffStrategyOption struct {
	multiplier *float64
	maxDelay   *time.Duration
	jitter     JitterFunc
}

func (o *backoffStrategyOption) applyToFixed(b *FixedBackoff) {
	if o.jitter != nil {
		b.jitter = o.jitter
	}
}

func (o *backoffStrategyOption) applyToExponential(b *ExponentialBackoff) {
	if o.multiplier != nil {
		b.multiplier = *o.multiplier
	}
	if o.maxDelay != nil {
		b.maxDelay = *o.maxDelay
	}
	if o.jitter != nil {
		b.jitter = o.jitter
	}
}

func (o *backoffStrategyOption) applyToLinear(b *LinearBackoff) {
	if o.maxDelay != nil {
		b.maxDelay = *o.maxDelay
	}
	if o.jitter != nil {
		b.jitter = o.jitter
	}
}

func (o *backoffStrategyOption) applyToFibonacci(b *FibonacciBackoff) {
	if o.maxDelay != nil {
		b.maxDelay = *o.maxDelay
	}
	if o.jitter != nil {
		b.jitter = o.jitter
	}
}

// WithBackoffMultiplier sets backoff multiplier (exponential backoff only)
func WithBackoffMultiplier(multiplier float64) BackoffStrategyOption {
	return &backoffStrategyOption{multiplier: &multiplier}
}

// WithBackoffMaxDelay sets maximum delay time
func WithBackoffMaxDelay(maxDelay time.Duration) BackoffStrategyOption {
	return &backoffStrategyOption{maxDelay: &maxDelay}
}

// WithBackoffJitter sets jitter function
func WithBackoffJitter(jitter JitterFunc) BackoffStrategyOption {
	return &backoffStrategyOption{jitter: jitter}
}
