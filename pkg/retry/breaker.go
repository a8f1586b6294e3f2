package retry

import (
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreaker guards attempts. An open breaker vetoes further retries.
type CircuitBreaker interface {
	// Execute runs fn unless the breaker rejects the call
	Execute(fn func() error) error
	// IsOpen reports whether the breaker currently rejects calls
	IsOpen() bool
}

// Breaker adapts a gobreaker circuit breaker to the engine
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// BreakerSettings configures NewBreaker
type BreakerSettings struct {
	// Name identifies the breaker in state change callbacks
	Name string

	// Threshold is the number of consecutive failures that opens the breaker
	Threshold uint32

	// Timeout is how long the breaker stays open before probing again
	Timeout time.Duration

	// HalfOpenRequests is the number of probe calls allowed while half-open
	HalfOpenRequests uint32

	// OnStateChange is called whenever the breaker state changes
	OnStateChange func(name string, from, to gobreaker.State)
}

// NewBreaker creates a breaker that opens after Threshold consecutive failures
func NewBreaker(settings BreakerSettings) *Breaker {
	threshold := settings.Threshold
	if threshold == 0 {
		threshold = 5
	}

	return &Breaker{
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        settings.Name,
			MaxRequests: settings.HalfOpenRequests,
			Timeout:     settings.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: settings.OnStateChange,
		}),
	}
}

// Execute implements CircuitBreaker
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// IsOpen implements CircuitBreaker
func (b *Breaker) IsOpen() bool {
	return b.cb.State() == gobreaker.StateOpen
}

// State returns the current state of the breaker
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
