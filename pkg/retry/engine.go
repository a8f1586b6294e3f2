// Package retry provides the retry engine implementation
package retry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/jzx17/goretry/pkg/types"
)

// tracerName is the instrumentation scope of engine spans
const tracerName = "github.com/jzx17/goretry/retry"

// Operation is the unit of work the engine retries
type Operation[R any] func(ctx context.Context) (R, error)

// Engine drives retry sessions. It holds configuration and aggregate
// statistics only; every Invoke call runs in a fresh session, so one engine
// can serve any number of concurrent invocations.
type Engine struct {
	name           string
	clock          types.Clock
	eventHandler   EventHandler
	metrics        MetricsCollector
	tracer         trace.Tracer
	circuitBreaker CircuitBreaker

	statsMu sync.RWMutex
	stats   Stats
}

// Stats contains aggregate engine statistics
type Stats struct {
	Invocations     int64     // sessions started
	TotalAttempts   int64     // operation calls
	TotalRetries    int64     // retries triggered by policies
	TotalSuccesses  int64     // sessions that returned without error
	TotalFailures   int64     // sessions that returned an error
	TotalVetoes     int64     // sessions stopped by completion, cancellation or an open breaker
	PolicyErrors    int64     // sessions aborted by a failing policy
	AverageAttempts float64   // attempts per finished session
	LastRetryTime   time.Time // last time a retry was triggered
}

// EngineOption is a configuration option for the retry engine
type EngineOption func(*Engine)

// WithName sets the engine name used in logs, metrics and spans
func WithName(name string) EngineOption {
	return func(e *Engine) {
		e.name = name
	}
}

// WithClock sets the clock for time operations
func WithClock(clock types.Clock) EngineOption {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithEventHandler sets the event handler
func WithEventHandler(handler EventHandler) EngineOption {
	return func(e *Engine) {
		if handler != nil {
			e.eventHandler = handler
		}
	}
}

// WithLogger logs engine events to logger
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		e.eventHandler = NewZapEventHandler(logger)
	}
}

// WithMetricsCollector sets the metrics collector
func WithMetricsCollector(collector MetricsCollector) EngineOption {
	return func(e *Engine) {
		if collector != nil {
			e.metrics = collector
		}
	}
}

// WithTracer sets the tracer used for session spans
func WithTracer(tracer trace.Tracer) EngineOption {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// WithCircuitBreaker runs every attempt through breaker
func WithCircuitBreaker(breaker CircuitBreaker) EngineOption {
	return func(e *Engine) {
		e.circuitBreaker = breaker
	}
}

// NewEngine creates a retry engine
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		name:         "default",
		clock:        types.NewRealClock(),
		eventHandler: NoopEventHandler{},
		metrics:      NoopCollector{},
		tracer:       otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

var defaultEngine = NewEngine()

// DefaultEngine returns the engine used when a nil engine is passed
func DefaultEngine() *Engine {
	return defaultEngine
}

// Name returns the engine name
func (e *Engine) Name() string {
	return e.name
}

// Clock returns the engine clock
func (e *Engine) Clock() types.Clock {
	return e.clock
}

// Invoke runs op and retries its results as policy decides.
//
// Every result op returns is offered to policy: Decide is asked whether that
// result alone triggers a retry, and each retried result is appended to the
// session history that policy.Done observes. An error returned by op is
// terminal and is returned as is. The result of the last attempt is always
// returned; it is never discarded in favor of a further attempt.
func Invoke[R any](ctx context.Context, e *Engine, op Operation[R], policy Policy[R]) (R, error) {
	return invoke(ctx, e, op, policy, func(result R, err error) (R, StopReason, bool) {
		if err != nil {
			return result, StopOperationFailed, false
		}
		return result, 0, true
	})
}

// InvokeOnError runs op and retries its errors as policy decides.
//
// A successful call is always terminal. When the policy declines or
// completes, the error of the last attempt is returned unwrapped.
func InvokeOnError[R any](ctx context.Context, e *Engine, op Operation[R], policy Policy[error]) (R, error) {
	return invoke(ctx, e, op, policy, func(_ R, err error) (error, StopReason, bool) {
		if err == nil {
			return nil, StopSucceeded, false
		}
		return err, 0, true
	})
}

// InvokeAsync runs Invoke in a new goroutine
func InvokeAsync[R any](ctx context.Context, e *Engine, op Operation[R], policy Policy[R]) <-chan types.Result[R] {
	return async(ctx, e, func(ctx context.Context, e *Engine) (R, error) {
		return Invoke(ctx, e, op, policy)
	})
}

// InvokeOnErrorAsync runs InvokeOnError in a new goroutine
func InvokeOnErrorAsync[R any](ctx context.Context, e *Engine, op Operation[R], policy Policy[error]) <-chan types.Result[R] {
	return async(ctx, e, func(ctx context.Context, e *Engine) (R, error) {
		return InvokeOnError(ctx, e, op, policy)
	})
}

func async[R any](ctx context.Context, e *Engine, run func(context.Context, *Engine) (R, error)) <-chan types.Result[R] {
	if e == nil {
		e = defaultEngine
	}
	resultChan := make(chan types.Result[R], 1)

	go func() {
		defer close(resultChan)

		// a probe context lets the async result report the attempt count
		var attempts int
		probe := withAttemptObserver(ctx, func(n int) { attempts = n })

		start := e.clock.Now()
		value, err := run(probe, e)
		duration := e.clock.Since(start)

		resultChan <- types.Result[R]{
			Value:    value,
			Error:    err,
			Attempts: attempts,
			Duration: duration,
		}
	}()

	return resultChan
}

// Stats gets engine statistics
func (e *Engine) Stats() Stats {
	e.statsMu.RLock()
	defer e.statsMu.RUnlock()
	return e.stats
}

// ResetStats resets statistics
func (e *Engine) ResetStats() {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	e.stats = Stats{}
}

// updateStats updates statistics (thread-safe)
func (e *Engine) updateStats(fn func(*Stats)) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	fn(&e.stats)
}

// updateAverageAttempts updates average attempt count
func (s *Stats) updateAverageAttempts() {
	finished := s.TotalSuccesses + s.TotalFailures
	if finished > 0 {
		s.AverageAttempts = float64(s.TotalAttempts) / float64(finished)
	}
}
