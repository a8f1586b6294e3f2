// Package retry provides a policy-driven retry engine with result-triggered and error-triggered modes.
//
// Key Features:
//
// 1. Two invocation modes:
//   - Invoke: retries on returned results; an error from the operation is terminal
//   - InvokeOnError: retries on errors; a successful call is terminal
//
// 2. Policies instead of retry counts:
//   - Decide: per-attempt probe over the latest outcome alone
//   - Done: completion check over the full history of retried outcomes
//   - Combinators: While, When, Until, MaxRetries, MaxAttempts, Within, Merge, Tap
//   - Waiting: WithBackoff, RateLimited, OnRetryable
//
// 3. Backoff algorithms:
//   - FixedBackoff, ExponentialBackoff, LinearBackoff, FibonacciBackoff
//   - FullJitter and EqualJitter
//
// 4. Function decorators:
//   - WithRetry, WithRetryIn, WithRetryOnError, WithRetryOnErrorIn
//
// 5. Observability:
//   - zap logging through ZapEventHandler
//   - Prometheus metrics through PrometheusCollector
//   - one OpenTelemetry span per session
//   - gobreaker circuit breaking through Breaker
//
// Basic usage example:
//
//	// retry while the result is not ready, at most 5 times, 100ms apart
//	policy := retry.MaxRetries(5, retry.WithBackoff(
//		retry.While(func(s Status) bool { return !s.Ready }),
//		retry.NewFixedBackoff(100*time.Millisecond),
//	))
//
//	status, err := retry.Invoke(ctx, engine, pollStatus, policy)
//
// Error mode example:
//
//	policy := retry.MaxRetries(2, retry.OnErrors(ErrTimeout))
//	value, err := retry.InvokeOnError(ctx, engine, fetch, policy)
//	// after 3 failing calls err is the original ErrTimeout
//
// Stateful policies:
//
//	// stop once two outcomes have triggered retries, whatever Decide says
//	policy := retry.Until(retry.Always[int](), func(history []int) bool {
//		return len(history) >= 2
//	})
//
// Configuration:
//
//	cfg, err := retry.LoadConfig("retry.yaml")
//	policy, err := retry.PolicyFromConfig(cfg, retry.ExceptErrors(ErrInvalid))
//
// Session semantics:
//
// Every Invoke call runs a fresh session with its own ID and history; no
// state survives between calls. At most one attempt of a session runs at a
// time. Once a policy completes, the context ends or the circuit breaker
// opens, the session stops at its next check point and returns the outcome
// of the last attempt unmodified. A policy that returns an error or panics
// aborts the session with a *types.PolicyError.
//
// Thread safety:
//
// Engines, policies and backoffs are safe for concurrent use by any number of sessions.
package retry
