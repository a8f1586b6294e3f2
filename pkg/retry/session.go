package retry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jzx17/goretry/pkg/types"
)

type attemptObserverKey struct{}

// withAttemptObserver asks the next session started with ctx to report its attempt count
func withAttemptObserver(ctx context.Context, fn func(attempts int)) context.Context {
	return context.WithValue(ctx, attemptObserverKey{}, fn)
}

// session is the per-invocation state of the engine.
// Only the goroutine running the attempt loop touches it; the cancelled flag
// is set once and never cleared.
type session[R, T any] struct {
	engine   *Engine
	policy   Policy[T]
	info     AttemptInfo
	recorder *Recorder[T]
	span     trace.Span

	cancelled atomic.Bool
	once      sync.Once
	reason    StopReason
	policyErr error
}

// projectFunc maps the outcome of one attempt onto the value the policy observes.
// It returns false with the stop reason when the outcome is terminal.
type projectFunc[R, T any] func(result R, err error) (T, StopReason, bool)

func invoke[R, T any](ctx context.Context, e *Engine, op Operation[R], policy Policy[T], project projectFunc[R, T]) (R, error) {
	var zero R
	if e == nil {
		e = defaultEngine
	}
	if op == nil {
		return zero, types.ErrNilOperation
	}
	if policy == nil {
		return zero, types.ErrNilPolicy
	}

	// the observer belongs to this session only, not to sessions nested in op
	observe, _ := ctx.Value(attemptObserverKey{}).(func(int))
	if observe != nil {
		ctx = context.WithValue(ctx, attemptObserverKey{}, nil)
	}

	s := newSession[R](ctx, e, policy)
	ctx = trace.ContextWithSpan(ctx, s.span)
	defer s.recorder.Close()

	e.updateStats(func(stats *Stats) {
		stats.Invocations++
	})

	for {
		s.info.Attempt++
		s.info.Retries = s.recorder.Len()
		attemptCtx := withAttemptInfo(ctx, s.info)

		e.eventHandler.OnAttempt(attemptCtx, s.info)
		e.metrics.RecordAttempt(e.name, s.info.Attempt)
		s.span.AddEvent("attempt", trace.WithAttributes(attribute.Int("retry.attempt", s.info.Attempt)))
		e.updateStats(func(stats *Stats) {
			stats.TotalAttempts++
		})

		result, err := s.run(attemptCtx, op)

		latest, reason, observed := project(result, err)
		if !observed {
			return s.finish(ctx, observe, reason, result, err)
		}

		// a veto that arrived during the attempt stops the loop but keeps its outcome
		s.checkDone(attemptCtx)
		if s.stopped(attemptCtx) {
			return s.finish(ctx, observe, s.reason, result, s.errOr(err))
		}

		retry, perr := s.decide(attemptCtx, latest)
		if perr != nil {
			return s.finish(ctx, observe, StopPolicyFailed, result, perr)
		}
		if !retry {
			reason := StopDeclined
			if attemptCtx.Err() != nil {
				reason = StopCanceled
			}
			return s.finish(ctx, observe, reason, result, err)
		}

		// publishing re-evaluates Done against the grown history
		s.recorder.Publish(latest)
		s.info.Retries = s.recorder.Len()
		e.updateStats(func(stats *Stats) {
			stats.TotalRetries++
			stats.LastRetryTime = e.clock.Now()
		})

		retryCtx := withAttemptInfo(ctx, s.info)
		if s.stopped(retryCtx) {
			return s.finish(ctx, observe, s.reason, result, s.errOr(err))
		}

		e.eventHandler.OnRetry(retryCtx, s.info, err)
		e.metrics.RecordRetry(e.name)
	}
}

func newSession[R, T any](ctx context.Context, e *Engine, policy Policy[T]) *session[R, T] {
	s := &session[R, T]{
		engine:   e,
		policy:   policy,
		recorder: NewRecorder[T](),
		info: AttemptInfo{
			SessionID: uuid.NewString(),
			Engine:    e.name,
			Start:     e.clock.Now(),
			Clock:     e.clock,
		},
	}

	_, s.span = e.tracer.Start(ctx, "retry.invoke",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("retry.engine", e.name),
			attribute.String("retry.session_id", s.info.SessionID),
		),
	)

	// long-lived view of the policy: completion is checked on every publication
	s.recorder.Subscribe(func(index int, _ T) {
		info := s.info
		info.Retries = index + 1
		s.checkDone(withAttemptInfo(ctx, info))
	})

	return s
}

// run executes one attempt, through the circuit breaker when one is configured
func (s *session[R, T]) run(ctx context.Context, op Operation[R]) (R, error) {
	breaker := s.engine.circuitBreaker
	if breaker == nil {
		return op(ctx)
	}

	var result R
	var opErr error
	err := breaker.Execute(func() error {
		result, opErr = op(ctx)
		return opErr
	})
	if opErr == nil && err != nil {
		// rejected without running op
		return result, err
	}
	return result, opErr
}

// cancel sets the cancellation flag. Only the first reason is kept.
func (s *session[R, T]) cancel(reason StopReason) {
	s.once.Do(func() {
		s.reason = reason
		s.cancelled.Store(true)
	})
}

// stopped reports whether the session is cancelled, checking the context and the breaker
func (s *session[R, T]) stopped(ctx context.Context) bool {
	if s.cancelled.Load() {
		return true
	}
	if ctx.Err() != nil {
		s.cancel(StopCanceled)
		return true
	}
	if breaker := s.engine.circuitBreaker; breaker != nil && breaker.IsOpen() {
		s.cancel(StopCircuitOpen)
		return true
	}
	return false
}

// checkDone asks the policy whether it has completed over the session history
func (s *session[R, T]) checkDone(ctx context.Context) {
	if s.cancelled.Load() {
		return
	}
	done, err := s.done(ctx)
	switch {
	case err != nil:
		s.policyErr = err
		s.cancel(StopPolicyFailed)
	case done:
		s.cancel(StopCompleted)
	}
}

func (s *session[R, T]) done(ctx context.Context) (done bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			done, err = true, s.policyError(fmt.Errorf("panic in Done: %v", r))
		}
	}()
	return s.policy.Done(ctx, s.recorder.History()), nil
}

func (s *session[R, T]) decide(ctx context.Context, latest T) (retry bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			retry, err = false, s.policyError(fmt.Errorf("panic in Decide: %v", r))
		}
	}()

	retry, err = s.policy.Decide(ctx, latest)
	if err != nil {
		return false, s.policyError(err)
	}
	return retry, nil
}

func (s *session[R, T]) policyError(cause error) error {
	return types.NewPolicyError(s.info.SessionID, s.info.Attempt, cause)
}

// errOr returns the policy failure that cancelled the session, or err
func (s *session[R, T]) errOr(err error) error {
	if s.reason == StopPolicyFailed && s.policyErr != nil {
		return s.policyErr
	}
	return err
}

func (s *session[R, T]) finish(ctx context.Context, observe func(int), reason StopReason, result R, err error) (R, error) {
	e := s.engine
	duration := e.clock.Since(s.info.Start)

	e.updateStats(func(stats *Stats) {
		if err != nil {
			stats.TotalFailures++
		} else {
			stats.TotalSuccesses++
		}
		if reason.vetoed() {
			stats.TotalVetoes++
		}
		if reason == StopPolicyFailed {
			stats.PolicyErrors++
		}
		stats.updateAverageAttempts()
	})

	e.eventHandler.OnStop(withAttemptInfo(ctx, s.info), s.info, reason, err, duration)
	e.metrics.RecordStop(e.name, reason, s.info.Attempt, duration)

	s.span.SetAttributes(
		attribute.Int("retry.attempts", s.info.Attempt),
		attribute.String("retry.stop_reason", reason.String()),
	)
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()

	if observe != nil {
		observe(s.info.Attempt)
	}
	return result, err
}
