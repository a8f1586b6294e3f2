package retry

import "context"

// WithRetry returns fn with result-triggered retry attached.
// Every call of the returned function runs its own engine session.
func WithRetry[R any](e *Engine, fn Operation[R], policy Policy[R]) Operation[R] {
	return func(ctx context.Context) (R, error) {
		return Invoke(ctx, e, fn, policy)
	}
}

// WithRetryIn is WithRetry for single-argument functions.
// The argument of a call is passed unchanged to every attempt of that call.
func WithRetryIn[A, R any](e *Engine, fn func(ctx context.Context, arg A) (R, error), policy Policy[R]) func(ctx context.Context, arg A) (R, error) {
	return func(ctx context.Context, arg A) (R, error) {
		return Invoke(ctx, e, bind(fn, arg), policy)
	}
}

// WithRetryOnError returns fn with error-triggered retry attached
func WithRetryOnError[R any](e *Engine, fn Operation[R], policy Policy[error]) Operation[R] {
	return func(ctx context.Context) (R, error) {
		return InvokeOnError(ctx, e, fn, policy)
	}
}

// WithRetryOnErrorIn is WithRetryOnError for single-argument functions
func WithRetryOnErrorIn[A, R any](e *Engine, fn func(ctx context.Context, arg A) (R, error), policy Policy[error]) func(ctx context.Context, arg A) (R, error) {
	return func(ctx context.Context, arg A) (R, error) {
		return InvokeOnError(ctx, e, bind(fn, arg), policy)
	}
}

func bind[A, R any](fn func(context.Context, A) (R, error), arg A) Operation[R] {
	if fn == nil {
		return nil
	}
	return func(ctx context.Context) (R, error) {
		return fn(ctx, arg)
	}
}
