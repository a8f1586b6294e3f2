package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/jzx17/goretry/pkg/types"
)

type attemptInfoKey struct{}

// AttemptInfo describes the session state visible to an operation or policy.
// The engine stores it in the context passed to both.
type AttemptInfo struct {
	// SessionID uniquely identifies one Invoke call
	SessionID string

	// Engine is the name of the engine running the session
	Engine string

	// Attempt is the 1-based number of the attempt being run or evaluated
	Attempt int

	// Retries is the number of outcomes published to the session recorder so far
	Retries int

	// Start is when the session began
	Start time.Time

	// Clock is the engine clock; policies should wait and measure with it
	Clock types.Clock
}

// String implements fmt.Stringer
func (i AttemptInfo) String() string {
	return fmt.Sprintf("session %s attempt %d", i.SessionID, i.Attempt)
}

// InfoFromContext returns the attempt info stored by the engine.
// Outside an engine session it returns a zero AttemptInfo with a real clock.
func InfoFromContext(ctx context.Context) AttemptInfo {
	if info, ok := ctx.Value(attemptInfoKey{}).(AttemptInfo); ok {
		return info
	}
	return AttemptInfo{Clock: types.ClockFromContext(ctx)}
}

// InSession reports whether ctx belongs to an engine session
func InSession(ctx context.Context) bool {
	_, ok := ctx.Value(attemptInfoKey{}).(AttemptInfo)
	return ok
}

func withAttemptInfo(ctx context.Context, info AttemptInfo) context.Context {
	return context.WithValue(ctx, attemptInfoKey{}, info)
}
