package retry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StopReason describes why a session ended
type StopReason int

const (
	// StopDeclined the policy did not trigger a retry for the latest outcome
	StopDeclined StopReason = iota
	// StopSucceeded the operation succeeded in error mode
	StopSucceeded
	// StopCompleted the policy completed and vetoed further attempts
	StopCompleted
	// StopCanceled the context ended before a further attempt
	StopCanceled
	// StopCircuitOpen the circuit breaker opened and vetoed further attempts
	StopCircuitOpen
	// StopOperationFailed the operation failed in result mode
	StopOperationFailed
	// StopPolicyFailed the policy returned an error or panicked
	StopPolicyFailed
)

// String returns the string representation of StopReason
func (r StopReason) String() string {
	switch r {
	case StopDeclined:
		return "declined"
	case StopSucceeded:
		return "succeeded"
	case StopCompleted:
		return "completed"
	case StopCanceled:
		return "canceled"
	case StopCircuitOpen:
		return "circuit_open"
	case StopOperationFailed:
		return "operation_failed"
	case StopPolicyFailed:
		return "policy_failed"
	default:
		return "unknown"
	}
}

// vetoed reports whether the reason came from a cancellation check rather than the probe
func (r StopReason) vetoed() bool {
	return r == StopCompleted || r == StopCanceled || r == StopCircuitOpen
}

// EventHandler handles retry events
type EventHandler interface {
	// OnAttempt is called before every attempt starts
	OnAttempt(ctx context.Context, info AttemptInfo)
	// OnRetry is called when the policy triggers a retry of the attempt in info.
	// err is the failure being retried in error mode and nil in result mode.
	OnRetry(ctx context.Context, info AttemptInfo, err error)
	// OnStop is called exactly once when a session ends
	OnStop(ctx context.Context, info AttemptInfo, reason StopReason, err error, duration time.Duration)
}

// NoopEventHandler ignores every event
type NoopEventHandler struct{}

func (NoopEventHandler) OnAttempt(context.Context, AttemptInfo) {}

func (NoopEventHandler) OnRetry(context.Context, AttemptInfo, error) {}

func (NoopEventHandler) OnStop(context.Context, AttemptInfo, StopReason, error, time.Duration) {}

// ZapEventHandler logs retry events with zap
type ZapEventHandler struct {
	logger *zap.Logger
}

// NewZapEventHandler creates an event handler that logs to logger.
// A nil logger logs nothing.
func NewZapEventHandler(logger *zap.Logger) *ZapEventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapEventHandler{logger: logger}
}

func infoFields(info AttemptInfo) []zap.Field {
	return []zap.Field{
		zap.String("engine", info.Engine),
		zap.String("session_id", info.SessionID),
		zap.Int("attempt", info.Attempt),
	}
}

// OnAttempt logs attempt starts at debug level
func (h *ZapEventHandler) OnAttempt(ctx context.Context, info AttemptInfo) {
	h.logger.Debug("retry attempt starting", infoFields(info)...)
}

// OnRetry logs triggered retries at debug level
func (h *ZapEventHandler) OnRetry(ctx context.Context, info AttemptInfo, err error) {
	fields := append(infoFields(info), zap.Int("retries", info.Retries))
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	h.logger.Debug("retry triggered", fields...)
}

// OnStop logs the end of a session; the level depends on the reason
func (h *ZapEventHandler) OnStop(ctx context.Context, info AttemptInfo, reason StopReason, err error, duration time.Duration) {
	fields := append(infoFields(info),
		zap.String("reason", reason.String()),
		zap.Duration("duration", duration),
	)
	if err != nil {
		fields = append(fields, zap.Error(err))
	}

	switch {
	case reason == StopPolicyFailed:
		h.logger.Error("retry policy failed", fields...)
	case reason.vetoed():
		h.logger.Warn("retry session vetoed", fields...)
	case err != nil:
		h.logger.Info("retry session failed", fields...)
	case info.Attempt > 1:
		h.logger.Info("retry session succeeded", fields...)
	default:
		h.logger.Debug("retry session finished", fields...)
	}
}
