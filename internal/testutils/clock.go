package testutils

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"

	"github.com/jzx17/goretry/pkg/types"
)

// MockClock is a quartz mock usable as an engine clock
type MockClock struct {
	mock *quartz.Mock
}

// NewMockClock creates a mock clock failing t on misuse
func NewMockClock(t testing.TB) *MockClock {
	return &MockClock{mock: quartz.NewMock(t)}
}

// Advance moves the clock forward and waits until every timer due by then has fired
func (c *MockClock) Advance(ctx context.Context, d time.Duration) {
	c.mock.Advance(d).MustWait(ctx)
}

// Now implements types.Clock
func (c *MockClock) Now() time.Time {
	return c.mock.Now()
}

// Since implements types.Clock
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.mock.Since(t)
}

// After implements types.Clock
func (c *MockClock) After(d time.Duration) <-chan time.Time {
	return c.mock.NewTimer(d).C
}

// NewTimer implements types.Clock
func (c *MockClock) NewTimer(d time.Duration) types.Timer {
	return &mockTimer{timer: c.mock.NewTimer(d)}
}

type mockTimer struct {
	timer *quartz.Timer
}

func (t *mockTimer) C() <-chan time.Time {
	return t.timer.C
}

func (t *mockTimer) Stop() bool {
	return t.timer.Stop()
}

func (t *mockTimer) Reset(d time.Duration) bool {
	return t.timer.Reset(d)
}
