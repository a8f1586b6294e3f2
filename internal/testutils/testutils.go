// Package testutils provides scripted operations and HTTP fixtures for retry tests
package testutils

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jzx17/goretry/pkg/types"
)

// DefaultTimeout bounds every test context
const DefaultTimeout = 5 * time.Second

// Context returns a context that is canceled when the test ends or DefaultTimeout elapses
func Context(t testing.TB) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	t.Cleanup(cancel)
	return ctx
}

// Script is an operation that replays a fixed sequence of outcomes.
// Once the sequence is exhausted the last outcome repeats.
type Script[R any] struct {
	mu    sync.Mutex
	steps []types.Outcome[R]
	calls int
	args  []any
}

// NewScript creates a script from explicit outcomes
func NewScript[R any](steps ...types.Outcome[R]) *Script[R] {
	return &Script[R]{steps: steps}
}

// Values creates a script that returns each value in turn
func Values[R any](values ...R) *Script[R] {
	steps := make([]types.Outcome[R], len(values))
	for i, v := range values {
		steps[i] = types.Outcome[R]{Value: v}
	}
	return NewScript(steps...)
}

// Errors creates a script that fails with each error in turn
func Errors[R any](errs ...error) *Script[R] {
	steps := make([]types.Outcome[R], len(errs))
	for i, err := range errs {
		steps[i] = types.Outcome[R]{Err: err}
	}
	return NewScript(steps...)
}

// Op runs the next step of the script
func (s *Script[R]) Op(ctx context.Context) (R, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.calls
	if idx >= len(s.steps) {
		idx = len(s.steps) - 1
	}
	s.calls++

	if idx < 0 {
		var zero R
		return zero, nil
	}
	step := s.steps[idx]
	return step.Value, step.Err
}

// OpWith runs the next step and records the argument it was called with
func OpWith[A, R any](s *Script[R]) func(context.Context, A) (R, error) {
	return func(ctx context.Context, arg A) (R, error) {
		s.mu.Lock()
		s.args = append(s.args, arg)
		s.mu.Unlock()
		return s.Op(ctx)
	}
}

// Calls returns the number of times the script ran
func (s *Script[R]) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Args returns the arguments recorded by OpWith
func (s *Script[R]) Args() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]any, len(s.args))
	copy(out, s.args)
	return out
}

// TrackedBody is a response body that counts how often it was closed
type TrackedBody struct {
	io.Reader
	closes atomic.Int32
}

// Close implements io.Closer
func (b *TrackedBody) Close() error {
	b.closes.Add(1)
	return nil
}

// Closes returns the number of Close calls
func (b *TrackedBody) Closes() int {
	return int(b.closes.Load())
}

// NewResponse builds a response with a tracked body
func NewResponse(status int, body string) (*http.Response, *TrackedBody) {
	tracked := &TrackedBody{Reader: strings.NewReader(body)}
	resp := &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     make(http.Header),
		Body:       tracked,
	}
	return resp, tracked
}

// Doer replays canned responses and records every request it receives
type Doer struct {
	mu        sync.Mutex
	responses []*http.Response
	errs      []error
	requests  []*http.Request
}

// NewDoer creates a Doer that returns responses in order, repeating the last one
func NewDoer(responses ...*http.Response) *Doer {
	return &Doer{responses: responses}
}

// FailAt makes the nth call (0-based) return err instead of a response
func (d *Doer) FailAt(n int, err error) *Doer {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.errs) <= n {
		d.errs = append(d.errs, nil)
	}
	d.errs[n] = err
	return d
}

// Do implements the HTTP transport contract
func (d *Doer) Do(req *http.Request) (*http.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := len(d.requests)
	d.requests = append(d.requests, req)

	if n < len(d.errs) && d.errs[n] != nil {
		return nil, d.errs[n]
	}
	if len(d.responses) == 0 {
		return nil, types.ErrNilResponse
	}
	if n >= len(d.responses) {
		n = len(d.responses) - 1
	}
	return d.responses[n], nil
}

// Requests returns the requests received so far
func (d *Doer) Requests() []*http.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*http.Request, len(d.requests))
	copy(out, d.requests)
	return out
}
