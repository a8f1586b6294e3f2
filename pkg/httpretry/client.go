package httpretry

import (
	"context"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/jzx17/goretry/pkg/retry"
	"github.com/jzx17/goretry/pkg/types"
)

// DefaultDrainLimit is the number of body bytes read from a superseded
// response before it is closed, so its connection can be reused
const DefaultDrainLimit = 4096

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client sends requests with retry
type Client struct {
	doer       Doer
	engine     *retry.Engine
	logger     *zap.Logger
	drainLimit int64
}

// Option is a configuration option for Client
type Option func(*Client)

// WithEngine sets the engine running retry sessions
func WithEngine(engine *retry.Engine) Option {
	return func(c *Client) {
		c.engine = engine
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDrainLimit sets how many body bytes are drained from a superseded response.
// Zero closes responses without draining.
func WithDrainLimit(n int64) Option {
	return func(c *Client) {
		if n >= 0 {
			c.drainLimit = n
		}
	}
}

// NewClient creates a client sending requests through doer.
// A nil doer uses http.DefaultClient.
func NewClient(doer Doer, opts ...Option) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}

	c := &Client{
		doer:       doer,
		logger:     zap.NewNop(),
		drainLimit: DefaultDrainLimit,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.engine == nil {
		c.engine = retry.NewEngine(retry.WithName("http"), retry.WithLogger(c.logger))
	}

	return c
}

// SendWithRetry sends a request from factory and retries while policy asks for it.
//
// Successful (2xx) and client error (4xx) responses are terminal: they are
// returned without consulting policy at all. Any other response is offered
// to policy, which decides whether a fresh request is sent. Each response
// superseded by a newer one is drained and closed exactly once; only the
// returned response is left open for the caller.
//
// A transport error ends the session: the pending response is released and
// the error is returned as is.
func (c *Client) SendWithRetry(ctx context.Context, factory RequestFactory, policy retry.Policy[*http.Response]) (*http.Response, error) {
	if factory == nil {
		return nil, types.ErrNilOperation
	}
	if policy == nil {
		return nil, types.ErrNilPolicy
	}

	first, err := c.send(ctx, factory)
	if err != nil {
		return nil, err
	}
	if IsTerminal(first) {
		return first, nil
	}

	// the loop is sequential, so the candidate needs no locking
	current := first
	seeded := false
	op := func(ctx context.Context) (*http.Response, error) {
		if !seeded {
			seeded = true
			return first, nil
		}

		resp, err := c.send(ctx, factory)
		c.release(ctx, current)
		current = resp
		if err != nil {
			return nil, err
		}
		return resp, nil
	}

	resp, err := retry.Invoke(ctx, c.engine, op, retry.When(retriable, policy))
	if err != nil {
		c.release(ctx, current)
		return nil, err
	}
	return resp, nil
}

// SendWithRetry sends a request through doer with a default client
func SendWithRetry(ctx context.Context, doer Doer, factory RequestFactory, policy retry.Policy[*http.Response]) (*http.Response, error) {
	return NewClient(doer).SendWithRetry(ctx, factory, policy)
}

// send builds a request and sends it once
func (c *Client) send(ctx context.Context, factory RequestFactory) (*http.Response, error) {
	req, err := factory(ctx)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, errors.New("retry: request factory returned nil request")
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	if resp == nil {
		return nil, types.ErrNilResponse
	}
	return resp, nil
}

// release drains and closes a response that will not be returned
func (c *Client) release(ctx context.Context, resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	if c.drainLimit > 0 {
		_, _ = io.CopyN(io.Discard, resp.Body, c.drainLimit)
	}
	_ = resp.Body.Close()

	info := retry.InfoFromContext(ctx)
	c.logger.Debug("released superseded response",
		zap.Int("status", resp.StatusCode),
		zap.String("session_id", info.SessionID),
		zap.Int("attempt", info.Attempt),
	)
}
