package httpretry

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jzx17/goretry/pkg/retry"
	"github.com/jzx17/goretry/pkg/types"
)

// IsTerminal reports whether resp ends a retry session regardless of policy:
// a successful (2xx) or client error (4xx) status
func IsTerminal(resp *http.Response) bool {
	if resp == nil {
		return false
	}
	code := resp.StatusCode
	return (code >= 200 && code < 300) || (code >= 400 && code < 500)
}

func retriable(resp *http.Response) bool {
	return resp != nil && !IsTerminal(resp)
}

// ServerErrors retries every 5xx response
func ServerErrors() retry.Policy[*http.Response] {
	return retry.While(func(resp *http.Response) bool {
		return resp.StatusCode >= 500 && resp.StatusCode < 600
	})
}

// Statuses retries responses with one of the given status codes
func Statuses(codes ...int) retry.Policy[*http.Response] {
	set := make(map[int]struct{}, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	return retry.While(func(resp *http.Response) bool {
		_, ok := set[resp.StatusCode]
		return ok
	})
}

// RespectRetryAfter waits for the Retry-After header of a 503 response
// before each retry p triggers. The wait uses the engine clock and is capped
// at limit when limit is positive.
func RespectRetryAfter(p retry.Policy[*http.Response], limit time.Duration) retry.Policy[*http.Response] {
	return &retryAfterPolicy{inner: p, limit: limit}
}

type retryAfterPolicy struct {
	inner retry.Policy[*http.Response]
	limit time.Duration
}

func (p *retryAfterPolicy) Decide(ctx context.Context, resp *http.Response) (bool, error) {
	again, err := p.inner.Decide(ctx, resp)
	if err != nil || !again {
		return again, err
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		return true, nil
	}

	info := retry.InfoFromContext(ctx)
	delay, ok := ParseRetryAfter(resp.Header.Get("Retry-After"), info.Clock.Now())
	if !ok {
		return true, nil
	}
	if p.limit > 0 && delay > p.limit {
		delay = p.limit
	}
	if err := types.Wait(ctx, info.Clock, delay); err != nil {
		return false, nil
	}
	return true, nil
}

func (p *retryAfterPolicy) Done(ctx context.Context, history []*http.Response) bool {
	return p.inner.Done(ctx, history)
}

// ParseRetryAfter parses a Retry-After header value, either delay seconds or
// an HTTP date relative to now. A date in the past yields zero.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}

	if t, err := http.ParseTime(value); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}

	return 0, false
}
