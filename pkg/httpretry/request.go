package httpretry

import (
	"bytes"
	"context"
	"net/http"

	"github.com/jzx17/goretry/pkg/types"
)

// RequestFactory builds the request for one attempt. It is called once per
// attempt, so every attempt sends a fresh request.
type RequestFactory func(ctx context.Context) (*http.Request, error)

// FromRequest builds a factory that clones req for every attempt.
// A request with a body must set GetBody so the body can be replayed;
// http.NewRequest does so for the common in-memory readers.
func FromRequest(req *http.Request) (RequestFactory, error) {
	if req == nil {
		return nil, types.ErrNilOperation
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return nil, types.ErrBodyNotReplayable
	}

	return func(ctx context.Context) (*http.Request, error) {
		out := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			out.Body = body
		}
		return out, nil
	}, nil
}

// NewRequest builds a factory for a request with an in-memory body.
// header is copied into every request.
func NewRequest(method, url string, body []byte, header http.Header) RequestFactory {
	return func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		for key, values := range header {
			for _, v := range values {
				req.Header.Add(key, v)
			}
		}
		return req, nil
	}
}
