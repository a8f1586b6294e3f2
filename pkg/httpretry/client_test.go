package httpretry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jzx17/goretry/internal/testutils"
	"github.com/jzx17/goretry/pkg/retry"
	"github.com/jzx17/goretry/pkg/types"
)

var errConnReset = errors.New("connection reset")

func getFactory(t *testing.T) RequestFactory {
	req, err := http.NewRequest(http.MethodGet, "http://backend.local/orders", nil)
	require.NoError(t, err)
	factory, err := FromRequest(req)
	require.NoError(t, err)
	return factory
}

func TestSendWithRetry_TerminalShortcut(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusNoContent, http.StatusNotFound, http.StatusTooManyRequests} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			resp, body := testutils.NewResponse(status, "body")
			doer := testutils.NewDoer(resp)

			consulted := false
			policy := retry.Tap(retry.Always[*http.Response](), func(context.Context, *http.Response) {
				consulted = true
			})

			got, err := SendWithRetry(testutils.Context(t), doer, getFactory(t), policy)

			require.NoError(t, err)
			assert.Same(t, resp, got)
			assert.Len(t, doer.Requests(), 1)
			assert.False(t, consulted)
			assert.Equal(t, 0, body.Closes())
		})
	}
}

func TestSendWithRetry_DisposesSupersededResponses(t *testing.T) {
	r1, b1 := testutils.NewResponse(http.StatusServiceUnavailable, "busy")
	r2, b2 := testutils.NewResponse(http.StatusServiceUnavailable, "busy")
	r3, b3 := testutils.NewResponse(http.StatusServiceUnavailable, "busy")
	doer := testutils.NewDoer(r1, r2, r3)

	got, err := SendWithRetry(testutils.Context(t), doer, getFactory(t), retry.MaxAttempts(3, retry.Always[*http.Response]()))

	require.NoError(t, err)
	assert.Same(t, r3, got)
	assert.Len(t, doer.Requests(), 3)
	assert.Equal(t, 1, b1.Closes())
	assert.Equal(t, 1, b2.Closes())
	assert.Equal(t, 0, b3.Closes())
}

func TestSendWithRetry_RecoversAfterServerErrors(t *testing.T) {
	r1, b1 := testutils.NewResponse(http.StatusServiceUnavailable, "")
	r2, b2 := testutils.NewResponse(http.StatusBadGateway, "")
	r3, b3 := testutils.NewResponse(http.StatusOK, "ok")
	doer := testutils.NewDoer(r1, r2, r3)

	got, err := SendWithRetry(testutils.Context(t), doer, getFactory(t), ServerErrors())

	require.NoError(t, err)
	assert.Same(t, r3, got)
	assert.Equal(t, 1, b1.Closes())
	assert.Equal(t, 1, b2.Closes())
	assert.Equal(t, 0, b3.Closes())
}

func TestSendWithRetry_ClientErrorAfterRetryIsTerminal(t *testing.T) {
	r1, b1 := testutils.NewResponse(http.StatusServiceUnavailable, "")
	r2, b2 := testutils.NewResponse(http.StatusNotFound, "")
	r3, _ := testutils.NewResponse(http.StatusOK, "")
	doer := testutils.NewDoer(r1, r2, r3)

	got, err := SendWithRetry(testutils.Context(t), doer, getFactory(t), retry.Always[*http.Response]())

	require.NoError(t, err)
	assert.Same(t, r2, got)
	assert.Len(t, doer.Requests(), 2)
	assert.Equal(t, 1, b1.Closes())
	assert.Equal(t, 0, b2.Closes())
}

func TestSendWithRetry_PolicyDeclines(t *testing.T) {
	r1, b1 := testutils.NewResponse(http.StatusBadGateway, "")
	r2, _ := testutils.NewResponse(http.StatusServiceUnavailable, "")
	doer := testutils.NewDoer(r1, r2)

	got, err := SendWithRetry(testutils.Context(t), doer, getFactory(t), Statuses(http.StatusServiceUnavailable))

	require.NoError(t, err)
	assert.Same(t, r1, got)
	assert.Len(t, doer.Requests(), 1)
	assert.Equal(t, 0, b1.Closes())
}

func TestSendWithRetry_Statuses(t *testing.T) {
	r1, b1 := testutils.NewResponse(http.StatusBadGateway, "")
	r2, b2 := testutils.NewResponse(http.StatusServiceUnavailable, "")
	doer := testutils.NewDoer(r1, r2)

	got, err := SendWithRetry(testutils.Context(t), doer, getFactory(t), Statuses(http.StatusBadGateway))

	require.NoError(t, err)
	assert.Same(t, r2, got)
	assert.Equal(t, 1, b1.Closes())
	assert.Equal(t, 0, b2.Closes())
}

func TestSendWithRetry_TransportError(t *testing.T) {
	r1, b1 := testutils.NewResponse(http.StatusServiceUnavailable, "")
	doer := testutils.NewDoer(r1).FailAt(1, errConnReset)

	got, err := SendWithRetry(testutils.Context(t), doer, getFactory(t), retry.Always[*http.Response]())

	assert.Nil(t, got)
	assert.Same(t, errConnReset, err)
	assert.Len(t, doer.Requests(), 2)
	assert.Equal(t, 1, b1.Closes())
}

func TestSendWithRetry_FirstTransportError(t *testing.T) {
	doer := testutils.NewDoer().FailAt(0, errConnReset)

	got, err := SendWithRetry(testutils.Context(t), doer, getFactory(t), retry.Always[*http.Response]())

	assert.Nil(t, got)
	assert.Same(t, errConnReset, err)
	assert.Len(t, doer.Requests(), 1)
}

func TestSendWithRetry_NilResponse(t *testing.T) {
	_, err := SendWithRetry(testutils.Context(t), testutils.NewDoer(), getFactory(t), retry.Always[*http.Response]())
	assert.ErrorIs(t, err, types.ErrNilResponse)
}

func TestSendWithRetry_PolicyErrorReleasesResponse(t *testing.T) {
	r1, b1 := testutils.NewResponse(http.StatusServiceUnavailable, "")
	doer := testutils.NewDoer(r1)
	policy := retry.PolicyFunc[*http.Response](func(context.Context, *http.Response) (bool, error) {
		return false, errors.New("broken")
	})

	got, err := SendWithRetry(testutils.Context(t), doer, getFactory(t), policy)

	assert.Nil(t, got)
	assert.ErrorIs(t, err, types.ErrPolicyFailed)
	assert.Equal(t, 1, b1.Closes())
}

func TestSendWithRetry_FactoryError(t *testing.T) {
	errBuild := errors.New("cannot build request")
	r1, b1 := testutils.NewResponse(http.StatusServiceUnavailable, "")
	doer := testutils.NewDoer(r1)

	calls := 0
	factory := func(ctx context.Context) (*http.Request, error) {
		calls++
		if calls > 1 {
			return nil, errBuild
		}
		return http.NewRequestWithContext(ctx, http.MethodGet, "http://backend.local", nil)
	}

	_, err := SendWithRetry(testutils.Context(t), doer, factory, retry.Always[*http.Response]())

	assert.Same(t, errBuild, err)
	assert.Equal(t, 1, b1.Closes())

	_, err = SendWithRetry(testutils.Context(t), doer, func(context.Context) (*http.Request, error) {
		return nil, nil
	}, retry.Always[*http.Response]())
	assert.Error(t, err)
}

func TestSendWithRetry_NilArguments(t *testing.T) {
	ctx := testutils.Context(t)
	doer := testutils.NewDoer()

	_, err := SendWithRetry(ctx, doer, nil, retry.Always[*http.Response]())
	assert.ErrorIs(t, err, types.ErrNilOperation)

	_, err = SendWithRetry(ctx, doer, getFactory(t), nil)
	assert.ErrorIs(t, err, types.ErrNilPolicy)
	assert.Empty(t, doer.Requests())
}

func TestClient_FreshRequestPerAttempt(t *testing.T) {
	r1, _ := testutils.NewResponse(http.StatusServiceUnavailable, "")
	r2, _ := testutils.NewResponse(http.StatusOK, "")
	doer := testutils.NewDoer(r1, r2)

	client := NewClient(doer)
	_, err := client.SendWithRetry(testutils.Context(t), getFactory(t), ServerErrors())
	require.NoError(t, err)

	requests := doer.Requests()
	require.Len(t, requests, 2)
	assert.NotSame(t, requests[0], requests[1])
	assert.Equal(t, requests[0].URL.String(), requests[1].URL.String())
}

func TestClient_LogsReleasedResponses(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r1, _ := testutils.NewResponse(http.StatusServiceUnavailable, "")
	r2, _ := testutils.NewResponse(http.StatusOK, "")

	client := NewClient(testutils.NewDoer(r1, r2), WithLogger(zap.New(core)))
	_, err := client.SendWithRetry(testutils.Context(t), getFactory(t), ServerErrors())
	require.NoError(t, err)

	released := logs.FilterMessage("released superseded response").All()
	require.Len(t, released, 1)
	assert.Equal(t, int64(http.StatusServiceUnavailable), released[0].ContextMap()["status"])
	assert.Equal(t, int64(2), released[0].ContextMap()["attempt"])

	// the default engine logs its sessions to the same logger
	assert.Equal(t, 2, logs.FilterMessage("retry attempt starting").Len())
}

func TestClient_WithEngine(t *testing.T) {
	engine := retry.NewEngine(retry.WithName("backend"))
	r1, _ := testutils.NewResponse(http.StatusServiceUnavailable, "")
	r2, _ := testutils.NewResponse(http.StatusOK, "")

	client := NewClient(testutils.NewDoer(r1, r2), WithEngine(engine), WithDrainLimit(0))
	_, err := client.SendWithRetry(testutils.Context(t), getFactory(t), ServerErrors())
	require.NoError(t, err)

	stats := engine.Stats()
	assert.Equal(t, int64(1), stats.Invocations)
	assert.Equal(t, int64(2), stats.TotalAttempts)
	assert.Equal(t, int64(1), stats.TotalRetries)
}

func TestClient_RespectRetryAfter(t *testing.T) {
	r1, _ := testutils.NewResponse(http.StatusServiceUnavailable, "")
	r1.Header.Set("Retry-After", "120")
	r2, _ := testutils.NewResponse(http.StatusOK, "")

	policy := RespectRetryAfter(ServerErrors(), 10*time.Millisecond)

	start := time.Now()
	got, err := SendWithRetry(testutils.Context(t), testutils.NewDoer(r1, r2), getFactory(t), policy)

	require.NoError(t, err)
	assert.Same(t, r2, got)
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 10*time.Millisecond)
	assert.Less(t, elapsed, time.Minute)
}

func TestClient_HTTPServer(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != "payload" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, strings.Repeat("x", 8192))
			return
		}
		_, _ = io.WriteString(w, "created")
	}))
	defer server.Close()

	req, err := http.NewRequest(http.MethodPost, server.URL, strings.NewReader("payload"))
	require.NoError(t, err)
	factory, err := FromRequest(req)
	require.NoError(t, err)

	resp, err := SendWithRetry(testutils.Context(t), server.Client(), factory, retry.MaxRetries(5, ServerErrors()))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "created", string(body))
	assert.Equal(t, int32(3), hits.Load())
}
