// Package httpretry retries HTTP requests on top of the retry engine.
//
// Successful and client error responses are terminal and are returned
// without consulting the retry policy. Every other response is offered to
// the policy; when it triggers a retry, a fresh request is built by the
// RequestFactory and the superseded response is drained and closed.
//
// Basic usage example:
//
//	factory, err := httpretry.FromRequest(req)
//	if err != nil {
//		return err
//	}
//
//	policy := retry.MaxRetries(3, retry.WithBackoff(
//		httpretry.RespectRetryAfter(httpretry.ServerErrors(), 10*time.Second),
//		retry.NewExponentialBackoff(200*time.Millisecond),
//	))
//
//	resp, err := httpretry.SendWithRetry(ctx, http.DefaultClient, factory, policy)
//	if err != nil {
//		return err
//	}
//	defer resp.Body.Close()
package httpretry
