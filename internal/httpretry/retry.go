// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httpretry provides HTTP helpers shared by outbound network calls.
package httpretry

import (
	"context"
	"io"
	"math"
	"net/http"
	"time"
)

// RetryBaseDelay controls the base duration for exponential backoff on
// retriable responses. Tests override this to avoid real sleeps.
var RetryBaseDelay = 10 * time.Second

const defaultMaxRetries = 5

// DoWithRetry executes an HTTP request and retries on HTTP 429 (Too Many
// Requests) and any 5xx server error, with exponential backoff. The delay
// starts at RetryBaseDelay (10 s) and doubles each attempt: 10 s, 20 s, 40 s,
// 80 s, 160 s. Per spec.md §4.7/§7, InferenceRuntimeError is retriable on
// "5xx/network/timeout", not rate limiting alone.
//
// When maxRetries is 0 the default (5) is used. req is cloned per attempt
// via req.Clone; if req.GetBody is set (as http.NewRequestWithContext does
// for non-nil bodies), each clone's body is reset from it so a request with
// a body can be retried correctly. On each retriable response the response
// body is drained and closed before sleeping. If the context is cancelled
// during a backoff wait the function returns ctx.Err(). After exhausting
// retries the last retriable response is returned so the caller can inspect
// it.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	for attempt := 0; ; attempt++ {
		attemptReq := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			attemptReq.Body = io.NopCloser(body)
		}

		resp, err := client.Do(attemptReq)
		if err != nil {
			return nil, err
		}

		if !isRetriableStatus(resp.StatusCode) {
			return resp, nil
		}

		// Exhausted retries — return the retriable response as-is.
		if attempt >= maxRetries {
			return resp, nil
		}

		// Drain and close the body before retrying.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		backoff := time.Duration(math.Pow(2, float64(attempt))) * RetryBaseDelay

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func isRetriableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
