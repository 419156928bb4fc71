// Package httpclient implements the provider HTTP client: JSON GET with
// retries, timeouts, and a bounded pooled transport (retry_count=3, linear
// backoff, a capped idle-connection pool).
//
// No error is raised to callers for a transient failure; it degrades to a
// nil result after retries are exhausted. Permanent transport errors are
// not retried.
package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Options configures a Client's retry and pooling policy.
type Options struct {
	Timeout       time.Duration
	RetryCount    int
	RetryDelay    time.Duration
	MaxIdleConns  int
	MaxIdlePerHost int
}

// DefaultOptions mirrors ESPNClient's concrete values.
func DefaultOptions() Options {
	return Options{
		Timeout:        10 * time.Second,
		RetryCount:     3,
		RetryDelay:     1 * time.Second,
		MaxIdleConns:   100,
		MaxIdlePerHost: 10,
	}
}

// Client is a pooled, retrying JSON HTTP client shared across provider adapters.
type Client struct {
	hc      *http.Client
	opts    Options
}

// New builds a Client with a process-global pooled transport.
func New(opts Options) *Client {
	transport := &http.Transport{
		MaxIdleConns:        opts.MaxIdleConns,
		MaxIdleConnsPerHost: opts.MaxIdlePerHost,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		hc: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		opts: opts,
	}
}

// GetJSON performs a GET against url, decoding the JSON response body into
// dest. On transport error or 5xx it retries up to opts.RetryCount times
// with linear backoff (opts.RetryDelay * attempt). On a 4xx or malformed
// JSON it does not retry. Every failure returns ok=false together with a
// non-nil err describing it (the last one seen, after retries), for the
// caller to log; callers must treat a false ok as "degrade to none", never
// propagate a panic or crash the run.
func (c *Client) GetJSON(ctx context.Context, url string, dest interface{}) (bool, error) {
	var lastErr error

	for attempt := 0; attempt <= c.opts.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(c.opts.RetryDelay * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.hc.Do(req)
		if err != nil {
			lastErr = err
			log.Printf("[httpclient] transport error (attempt %d/%d): %v", attempt+1, c.opts.RetryCount+1, err)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: HTTP %d", resp.StatusCode)
			log.Printf("[httpclient] 5xx (attempt %d/%d): %v", attempt+1, c.opts.RetryCount+1, lastErr)
			continue
		}

		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return false, fmt.Errorf("client error: HTTP %d", resp.StatusCode)
		}

		decodeErr := json.NewDecoder(resp.Body).Decode(dest)
		resp.Body.Close()
		if decodeErr != nil {
			return false, fmt.Errorf("decode: %w", decodeErr)
		}
		return true, nil
	}

	return false, lastErr
}
