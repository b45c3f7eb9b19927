// Package backend talks to the upstream SSE endpoint.
package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	log "github.com/sirupsen/logrus"
)

// StatusError is returned by Stream when the backend answers with a
// non-success status instead of an event stream.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.Code, e.Body)
}

// Client issues streaming requests to a single SSE endpoint. One Stream call
// corresponds to one bridge session; the Client itself is safe for
// concurrent use by any number of sessions.
type Client struct {
	url   string
	httpc *http.Client
}

func NewClient(url string, connectTimeout time.Duration) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: connectTimeout,
		}).DialContext,
		ResponseHeaderTimeout: connectTimeout,
		// Streams are long-lived, keep the idle pool small.
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}
	return &Client{
		url: url,
		// No client-level timeout: it would cut the response body off
		// mid-stream. Read deadlines are the session's job.
		httpc: &http.Client{Transport: transport},
	}
}

// URL returns the configured endpoint.
func (c *Client) URL() string {
	return c.url
}

// Stream POSTs payload to the endpoint and returns the response body without
// buffering it, so chunks surface as soon as they arrive on the wire.
// Cancelling ctx aborts the in-flight request and releases the connection.
// The caller owns the returned body and must close it.
func (c *Client) Stream(ctx context.Context, payload []byte) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building backend request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	res, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend request failed: %w", err)
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		res.Body.Close()
		return nil, &StatusError{Code: res.StatusCode, Body: string(body)}
	}
	return res.Body, nil
}

// HealthCheck reports whether the backend is reachable. Any HTTP response
// counts: the probe asks for reachability, not for a stream.
func (c *Client) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.url, nil)
	if err != nil {
		return err
	}
	res, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	res.Body.Close()
	return nil
}

// WaitReady probes the backend with fibonacci backoff until it responds or
// the deadline passes. Startup convenience only: a backend that comes up
// late is not fatal, sessions will surface their own errors.
func (c *Client) WaitReady(ctx context.Context, maxWait time.Duration) error {
	log := log.WithField("prefix", "backend.WaitReady")

	b := retry.NewFibonacci(500 * time.Millisecond)
	b = retry.WithCappedDuration(5*time.Second, b)
	b = retry.WithMaxDuration(maxWait, b)

	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := c.HealthCheck(); err != nil {
			log.Debugf("backend not ready: %v", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}
