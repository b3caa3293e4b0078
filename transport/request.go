package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	llmstream "github.com/haowjy/meridian-stream-go"
)

// Request performs one non-streaming exchange, retrying retryable failures
// with the retry knobs from the client configuration. The response body is
// returned verbatim; domain unmarshalling belongs to a higher layer.
func (c *Client) Request(ctx context.Context, endpoint string, payload []byte, headers map[string]string) ([]byte, error) {
	return c.RequestWithRetry(ctx, endpoint, payload, headers, c.cfg.MaxRetries, c.cfg.RetryBaseDelay)
}

// RequestWithRetry is Request with explicit retry parameters. maxRetries is
// the number of additional attempts, so maxRetries = N performs at most N+1
// attempts. Only rate-limit and server-error failures are retried; attempt n
// sleeps baseDelay * n before the next try. When retries are exhausted the
// last classified error is returned.
func (c *Client) RequestWithRetry(ctx context.Context, endpoint string, payload []byte, headers map[string]string, maxRetries int, baseDelay time.Duration) ([]byte, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		body, err := c.requestOnce(ctx, endpoint, payload, headers)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !llmstream.IsRetryable(err) {
			return nil, err
		}
		if attempt == maxRetries+1 {
			break
		}

		delay := time.Duration(attempt) * baseDelay
		c.log.WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay,
			"kind":    llmstream.KindOf(err),
		}).Warn("request failed, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &llmstream.TransportError{
				Kind:    llmstream.KindRequest,
				Message: fmt.Sprintf("request aborted while waiting to retry: %v", ctx.Err()),
				Err:     ctx.Err(),
			}
		}
	}
	return nil, lastErr
}

// requestOnce performs a single blocking exchange attempt.
func (c *Client) requestOnce(ctx context.Context, endpoint string, payload []byte, headers map[string]string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, endpoint, payload, headers)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &llmstream.TransportError{
			Kind:    llmstream.KindRequest,
			Message: fmt.Sprintf("request failed: %v", err),
			Err:     err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &llmstream.TransportError{
			Kind:    llmstream.KindRequest,
			Message: fmt.Sprintf("reading response body: %v", err),
			Err:     err,
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, llmstream.ClassifyResponse(resp.StatusCode, body)
	}
	return body, nil
}
