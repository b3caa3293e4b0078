// Package transport manages streaming and non-streaming HTTP exchanges
// against an SSE-speaking endpoint, turning the response into projected
// stream events under a caller-chosen consumption mode.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	llmstream "github.com/haowjy/meridian-stream-go"
	"github.com/haowjy/meridian-stream-go/sse"
)

// cancelPollInterval bounds how long a cancel request can go unnoticed while
// the connection is silent. Cancellation is cooperative: it is checked at
// every chunk arrival and at this poll interval, never mid-decode.
const cancelPollInterval = 250 * time.Millisecond

// readBufferSize is the size of the chunk read buffer.
const readBufferSize = 4096

// Consumer receives projected output items, one call per item, in arrival
// order, on the same goroutine as the network read loop. It must not block
// for long: a stalled consumer stalls chunk consumption and can trip the
// idle deadline.
type Consumer func(llmstream.StreamEvent)

// Client owns the HTTP exchanges against one endpoint family. A Client
// supports one in-flight stream at a time; sequential streams reuse the
// connection configuration but each gets fresh per-stream state.
type Client struct {
	cfg        llmstream.Config
	httpClient *http.Client
	log        *logrus.Logger

	inProgress      atomic.Bool
	cancelRequested atomic.Bool
}

// NewClient creates a transport client from cfg. Zero-valued timeouts and
// retry knobs are filled from the embedded defaults.
func NewClient(cfg llmstream.Config) *Client {
	cfg = cfg.WithDefaults()
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// No client-level timeout: the stream deadline is enforced via
		// context, and http.Client.Timeout would cap the whole body read.
		httpClient = &http.Client{}
	}
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		log:        cfg.Logger,
	}
}

// session is the state for one in-flight stream. A fresh session is built
// for every Stream call and torn down unconditionally when the call ends,
// whether by success, error, or cancellation.
type session struct {
	assembler *sse.Assembler
	projector *llmstream.Projector
	body      io.ReadCloser
	delivered int // characters of data handed to the decoder so far
	done      bool
}

// teardown releases the session's resources. Safe to call exactly once, on
// every exit path. Errors while closing are logged and swallowed.
func (s *session) teardown(log *logrus.Logger) {
	s.assembler.Reset()
	if s.body != nil {
		if err := s.body.Close(); err != nil {
			log.WithError(err).Debug("closing response body")
		}
		s.body = nil
	}
}

// Stream performs one streaming exchange. The consumer is invoked once per
// projected output item, in wire order, until the server terminates the
// stream, an error occurs, or the caller cancels.
//
// Starting a second stream while one is in flight fails immediately with
// ErrStreamInProgress rather than queuing.
func (c *Client) Stream(ctx context.Context, endpoint string, payload []byte, headers map[string]string, mode llmstream.Mode, consume Consumer) error {
	if !mode.Valid() {
		return &llmstream.TransportError{
			Kind:    llmstream.KindValidation,
			Message: fmt.Sprintf("unknown consumption mode %q", mode),
		}
	}
	if consume == nil {
		return &llmstream.TransportError{
			Kind:    llmstream.KindValidation,
			Message: "consumer must not be nil",
		}
	}
	if !c.inProgress.CompareAndSwap(false, true) {
		return &llmstream.TransportError{
			Kind:    llmstream.KindStreaming,
			Message: "streaming operation already in progress",
			Err:     llmstream.ErrStreamInProgress,
		}
	}
	c.cancelRequested.Store(false)

	sess := &session{
		assembler: &sse.Assembler{},
		projector: llmstream.NewProjector(mode),
	}
	defer func() {
		sess.teardown(c.log)
		c.cancelRequested.Store(false)
		c.inProgress.Store(false)
	}()

	return c.stream(ctx, sess, endpoint, payload, headers, consume)
}

// Cancel requests cooperative cancellation of the in-flight stream. It takes
// effect at the next chunk arrival or cancel poll, never mid-decode.
// Calling Cancel with no active stream is a safe no-op.
func (c *Client) Cancel() {
	if !c.inProgress.Load() {
		return
	}
	c.cancelRequested.Store(true)
}

func (c *Client) stream(ctx context.Context, sess *session, endpoint string, payload []byte, headers map[string]string, consume Consumer) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.StreamTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, endpoint, payload, headers)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Nothing was received; the caller can retry the whole exchange.
		return &llmstream.TransportError{
			Kind:    llmstream.KindRequest,
			Message: fmt.Sprintf("request failed before any data was received: %v", err),
			Err:     err,
		}
	}
	sess.body = resp.Body

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return llmstream.ClassifyResponse(resp.StatusCode, body)
	}

	return c.readLoop(ctx, sess, consume)
}

// readResult is one delivery from the body-reading goroutine.
type readResult struct {
	chunk []byte
	err   error
}

// readLoop drives the stream: it consumes chunks as they arrive, checks the
// cancel flag once per chunk, enforces the idle deadline between chunks, and
// maps every abnormal exit into the error taxonomy. All decoding and
// projection happen synchronously between reads.
func (c *Client) readLoop(ctx context.Context, sess *session, consume Consumer) error {
	// The goroutine reads from its own reference: teardown clears sess.body
	// on the main goroutine, and the reader may still be blocked in Read
	// when a terminator-bearing chunk lets readLoop return.
	body := sess.body
	chunks := make(chan readResult)
	go func() {
		defer close(chunks)
		buf := make([]byte, readBufferSize)
		for {
			n, err := body.Read(buf)
			var chunk []byte
			if n > 0 {
				chunk = append([]byte(nil), buf[:n]...)
			}
			select {
			case chunks <- readResult{chunk: chunk, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	idle := time.NewTimer(c.cfg.IdleTimeout)
	defer idle.Stop()
	poll := time.NewTicker(cancelPollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return c.timeoutError(sess, fmt.Sprintf("stream exceeded the %s overall deadline", c.cfg.StreamTimeout))
			}
			// Context cancellation is the Go-native cancel path; report it
			// the same way as a Cancel() call.
			return c.interruptError(sess, "stream cancelled by caller", llmstream.ErrStreamCancelled)

		case <-poll.C:
			if c.cancelRequested.Load() {
				return c.interruptError(sess, "stream cancelled by caller", llmstream.ErrStreamCancelled)
			}

		case <-idle.C:
			return c.timeoutError(sess, fmt.Sprintf("no data received for %s", c.cfg.IdleTimeout))

		case r, ok := <-chunks:
			if !ok {
				// Reader exited after a context cancellation race; the
				// ctx branch will produce the definitive error next turn.
				chunks = nil
				continue
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(c.cfg.IdleTimeout)

			// The cancel flag is checked before any buffering or decoding
			// of the arrived chunk.
			if c.cancelRequested.Load() {
				return c.interruptError(sess, "stream cancelled by caller", llmstream.ErrStreamCancelled)
			}

			if len(r.chunk) > 0 {
				if err := c.consumeChunk(sess, r.chunk, consume); err != nil {
					return err
				}
				if sess.done {
					return nil
				}
			}
			if r.err != nil {
				if errors.Is(r.err, io.EOF) {
					// Clean end without a terminator: the stream simply
					// ends, no terminal metadata is emitted.
					return nil
				}
				return c.interruptError(sess, fmt.Sprintf("connection lost (%v)", r.err), r.err)
			}
		}
	}
}

// consumeChunk feeds one chunk through assembler, decoder, and projector,
// invoking the consumer for every projected output item.
func (c *Client) consumeChunk(sess *session, chunk []byte, consume Consumer) error {
	data, done := sess.assembler.Feed(chunk)
	for _, d := range data {
		unit, err := c.decode(d)
		if err != nil {
			return err
		}
		sess.delivered += len(d)
		for _, event := range sess.projector.Apply(unit) {
			consume(event)
		}
	}
	if done {
		sess.done = true
	}
	return nil
}

func (c *Client) decode(data string) (llmstream.StreamUnit, error) {
	if c.cfg.StrictDecoding {
		return llmstream.DecodeUnitStrict(data)
	}
	return llmstream.DecodeUnit(data), nil
}

// interruptError builds the partial-delivery error. The message always
// reports how much content had been delivered so the caller can decide
// whether to keep or discard it. cause is ErrStreamCancelled for
// caller-initiated cancellation, the read error for connection loss.
func (c *Client) interruptError(sess *session, reason string, cause error) *llmstream.TransportError {
	return &llmstream.TransportError{
		Kind:    llmstream.KindStreamingInterrupted,
		Message: fmt.Sprintf("%s after %d characters were delivered", reason, sess.delivered),
		Err:     cause,
	}
}

func (c *Client) timeoutError(sess *session, reason string) *llmstream.TransportError {
	return &llmstream.TransportError{
		Kind:    llmstream.KindStreamingTimeout,
		Message: fmt.Sprintf("%s (%d characters delivered)", reason, sess.delivered),
		Err:     llmstream.ErrStreamTimeout,
	}
}

// newRequest builds the POST carrying the opaque payload. Config headers are
// applied first, per-call headers override them.
func (c *Client) newRequest(ctx context.Context, endpoint string, payload []byte, headers map[string]string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolveURL(endpoint), bytes.NewReader(payload))
	if err != nil {
		return nil, &llmstream.TransportError{
			Kind:    llmstream.KindRequest,
			Message: fmt.Sprintf("building request for %s: %v", endpoint, err),
			Err:     err,
		}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (c *Client) resolveURL(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return strings.TrimSuffix(c.cfg.BaseURL, "/") + "/" + strings.TrimPrefix(endpoint, "/")
}
