// Package loremtest provides an in-process SSE origin that streams
// generated lorem ipsum text. It lets tests and examples exercise the full
// transport path without real API keys or network access.
package loremtest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	loremgen "github.com/bozaro/golorem"
	"github.com/tidwall/sjson"
)

// Options control the shape of the generated stream.
type Options struct {
	// Words is the number of words to stream, one message each (default 12).
	Words int

	// Text overrides the generated words with a fixed string, split on
	// spaces. Use this when a test needs to assert exact output.
	Text string

	// Delay is the pause between messages.
	Delay time.Duration

	// FinishReason is sent on the terminal message (default "STOP").
	FinishReason string

	// OmitUsage drops the usage block from the terminal message.
	OmitUsage bool

	// OmitTerminal ends the stream without any finish_reason message.
	OmitTerminal bool

	// OmitDone ends the response without the [DONE] terminator.
	OmitDone bool

	// HoldOpen keeps the connection open after the final message instead
	// of closing it, as some origins do after sending the terminator.
	HoldOpen bool

	// HangAfter stalls the stream (without closing) after this many words.
	// Zero means never hang.
	HangAfter int

	// AbortAfter drops the connection mid-stream after this many words.
	// Zero means never abort.
	AbortAfter int

	// Status short-circuits the handler with this HTTP status and a
	// structured error body. Zero streams normally.
	Status int

	// ErrorCode is the machine-readable code for the error body.
	ErrorCode string

	// RawPayloads sends each word as a bare string instead of JSON,
	// exercising the raw-text decoder fallback.
	RawPayloads bool
}

// NewServer starts an httptest.Server streaming per opts. The caller owns
// Close.
func NewServer(opts Options) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serve(w, r, opts)
	}))
}

func serve(w http.ResponseWriter, r *http.Request, opts Options) {
	if opts.Status != 0 {
		body, _ := sjson.Set("", "error.message", "simulated provider failure")
		body, _ = sjson.Set(body, "error.code", opts.ErrorCode)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(opts.Status)
		fmt.Fprint(w, body)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	words := streamWords(opts)
	for i, word := range words {
		if opts.AbortAfter > 0 && i >= opts.AbortAfter {
			panic(http.ErrAbortHandler)
		}
		if opts.HangAfter > 0 && i >= opts.HangAfter {
			<-r.Context().Done()
			return
		}
		if opts.Delay > 0 {
			select {
			case <-time.After(opts.Delay):
			case <-r.Context().Done():
				return
			}
		}

		payload := word
		if !opts.RawPayloads {
			payload, _ = sjson.Set("", "text", word)
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	if !opts.OmitTerminal {
		finish := opts.FinishReason
		if finish == "" {
			finish = "STOP"
		}
		payload, _ := sjson.Set("", "finish_reason", finish)
		if !opts.OmitUsage {
			payload, _ = sjson.Set(payload, "usage.prompt_units", 7)
			payload, _ = sjson.Set(payload, "usage.completion_units", len(words))
			payload, _ = sjson.Set(payload, "usage.total_units", 7+len(words))
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	if !opts.OmitDone {
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}

	if opts.HoldOpen {
		<-r.Context().Done()
	}
}

// streamWords returns the words to stream, each carrying its trailing space
// except the last, so the concatenated text reads naturally.
func streamWords(opts Options) []string {
	var words []string
	if opts.Text != "" {
		words = strings.Fields(opts.Text)
	} else {
		count := opts.Words
		if count <= 0 {
			count = 12
		}
		gen := loremgen.New()
		for i := 0; i < count; i++ {
			words = append(words, gen.Word(3, 8))
		}
	}
	for i := 0; i < len(words)-1; i++ {
		words[i] += " "
	}
	return words
}
