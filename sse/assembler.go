// Package sse reassembles Server-Sent-Events messages from raw network
// chunks. Chunk boundaries carry no meaning: a chunk may contain zero, one,
// or many message boundaries, and may split a boundary anywhere.
package sse

import (
	"strings"
)

// DoneMarker is the literal data payload that signals intentional stream
// termination. It is reported out-of-band, never emitted as data.
const DoneMarker = "[DONE]"

const dataPrefix = "data:"

// Assembler buffers raw chunks and slices them into complete SSE messages,
// extracting each message's data string. One Assembler serves exactly one
// stream and is not safe for concurrent use.
type Assembler struct {
	buf  []byte
	done bool
}

// Feed appends chunk to the internal buffer and extracts the data string of
// every complete message, in wire order. The trailing (possibly incomplete)
// segment is retained for the next call, never dropped. done reports whether
// a terminator message has been seen; data extracted before the terminator
// is still returned, anything after it is discarded.
//
// Malformed frames and messages without a data line yield nothing. Transport
// noise must not abort an otherwise healthy stream.
func (a *Assembler) Feed(chunk []byte) (data []string, done bool) {
	a.buf = append(a.buf, chunk...)

	for {
		msg, rest, ok := cutMessage(a.buf)
		if !ok {
			return data, a.done
		}
		a.buf = rest

		if a.done {
			continue
		}
		payload, ok := extractData(msg)
		if !ok {
			continue
		}
		if payload == DoneMarker {
			a.done = true
			continue
		}
		data = append(data, payload)
	}
}

// Buffered returns the number of bytes held back as an incomplete trailing
// message.
func (a *Assembler) Buffered() int {
	return len(a.buf)
}

// Reset clears the buffer and the terminator flag, making the Assembler
// ready for a fresh stream.
func (a *Assembler) Reset() {
	a.buf = nil
	a.done = false
}

// cutMessage finds the first message boundary (two consecutive newlines,
// where a newline is CRLF, LF, or CR) and splits buf around it. A lone
// trailing newline is left in place: its pair may arrive in the next chunk.
func cutMessage(buf []byte) (msg, rest []byte, ok bool) {
	i := 0
	for i < len(buf) {
		n1 := newlineLen(buf[i:])
		if n1 == 0 {
			i++
			continue
		}
		n2 := newlineLen(buf[i+n1:])
		if n2 == 0 {
			i += n1
			continue
		}
		return buf[:i], buf[i+n1+n2:], true
	}
	return nil, buf, false
}

// newlineLen returns the byte length of the newline at the start of b, or 0
// if b does not start with one. CRLF counts as a single newline.
func newlineLen(b []byte) int {
	if len(b) == 0 {
		return 0
	}
	switch b[0] {
	case '\n':
		return 1
	case '\r':
		if len(b) > 1 && b[1] == '\n' {
			return 2
		}
		return 1
	}
	return 0
}

// extractData concatenates the values of every "data:" line in msg, joined
// with newlines per the SSE multi-line data rule. Lines without the prefix
// are ignored. ok is false when the message carries no data line at all.
func extractData(msg []byte) (string, bool) {
	var parts []string
	for _, line := range splitLines(string(msg)) {
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		value := line[len(dataPrefix):]
		// Exactly one leading space is part of the field syntax.
		value = strings.TrimPrefix(value, " ")
		parts = append(parts, value)
	}
	if parts == nil {
		return "", false
	}
	return strings.Join(parts, "\n"), true
}

// splitLines splits on CRLF, LF, or CR.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}
