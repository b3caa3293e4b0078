package llmstream

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// UnitKind identifies how a stream unit's payload should be interpreted.
type UnitKind string

const (
	// UnitStructured indicates the payload parsed as a JSON document.
	UnitStructured UnitKind = "structured"

	// UnitRawText indicates the payload is the literal data string.
	UnitRawText UnitKind = "raw_text"
)

// StreamUnit is the normalized result of decoding one SSE message.
// Units are immutable once created; the transport hands each unit to the
// projector exactly once, in arrival order.
type StreamUnit struct {
	// Kind is UnitStructured when Raw parsed as a JSON document,
	// UnitRawText otherwise.
	Kind UnitKind

	// Raw is the data string exactly as extracted from the wire.
	Raw string

	parsed gjson.Result // valid only when Kind == UnitStructured
}

// Payload returns the parsed JSON value (map or slice) for structured units,
// or the literal string for raw text units.
func (u *StreamUnit) Payload() any {
	if u.Kind == UnitStructured {
		return u.parsed.Value()
	}
	return u.Raw
}

// Get resolves a gjson path against a structured payload.
// Returns a zero Result for raw text units or missing paths.
func (u *StreamUnit) Get(path string) gjson.Result {
	if u.Kind != UnitStructured {
		return gjson.Result{}
	}
	return u.parsed.Get(path)
}

// DecodeUnit turns one extracted data string into a StreamUnit.
// JSON objects and arrays become structured units; anything else is carried
// verbatim as raw text. This never fails: an unparseable payload is a valid
// unit under raw consumption, not an error.
func DecodeUnit(data string) StreamUnit {
	if gjson.Valid(data) {
		parsed := gjson.Parse(data)
		if parsed.IsObject() || parsed.IsArray() {
			return StreamUnit{Kind: UnitStructured, Raw: data, parsed: parsed}
		}
	}
	return StreamUnit{Kind: UnitRawText, Raw: data}
}

// DecodeUnitStrict behaves like DecodeUnit but rejects payloads that do not
// parse as a JSON document instead of falling back to raw text.
func DecodeUnitStrict(data string) (StreamUnit, error) {
	unit := DecodeUnit(data)
	if unit.Kind != UnitStructured {
		return StreamUnit{}, &TransportError{
			Kind:    KindInvalidStreamFormat,
			Message: fmt.Sprintf("expected a structured payload, got %q", truncate(data, 64)),
			Err:     ErrInvalidStreamFormat,
		}
	}
	return unit, nil
}

// truncate shortens s for inclusion in error messages.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
