package llmstream

// Mode selects how decoded stream units are projected into caller-visible
// output. The mode is fixed for the lifetime of one stream.
type Mode string

const (
	// ModeRaw passes every decoded unit through unchanged, with no
	// accumulation. Non-text-bearing units are emitted too.
	ModeRaw Mode = "raw"

	// ModeIncremental emits the full accumulated text after every
	// text-bearing unit.
	ModeIncremental Mode = "incremental"

	// ModeDelta emits only the newly arrived text per unit.
	ModeDelta Mode = "delta"
)

// Valid reports whether m is one of the three supported modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeRaw, ModeIncremental, ModeDelta:
		return true
	}
	return false
}

// Usage carries the token-unit accounting the server reports on the terminal
// message.
type Usage struct {
	PromptUnits     int `json:"prompt_units"`
	CompletionUnits int `json:"completion_units"`
	TotalUnits      int `json:"total_units"`
}

// Add returns the field-wise sum of u and other. Useful for aggregating
// usage across multiple exchanges.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptUnits:     u.PromptUnits + other.PromptUnits,
		CompletionUnits: u.CompletionUnits + other.CompletionUnits,
		TotalUnits:      u.TotalUnits + other.TotalUnits,
	}
}

// TerminalMetadata is the final summary item for one stream, emitted at most
// once, when a unit carries a finish reason.
type TerminalMetadata struct {
	// FullText is the complete accumulated text at the moment the server
	// signalled completion.
	FullText string

	// FinishReason is the server-supplied reason generation stopped
	// (e.g. "STOP", "MAX_TOKENS"). Free-form.
	FinishReason string

	// Usage holds the unit counts, when the server reported them.
	Usage *Usage
}

// StreamEvent is one projected output item handed to the consumer.
// Exactly one of Unit, Text, Terminal is set.
type StreamEvent struct {
	// Unit is the decoded unit, set in ModeRaw (nil otherwise).
	Unit *StreamUnit

	// Text is the accumulated snapshot (ModeIncremental) or the newly
	// arrived slice (ModeDelta). Nil in ModeRaw.
	Text *string

	// Terminal carries the finish reason and usage, set once per stream in
	// incremental and delta modes when the server signals completion.
	Terminal *TerminalMetadata
}

// Projector applies one consumption mode to the decoded unit sequence,
// maintaining the text accumulation state. A Projector belongs to exactly
// one stream and must never be shared across concurrent streams.
//
// The projector reads a narrow contract off structured payloads: an optional
// "text" field, an optional "finish_reason", and optional "usage" counts.
// Any other payload content is ignored here and left to higher layers.
type Projector struct {
	mode     Mode
	fullText string
	priorLen int
	closed   bool
}

// NewProjector creates a projector for one stream in the given mode.
func NewProjector(mode Mode) *Projector {
	return &Projector{mode: mode}
}

// Mode returns the consumption mode fixed at construction.
func (p *Projector) Mode() Mode {
	return p.mode
}

// FullText returns the text accumulated so far. Raw mode accumulates
// nothing and always returns "".
func (p *Projector) FullText() string {
	return p.fullText
}

// Apply projects one unit into zero or more output events, in order.
// It mutates the accumulation state once per unit, strictly in arrival
// order, and never after the terminal unit.
func (p *Projector) Apply(unit StreamUnit) []StreamEvent {
	if p.mode == ModeRaw {
		u := unit
		return []StreamEvent{{Unit: &u}}
	}

	if p.closed {
		return nil
	}

	var events []StreamEvent

	// Empty text is treated as "no text": no emission, no state change.
	if text := unit.Get("text").String(); text != "" {
		p.priorLen = len(p.fullText)
		p.fullText += text

		switch p.mode {
		case ModeIncremental:
			snapshot := p.fullText
			events = append(events, StreamEvent{Text: &snapshot})
		case ModeDelta:
			delta := p.fullText[p.priorLen:]
			events = append(events, StreamEvent{Text: &delta})
		}
	}

	if finish := unit.Get("finish_reason").String(); finish != "" {
		meta := &TerminalMetadata{
			FullText:     p.fullText,
			FinishReason: finish,
		}
		if usage := unit.Get("usage"); usage.Exists() {
			meta.Usage = &Usage{
				PromptUnits:     int(usage.Get("prompt_units").Int()),
				CompletionUnits: int(usage.Get("completion_units").Int()),
				TotalUnits:      int(usage.Get("total_units").Int()),
			}
		}
		events = append(events, StreamEvent{Terminal: meta})
		p.closed = true
	}

	return events
}
