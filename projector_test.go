package llmstream

import (
	"strings"
	"testing"
)

func applyAll(t *testing.T, mode Mode, payloads []string) []StreamEvent {
	t.Helper()
	projector := NewProjector(mode)
	var events []StreamEvent
	for _, payload := range payloads {
		events = append(events, projector.Apply(DecodeUnit(payload))...)
	}
	return events
}

func TestProjector_IncrementalMonotonicity(t *testing.T) {
	payloads := []string{
		textPayload("Hel"),
		textPayload("lo"),
		textPayload(" world"),
	}

	events := applyAll(t, ModeIncremental, payloads)

	want := []string{"Hel", "Hello", "Hello world"}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, w := range want {
		if events[i].Text == nil || *events[i].Text != w {
			t.Errorf("event %d = %v, want %q", i, events[i].Text, w)
		}
	}
}

func TestProjector_DeltaMatchesIncremental(t *testing.T) {
	payloads := []string{
		textPayload("one "),
		textPayload(""),
		textPayload("two "),
		textPayload("three"),
	}

	deltas := applyAll(t, ModeDelta, payloads)
	incrementals := applyAll(t, ModeIncremental, payloads)

	var joined strings.Builder
	for _, ev := range deltas {
		if ev.Text == nil {
			t.Fatal("delta event without text")
		}
		joined.WriteString(*ev.Text)
	}

	final := incrementals[len(incrementals)-1]
	if joined.String() != *final.Text {
		t.Errorf("concatenated deltas = %q, want final incremental %q", joined.String(), *final.Text)
	}
	if joined.String() != "one two three" {
		t.Errorf("accumulated = %q, want %q", joined.String(), "one two three")
	}
}

func TestProjector_EmptyTextEmitsNothing(t *testing.T) {
	for _, mode := range []Mode{ModeIncremental, ModeDelta} {
		projector := NewProjector(mode)
		if events := projector.Apply(DecodeUnit(textPayload(""))); len(events) != 0 {
			t.Errorf("mode %s: empty text emitted %d events, want 0", mode, len(events))
		}
		if events := projector.Apply(DecodeUnit(`{"other":"field"}`)); len(events) != 0 {
			t.Errorf("mode %s: textless unit emitted %d events, want 0", mode, len(events))
		}
	}
}

func TestProjector_RawPassthrough(t *testing.T) {
	payloads := []string{
		textPayload("a"),
		`{"no_text":true}`,
		"not json",
		terminalPayload("", "STOP", 1, 2, 3),
	}

	projector := NewProjector(ModeRaw)
	var events []StreamEvent
	for _, payload := range payloads {
		events = append(events, projector.Apply(DecodeUnit(payload))...)
	}

	// Raw mode: exactly one output per unit, payload unchanged, no
	// accumulation or terminal projection.
	if len(events) != len(payloads) {
		t.Fatalf("got %d events, want %d", len(events), len(payloads))
	}
	for i, ev := range events {
		if ev.Unit == nil {
			t.Fatalf("event %d has no unit", i)
		}
		if ev.Unit.Raw != payloads[i] {
			t.Errorf("event %d raw = %q, want %q", i, ev.Unit.Raw, payloads[i])
		}
		if ev.Terminal != nil || ev.Text != nil {
			t.Errorf("event %d carries projected fields in raw mode", i)
		}
	}
	if projector.FullText() != "" {
		t.Errorf("raw mode accumulated %q, want empty", projector.FullText())
	}
}

func TestProjector_TerminalMetadata(t *testing.T) {
	payloads := []string{
		textPayload("Hello"),
		terminalPayload(" world", "STOP", 2, 3, 5),
	}

	events := applyAll(t, ModeDelta, payloads)

	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if *events[0].Text != "Hello" || *events[1].Text != " world" {
		t.Errorf("deltas = %q, %q", *events[0].Text, *events[1].Text)
	}

	terminal := events[2].Terminal
	if terminal == nil {
		t.Fatal("missing terminal metadata event")
	}
	if terminal.FullText != "Hello world" {
		t.Errorf("FullText = %q, want %q", terminal.FullText, "Hello world")
	}
	if terminal.FinishReason != "STOP" {
		t.Errorf("FinishReason = %q, want STOP", terminal.FinishReason)
	}
	if terminal.Usage == nil || terminal.Usage.TotalUnits != 5 {
		t.Errorf("Usage = %+v, want total 5", terminal.Usage)
	}
}

func TestProjector_TerminalWithoutUsage(t *testing.T) {
	events := applyAll(t, ModeIncremental, []string{
		textPayload("x"),
		`{"finish_reason":"MAX_TOKENS"}`,
	})

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	terminal := events[1].Terminal
	if terminal == nil {
		t.Fatal("missing terminal metadata event")
	}
	if terminal.Usage != nil {
		t.Errorf("Usage = %+v, want nil when the server omits it", terminal.Usage)
	}
}

func TestProjector_ClosedIgnoresLaterUnits(t *testing.T) {
	projector := NewProjector(ModeDelta)
	projector.Apply(DecodeUnit(terminalPayload("done", "STOP", 1, 1, 2)))

	if events := projector.Apply(DecodeUnit(textPayload("late"))); len(events) != 0 {
		t.Errorf("closed projector emitted %d events, want 0", len(events))
	}
	if projector.FullText() != "done" {
		t.Errorf("state mutated after terminal unit: %q", projector.FullText())
	}
}

func TestProjector_SnapshotIsStable(t *testing.T) {
	projector := NewProjector(ModeIncremental)

	first := projector.Apply(DecodeUnit(textPayload("abc")))
	projector.Apply(DecodeUnit(textPayload("def")))

	if *first[0].Text != "abc" {
		t.Errorf("earlier snapshot observed later mutation: %q", *first[0].Text)
	}
}

func TestModeValid(t *testing.T) {
	for _, mode := range []Mode{ModeRaw, ModeIncremental, ModeDelta} {
		if !mode.Valid() {
			t.Errorf("mode %s should be valid", mode)
		}
	}
	if Mode("chunky").Valid() {
		t.Error("unknown mode should be invalid")
	}
}

func TestUsageAdd(t *testing.T) {
	sum := Usage{PromptUnits: 1, CompletionUnits: 2, TotalUnits: 3}.Add(
		Usage{PromptUnits: 10, CompletionUnits: 20, TotalUnits: 30})
	if sum != (Usage{PromptUnits: 11, CompletionUnits: 22, TotalUnits: 33}) {
		t.Errorf("Add = %+v", sum)
	}
}
