package llmstream

import "github.com/tidwall/sjson"

// Test helper functions shared across test files

// textPayload builds a minimal structured payload carrying only text.
func textPayload(text string) string {
	payload, _ := sjson.Set("", "text", text)
	return payload
}

// terminalPayload builds a structured payload carrying a finish reason and
// usage counts, optionally with text.
func terminalPayload(text, finish string, prompt, completion, total int) string {
	payload := ""
	if text != "" {
		payload, _ = sjson.Set(payload, "text", text)
	}
	payload, _ = sjson.Set(payload, "finish_reason", finish)
	payload, _ = sjson.Set(payload, "usage.prompt_units", prompt)
	payload, _ = sjson.Set(payload, "usage.completion_units", completion)
	payload, _ = sjson.Set(payload, "usage.total_units", total)
	return payload
}
