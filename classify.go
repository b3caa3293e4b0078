package llmstream

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// Classify maps an exchange failure into the typed taxonomy.
//
// Precedence: a provider-supplied machine-readable code is pattern-matched
// case-insensitively against known substrings first; when that yields
// nothing, the HTTP status code decides; KindUnknown is the final fallback.
func Classify(code string, httpStatus int, message string) *TransportError {
	kind := classifyCode(code)
	if kind == KindUnknown {
		kind = classifyStatus(httpStatus)
	}
	return &TransportError{
		Kind:       kind,
		Message:    message,
		Code:       code,
		HTTPStatus: httpStatus,
		Err:        sentinelFor(kind),
	}
}

// ClassifyResponse builds a classified error from a non-OK HTTP response
// body. Provider error bodies are expected to look like
// {"error": {"code": ..., "message": ..., "status": ...}}, but plain-text
// bodies are tolerated and classified by status alone.
func ClassifyResponse(httpStatus int, body []byte) *TransportError {
	raw := string(body)

	code := gjson.Get(raw, "error.status").String()
	if code == "" {
		if c := gjson.Get(raw, "error.code"); c.Type == gjson.String {
			code = c.String()
		}
	}

	message := gjson.Get(raw, "error.message").String()
	if message == "" {
		message = strings.TrimSpace(raw)
	}
	if message == "" {
		message = fmt.Sprintf("request failed with HTTP %d", httpStatus)
	}

	return Classify(code, httpStatus, message)
}

func classifyCode(code string) ErrorKind {
	c := strings.ToLower(code)
	switch {
	case c == "":
		return KindUnknown
	case containsAny(c, "permission", "unauthorized", "unauthenticated"):
		return KindAuthentication
	case containsAny(c, "quota", "rate", "limit"):
		return KindRateLimit
	case strings.Contains(c, "not_found"):
		return KindNotFound
	case strings.Contains(c, "invalid") && strings.Contains(c, "model"):
		return KindInvalidModel
	case containsAny(c, "invalid", "validation"):
		return KindValidation
	case containsAny(c, "blocked", "safety"):
		return KindContentBlocked
	case containsAny(c, "server", "internal"):
		return KindServer
	case strings.Contains(c, "config"):
		return KindConfiguration
	}
	return KindUnknown
}

func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusBadRequest:
		return KindBadRequest
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuthentication
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 500:
		return KindServer
	}
	return KindUnknown
}

// sentinelFor returns the sentinel error wrapped by errors produced for the
// given kind, so callers can use errors.Is alongside KindOf.
func sentinelFor(kind ErrorKind) error {
	switch kind {
	case KindRateLimit:
		return ErrRateLimited
	case KindServer:
		return ErrServerUnavailable
	case KindAuthentication:
		return ErrUnauthenticated
	case KindInvalidModel:
		return ErrInvalidModel
	}
	return nil
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
