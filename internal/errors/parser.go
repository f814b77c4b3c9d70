package errors

import (
	"strings"

	"github.com/tidwall/gjson"
)

// maxErrorBodyLength bounds how much of an upstream error body is kept.
const maxErrorBodyLength = 2048

// ParseUpstreamError extracts a human-readable message from an upstream
// provider's error response body. It tries, in order, the OpenAI-style
// nested `error.message`, a vendor-style `error_msg`, a flat string
// `error`, and a root-level `message`; it falls back to the raw (truncated)
// body when none of those fields parse. Field access uses gjson rather
// than a struct unmarshal, since the upstream error shape varies by
// dialect and is never fully modeled here.
func ParseUpstreamError(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	text := string(body)
	if !gjson.Valid(text) {
		return truncateString(text, maxErrorBodyLength)
	}

	parsed := gjson.Parse(text)

	if msg := parsed.Get("error.message"); msg.Exists() && msg.String() != "" {
		return strings.TrimSpace(truncateString(msg.String(), maxErrorBodyLength))
	}
	if msg := parsed.Get("error_msg"); msg.Exists() && msg.String() != "" {
		return strings.TrimSpace(truncateString(msg.String(), maxErrorBodyLength))
	}
	if errField := parsed.Get("error"); errField.Exists() && errField.Type == gjson.String && errField.String() != "" {
		return strings.TrimSpace(truncateString(errField.String(), maxErrorBodyLength))
	}
	if msg := parsed.Get("message"); msg.Exists() && msg.String() != "" {
		return strings.TrimSpace(truncateString(msg.String(), maxErrorBodyLength))
	}

	return truncateString(text, maxErrorBodyLength)
}

// truncateString returns s trimmed to at most maxLength bytes.
func truncateString(s string, maxLength int) string {
	if maxLength <= 0 {
		return ""
	}
	if len(s) <= maxLength {
		return s
	}
	return s[:maxLength]
}
