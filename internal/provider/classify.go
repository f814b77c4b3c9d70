package provider

import apperrors "orchestrationapi/internal/errors"

// classifyStatus applies spec.md §4.3's fixed status-code table. It is
// shared by all three dialects: the table does not vary by provider, only
// the extracted message text does (via apperrors.ParseUpstreamError).
func classifyStatus(statusCode int, body []byte) Classification {
	msg := apperrors.ParseUpstreamError(body)

	switch {
	case statusCode >= 200 && statusCode < 300:
		return Classification{Retry: false, TryNextKey: false, Message: msg}
	case statusCode == 401 || statusCode == 403:
		return Classification{Retry: false, TryNextKey: true, Message: msg}
	case statusCode == 429:
		return Classification{Retry: true, TryNextKey: true, Message: msg}
	case statusCode == 500 || statusCode == 502 || statusCode == 503 || statusCode == 504:
		return Classification{Retry: true, TryNextKey: false, Message: msg}
	case statusCode == 408:
		return Classification{Retry: true, TryNextKey: false, Message: msg}
	case statusCode == 400 || statusCode == 404 || statusCode == 422:
		return Classification{Retry: false, TryNextKey: false, Message: msg}
	default:
		return Classification{Retry: false, TryNextKey: false, Message: msg}
	}
}
