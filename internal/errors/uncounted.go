package errors

import "strings"

// unCountedSubstrings mark upstream error messages that reflect a request
// shape problem (oversized input, provider quota exhaustion unrelated to
// key health) rather than the key itself being bad; the key manager does
// not count these toward a key's error_count.
var unCountedSubstrings = []string{
	"resource has been exhausted",
	"please reduce the length of the messages",
}

// IsUnCounted reports whether errorMsg should be excluded from a key's
// error bookkeeping.
func IsUnCounted(errorMsg string) bool {
	if errorMsg == "" {
		return false
	}
	lower := strings.ToLower(errorMsg)
	for _, substr := range unCountedSubstrings {
		if strings.Contains(lower, substr) {
			return true
		}
	}
	return false
}
