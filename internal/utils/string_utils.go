package utils

import (
	"strings"
)

// MaskAPIKey masks an API key for safe logging, preserving its length: keys
// of 8 characters or fewer become all asterisks; longer keys keep their
// first 4 and last 4 characters and asterisk out the middle.
// Example: "sk-1234567890abcdef" (19 chars) -> "sk-1***********cdef"
func MaskAPIKey(key string) string {
	length := len(key)
	if length == 0 {
		return key
	}
	if length <= 8 {
		return strings.Repeat("*", length)
	}
	var b strings.Builder
	b.Grow(length)
	b.WriteString(key[:4])
	b.WriteString(strings.Repeat("*", length-8))
	b.WriteString(key[length-4:])
	return b.String()
}

// TruncateString shortens a string to at most maxLength characters (runes),
// so a multi-byte UTF-8 character is never split. maxLength <= 0 yields "".
func TruncateString(s string, maxLength int) string {
	if maxLength <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) > maxLength {
		return string(runes[:maxLength])
	}
	return s
}

// SplitAndTrim splits a string by a separator
func SplitAndTrim(s string, sep string) []string {
	if s == "" {
		return []string{}
	}

	parts := strings.Split(s, sep)
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// StringToSet converts a separator-delimited string into a set
func StringToSet(s string, sep string) map[string]struct{} {
	parts := SplitAndTrim(s, sep)
	if len(parts) == 0 {
		return nil
	}

	set := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		set[part] = struct{}{}
	}
	return set
}
