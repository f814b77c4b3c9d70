package errors

import "strings"

// ignorableErrorSubstrings are network errors produced by client
// disconnects/cancellation rather than a genuine upstream failure; when one
// arrives after the request context is already done, the dispatcher ends
// the request with a 499 instead of counting it as a key error.
var ignorableErrorSubstrings = []string{
	"context canceled",
	"connection reset by peer",
	"broken pipe",
	"use of closed network connection",
	"request canceled",
}

// IsIgnorableError reports whether err is a client-cancellation artifact.
func IsIgnorableError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, substr := range ignorableErrorSubstrings {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}
