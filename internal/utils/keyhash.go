package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashAPIKey returns the SHA-256 hash of an API key's UTF-8 bytes, as
// uppercase hex. This is stable across processes and is the identity used
// by KeyValidation and KeyUsageStats rows instead of the raw key value.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
