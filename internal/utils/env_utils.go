package utils

import "os"

// GetEnvOrDefault returns the named environment variable, or fallback if unset.
func GetEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
