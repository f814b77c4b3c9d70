package keymanager

import (
	"time"

	"orchestrationapi/internal/models"
)

// isAvailable implements the spec's 5-step IsAvailable predicate over a
// key's KeyValidation row (nil when no row exists yet, i.e. never probed).
func isAvailable(v *models.KeyValidation) bool {
	now := time.Now()

	// 1. No row at all: treat as available until the first probe/use says otherwise.
	if v == nil {
		return true
	}

	// 2. Stale validation (>24h old): available unless it's both invalid and
	// has accumulated 3+ errors.
	if now.Sub(v.LastValidatedAt) > 24*time.Hour {
		return v.IsValid || v.ErrorCount < 3
	}

	// 3. Heavily failing (>=5 errors): give it another chance once an hour
	// has passed since the last validation, regardless of validity.
	if v.ErrorCount >= 5 {
		return now.Sub(v.LastValidatedAt) > time.Hour
	}

	// 4. Recent hard auth failure (401) within the last 30 minutes: never available.
	if v.LastStatusCode != nil && *v.LastStatusCode == 401 && now.Sub(v.LastValidatedAt) < 30*time.Minute {
		return false
	}

	// 5. Otherwise, trust the validation flag as-is.
	return v.IsValid
}
