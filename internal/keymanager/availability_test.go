package keymanager

import (
	"testing"
	"time"

	"orchestrationapi/internal/models"
)

func intPtr(v int) *int { return &v }

func TestIsAvailable_NilValidation(t *testing.T) {
	if !isAvailable(nil) {
		t.Fatal("expected nil validation (never probed) to be available")
	}
}

func TestIsAvailable_StaleValidation(t *testing.T) {
	old := time.Now().Add(-25 * time.Hour)

	valid := &models.KeyValidation{IsValid: true, ErrorCount: 10, LastValidatedAt: old}
	if !isAvailable(valid) {
		t.Fatal("stale but marked valid should be available regardless of error count")
	}

	invalidFewErrors := &models.KeyValidation{IsValid: false, ErrorCount: 2, LastValidatedAt: old}
	if !isAvailable(invalidFewErrors) {
		t.Fatal("stale, invalid, but under 3 errors should still be available")
	}

	invalidManyErrors := &models.KeyValidation{IsValid: false, ErrorCount: 3, LastValidatedAt: old}
	if isAvailable(invalidManyErrors) {
		t.Fatal("stale, invalid, with 3+ errors should not be available")
	}
}

func TestIsAvailable_HeavilyFailing(t *testing.T) {
	recent := &models.KeyValidation{IsValid: false, ErrorCount: 5, LastValidatedAt: time.Now().Add(-10 * time.Minute)}
	if isAvailable(recent) {
		t.Fatal("5+ errors within the last hour should not be available")
	}

	pastHour := &models.KeyValidation{IsValid: false, ErrorCount: 5, LastValidatedAt: time.Now().Add(-61 * time.Minute)}
	if !isAvailable(pastHour) {
		t.Fatal("5+ errors should get another chance after an hour")
	}
}

func TestIsAvailable_Recent401(t *testing.T) {
	v := &models.KeyValidation{
		IsValid: true, ErrorCount: 1,
		LastStatusCode:  intPtr(401),
		LastValidatedAt: time.Now().Add(-10 * time.Minute),
	}
	if isAvailable(v) {
		t.Fatal("a 401 within the last 30 minutes should never be available")
	}

	old := &models.KeyValidation{
		IsValid: true, ErrorCount: 1,
		LastStatusCode:  intPtr(401),
		LastValidatedAt: time.Now().Add(-31 * time.Minute),
	}
	if !isAvailable(old) {
		t.Fatal("a 401 from more than 30 minutes ago should fall through to IsValid")
	}
}

func TestIsAvailable_TrustsValidFlagOtherwise(t *testing.T) {
	v := &models.KeyValidation{IsValid: true, ErrorCount: 1, LastValidatedAt: time.Now().Add(-time.Minute)}
	if !isAvailable(v) {
		t.Fatal("recent, valid, low error count should be available")
	}

	v2 := &models.KeyValidation{IsValid: false, ErrorCount: 1, LastValidatedAt: time.Now().Add(-time.Minute)}
	if isAvailable(v2) {
		t.Fatal("recent, explicitly invalid should not be available")
	}
}
