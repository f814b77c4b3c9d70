// Package errors defines the gateway's API-facing error vocabulary: a
// single APIError type with predefined instances for the caller-visible
// error kinds named in the dispatcher's error taxonomy, plus helpers for
// classifying persistence-layer errors.
package errors

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// APIError is the gateway's uniform error type: an HTTP status, a stable
// machine-readable code, and a human message.
type APIError struct {
	HTTPStatus int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Message
}

// Predefined errors. Dispatcher-facing kinds (InvalidProxyKey, RpmExceeded,
// NoEligibleGroup, NoAvailableKey) sit alongside the generic persistence
// error family the teacher's errors package carries.
var (
	ErrBadRequest        = &APIError{HTTPStatus: http.StatusBadRequest, Code: "BAD_REQUEST", Message: "Invalid request parameters"}
	ErrInvalidJSON       = &APIError{HTTPStatus: http.StatusBadRequest, Code: "INVALID_JSON", Message: "Invalid JSON body"}
	ErrValidation        = &APIError{HTTPStatus: http.StatusBadRequest, Code: "VALIDATION_FAILED", Message: "Validation failed"}
	ErrDuplicateResource = &APIError{HTTPStatus: http.StatusConflict, Code: "DUPLICATE_RESOURCE", Message: "Resource already exists"}
	ErrResourceNotFound  = &APIError{HTTPStatus: http.StatusNotFound, Code: "NOT_FOUND", Message: "Resource not found"}
	ErrInternalServer    = &APIError{HTTPStatus: http.StatusInternalServerError, Code: "INTERNAL_SERVER_ERROR", Message: "Internal server error"}
	ErrDatabase          = &APIError{HTTPStatus: http.StatusInternalServerError, Code: "DATABASE_ERROR", Message: "Database error"}
	ErrUnauthorized      = &APIError{HTTPStatus: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: "Unauthorized"}
	ErrForbidden         = &APIError{HTTPStatus: http.StatusForbidden, Code: "FORBIDDEN", Message: "Forbidden"}
	ErrTaskInProgress    = &APIError{HTTPStatus: http.StatusConflict, Code: "TASK_IN_PROGRESS", Message: "Task already in progress"}
	ErrBadGateway        = &APIError{HTTPStatus: http.StatusBadGateway, Code: "BAD_GATEWAY", Message: "Upstream returned an error"}
	ErrNoActiveKeys      = &APIError{HTTPStatus: http.StatusServiceUnavailable, Code: "NO_ACTIVE_KEYS", Message: "No active keys available"}
	ErrMaxRetriesExceeded = &APIError{HTTPStatus: http.StatusBadGateway, Code: "MAX_RETRIES_EXCEEDED", Message: "Max retries exceeded"}
	ErrNoKeysAvailable   = &APIError{HTTPStatus: http.StatusServiceUnavailable, Code: "NO_KEYS_AVAILABLE", Message: "No keys available"}

	// ErrInvalidProxyKey — caller surface 401, per the dispatcher's error taxonomy.
	ErrInvalidProxyKey = &APIError{HTTPStatus: http.StatusUnauthorized, Code: "invalid_proxy_key", Message: "invalid or disabled proxy key"}
	// ErrRpmExceeded — caller surface 429.
	ErrRpmExceeded = &APIError{HTTPStatus: http.StatusTooManyRequests, Code: "rpm_exceeded", Message: "request rate limit exceeded"}
	// ErrNoEligibleGroup — caller surface 500, message carries the requested model.
	ErrNoEligibleGroup = &APIError{HTTPStatus: http.StatusInternalServerError, Code: "no_available_provider", Message: "no available provider for model"}
	// ErrNoAvailableKey — caller surface 500, no provider group had an available key.
	ErrNoAvailableKey = &APIError{HTTPStatus: http.StatusInternalServerError, Code: "no_available_provider", Message: "no available provider for model"}
)

// NewAPIError clones a predefined error with a custom message.
func NewAPIError(base *APIError, message string) *APIError {
	return &APIError{HTTPStatus: base.HTTPStatus, Code: base.Code, Message: message}
}

// NewAPIErrorWithUpstream builds an error directly from an upstream status/code/message,
// used by the provider adapters to surface a terminal classification to the caller.
func NewAPIErrorWithUpstream(statusCode int, code string, message string) *APIError {
	return &APIError{HTTPStatus: statusCode, Code: code, Message: message}
}

func NewValidationError(message string) *APIError {
	return NewAPIError(ErrValidation, message)
}

func NewAuthenticationError(message string) *APIError {
	return NewAPIError(ErrUnauthorized, message)
}

func NewNotFoundError(message string) *APIError {
	return NewAPIError(ErrResourceNotFound, message)
}

func NewForbiddenError(message string) *APIError {
	return NewAPIError(ErrForbidden, message)
}

// NewNoEligibleGroupError formats ErrNoEligibleGroup with the requested model name.
func NewNoEligibleGroupError(model string) *APIError {
	return NewAPIError(ErrNoEligibleGroup, "no available provider for model "+model)
}

// ParseDBError classifies a gorm/driver error into an APIError, or nil for
// a nil input. Dialect detection is by driver error type (mysql) or string
// match (sqlite's textual constraint errors) — the postgres branch the
// teacher carried is dropped along with the pgx dependency (see DESIGN.md).
func ParseDBError(err error) *APIError {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrResourceNotFound
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		if mysqlErr.Number == 1062 {
			return ErrDuplicateResource
		}
		return ErrDatabase
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate entry") {
		return ErrDuplicateResource
	}

	return ErrDatabase
}
