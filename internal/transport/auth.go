package transport

import (
	"net/http"
	"strings"

	apperrors "orchestrationapi/internal/errors"
	"orchestrationapi/internal/keymanager"
	"orchestrationapi/internal/models"

	"github.com/gin-gonic/gin"
)

const proxyKeyContextKey = "proxyKey"

// extractProxyKey pulls the caller's proxy key out of the request, trying
// the dialects' native auth conventions in turn: OpenAI/Anthropic's
// "Authorization: Bearer <key>" and Gemini's "x-goog-api-key" header.
// Grounded on the teacher's extractHubAccessKey (Bearer header, then a
// provider-specific header, then a query-string fallback).
func extractProxyKey(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		const prefix = "Bearer "
		if strings.HasPrefix(auth, prefix) {
			return strings.TrimSpace(auth[len(prefix):])
		}
	}
	if key := c.GetHeader("x-goog-api-key"); key != "" {
		return key
	}
	if key := c.Query("key"); key != "" {
		return key
	}
	return ""
}

// requireProxyKey validates the caller's proxy key against the key manager
// and stashes the resolved *models.ProxyKey in the gin context for the
// route handler. Grounded on the teacher's HubAuthMiddleware, adapted from
// centralizedmgmt's access-key service to keymanager.ValidateProxyKey.
func requireProxyKey(keys *keymanager.KeyManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := extractProxyKey(c)
		if raw == "" {
			writeDialectError(c, dialectFromPath(c.Request.URL.Path), apperrors.ErrInvalidProxyKey)
			c.Abort()
			return
		}

		pk, err := keys.ValidateProxyKey(raw)
		if err != nil {
			apiErr, ok := err.(*apperrors.APIError)
			if !ok {
				apiErr = apperrors.NewAPIError(apperrors.ErrInternalServer, err.Error())
			}
			writeDialectError(c, dialectFromPath(c.Request.URL.Path), apiErr)
			c.Abort()
			return
		}

		c.Set(proxyKeyContextKey, pk)
		c.Next()
	}
}

func proxyKeyFromContext(c *gin.Context) *models.ProxyKey {
	v, ok := c.Get(proxyKeyContextKey)
	if !ok {
		return nil
	}
	pk, _ := v.(*models.ProxyKey)
	return pk
}

func dialectFromPath(path string) models.ProviderType {
	switch {
	case strings.HasPrefix(path, "/v1/messages"):
		return models.ProviderAnthropic
	case strings.HasPrefix(path, "/v1beta/"):
		return models.ProviderGemini
	default:
		return models.ProviderOpenAI
	}
}

// writeDialectError renders an APIError in the requested dialect's native
// error envelope (spec.md §6's "error response shape matches the requested
// dialect").
func writeDialectError(c *gin.Context, dialect models.ProviderType, apiErr *apperrors.APIError) {
	status := apiErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	switch dialect {
	case models.ProviderAnthropic:
		c.JSON(status, gin.H{
			"type": "error",
			"error": gin.H{
				"type":    apiErr.Code,
				"message": apiErr.Message,
			},
		})
	case models.ProviderGemini:
		c.JSON(status, gin.H{
			"error": gin.H{
				"code":    status,
				"message": apiErr.Message,
				"status":  apiErr.Code,
			},
		})
	default:
		c.JSON(status, gin.H{
			"error": gin.H{
				"message": apiErr.Message,
				"type":    "provider_error",
				"code":    apiErr.Code,
			},
		})
	}
}
