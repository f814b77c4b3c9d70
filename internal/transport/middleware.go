package transport

import (
	"time"

	apperrors "orchestrationapi/internal/errors"
	"orchestrationapi/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// recovery adapts internal/middleware.Recovery's gin.CustomRecovery wiring:
// a panic anywhere downstream gets logged and turned into a dialect-aware
// 500 instead of crashing the process.
func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logrus.Errorf("panic recovered: %v", recovered)
		writeDialectError(c, dialectFromPath(c.Request.URL.Path), apperrors.ErrInternalServer)
		c.Abort()
	})
}

// securityHeaders is internal/middleware.SecurityHeaders carried verbatim:
// the same defensive header set applies regardless of what's behind it.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "camera=(), microphone=(), geolocation=(), payment=(), usb=()")
		c.Header("X-Frame-Options", "SAMEORIGIN")
		c.Next()
	}
}

// accessLog logs one line per request after it completes, grounded on
// internal/middleware.Logger's shape (process first, measure latency,
// then log). extractProxyKey's query-string fallback means a Gemini-style
// caller's key can arrive as ?key=..., so the logged URL goes through
// utils.SanitizeURLForLog the same way the teacher's middleware does before
// it ever reaches logrus.
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := utils.SanitizeURLForLog(c.Request.URL)
		c.Next()
		logrus.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     path,
			"status":   c.Writer.Status(),
			"latency":  time.Since(start),
			"group_id": c.GetString("group_id"),
		}).Info("request handled")
	}
}
