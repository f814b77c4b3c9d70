// Package transport is the thin gin ingress binding the wire surface
// (spec.md §6) to the dispatcher: route registration, proxy-key auth, and
// request/response translation live here; all routing/retry/provider logic
// stays in internal/dispatcher.
//
// Grounded on the teacher's internal/transport/routes.go for the overall
// NewRouter(...) *gin.Engine shape (global middleware chain, then grouped
// route registration) and on hub_routes.go for the proxy-key auth
// middleware pattern — both rewritten from the ground up against the new
// three-dialect wire surface instead of the teacher's admin/hub API.
package transport

import (
	"net/http"
	"time"

	"orchestrationapi/internal/dispatcher"
	"orchestrationapi/internal/keymanager"
	"orchestrationapi/internal/persistence"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the gateway's gin.Engine: health check, model listing,
// and the three dialect-specific chat/generate endpoints, all behind
// proxy-key authentication.
func NewRouter(d *dispatcher.Dispatcher, keys *keymanager.KeyManager, persist persistence.Persistence) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(recovery())
	router.Use(securityHeaders())
	router.Use(accessLog())

	srv := &server{dispatch: d}
	lister := &modelsLister{persist: persist}

	auth := requireProxyKey(keys)
	compress := gzip.Gzip(gzip.DefaultCompression)

	// Plain JSON reads (/health and the model-listing endpoints) gain gzip
	// compression; the POST chat/completions/messages/generateContent routes
	// never do, since gzip's buffering would break SSE streaming's flush
	// semantics (see DESIGN.md).
	reads := router.Group("/")
	reads.Use(compress)
	{
		reads.GET("/health", func(c *gin.Context) {
			if err := persist.Ping(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
		})

		v1Reads := reads.Group("/v1")
		v1Reads.Use(auth)
		v1Reads.GET("/models", lister.handleOpenAI)

		v1betaReads := reads.Group("/v1beta")
		v1betaReads.Use(auth)
		v1betaReads.GET("/models", lister.handleGemini)
	}

	v1 := router.Group("/v1")
	v1.Use(auth)
	{
		v1.POST("/chat/completions", srv.handleOpenAIChat)
		v1.POST("/messages", srv.handleAnthropicMessages)
	}

	v1beta := router.Group("/v1beta")
	v1beta.Use(auth)
	{
		v1beta.POST("/models/*path", srv.handleGeminiGenerate)
	}

	return router
}
