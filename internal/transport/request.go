package transport

import (
	"encoding/json"
	"strings"

	"orchestrationapi/internal/models"

	"github.com/gin-gonic/gin"
)

// geminiModelAndAction splits Gemini's "{model}:{action}" path segment
// (captured whole by gin's *path wildcard, since ":" isn't a gin path
// separator) into its two parts. Grounded on the teacher's own
// hub_routes.go, which routes Gemini's beta surface the same way
// ("/models/*path") rather than trying to make gin parse the colon.
func geminiModelAndAction(c *gin.Context) (model, action string) {
	seg := strings.TrimPrefix(c.Param("path"), "/")
	idx := strings.LastIndex(seg, ":")
	if idx < 0 {
		return seg, ""
	}
	return seg[:idx], seg[idx+1:]
}

// requestedModel extracts the model name the caller asked for: the JSON
// body's "model" field for OpenAI/Anthropic, or the path segment Gemini
// embeds in the URL ahead of its ":action" suffix.
func requestedModel(c *gin.Context, dialect models.ProviderType, body []byte) string {
	if dialect == models.ProviderGemini {
		model, _ := geminiModelAndAction(c)
		return model
	}
	var payload struct {
		Model string `json:"model"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Model
}

// isStreamingRequest mirrors each dialect's own streaming signal: OpenAI
// and Anthropic carry a boolean "stream" field in the body; Gemini encodes
// it in the URL action plus an "alt=sse" query parameter.
func isStreamingRequest(c *gin.Context, dialect models.ProviderType, body []byte) bool {
	if dialect == models.ProviderGemini {
		_, action := geminiModelAndAction(c)
		return action == "streamGenerateContent" || c.Query("alt") == "sse"
	}
	var payload struct {
		Stream bool `json:"stream"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	return payload.Stream
}
