package transport

import (
	"io"
	"net/http"

	"orchestrationapi/internal/dispatcher"
	apperrors "orchestrationapi/internal/errors"
	"orchestrationapi/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// streamWriteBufSize matches the teacher's response_handlers.go chunk size
// for the upstream-to-client copy loop.
const streamWriteBufSize = 4 * 1024

type server struct {
	dispatch *dispatcher.Dispatcher
}

// handleOpenAIChat serves POST /v1/chat/completions.
func (s *server) handleOpenAIChat(c *gin.Context) {
	s.handle(c, models.ProviderOpenAI)
}

// handleAnthropicMessages serves POST /v1/messages.
func (s *server) handleAnthropicMessages(c *gin.Context) {
	s.handle(c, models.ProviderAnthropic)
}

// handleGeminiGenerate serves POST /v1beta/models/{model}:generateContent
// and the streaming ":streamGenerateContent?alt=sse" variant. The route's
// *path wildcard captures "{model}:{action}" whole, and
// geminiModelAndAction splits it.
func (s *server) handleGeminiGenerate(c *gin.Context) {
	s.handle(c, models.ProviderGemini)
}

func (s *server) handle(c *gin.Context, dialect models.ProviderType) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeDialectError(c, dialect, apperrors.NewAPIError(apperrors.ErrBadRequest, "failed to read request body"))
		return
	}

	model := requestedModel(c, dialect, body)
	streaming := isStreamingRequest(c, dialect, body)

	in := dispatcher.Input{
		Model:         model,
		ProxyKey:      proxyKeyFromContext(c),
		ForcedDialect: dialect,
		Body:          body,
		Streaming:     streaming,
		SourceIP:      c.ClientIP(),
		UserAgent:     c.Request.UserAgent(),
		Method:        c.Request.Method,
		Endpoint:      c.Request.URL.Path,
	}

	result, apiErr := s.dispatch.Dispatch(c.Request.Context(), in)
	if apiErr != nil {
		writeDialectError(c, dialect, apiErr)
		return
	}

	c.Set("group_id", result.GroupID)

	if result.Streaming && result.Stream != nil {
		writeStream(c, result)
		return
	}

	for k, vs := range result.Header {
		for _, v := range vs {
			c.Writer.Header().Add(k, v)
		}
	}
	c.Data(result.StatusCode, contentTypeOrDefault(result.Header), result.Body)
}

func writeStream(c *gin.Context, result *dispatcher.Result) {
	defer result.Stream.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(result.StatusCode)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		logrus.Error("streaming unsupported by the response writer")
		io.Copy(c.Writer, result.Stream)
		return
	}

	buf := make([]byte, streamWriteBufSize)
	for {
		n, err := result.Stream.Read(buf)
		if n > 0 {
			if _, writeErr := c.Writer.Write(buf[:n]); writeErr != nil {
				return
			}
			flusher.Flush()
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			return
		}
	}
}

func contentTypeOrDefault(h map[string][]string) string {
	if vs, ok := h["Content-Type"]; ok && len(vs) > 0 {
		return vs[0]
	}
	return "application/json"
}
