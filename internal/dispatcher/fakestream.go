package dispatcher

import (
	"bytes"
	"io"

	"orchestrationapi/internal/models"
	"orchestrationapi/internal/provider"
)

// terminalMarkerFor returns the dialect-specific SSE terminal marker
// appended after a fake_streaming group's single synthesized event.
// Gemini responses carry their own finishReason field inline and have no
// separate terminal sentinel, so nothing is appended for it.
func terminalMarkerFor(p models.ProviderType) string {
	switch p {
	case models.ProviderGemini:
		return ""
	default:
		return "data: [DONE]\n\n"
	}
}

// fakeStreamFor wraps a unary response body as the single SSE event a
// fake_streaming group re-emits in place of a real upstream stream, per
// spec.md §4.4: the client asked for stream=true but the dispatcher made an
// ordinary unary call and now presents it as a one-event stream.
func fakeStreamFor(p models.ProviderType, body []byte) provider.ReadCloser {
	var buf bytes.Buffer
	buf.WriteString("data: ")
	buf.Write(body)
	buf.WriteString("\n\n")
	buf.WriteString(terminalMarkerFor(p))
	return io.NopCloser(&buf)
}
