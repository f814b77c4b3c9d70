package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"orchestrationapi/internal/models"
)

func init() {
	register(models.ProviderGemini, geminiAdapter{})
}

// geminiAdapter speaks the Gemini generateContent dialect. Grounded on the
// teacher's GeminiChannel (internal/channel/gemini_channel.go) for the
// model-in-path URL shape, but follows spec.md §4.3 literally for auth
// (x-goog-api-key header) rather than the teacher's query-parameter key,
// since the spec names the header explicitly as this dialect's contract.
type geminiAdapter struct{}

func (geminiAdapter) BaseURL(cfg Config) string { return strings.TrimRight(cfg.BaseURL, "/") }

// ChatEndpoint and StreamingEndpoint return %s-templated paths; Send fills
// in the model, since Gemini embeds it in the path rather than the body.
func (geminiAdapter) ChatEndpoint() string      { return "/v1beta/models/%s:generateContent" }
func (geminiAdapter) ModelsEndpoint() string    { return "/v1beta/models" }
func (geminiAdapter) StreamingEndpoint() string { return "/v1beta/models/%s:streamGenerateContent?alt=sse" }

func (geminiAdapter) PrepareContent(req Request, cfg Config) ([]byte, error) {
	return applyGeminiOverrides(req.Body, cfg.ParameterOverrides)
}

func (geminiAdapter) PrepareHeaders(apiKey string, cfg Config) http.Header {
	h := http.Header{}
	h.Set("x-goog-api-key", apiKey)
	h.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		h.Set(k, v)
	}
	return h
}

func (a geminiAdapter) Send(ctx context.Context, req Request, body []byte, apiKey string, cfg Config, streaming bool) (*Response, error) {
	var path string
	if streaming {
		path = fmt.Sprintf(a.StreamingEndpoint(), req.Model)
	} else {
		path = fmt.Sprintf(a.ChatEndpoint(), req.Model)
	}
	url := a.BaseURL(cfg) + path

	resp, err := doSend(ctx, http.MethodPost, url, body, a.PrepareHeaders(apiKey, cfg), cfg, streaming)
	if err != nil {
		return nil, err
	}
	if resp.Stream != nil {
		resp.Stream = newStallDetector(resp.Stream, cfg.GeminiDataTimeout, cfg.GeminiMaxDataInterval)
	}
	return resp, nil
}

func (geminiAdapter) Classify(statusCode int, body []byte) Classification {
	return classifyStatus(statusCode, body)
}

func (a geminiAdapter) GetModels(ctx context.Context, apiKey string, cfg Config) ([]string, error) {
	url := a.BaseURL(cfg) + a.ModelsEndpoint()
	resp, err := doSend(ctx, http.MethodGet, url, nil, a.PrepareHeaders(apiKey, cfg), cfg, false)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gemini models list: status %d", resp.StatusCode)
	}
	var payload struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(payload.Models))
	for _, m := range payload.Models {
		ids = append(ids, strings.TrimPrefix(m.Name, "models/"))
	}
	return ids, nil
}
