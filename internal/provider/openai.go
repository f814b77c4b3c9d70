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
	register(models.ProviderOpenAI, openAIAdapter{})
}

// openAIAdapter speaks the OpenAI ChatCompletions dialect. Grounded on the
// teacher's OpenAIChannel (internal/channel/openai_channel.go): a single
// bearer-token auth header, no further per-request request mutation beyond
// parameter overrides and model substitution.
type openAIAdapter struct{}

func (openAIAdapter) BaseURL(cfg Config) string        { return strings.TrimRight(cfg.BaseURL, "/") }
func (openAIAdapter) ChatEndpoint() string              { return "/v1/chat/completions" }
func (openAIAdapter) ModelsEndpoint() string            { return "/v1/models" }
func (openAIAdapter) StreamingEndpoint() string         { return "/v1/chat/completions" }

func (openAIAdapter) PrepareContent(req Request, cfg Config) ([]byte, error) {
	return applyFlatOverrides(req.Body, req.Model, cfg.ParameterOverrides)
}

func (openAIAdapter) PrepareHeaders(apiKey string, cfg Config) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+apiKey)
	h.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		h.Set(k, v)
	}
	return h
}

func (a openAIAdapter) Send(ctx context.Context, req Request, body []byte, apiKey string, cfg Config, streaming bool) (*Response, error) {
	url := a.BaseURL(cfg) + a.ChatEndpoint()
	return doSend(ctx, http.MethodPost, url, body, a.PrepareHeaders(apiKey, cfg), cfg, streaming)
}

func (openAIAdapter) Classify(statusCode int, body []byte) Classification {
	return classifyStatus(statusCode, body)
}

func (a openAIAdapter) GetModels(ctx context.Context, apiKey string, cfg Config) ([]string, error) {
	url := a.BaseURL(cfg) + a.ModelsEndpoint()
	resp, err := doSend(ctx, http.MethodGet, url, nil, a.PrepareHeaders(apiKey, cfg), cfg, false)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openai models list: status %d", resp.StatusCode)
	}
	var payload struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(payload.Data))
	for _, m := range payload.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}
