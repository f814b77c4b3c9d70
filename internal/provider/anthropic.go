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
	register(models.ProviderAnthropic, anthropicAdapter{})
}

// anthropicClientUserAgent mirrors the teacher's ClaudeCodeUserAgent
// constant (internal/channel/anthropic_channel.go): Anthropic's upstream
// is more permissive of requests that present as the official CLI client.
const anthropicClientUserAgent = "claude-cli/2.1.1 (external, cli)"

// anthropicAdapter speaks the Anthropic Messages dialect. Grounded on the
// teacher's AnthropicChannel: dual Authorization/x-api-key auth, and a
// default anthropic-version applied only when the caller didn't already
// set one (preserved from the original request's headers upstream of the
// adapter — PrepareHeaders only supplies the default, it never clobbers
// a cfg.Headers override).
type anthropicAdapter struct{}

func (anthropicAdapter) BaseURL(cfg Config) string { return strings.TrimRight(cfg.BaseURL, "/") }
func (anthropicAdapter) ChatEndpoint() string       { return "/v1/messages" }
func (anthropicAdapter) ModelsEndpoint() string     { return "/v1/models" }
func (anthropicAdapter) StreamingEndpoint() string  { return "/v1/messages" }

func (anthropicAdapter) PrepareContent(req Request, cfg Config) ([]byte, error) {
	return applyFlatOverrides(req.Body, req.Model, cfg.ParameterOverrides)
}

func (anthropicAdapter) PrepareHeaders(apiKey string, cfg Config) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+apiKey)
	h.Set("x-api-key", apiKey)
	h.Set("anthropic-version", "2023-06-01")
	h.Set("Content-Type", "application/json")
	h.Set("User-Agent", anthropicClientUserAgent)
	for k, v := range cfg.Headers {
		h.Set(k, v)
	}
	return h
}

func (a anthropicAdapter) Send(ctx context.Context, req Request, body []byte, apiKey string, cfg Config, streaming bool) (*Response, error) {
	url := a.BaseURL(cfg) + a.ChatEndpoint()
	return doSend(ctx, http.MethodPost, url, body, a.PrepareHeaders(apiKey, cfg), cfg, streaming)
}

func (anthropicAdapter) Classify(statusCode int, body []byte) Classification {
	return classifyStatus(statusCode, body)
}

func (a anthropicAdapter) GetModels(ctx context.Context, apiKey string, cfg Config) ([]string, error) {
	url := a.BaseURL(cfg) + a.ModelsEndpoint()
	resp, err := doSend(ctx, http.MethodGet, url, nil, a.PrepareHeaders(apiKey, cfg), cfg, false)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("anthropic models list: status %d", resp.StatusCode)
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
