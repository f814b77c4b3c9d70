package dispatcher

import (
	"encoding/json"

	"orchestrationapi/internal/models"
)

// tokenUsage covers the three dialects' differently-shaped usage objects:
// OpenAI's prompt_tokens/completion_tokens/total_tokens, Anthropic's
// input_tokens/output_tokens (no total, summed here), and Gemini's
// usageMetadata.*TokenCount. Grounded on the InputTokens/OutputTokens split
// seen across the example pack's provider clients (e.g. nulpointcorp's
// openai.Usage.PromptTokens).
type tokenUsage struct {
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
		InputTokens      int64 `json:"input_tokens"`
		OutputTokens     int64 `json:"output_tokens"`
	} `json:"usage"`
	UsageMetadata struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
		TotalTokenCount      int64 `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// parseTokenUsage extracts token counts from a buffered unary response body.
// Parse failures (non-JSON bodies, unexpected shapes) are silent: token
// accounting is an observability nicety, never a reason to fail the request.
func parseTokenUsage(p models.ProviderType, body []byte) (prompt, completion, total int64) {
	if len(body) == 0 {
		return 0, 0, 0
	}
	var u tokenUsage
	if err := json.Unmarshal(body, &u); err != nil {
		return 0, 0, 0
	}

	switch p {
	case models.ProviderGemini:
		return u.UsageMetadata.PromptTokenCount, u.UsageMetadata.CandidatesTokenCount, u.UsageMetadata.TotalTokenCount
	case models.ProviderAnthropic:
		return u.Usage.InputTokens, u.Usage.OutputTokens, u.Usage.InputTokens + u.Usage.OutputTokens
	default:
		return u.Usage.PromptTokens, u.Usage.CompletionTokens, u.Usage.TotalTokens
	}
}
