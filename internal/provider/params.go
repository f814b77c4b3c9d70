package provider

import (
	"github.com/tidwall/sjson"
)

// applyFlatOverrides applies the parameter_overrides whitelist to a
// flat-field dialect (OpenAI and Anthropic both name temperature,
// max_tokens, top_p the same way) and sets the resolved model name,
// grounded on the teacher's gjson/sjson request-mutation idiom
// (internal/proxy/gemini_cc_support.go).
func applyFlatOverrides(body []byte, model string, overrides map[string]any) ([]byte, error) {
	out := string(body)
	var err error
	out, err = sjson.Set(out, "model", model)
	if err != nil {
		return nil, err
	}
	for _, key := range whitelistedParams {
		v, ok := overrides[key]
		if !ok {
			continue
		}
		out, err = sjson.Set(out, key, v)
		if err != nil {
			return nil, err
		}
	}
	return []byte(out), nil
}

// geminiParamPaths maps the spec's whitelisted override keys onto Gemini's
// nested generationConfig field names; presence_penalty and
// frequency_penalty have no Gemini equivalent and are dropped.
var geminiParamPaths = map[string]string{
	"temperature": "generationConfig.temperature",
	"max_tokens":  "generationConfig.maxOutputTokens",
	"top_p":       "generationConfig.topP",
}

// applyGeminiOverrides applies the whitelist to Gemini's nested
// generationConfig object. model is not embedded in the body for Gemini
// native requests (it's part of the URL path), so it is not set here.
func applyGeminiOverrides(body []byte, overrides map[string]any) ([]byte, error) {
	out := string(body)
	var err error
	for key, path := range geminiParamPaths {
		v, ok := overrides[key]
		if !ok {
			continue
		}
		out, err = sjson.Set(out, path, v)
		if err != nil {
			return nil, err
		}
	}
	return []byte(out), nil
}
