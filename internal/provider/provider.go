// Package provider implements the narrow per-dialect ProviderAdapter
// contract (spec.md §4.3): request encoding, auth headers, sending the
// upstream call, and classifying its outcome for the dispatcher's
// retry/failover loop. Each dialect (openai, anthropic, gemini) is an
// independent concrete type with no shared base state, selected by
// provider_type at the call site — there is deliberately no base-adapter
// struct the way the teacher's BaseChannel backs its three channels,
// since the dispatcher only ever needs the four interface methods and
// giving the three dialects a common embedded state would reintroduce the
// instance-method polymorphism the design notes call out for replacement.
package provider

import (
	"context"
	"net/http"
	"time"

	"orchestrationapi/internal/models"
)

// Config is the subset of a GroupConfig (plus the process-wide Gemini
// timeouts) a ProviderAdapter needs to build and send a request. Built by
// the dispatcher from the routed GroupConfig; adapters never read
// persistence or global config directly.
type Config struct {
	BaseURL               string
	Headers               map[string]string
	ConnectTimeout        time.Duration
	UnaryResponseTimeout  time.Duration
	StreamResponseTimeout time.Duration
	ParameterOverrides    map[string]any
	GeminiDataTimeout     time.Duration
	GeminiMaxDataInterval time.Duration
	// ProxyURL is the group's outbound HTTP/HTTPS/SOCKS5 proxy, extracted
	// from GroupConfig.ProxyConfig's "url" key. Empty means dial directly
	// (subject to the process's HTTP_PROXY/HTTPS_PROXY environment).
	ProxyURL string
}

// Request is the dialect-native request body the gateway received,
// together with the model name already resolved by the router (aliasing
// happens before the adapter ever sees the request).
type Request struct {
	Model string
	Body  []byte
}

// Response is a provider call's outcome. Stream is non-nil only when the
// caller asked for streaming and the adapter returned 2xx; the caller is
// responsible for closing it. Body holds the full buffered response for
// unary calls, and is also populated on a non-2xx streaming call (the
// error body is always read eagerly since there is no partial-success
// concept for a failed upstream call).
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Stream     ReadCloser
}

// ReadCloser is the minimal streaming-body contract, satisfied directly by
// *http.Response.Body and by the Gemini stall-detecting wrapper.
type ReadCloser interface {
	Read(p []byte) (int, error)
	Close() error
}

// TruncationReporter is implemented by Response.Stream values that can
// detect an incomplete upstream stream (currently only the Gemini stall
// detector, which also logs a warning itself when it marks a stream
// truncated). Nothing in the gateway type-asserts for it: the flag is not
// copied into the request log.
type TruncationReporter interface {
	Truncated() bool
}

// Adapter is the uniform, narrow capability set every dialect implements.
// No method takes or returns a *models.GroupConfig directly: everything
// the adapter needs about the group is captured in Config at call time, so
// an Adapter has no hidden dependency on persistence.
type Adapter interface {
	BaseURL(cfg Config) string
	ChatEndpoint() string
	ModelsEndpoint() string
	StreamingEndpoint() string

	PrepareContent(req Request, cfg Config) ([]byte, error)
	PrepareHeaders(apiKey string, cfg Config) http.Header

	// Send issues the already-prepared body (the PrepareContent output) to
	// the upstream. req is passed alongside for the information Send needs
	// that PrepareContent doesn't encode into the body itself — Gemini's
	// model-in-URL-path being the motivating case.
	Send(ctx context.Context, req Request, body []byte, apiKey string, cfg Config, streaming bool) (*Response, error)

	Classify(statusCode int, body []byte) Classification

	GetModels(ctx context.Context, apiKey string, cfg Config) ([]string, error)
}

// Classification is the outcome of applying spec.md §4.3's fixed status
// table to an upstream response.
type Classification struct {
	Retry       bool
	TryNextKey  bool
	Message     string
}

// For selects the adapter registered for a provider type.
func For(p models.ProviderType) (Adapter, bool) {
	a, ok := registry[p]
	return a, ok
}

var registry = map[models.ProviderType]Adapter{}

func register(p models.ProviderType, a Adapter) {
	registry[p] = a
}

// whitelistedParams is the set of parameter_overrides keys the OpenAI and
// Anthropic dialects apply (Gemini applies only the subset in
// geminiParamPaths); everything else in ParameterOverrides is ignored, per
// spec.md §4.3's whitelist rule.
var whitelistedParams = []string{"temperature", "max_tokens", "top_p", "presence_penalty", "frequency_penalty"}
