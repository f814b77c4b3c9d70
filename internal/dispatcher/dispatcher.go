// Package dispatcher implements the multi-provider retry/failover
// orchestration loop (spec.md §4.4): for a routed request it walks the
// nested group-then-key ladder, classifying every upstream outcome to
// decide whether to retry the same key, rotate to another key in the same
// group, or exclude the group and ask the router for a different one.
//
// Grounded on internal/proxy/server.go's executeRequestWithRetry /
// executeRequestWithAggregateRetry: the outer "exclude a failed group and
// try the router again" loop mirrors the teacher's aggregate sub-group
// exclusion list, and the inner per-key retry loop with classification
// dispatch mirrors the teacher's single-group retry recursion — generalized
// from an implicit OpenAI-shaped byte-passthrough to the typed three-dialect
// ProviderAdapter contract.
package dispatcher

import (
	"context"
	"encoding/json"
	"math"
	"time"

	apperrors "orchestrationapi/internal/errors"
	"orchestrationapi/internal/keymanager"
	"orchestrationapi/internal/models"
	"orchestrationapi/internal/provider"
	"orchestrationapi/internal/router"
	"orchestrationapi/internal/utils"

	"github.com/sirupsen/logrus"
)

// GlobalConfig is the subset of config.GlobalConfig the dispatcher needs;
// declared locally so this package doesn't import internal/config directly
// (the dispatcher is handed plain values by internal/app at wiring time).
type GlobalConfig struct {
	ConnectTimeoutSeconds      int
	UnaryResponseTimeoutSeconds int
	StreamResponseTimeoutSeconds int
	MaxProviderRetries         int
}

// GeminiTimeouts is the subset of config.GeminiConfig the stall detector needs.
type GeminiTimeouts struct {
	DataTimeoutSeconds     int
	MaxDataIntervalSeconds int
}

// Dispatcher ties together the router, key manager, and provider adapters.
type Dispatcher struct {
	router *router.Router
	keys   *keymanager.KeyManager
	logger Logger

	global GlobalConfig
	gemini GeminiTimeouts
}

// New builds a Dispatcher. logger may be nil (no request logging), matching
// the teacher's nil-checked requestLogService.
func New(r *router.Router, keys *keymanager.KeyManager, logger Logger, global GlobalConfig, gemini GeminiTimeouts) *Dispatcher {
	if global.MaxProviderRetries <= 0 {
		global.MaxProviderRetries = 3
	}
	return &Dispatcher{router: r, keys: keys, logger: logger, global: global, gemini: gemini}
}

// Input is a dialect-native inbound request, already authenticated against
// a proxy key (or anonymous, if the gateway allows unauthenticated access).
type Input struct {
	Model         string
	ProxyKey      *models.ProxyKey
	ForcedDialect models.ProviderType
	Body          []byte
	Streaming     bool
	SourceIP      string
	UserAgent     string
	Method        string
	Endpoint      string
}

// Result is a successful dispatch outcome: either a buffered body or a live
// stream, never both.
type Result struct {
	StatusCode   int
	Header       map[string][]string
	Body         []byte
	Stream       provider.ReadCloser
	Streaming    bool
	GroupID      string
	ProviderType models.ProviderType
	Model        string
	Truncated    bool
	UpstreamKey  string
}

// Dispatch runs spec.md §4.4's algorithm to completion, returning either a
// success Result or a terminal *apperrors.APIError carrying the status code
// and message the caller should see. Upstream error bodies are not
// forwarded: once no eligible group is left or the provider-retry budget is
// spent, the caller gets a 500 no_available_provider error naming the
// requested model.
func (d *Dispatcher) Dispatch(ctx context.Context, in Input) (*Result, *apperrors.APIError) {
	requestID := d.startLog(ctx, in)

	excluded := make(map[string]struct{})

providerLoop:
	for providerAttempt := 0; providerAttempt < d.global.MaxProviderRetries; providerAttempt++ {
		route, err := d.router.Route(in.Model, in.ProxyKey, in.ForcedDialect, excluded)
		if err != nil {
			if route != nil && route.FailedGroupID != "" {
				excluded[route.FailedGroupID] = struct{}{}
				continue providerLoop
			}
			apiErr, ok := err.(*apperrors.APIError)
			if !ok {
				apiErr = apperrors.NewAPIError(apperrors.ErrInternalServer, err.Error())
			}
			if apiErr.Code == apperrors.ErrNoEligibleGroup.Code {
				break providerLoop
			}
			d.endLog(ctx, requestID, in, nil, apiErr.HTTPStatus, apiErr)
			return nil, apiErr
		}

		group := route.Group
		adapter, ok := provider.For(group.ProviderType)
		if !ok {
			logrus.WithFields(logrus.Fields{"group": group.ID, "provider_type": group.ProviderType}).
				Error("no adapter registered for group's provider_type")
			excluded[group.ID] = struct{}{}
			continue providerLoop
		}

		cfg := d.buildProviderConfig(group, route.ParameterOverrides)
		streaming := in.Streaming && !group.FakeStreaming
		req := provider.Request{Model: route.ResolvedModel, Body: in.Body}

		preparedBody, err := adapter.PrepareContent(req, cfg)
		if err != nil {
			logrus.WithError(err).WithField("group", group.ID).Warn("failed to prepare request content for group")
			excluded[group.ID] = struct{}{}
			continue providerLoop
		}

		key := route.APIKey

		for attempt := 0; attempt <= group.RetryCount; attempt++ {
			resp, sendErr := adapter.Send(ctx, req, preparedBody, key, cfg, streaming)
			if sendErr != nil {
				if apperrors.IsIgnorableError(sendErr) && ctx.Err() != nil {
					apiErr := apperrors.NewAPIErrorWithUpstream(499, "client_closed_request", sendErr.Error())
					d.endLog(ctx, requestID, in, nil, 499, apiErr)
					return nil, apiErr
				}

				d.keys.ReportError(group.ID, key, 0, sendErr.Error())
				// A TLS/certificate failure is a group misconfiguration, not
				// a transient blip: burning the rest of this group's retry
				// budget on it only adds latency before the same failure.
				if !utils.CategorizeError(sendErr).ShouldRetry || attempt >= group.RetryCount {
					excluded[group.ID] = struct{}{}
					continue providerLoop
				}
				sleepBackoff(ctx, attempt)
				continue
			}

			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				d.keys.ResetErrors(group.ID, key)
				d.keys.UpdateUsage(group.ID, key)
				if in.ProxyKey != nil {
					d.keys.UpdateProxyKeyUsage(in.ProxyKey.ID)
				}

				result := &Result{
					StatusCode:   resp.StatusCode,
					Header:       resp.Header,
					Body:         resp.Body,
					Stream:       resp.Stream,
					Streaming:    streaming && resp.Stream != nil,
					GroupID:      group.ID,
					ProviderType: group.ProviderType,
					Model:        route.ResolvedModel,
					UpstreamKey:  key,
				}
				if in.Streaming && group.FakeStreaming {
					result.Stream = fakeStreamFor(group.ProviderType, resp.Body)
					result.Streaming = true
				}
				d.endLog(ctx, requestID, in, result, resp.StatusCode, nil)
				return result, nil
			}

			cls := adapter.Classify(resp.StatusCode, resp.Body)
			d.keys.ReportError(group.ID, key, resp.StatusCode, cls.Message)

			switch {
			case cls.TryNextKey:
				nextKey, nextErr := d.keys.NextKey(group)
				if nextErr != nil {
					excluded[group.ID] = struct{}{}
					continue providerLoop
				}
				key = nextKey
				if cls.Retry {
					sleepBackoff(ctx, attempt)
				}
			case cls.Retry:
				if attempt >= group.RetryCount {
					excluded[group.ID] = struct{}{}
					continue providerLoop
				}
				sleepBackoff(ctx, attempt)
			default:
				// Neither retry-same-key nor switch-key: the classify table's
				// 400/404/422 row names this "try next group" explicitly; we
				// extend the same action to any other non-2xx status, since a
				// ProviderResponse carrying only {shouldRetry, shouldSwitchKey}
				// (spec.md §9's redesigned result type) has no third signal to
				// distinguish an unnamed status from 400/404/422 — see
				// DESIGN.md's Open Question decision on this table.
				excluded[group.ID] = struct{}{}
				continue providerLoop
			}
		}
	}

	apiErr := apperrors.NewNoEligibleGroupError(in.Model)
	d.endLog(ctx, requestID, in, nil, apiErr.HTTPStatus, apiErr)
	return nil, apiErr
}

func (d *Dispatcher) buildProviderConfig(group *models.GroupConfig, overrides map[string]any) provider.Config {
	headers := map[string]string{}
	if len(group.Headers) > 0 {
		if err := json.Unmarshal(group.Headers, &headers); err != nil {
			logrus.WithError(err).WithField("group", group.ID).Warn("invalid headers JSON on group, ignoring")
			headers = map[string]string{}
		}
	}

	unaryTimeout := time.Duration(d.global.UnaryResponseTimeoutSeconds) * time.Second
	if group.Timeout > 0 {
		unaryTimeout = time.Duration(group.Timeout) * time.Second
	}
	streamTimeout := time.Duration(d.global.StreamResponseTimeoutSeconds) * time.Second

	return provider.Config{
		BaseURL:               group.BaseURL,
		Headers:               headers,
		ConnectTimeout:        time.Duration(d.global.ConnectTimeoutSeconds) * time.Second,
		UnaryResponseTimeout:  unaryTimeout,
		StreamResponseTimeout: streamTimeout,
		ParameterOverrides:    overrides,
		GeminiDataTimeout:     time.Duration(d.gemini.DataTimeoutSeconds) * time.Second,
		GeminiMaxDataInterval: time.Duration(d.gemini.MaxDataIntervalSeconds) * time.Second,
		ProxyURL:              groupProxyURL(group),
	}
}

// groupProxyURL extracts the "url" key from a group's ProxyConfig JSON map,
// the same shape the admin API accepts for per-group outbound proxying.
func groupProxyURL(group *models.GroupConfig) string {
	if group.ProxyConfig == nil {
		return ""
	}
	raw, ok := group.ProxyConfig["url"]
	if !ok {
		return ""
	}
	s, _ := raw.(string)
	return s
}

// sleepBackoff implements spec.md §4.4's min(2^attempt s, 30 s) backoff,
// observing context cancellation so a disconnected client doesn't keep a
// goroutine parked in time.Sleep.
func sleepBackoff(ctx context.Context, attempt int) {
	d := time.Duration(math.Min(math.Pow(2, float64(attempt)), 30)) * time.Second
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
