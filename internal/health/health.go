// Package health implements the Health Checker (spec.md §4.7): a tiered
// provider/key/model probe with early exit, feeding HealthCheckResult and
// HealthCheckStats rows through the persistence port.
//
// Grounded on the ValidateKey methods of the teacher's three channel
// adapters (internal/channel/{openai,anthropic,gemini}_channel.go), which
// each do a cheap GET against the provider's models endpoint to prove a
// key works; generalized here into the spec's three explicit tiers plus
// the model-level smoke POST the teacher's ValidateKey never attempted.
package health

import (
	"context"
	"fmt"
	"time"

	"orchestrationapi/internal/models"
	"orchestrationapi/internal/persistence"
	"orchestrationapi/internal/provider"
	"orchestrationapi/internal/utils"

	"github.com/sirupsen/logrus"
)

const (
	CheckTypeProvider = "provider"
	CheckTypeKey      = "key"
	CheckTypeModel    = "model"
)

const interModelDelay = 30 * time.Second

// Checker runs on-demand health probes for a single group.
type Checker struct {
	persist persistence.Persistence
}

func NewChecker(persist persistence.Persistence) *Checker {
	return &Checker{persist: persist}
}

// Report is the outcome of checking one group across all three tiers,
// plus the consistency analysis spec.md §4.7 calls for.
type Report struct {
	GroupID       string
	ProviderOK    bool
	KeysOK        bool
	ModelsOK      bool
	Results       []*models.HealthCheckResult
	Inconsistency string
}

// Check runs the provider tier, then (if it passes) the key tier for every
// configured key, then (for every key that passed) the model tier for
// every configured model. Each probe is persisted as it completes.
func (c *Checker) Check(ctx context.Context, group *models.GroupConfig, cfgTimeouts provider.Config) (*Report, error) {
	adapter, ok := provider.For(group.ProviderType)
	if !ok {
		return nil, fmt.Errorf("health: no adapter registered for provider type %q", group.ProviderType)
	}
	cfg := cfgTimeouts
	cfg.BaseURL = group.BaseURL

	report := &Report{GroupID: group.ID}

	if len(group.APIKeyList) == 0 {
		return report, nil
	}
	probeKey := group.APIKeyList[0]

	providerResult := c.probeProvider(ctx, group.ID, adapter, probeKey, cfg)
	report.Results = append(report.Results, providerResult)
	report.ProviderOK = providerResult.Success
	if !report.ProviderOK {
		return report, nil
	}

	healthyKeys := make([]string, 0, len(group.APIKeyList))
	report.KeysOK = true
	for _, key := range group.APIKeyList {
		res := c.probeKey(ctx, group.ID, adapter, key, cfg)
		report.Results = append(report.Results, res)
		if res.Success {
			healthyKeys = append(healthyKeys, key)
		} else {
			report.KeysOK = false
		}
	}

	testModels := modelList(group)
	if len(healthyKeys) == 0 || len(testModels) == 0 {
		return report, nil
	}

	report.ModelsOK = true
	for _, key := range healthyKeys {
		for i, model := range testModels {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			default:
			}
			if i > 0 {
				time.Sleep(interModelDelay)
			}
			res := c.probeModel(ctx, group.ID, adapter, key, model, cfg)
			report.Results = append(report.Results, res)
			if !res.Success {
				report.ModelsOK = false
			}
		}
	}

	if report.ProviderOK && report.KeysOK && !report.ModelsOK {
		report.Inconsistency = "provider and keys are reachable via /models, but the chat/generate endpoint is failing for one or more models"
	}

	return report, nil
}

func modelList(group *models.GroupConfig) []string {
	if group.TestModel != "" {
		return []string{group.TestModel}
	}
	out := make([]string, 0, len(group.ModelSet))
	for m := range group.ModelSet {
		out = append(out, m)
	}
	return out
}

func (c *Checker) probeProvider(ctx context.Context, groupID string, adapter provider.Adapter, key string, cfg provider.Config) *models.HealthCheckResult {
	start := time.Now()
	_, err := adapter.GetModels(ctx, key, cfg)
	elapsed := time.Since(start).Milliseconds()

	res := &models.HealthCheckResult{
		GroupID:        groupID,
		CheckType:      CheckTypeProvider,
		ResponseTimeMs: elapsed,
		CreatedAt:      time.Now(),
	}
	if err != nil {
		res.Success = false
		res.StatusCode, res.Message = classifyProbeError(err)
	} else {
		res.Success = true
		res.StatusCode = 200
	}
	c.record(res)
	return res
}

func (c *Checker) probeKey(ctx context.Context, groupID string, adapter provider.Adapter, key string, cfg provider.Config) *models.HealthCheckResult {
	start := time.Now()
	_, err := adapter.GetModels(ctx, key, cfg)
	elapsed := time.Since(start).Milliseconds()

	res := &models.HealthCheckResult{
		GroupID:        groupID,
		CheckType:      CheckTypeKey,
		KeyHash:        utils.HashAPIKey(key),
		ResponseTimeMs: elapsed,
		CreatedAt:      time.Now(),
	}
	if err != nil {
		res.Success = false
		res.StatusCode, res.Message = classifyProbeError(err)
	} else {
		res.Success = true
		res.StatusCode = 200
	}
	c.record(res)
	return res
}

func (c *Checker) probeModel(ctx context.Context, groupID string, adapter provider.Adapter, key, model string, cfg provider.Config) *models.HealthCheckResult {
	body := smokeBody(adapter, model)
	start := time.Now()
	resp, err := adapter.Send(ctx, provider.Request{Model: model, Body: body}, body, key, cfg, false)
	elapsed := time.Since(start).Milliseconds()

	res := &models.HealthCheckResult{
		GroupID:        groupID,
		CheckType:      CheckTypeModel,
		KeyHash:        utils.HashAPIKey(key),
		Model:          model,
		ResponseTimeMs: elapsed,
		CreatedAt:      time.Now(),
	}
	switch {
	case err != nil:
		res.Success = false
		res.StatusCode, res.Message = classifyProbeError(err)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		res.Success = true
		res.StatusCode = resp.StatusCode
	default:
		res.Success = false
		res.StatusCode = resp.StatusCode
		res.Message = statusMessage(resp.StatusCode)
	}
	c.record(res)
	return res
}

// smokeBody builds the minimal per-dialect probe request spec.md §4.7
// calls for (max_tokens=1, low temperature). Built directly rather than
// through Adapter.PrepareContent, since PrepareContent merges a group's
// configured ParameterOverrides and the probe must stay fixed regardless
// of group configuration.
func smokeBody(adapter provider.Adapter, model string) []byte {
	switch adapter.ChatEndpoint() {
	case "/v1/messages":
		return []byte(fmt.Sprintf(`{"model":%q,"max_tokens":1,"temperature":0,"messages":[{"role":"user","content":"hi"}]}`, model))
	case "/v1beta/models/%s:generateContent":
		return []byte(`{"contents":[{"role":"user","parts":[{"text":"hi"}]}],"generationConfig":{"maxOutputTokens":1,"temperature":0}}`)
	default:
		return []byte(fmt.Sprintf(`{"model":%q,"max_tokens":1,"temperature":0,"messages":[{"role":"user","content":"hi"}]}`, model))
	}
}

// statusMessage is spec.md §4.7's fixed status-code-to-message table. No
// teacher equivalent exists for probe-result messaging (internal/errors'
// APIError vocabulary is dispatcher-facing, not probe-facing), so this is
// new code built directly from the spec's literal table.
func statusMessage(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "ok"
	case statusCode == 401:
		return "invalid key"
	case statusCode == 403:
		return "forbidden"
	case statusCode == 404:
		return "endpoint missing"
	case statusCode == 429:
		return "rate-limited"
	case statusCode >= 500:
		return "server error"
	default:
		return fmt.Sprintf("unexpected status %d", statusCode)
	}
}

// classifyProbeError covers transport-level failures (the adapter never
// got a status code to classify): connection refused, DNS failure, a
// timed-out context. There is no HTTP status in these cases, so 0 is
// recorded and the raw error text becomes the message.
func classifyProbeError(err error) (int, string) {
	return 0, err.Error()
}

func (c *Checker) record(res *models.HealthCheckResult) {
	if err := c.persist.CreateHealthCheckResult(res); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"group": res.GroupID, "check_type": res.CheckType}).Warn("health checker: failed to persist probe result")
	}
	if err := c.updateStats(res); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"group": res.GroupID, "check_type": res.CheckType}).Warn("health checker: failed to update stats")
	}
}

func (c *Checker) updateStats(res *models.HealthCheckResult) error {
	existing, err := c.persist.ListHealthCheckStats(res.GroupID)
	if err != nil {
		return err
	}

	stats := &models.HealthCheckStats{GroupID: res.GroupID, CheckType: res.CheckType}
	for _, s := range existing {
		if s.CheckType == res.CheckType {
			stats = s
			break
		}
	}

	stats.TotalCount++
	if res.Success {
		stats.SuccessCount++
		stats.ConsecutiveFailures = 0
	} else {
		stats.FailureCount++
		stats.ConsecutiveFailures++
	}
	stats.AvgResponseTimeMs += (float64(res.ResponseTimeMs) - stats.AvgResponseTimeMs) / float64(stats.TotalCount)
	stats.LastCheckedAt = res.CreatedAt

	return c.persist.UpsertHealthCheckStats(stats)
}
