// Package models defines the persisted entities of the gateway: provider
// groups, proxy keys, per-key validation/usage state, request logs, health
// check results, and the applied-migrations log.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// BalancePolicy is a group's API-key selection policy.
type BalancePolicy string

const (
	BalanceRoundRobin BalancePolicy = "round_robin"
	BalanceRandom     BalancePolicy = "random"
	BalanceLeastUsed  BalancePolicy = "least_used"
)

// Normalize maps any unrecognized policy string to round_robin, per
// the open question in the design notes: unknown balance_policy values
// default to round_robin rather than failing closed.
func (b BalancePolicy) Normalize() BalancePolicy {
	switch b {
	case BalanceRoundRobin, BalanceRandom, BalanceLeastUsed:
		return b
	default:
		return BalanceRoundRobin
	}
}

// GroupBalancePolicy is a proxy key's group-selection policy.
type GroupBalancePolicy string

const (
	GroupBalanceFailover   GroupBalancePolicy = "failover"
	GroupBalanceRoundRobin GroupBalancePolicy = "round_robin"
	GroupBalanceWeighted   GroupBalancePolicy = "weighted"
	GroupBalanceRandom     GroupBalancePolicy = "random"
)

func (g GroupBalancePolicy) Normalize() GroupBalancePolicy {
	switch g {
	case GroupBalanceFailover, GroupBalanceRoundRobin, GroupBalanceWeighted, GroupBalanceRandom:
		return g
	default:
		return GroupBalanceFailover
	}
}

// ProviderType names the wire dialect a group's upstream speaks.
type ProviderType string

const (
	ProviderOpenAI    ProviderType = "openai"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderGemini    ProviderType = "gemini"
)

// GroupConfig is a provider group: a base URL, an ordered pool of upstream
// API keys, a model list and its policies. `ID` is a string identifier
// (unlike the teacher's auto-increment group id) because the spec's data
// model names it as the string primary key callers address directly.
type GroupConfig struct {
	ID                 string            `gorm:"primaryKey;type:varchar(255)" json:"id"`
	ProviderType       ProviderType      `gorm:"type:varchar(50);not null;index" json:"provider_type"`
	BaseURL            string            `gorm:"type:varchar(500)" json:"base_url"`
	APIKeys            datatypes.JSON    `gorm:"type:json;not null" json:"api_keys"`
	Models             datatypes.JSON    `gorm:"type:json" json:"models"`
	ModelAliases       datatypes.JSONMap `gorm:"type:json" json:"model_aliases"`
	ParameterOverrides datatypes.JSONMap `gorm:"type:json" json:"parameter_overrides"`
	Headers            datatypes.JSON    `gorm:"type:json" json:"headers"`
	BalancePolicy      BalancePolicy     `gorm:"type:varchar(50);not null;default:'round_robin'" json:"balance_policy"`
	RetryCount         int               `gorm:"not null;default:3" json:"retry_count"`
	Timeout            int               `gorm:"not null;default:180" json:"timeout"`
	RpmLimit           int               `gorm:"not null;default:0" json:"rpm_limit"`
	TestModel          string            `gorm:"type:varchar(255)" json:"test_model"`
	Priority           int               `gorm:"not null;default:0" json:"priority"`
	Enabled            bool              `gorm:"not null;default:true;index" json:"enabled"`
	FakeStreaming      bool              `gorm:"not null;default:false" json:"fake_streaming"`
	ProxyConfig        datatypes.JSONMap `gorm:"type:json" json:"proxy_config"`
	IsDeleted          bool              `gorm:"not null;default:false;index" json:"is_deleted"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`

	// Parsed caches, populated by Hydrate on load.
	APIKeyList    []string            `gorm:"-" json:"-"`
	ModelSet      map[string]struct{} `gorm:"-" json:"-"`
	ModelAliasMap map[string]string   `gorm:"-" json:"-"`

	// ModelAliasRulesV2 holds the subset of ModelAliases entries whose stored
	// value is a redirect rule object (`{"targets":[...]}`) rather than a
	// plain target-model string, supporting one-to-many weighted redirection
	// per ModelRedirectRuleV2 (see model_redirect.go). A source model may
	// appear as a plain string in one group and a weighted rule in another;
	// ModelAliasMap and ModelAliasRulesV2 partition the same ModelAliases
	// column by value shape, not by source model.
	ModelAliasRulesV2 map[string]*ModelRedirectRuleV2 `gorm:"-" json:"-"`
}

// Hydrate parses the JSON columns into the in-memory caches consumed by the
// router and key manager. Called by the persistence layer after every read.
func (g *GroupConfig) Hydrate() error {
	g.APIKeyList = nil
	if len(g.APIKeys) > 0 {
		if err := json.Unmarshal(g.APIKeys, &g.APIKeyList); err != nil {
			return fmt.Errorf("group %s: invalid api_keys: %w", g.ID, err)
		}
	}

	g.ModelSet = make(map[string]struct{})
	if len(g.Models) > 0 {
		var list []string
		if err := json.Unmarshal(g.Models, &list); err != nil {
			return fmt.Errorf("group %s: invalid models: %w", g.ID, err)
		}
		for _, m := range list {
			g.ModelSet[m] = struct{}{}
		}
	}

	g.ModelAliasMap = make(map[string]string, len(g.ModelAliases))
	g.ModelAliasRulesV2 = make(map[string]*ModelRedirectRuleV2, len(g.ModelAliases))
	for k, v := range g.ModelAliases {
		switch val := v.(type) {
		case string:
			g.ModelAliasMap[k] = val
		default:
			// Anything else is a V2 rule object: round-trip it through JSON
			// since gorm hands JSONMap values back as map[string]any/[]any,
			// not *ModelRedirectRuleV2 directly.
			raw, err := json.Marshal(val)
			if err != nil {
				return fmt.Errorf("group %s: invalid model_aliases entry %q: %w", g.ID, k, err)
			}
			var rule ModelRedirectRuleV2
			if err := json.Unmarshal(raw, &rule); err != nil || len(rule.Targets) == 0 {
				return fmt.Errorf("group %s: model_aliases entry %q is neither a target string nor a redirect rule", g.ID, k)
			}
			g.ModelAliasRulesV2[k] = &rule
		}
	}
	return nil
}

// Dehydrate serializes APIKeyList and ModelSet back into the JSON columns
// gorm persists, the inverse of Hydrate. Callers that mutate the in-memory
// caches directly (rather than the JSON columns) must call this before a
// write.
func (g *GroupConfig) Dehydrate() error {
	keys, err := json.Marshal(g.APIKeyList)
	if err != nil {
		return fmt.Errorf("group %s: marshal api_keys: %w", g.ID, err)
	}
	g.APIKeys = keys

	modelList := make([]string, 0, len(g.ModelSet))
	for m := range g.ModelSet {
		modelList = append(modelList, m)
	}
	modelsJSON, err := json.Marshal(modelList)
	if err != nil {
		return fmt.Errorf("group %s: marshal models: %w", g.ID, err)
	}
	g.Models = modelsJSON

	if len(g.ModelAliasMap) > 0 || len(g.ModelAliasRulesV2) > 0 {
		merged := make(datatypes.JSONMap, len(g.ModelAliasMap)+len(g.ModelAliasRulesV2))
		for k, v := range g.ModelAliasMap {
			merged[k] = v
		}
		for k, rule := range g.ModelAliasRulesV2 {
			merged[k] = rule
		}
		g.ModelAliases = merged
	}
	return nil
}

// ProxyKey is the gateway-issued credential presented by clients.
type ProxyKey struct {
	ID                 uint               `gorm:"primaryKey;autoIncrement" json:"id"`
	KeyValue           string             `gorm:"type:varchar(255);not null;uniqueIndex" json:"key_value"`
	Name               string             `gorm:"type:varchar(255)" json:"name"`
	Description        string             `gorm:"type:varchar(512)" json:"description"`
	Enabled            bool               `gorm:"not null;default:true;index" json:"enabled"`
	RpmLimit           int                `gorm:"not null;default:0" json:"rpm_limit"`
	AllowedGroups      datatypes.JSON     `gorm:"type:json" json:"allowed_groups"`
	GroupBalancePolicy GroupBalancePolicy `gorm:"type:varchar(50);not null;default:'failover'" json:"group_balance_policy"`
	GroupWeights       datatypes.JSONMap  `gorm:"type:json" json:"group_weights"`
	UsageCount         int64              `gorm:"not null;default:0" json:"usage_count"`
	LastUsedAt         *time.Time         `json:"last_used_at"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`

	AllowedGroupSet map[string]struct{} `gorm:"-" json:"-"`
}

// Hydrate parses AllowedGroups into AllowedGroupSet. An empty AllowedGroups
// means "all enabled groups", represented as an empty (non-nil) set — callers
// must check AllowedGroups themselves to tell "empty means all" apart from
// "empty means none".
func (p *ProxyKey) Hydrate() error {
	p.AllowedGroupSet = make(map[string]struct{})
	if len(p.AllowedGroups) == 0 {
		return nil
	}
	var ids []string
	if err := json.Unmarshal(p.AllowedGroups, &ids); err != nil {
		return fmt.Errorf("proxy key %d: invalid allowed_groups: %w", p.ID, err)
	}
	for _, id := range ids {
		p.AllowedGroupSet[id] = struct{}{}
	}
	return nil
}

// KeyValidation is the per-(group,key) health-probe state row. Primary key
// is the composite (GroupID, APIKeyHash); gorm composite keys are declared
// via matching `primaryKey` tags on both fields.
type KeyValidation struct {
	GroupID         string     `gorm:"primaryKey;type:varchar(255)" json:"group_id"`
	APIKeyHash      string     `gorm:"primaryKey;type:varchar(64)" json:"api_key_hash"`
	IsValid         bool       `gorm:"not null;default:true" json:"is_valid"`
	ErrorCount      int        `gorm:"not null;default:0" json:"error_count"`
	LastError       string     `gorm:"type:text" json:"last_error"`
	LastStatusCode  *int       `json:"last_status_code"`
	LastValidatedAt time.Time  `json:"last_validated_at"`
}

// KeyUsageStats is the per-(group,key) usage counter row.
type KeyUsageStats struct {
	GroupID    string     `gorm:"primaryKey;type:varchar(255)" json:"group_id"`
	APIKeyHash string     `gorm:"primaryKey;type:varchar(64)" json:"api_key_hash"`
	UsageCount int64      `gorm:"not null;default:0" json:"usage_count"`
	LastUsedAt *time.Time `json:"last_used_at"`
}

// RequestType distinguishes an in-flight retry's log row from the final one.
const (
	RequestTypeRetry = "retry"
	RequestTypeFinal = "final"
)

// RequestLog is one proxied request's observability record, created by
// LogRequestStartAsync and finalized by LogRequestEndAsync.
type RequestLog struct {
	ID              string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Timestamp       time.Time `gorm:"not null;index:idx_orch_logs_group_ts;index:idx_orch_logs_success_ts" json:"timestamp"`
	ProxyKeyID      uint      `gorm:"index" json:"proxy_key_id"`
	GroupID         string    `gorm:"type:varchar(255);index:idx_orch_logs_group_ts" json:"group_id"`
	ProviderType    string    `gorm:"type:varchar(50)" json:"provider_type"`
	KeyHash         string    `gorm:"type:varchar(64);index" json:"key_hash"`
	MaskedKey       string    `gorm:"type:varchar(64)" json:"masked_key"`
	Model           string    `gorm:"type:varchar(255);index" json:"model"`
	MappedModel     string    `gorm:"type:varchar(255)" json:"mapped_model"`
	Method          string    `gorm:"type:varchar(10)" json:"method"`
	Endpoint        string    `gorm:"type:varchar(500)" json:"endpoint"`
	IsSuccess       bool      `gorm:"not null;index:idx_orch_logs_success_ts" json:"is_success"`
	SourceIP        string    `gorm:"type:varchar(64)" json:"source_ip"`
	UserAgent       string    `gorm:"type:varchar(512)" json:"user_agent"`
	StatusCode      int       `gorm:"not null" json:"status_code"`
	Duration        int64     `gorm:"not null" json:"duration_ms"`
	ErrorMessage    string    `gorm:"type:text" json:"error_message"`
	RequestType     string    `gorm:"type:varchar(20);not null;default:'final';index" json:"request_type"`
	IsStreaming     bool      `gorm:"not null" json:"is_streaming"`
	HasTools        bool      `gorm:"not null" json:"has_tools"`
	RequestBody     string    `gorm:"type:text" json:"request_body"`
	ResponseBody    string    `gorm:"type:text" json:"response_body"`
	ContentTruncated bool     `gorm:"not null;default:false" json:"content_truncated"`
	PromptTokens    int64     `gorm:"not null;default:0" json:"prompt_tokens"`
	CompletionTokens int64    `gorm:"not null;default:0" json:"completion_tokens"`
	TotalTokens     int64     `gorm:"not null;default:0" json:"total_tokens"`
}

// HealthCheckResult is one probe outcome (provider / key / model tier).
type HealthCheckResult struct {
	ID               uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	GroupID          string    `gorm:"type:varchar(255);index" json:"group_id"`
	CheckType        string    `gorm:"type:varchar(20);index" json:"check_type"` // provider|key|model
	KeyHash          string    `gorm:"type:varchar(64)" json:"key_hash"`
	Model            string    `gorm:"type:varchar(255)" json:"model"`
	Success          bool      `gorm:"not null" json:"success"`
	StatusCode       int       `json:"status_code"`
	Message          string    `gorm:"type:varchar(500)" json:"message"`
	ResponseTimeMs   int64     `json:"response_time_ms"`
	CreatedAt        time.Time `gorm:"index" json:"created_at"`
}

// HealthCheckStats rolls up per-(group,check_type) probe history.
type HealthCheckStats struct {
	GroupID             string    `gorm:"primaryKey;type:varchar(255)" json:"group_id"`
	CheckType           string    `gorm:"primaryKey;type:varchar(20)" json:"check_type"`
	TotalCount          int64     `gorm:"not null;default:0" json:"total_count"`
	SuccessCount        int64     `gorm:"not null;default:0" json:"success_count"`
	FailureCount        int64     `gorm:"not null;default:0" json:"failure_count"`
	AvgResponseTimeMs   float64   `gorm:"not null;default:0" json:"avg_response_time_ms"`
	ConsecutiveFailures int       `gorm:"not null;default:0" json:"consecutive_failures"`
	LastCheckedAt       time.Time `json:"last_checked_at"`
}

// DbVersion is the idempotent-migrations applied-log, one row per version.
type DbVersion struct {
	Version     string    `gorm:"primaryKey;type:varchar(50)" json:"version"`
	Description string    `gorm:"type:varchar(255)" json:"description"`
	AppliedAt   time.Time `json:"applied_at"`
}
