// Package router resolves an inbound (model, proxy key, forced dialect)
// triple into a concrete provider group and API key, applying the proxy
// key's allowed-groups/group-balance-policy rules and the key manager's
// per-key availability and selection.
package router

import (
	"encoding/json"
	"math/rand"
	"sort"
	"sync"
	"time"

	apperrors "orchestrationapi/internal/errors"
	"orchestrationapi/internal/keymanager"
	"orchestrationapi/internal/models"
	"orchestrationapi/internal/persistence"
	"orchestrationapi/internal/store"

	"github.com/sirupsen/logrus"
)

// Result is the outcome of a successful Route call, or a partial result on
// NoAvailableKey: a dispatcher that gets a non-empty FailedGroupID back with
// an error should add it to the excluded set and retry Route.
type Result struct {
	Group              *models.GroupConfig
	APIKey             string
	ResolvedModel      string
	RequestedModel     string
	ParameterOverrides map[string]any
	FailedGroupID      string
}

const candidateCacheTTL = 5 * time.Minute
const groupCursorTTL = time.Hour

// Router resolves routes. The candidate-group cache (5-minute TTL keyed by
// (model, forcedDialect)) and the proxy-key round-robin group cursor
// (1h TTL) both live in the shared store, grounded on the teacher's
// TTL-keyed Set/Get (internal/store/memory.go) rather than an in-process
// cache, so multiple gateway processes agree on rotation state.
type Router struct {
	persist persistence.Persistence
	keys    *keymanager.KeyManager
	store   store.Store

	groupCursorMu sync.Mutex

	modelRedirect *models.ModelRedirectSelector
}

// New builds a Router over the given persistence port, key manager, and store.
func New(persist persistence.Persistence, keys *keymanager.KeyManager, st store.Store) *Router {
	return &Router{
		persist:       persist,
		keys:          keys,
		store:         st,
		modelRedirect: models.NewModelRedirectSelector(weightedPick),
	}
}

// Route implements spec.md §4.2's seven-step resolution.
func (r *Router) Route(model string, proxyKey *models.ProxyKey, forcedDialect models.ProviderType, excludedGroups map[string]struct{}) (*Result, error) {
	if proxyKey != nil && !proxyKey.Enabled {
		return nil, apperrors.NewAPIError(apperrors.ErrInvalidProxyKey, "invalid or disabled proxy key")
	}

	candidates, err := r.candidateGroups(model, forcedDialect)
	if err != nil {
		return nil, err
	}

	candidates = filterByAllowedGroups(candidates, proxyKey)
	candidates = filterByExclusion(candidates, excludedGroups)

	if len(candidates) == 0 {
		return nil, apperrors.NewNoEligibleGroupError(model)
	}

	group := r.selectGroup(proxyKey, candidates)

	if proxyKey != nil {
		ok, err := r.keys.CheckRpm(proxyKey.ID, group.ID)
		if err != nil {
			return nil, apperrors.ParseDBError(err)
		}
		if !ok {
			return nil, apperrors.NewAPIError(apperrors.ErrRpmExceeded, "request rate limit exceeded")
		}
	}

	key, err := r.keys.NextKey(group)
	if err != nil {
		return &Result{FailedGroupID: group.ID}, err
	}

	resolvedModel, ruleVersion, targetCount, targetIdx, err := models.ResolveTargetModelWithIndex(model, group.ModelAliasMap, group.ModelAliasRulesV2, r.modelRedirect)
	if err != nil {
		return nil, apperrors.NewAPIError(apperrors.ErrNoEligibleGroup, "model redirect resolution failed: "+err.Error())
	}
	if resolvedModel == "" {
		resolvedModel = model
	} else if ruleVersion == "v2" && targetCount > 1 {
		logrus.WithFields(logrus.Fields{
			"group": group.ID, "source_model": model, "target_model": resolvedModel,
			"target_index": targetIdx, "target_count": targetCount,
		}).Debug("router: weighted model redirect selected a target")
	}

	return &Result{
		Group:              group,
		APIKey:             key,
		ResolvedModel:      resolvedModel,
		RequestedModel:     model,
		ParameterOverrides: map[string]any(group.ParameterOverrides),
	}, nil
}

// candidateGroups returns every non-deleted, enabled group that can serve
// model (directly or via a model_aliases key), filtered by forcedDialect
// when set, cached for candidateCacheTTL.
func (r *Router) candidateGroups(model string, forcedDialect models.ProviderType) ([]*models.GroupConfig, error) {
	cacheKey := candidateCacheKey(model, forcedDialect)

	if cached, ok := r.readCandidateCache(cacheKey); ok {
		return cached, nil
	}

	groups, err := r.persist.ListEnabledGroups()
	if err != nil {
		return nil, err
	}

	matched := make([]*models.GroupConfig, 0, len(groups))
	for _, g := range groups {
		if forcedDialect != "" && g.ProviderType != forcedDialect {
			continue
		}
		if _, ok := g.ModelSet[model]; ok {
			matched = append(matched, g)
			continue
		}
		if aliasMatches(g, model) {
			matched = append(matched, g)
		}
	}

	r.writeCandidateCache(cacheKey, matched)
	return matched, nil
}

// aliasMatches reports whether model is a redirect source for g, under
// either its V1 (single-target string) or V2 (weighted-targets rule) alias
// entries — the same two maps ResolveTargetModel itself checks, V2 first.
func aliasMatches(g *models.GroupConfig, model string) bool {
	if _, ok := g.ModelAliasRulesV2[model]; ok {
		return true
	}
	_, ok := g.ModelAliasMap[model]
	return ok
}

func candidateCacheKey(model string, forcedDialect models.ProviderType) string {
	return "router_candidates:" + string(forcedDialect) + ":" + model
}

// cachedGroupRef is the serializable cache form: a group id list, resolved
// back to full GroupConfig rows on read so the cache can never return a
// group whose enabled/deleted state has since changed underneath it.
type cachedGroupRef struct {
	IDs []string `json:"ids"`
}

func (r *Router) readCandidateCache(key string) ([]*models.GroupConfig, bool) {
	raw, err := r.store.Get(key)
	if err != nil {
		return nil, false
	}
	var ref cachedGroupRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, false
	}

	out := make([]*models.GroupConfig, 0, len(ref.IDs))
	for _, id := range ref.IDs {
		g, err := r.persist.GetGroup(id)
		if err != nil || !g.Enabled {
			continue
		}
		out = append(out, g)
	}
	return out, true
}

func (r *Router) writeCandidateCache(key string, groups []*models.GroupConfig) {
	ids := make([]string, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
	}
	raw, err := json.Marshal(cachedGroupRef{IDs: ids})
	if err != nil {
		logrus.WithError(err).Warn("router: failed to marshal candidate cache entry")
		return
	}
	if err := r.store.Set(key, raw, candidateCacheTTL); err != nil {
		logrus.WithError(err).Warn("router: failed to write candidate cache entry")
	}
}

// filterByAllowedGroups intersects candidates with proxyKey.AllowedGroupSet.
// A nil proxyKey or an empty allowed-groups list means "all enabled groups".
func filterByAllowedGroups(candidates []*models.GroupConfig, proxyKey *models.ProxyKey) []*models.GroupConfig {
	if proxyKey == nil || len(proxyKey.AllowedGroups) == 0 {
		return candidates
	}
	out := make([]*models.GroupConfig, 0, len(candidates))
	for _, g := range candidates {
		if _, ok := proxyKey.AllowedGroupSet[g.ID]; ok {
			out = append(out, g)
		}
	}
	return out
}

func filterByExclusion(candidates []*models.GroupConfig, excluded map[string]struct{}) []*models.GroupConfig {
	if len(excluded) == 0 {
		return candidates
	}
	out := make([]*models.GroupConfig, 0, len(candidates))
	for _, g := range candidates {
		if _, ok := excluded[g.ID]; !ok {
			out = append(out, g)
		}
	}
	return out
}

// selectGroup picks one candidate under the proxy key's group_balance_policy.
// A single candidate always uses failover regardless of the configured
// policy, per spec.md §4.2 step 5.
func (r *Router) selectGroup(proxyKey *models.ProxyKey, candidates []*models.GroupConfig) *models.GroupConfig {
	if len(candidates) == 1 {
		return candidates[0]
	}

	policy := models.GroupBalanceFailover
	var weights map[string]any
	var proxyKeyID string
	if proxyKey != nil {
		policy = proxyKey.GroupBalancePolicy.Normalize()
		weights = proxyKey.GroupWeights
		proxyKeyID = proxyKey.KeyValue
	}

	switch policy {
	case models.GroupBalanceRandom:
		return candidates[rand.Intn(len(candidates))]
	case models.GroupBalanceWeighted:
		return selectWeighted(candidates, weights)
	case models.GroupBalanceRoundRobin:
		return r.selectRoundRobin(proxyKeyID, candidates)
	default:
		return selectFailover(candidates)
	}
}

// selectFailover returns the candidate with the highest priority, ties
// broken by id for determinism.
func selectFailover(candidates []*models.GroupConfig) *models.GroupConfig {
	best := candidates[0]
	for _, g := range candidates[1:] {
		if g.Priority > best.Priority || (g.Priority == best.Priority && g.ID < best.ID) {
			best = g
		}
	}
	return best
}

// selectWeighted picks a group via weighted random over group_weights
// (missing entries default to weight 1). If every resolved weight is zero,
// it falls back to failover.
func selectWeighted(candidates []*models.GroupConfig, weights map[string]any) *models.GroupConfig {
	resolved := make([]int, len(candidates))
	total := 0
	for i, g := range candidates {
		w := 1
		if raw, ok := weights[g.ID]; ok {
			if f, ok := raw.(float64); ok {
				w = int(f)
			}
		}
		if w < 0 {
			w = 0
		}
		resolved[i] = w
		total += w
	}
	if total == 0 {
		return selectFailover(candidates)
	}

	return candidates[weightedPick(resolved)]
}

// weightedPick returns the index of a weighted-random pick over weights,
// the cumulative-weight walk shared by group selection (selectWeighted) and
// model-redirect target selection (models.ModelRedirectSelector, injected
// via models.NewModelRedirectSelector in New). Assumes the sum of weights
// is already known to be positive; callers that can't guarantee that (e.g.
// a group's resolved weights defaulting to 0) check first and fall back
// before calling in.
func weightedPick(weights []int) int {
	total := 0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return 0
	}
	pick := rand.Intn(total)
	cursor := 0
	for i, w := range weights {
		cursor += w
		if pick < cursor {
			return i
		}
	}
	return len(weights) - 1
}

// selectRoundRobin cycles through candidates using a per-proxy-key cursor
// cached with a 1h TTL, per spec.md §4.1's proxy-key-level round_robin rule.
func (r *Router) selectRoundRobin(proxyKeyID string, candidates []*models.GroupConfig) *models.GroupConfig {
	sorted := make([]*models.GroupConfig, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	cursorKey := "router_group_cursor:" + proxyKeyID

	r.groupCursorMu.Lock()
	defer r.groupCursorMu.Unlock()

	idx := 0
	if raw, err := r.store.Get(cursorKey); err == nil {
		var stored int
		if jsonErr := json.Unmarshal(raw, &stored); jsonErr == nil {
			idx = (stored + 1) % len(sorted)
		}
	}

	if next, err := json.Marshal(idx); err == nil {
		_ = r.store.Set(cursorKey, next, groupCursorTTL)
	}

	return sorted[idx]
}
