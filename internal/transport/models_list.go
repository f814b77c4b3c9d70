package transport

import (
	"sort"

	"orchestrationapi/internal/models"
	"orchestrationapi/internal/persistence"

	"github.com/gin-gonic/gin"
)

// listModels serves GET /v1/models and GET /v1beta/models (spec.md §6): the
// proxy-key-scoped union of model ids across eligible enabled groups, after
// alias expansion, de-duplicated. Response shape follows the requested
// dialect's native models-list envelope.
type modelsLister struct {
	persist persistence.Persistence
}

func (m *modelsLister) handleOpenAI(c *gin.Context) {
	ids := m.union(proxyKeyFromContext(c))
	data := make([]gin.H, 0, len(ids))
	for _, id := range ids {
		data = append(data, gin.H{"id": id, "object": "model", "owned_by": "orchestrationapi"})
	}
	c.JSON(200, gin.H{"object": "list", "data": data})
}

func (m *modelsLister) handleGemini(c *gin.Context) {
	ids := m.union(proxyKeyFromContext(c))
	data := make([]gin.H, 0, len(ids))
	for _, id := range ids {
		data = append(data, gin.H{"name": "models/" + id})
	}
	c.JSON(200, gin.H{"models": data})
}

// union gathers every model id (and alias key) visible to proxyKey across
// all enabled, non-deleted groups, respecting AllowedGroupSet the same way
// internal/router's candidate filtering does.
func (m *modelsLister) union(proxyKey *models.ProxyKey) []string {
	groups, err := m.persist.ListEnabledGroups()
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	for _, g := range groups {
		if proxyKey != nil && len(proxyKey.AllowedGroups) > 0 {
			if _, ok := proxyKey.AllowedGroupSet[g.ID]; !ok {
				continue
			}
		}
		for id := range g.ModelSet {
			seen[id] = struct{}{}
		}
		for _, alias := range models.CollectSourceModels(g.ModelAliasMap, g.ModelAliasRulesV2) {
			seen[alias] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
