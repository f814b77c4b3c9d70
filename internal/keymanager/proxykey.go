package keymanager

import (
	"sync"
	"time"

	apperrors "orchestrationapi/internal/errors"
	"orchestrationapi/internal/models"

	"gorm.io/gorm"
)

// proxyKeyCache is a short-TTL cache of ProxyKey rows keyed by the raw key
// value presented by clients, avoiding a DB round trip on every request.
// It is an in-process, mutex-guarded map with a per-entry expiry checked on
// read and no background sweep (unlike the router's candidate-group cache,
// which lives in the shared store).
type proxyKeyCache struct {
	mu  sync.RWMutex
	ttl time.Duration
	m   map[string]proxyKeyCacheEntry
}

type proxyKeyCacheEntry struct {
	key       *models.ProxyKey
	expiresAt time.Time
}

func newProxyKeyCache(ttl time.Duration) *proxyKeyCache {
	return &proxyKeyCache{ttl: ttl, m: make(map[string]proxyKeyCacheEntry)}
}

func (c *proxyKeyCache) get(keyValue string) (*models.ProxyKey, bool) {
	c.mu.RLock()
	entry, ok := c.m[keyValue]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.key, true
}

func (c *proxyKeyCache) set(keyValue string, key *models.ProxyKey) {
	c.mu.Lock()
	c.m[keyValue] = proxyKeyCacheEntry{key: key, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// invalidate drops a cached entry so a change takes effect before the TTL
// would otherwise expire it. Nothing in the gateway calls it: a proxy key
// that is disabled or deleted stays cached until its entry expires.
func (c *proxyKeyCache) invalidate(keyValue string) {
	c.mu.Lock()
	delete(c.m, keyValue)
	c.mu.Unlock()
}

// ValidateProxyKey resolves a client-presented key to its ProxyKey row,
// rejecting disabled or unknown keys. Results are cached for the cache's
// configured TTL to keep the hot request path off the database.
func (km *KeyManager) ValidateProxyKey(keyValue string) (*models.ProxyKey, error) {
	if cached, ok := km.proxyKeyCache.get(keyValue); ok {
		return cached, nil
	}

	var pk models.ProxyKey
	err := km.db.Where("key_value = ?", keyValue).First(&pk).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NewAPIError(apperrors.ErrInvalidProxyKey, "invalid or disabled proxy key")
		}
		return nil, err
	}
	if !pk.Enabled {
		return nil, apperrors.NewAPIError(apperrors.ErrInvalidProxyKey, "invalid or disabled proxy key")
	}

	if err := pk.Hydrate(); err != nil {
		return nil, err
	}

	km.proxyKeyCache.set(keyValue, &pk)
	return &pk, nil
}
