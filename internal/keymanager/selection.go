package keymanager

import (
	"errors"
	"math/rand"

	"orchestrationapi/internal/models"
	"orchestrationapi/internal/store"
	"orchestrationapi/internal/utils"
)

// selectByPolicy picks one key from the (already availability-filtered)
// candidate list per the group's balance policy. A single candidate always
// short-circuits to it directly, matching the spec's "single candidate
// always uses failover" rule generalized to key selection.
func (km *KeyManager) selectByPolicy(group *models.GroupConfig, candidates []string) (string, error) {
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	switch group.BalancePolicy.Normalize() {
	case models.BalanceRandom:
		return candidates[rand.Intn(len(candidates))], nil
	case models.BalanceLeastUsed:
		return km.selectLeastUsed(group.ID, candidates)
	default: // round_robin
		return km.selectRoundRobin(group.ID, candidates)
	}
}

// cursorListKey is the store list backing a group's round-robin rotation.
// Rotate moves the tail to the head and returns it, so repeated calls cycle
// through the list in the configured order.
func cursorListKey(groupID string) string {
	return "rr_cursor:" + groupID
}

func (km *KeyManager) selectRoundRobin(groupID string, candidates []string) (string, error) {
	listKey := cursorListKey(groupID)

	// Seed the store's list from the candidate set only the first time it's
	// seen (or after the candidate count changes) — reseeding on every call
	// would discard the rotation state Rotate just built and always return
	// the same key. This is still self-healing: a changed candidate count
	// (keys added/removed/becoming unavailable) re-seeds, it just doesn't
	// thrash on every call when the set is stable.
	km.cursorMu.Lock()
	defer km.cursorMu.Unlock()

	n, err := km.store.LLen(listKey)
	if err != nil {
		return "", err
	}
	if n != int64(len(candidates)) {
		if err := km.store.Delete(listKey); err != nil {
			return "", err
		}
		values := make([]any, len(candidates))
		for i, c := range candidates {
			values[i] = c
		}
		if err := km.store.LPush(listKey, values...); err != nil {
			return "", err
		}
	}

	picked, err := km.store.Rotate(listKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return candidates[0], nil
		}
		return "", err
	}
	return picked, nil
}

// selectLeastUsed picks the candidate with the lowest usage_count, breaking
// ties by position in the configured key sequence.
func (km *KeyManager) selectLeastUsed(groupID string, candidates []string) (string, error) {
	hashes := make([]string, len(candidates))
	for i, c := range candidates {
		hashes[i] = utils.HashAPIKey(c)
	}

	var rows []models.KeyUsageStats
	if err := km.db.Where("group_id = ? AND api_key_hash IN ?", groupID, hashes).Find(&rows).Error; err != nil {
		return "", err
	}
	usage := make(map[string]int64, len(rows))
	for _, r := range rows {
		usage[r.APIKeyHash] = r.UsageCount
	}

	best := candidates[0]
	bestUsage := usage[hashes[0]]
	for i := 1; i < len(candidates); i++ {
		u := usage[hashes[i]]
		if u < bestUsage {
			best = candidates[i]
			bestUsage = u
		}
	}
	return best, nil
}
