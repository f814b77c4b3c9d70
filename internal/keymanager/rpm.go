package keymanager

import (
	"time"

	"orchestrationapi/internal/models"
)

// CheckRpm reports whether proxyKeyID is still within its admission rate
// for groupID: true iff the count of RequestLog rows for that proxy key in
// the last 60s is strictly below min(proxyKey.rpm_limit, group.rpm_limit),
// treating a zero limit as unlimited. Grounded on the teacher's dashboard
// RPM stat, which derives its rate straight from a windowed count(*) over
// request_logs rather than a separate counter store.
func (km *KeyManager) CheckRpm(proxyKeyID uint, groupID string) (bool, error) {
	var pk models.ProxyKey
	if err := km.db.Select("rpm_limit").First(&pk, proxyKeyID).Error; err != nil {
		return false, err
	}
	var g models.GroupConfig
	if err := km.db.Select("rpm_limit").Where("id = ?", groupID).First(&g).Error; err != nil {
		return false, err
	}

	limit := effectiveRpmLimit(pk.RpmLimit, g.RpmLimit)
	if limit <= 0 {
		return true, nil
	}

	since := time.Now().Add(-60 * time.Second)
	var count int64
	err := km.db.Model(&models.RequestLog{}).
		Where("proxy_key_id = ? AND timestamp >= ?", proxyKeyID, since).
		Count(&count).Error
	if err != nil {
		return false, err
	}

	return count < int64(limit), nil
}

// effectiveRpmLimit combines a proxy key's and a group's rpm_limit, treating
// 0 as "unlimited" for each: the effective cap is the smaller of the two
// limits that are actually set, or unlimited (0) if neither is.
func effectiveRpmLimit(proxyLimit, groupLimit int) int {
	switch {
	case proxyLimit <= 0:
		return groupLimit
	case groupLimit <= 0:
		return proxyLimit
	case proxyLimit < groupLimit:
		return proxyLimit
	default:
		return groupLimit
	}
}
