package keymanager

import (
	"errors"
	"time"

	apperrors "orchestrationapi/internal/errors"
	"orchestrationapi/internal/models"
	"orchestrationapi/internal/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReportError records an upstream failure against a key, queued for async
// processing so the dispatcher's retry loop never waits on a DB write.
func (km *KeyManager) ReportError(groupID, apiKey string, statusCode int, errMsg string) {
	km.submit(reportTask{
		groupID:    groupID,
		apiKeyHash: utils.HashAPIKey(apiKey),
		isSuccess:  false,
		statusCode: statusCode,
		errMsg:     errMsg,
	})
}

// ResetErrors clears a key's error streak after a successful call.
func (km *KeyManager) ResetErrors(groupID, apiKey string) {
	km.submit(reportTask{
		groupID:    groupID,
		apiKeyHash: utils.HashAPIKey(apiKey),
		isSuccess:  true,
		statusCode: 200,
	})
}

// UpdateUsage bumps a key's usage counter, used by the least_used balance
// policy and by per-key usage reporting.
func (km *KeyManager) UpdateUsage(groupID, apiKey string) {
	hash := utils.HashAPIKey(apiKey)
	now := time.Now()
	row := models.KeyUsageStats{GroupID: groupID, APIKeyHash: hash, UsageCount: 1, LastUsedAt: &now}

	err := km.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "group_id"}, {Name: "api_key_hash"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"usage_count":  gorm.Expr("usage_count + 1"),
			"last_used_at": now,
		}),
	}).Create(&row).Error
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"group_id": groupID}).Warn("failed to update key usage stats")
	}
}

// UpdateProxyKeyUsage bumps a proxy key's usage counter. Like UpdateUsage,
// it writes synchronously against the small proxy_keys table rather than
// going through the report queue.
func (km *KeyManager) UpdateProxyKeyUsage(proxyKeyID uint) {
	now := time.Now()
	err := km.db.Model(&models.ProxyKey{}).Where("id = ?", proxyKeyID).Updates(map[string]interface{}{
		"usage_count":  gorm.Expr("usage_count + 1"),
		"last_used_at": now,
	}).Error
	if err != nil {
		logrus.WithError(err).WithField("proxy_key_id", proxyKeyID).Warn("failed to update proxy key usage stats")
	}
}

func (km *KeyManager) processReport(task reportTask) {
	now := time.Now()

	var existing models.KeyValidation
	err := km.db.Where("group_id = ? AND api_key_hash = ?", task.groupID, task.apiKeyHash).First(&existing).Error
	notFound := errors.Is(err, gorm.ErrRecordNotFound)
	if err != nil && !notFound {
		logrus.WithError(err).Warn("failed to load key validation for report")
		return
	}

	statusCode := task.statusCode
	row := models.KeyValidation{
		GroupID:         task.groupID,
		APIKeyHash:      task.apiKeyHash,
		LastStatusCode:  &statusCode,
		LastValidatedAt: now,
	}
	if task.isSuccess {
		row.IsValid = true
		row.ErrorCount = 0
		row.LastError = ""
	} else {
		row.IsValid = false
		row.LastError = task.errMsg
		row.ErrorCount = 1
		if !notFound {
			row.ErrorCount = existing.ErrorCount + 1
		}
		if apperrors.IsUnCounted(task.errMsg) {
			row.ErrorCount = existing.ErrorCount
		}
	}

	err = km.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "group_id"}, {Name: "api_key_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"is_valid", "error_count", "last_error", "last_status_code", "last_validated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"group_id": task.groupID}).Warn("failed to persist key validation")
	}
}
