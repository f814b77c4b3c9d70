// Package migrations records schema and data migrations as plain,
// non-cyclic values: a version, a description, and an apply function. Each
// migration is applied at most once per database, tracked via
// models.DbVersion, and re-running Migrate on an up-to-date database is a
// no-op.
package migrations

import (
	"errors"
	"fmt"
	"time"

	"orchestrationapi/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Migration is one idempotent schema or data change, applied in Version order.
type Migration struct {
	Version     string
	Description string
	Apply       func(db *gorm.DB) error
}

// registry lists migrations in application order. AutoMigrate handles the
// base table/column shapes declared via struct tags in internal/models;
// entries here cover what AutoMigrate does not (non-trivial indexes,
// backfills, one-time data repairs).
var registry = []Migration{
	{
		Version:     "1",
		Description: "add key_validations lookup index for health reconciliation",
		Apply: func(db *gorm.DB) error {
			return createIndexIfNotExists(db, "key_validations", "idx_key_validations_group", "group_id")
		},
	},
	{
		Version:     "2",
		Description: "add key_usage_stats lookup index for least_used balancing",
		Apply: func(db *gorm.DB) error {
			return createIndexIfNotExists(db, "key_usage_stats", "idx_key_usage_stats_group", "group_id")
		},
	},
	{
		Version:     "3",
		Description: "add request_logs timestamp index for retention cleanup",
		Apply: func(db *gorm.DB) error {
			return createIndexIfNotExists(db, "request_logs", "idx_orch_logs_timestamp", "timestamp")
		},
	},
}

// Migrate applies every not-yet-applied migration in the registry, in
// order, recording each success in the db_versions table. It stops and
// returns an error on the first failure, leaving later migrations unapplied.
func Migrate(db *gorm.DB) error {
	for _, m := range registry {
		var applied models.DbVersion
		err := db.Where("version = ?", m.Version).First(&applied).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check migration %s: %w", m.Version, err)
		}

		if err := m.Apply(db); err != nil {
			return fmt.Errorf("migration %s (%s) failed: %w", m.Version, m.Description, err)
		}

		if err := db.Create(&models.DbVersion{
			Version:     m.Version,
			Description: m.Description,
			AppliedAt:   time.Now(),
		}).Error; err != nil {
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}

		logrus.Infof("applied migration %s: %s", m.Version, m.Description)
	}
	return nil
}
