package persistence

import (
	"time"

	"orchestrationapi/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormPersistence is the sole Persistence implementation, a thin wrapper
// around *gorm.DB following the teacher's direct-db-access style: no query
// builder abstraction beyond what gorm itself provides, one method per
// access pattern the rest of the gateway actually needs.
type gormPersistence struct {
	db *gorm.DB
}

// New wraps a *gorm.DB (as returned by internal/db.NewDB) in the
// Persistence port.
func New(db *gorm.DB) Persistence {
	return &gormPersistence{db: db}
}

// Ping checks the database connection, mirroring the teacher's
// internal/handler.Health's sql.DB.PingContext check ahead of reporting ok.
func (p *gormPersistence) Ping() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func (p *gormPersistence) GetGroup(id string) (*models.GroupConfig, error) {
	var g models.GroupConfig
	if err := p.db.Where("id = ? AND is_deleted = ?", id, false).First(&g).Error; err != nil {
		return nil, err
	}
	if err := g.Hydrate(); err != nil {
		return nil, err
	}
	return &g, nil
}

func (p *gormPersistence) ListEnabledGroups() ([]*models.GroupConfig, error) {
	var rows []models.GroupConfig
	if err := p.db.Where("is_deleted = ? AND enabled = ?", false, true).Find(&rows).Error; err != nil {
		return nil, err
	}
	return hydrateGroups(rows)
}

func (p *gormPersistence) ListGroups() ([]*models.GroupConfig, error) {
	var rows []models.GroupConfig
	if err := p.db.Where("is_deleted = ?", false).Find(&rows).Error; err != nil {
		return nil, err
	}
	return hydrateGroups(rows)
}

func hydrateGroups(rows []models.GroupConfig) ([]*models.GroupConfig, error) {
	out := make([]*models.GroupConfig, len(rows))
	for i := range rows {
		if err := rows[i].Hydrate(); err != nil {
			return nil, err
		}
		out[i] = &rows[i]
	}
	return out, nil
}

func (p *gormPersistence) CreateGroup(g *models.GroupConfig) error {
	if err := g.Dehydrate(); err != nil {
		return err
	}
	return p.db.Create(g).Error
}

func (p *gormPersistence) UpdateGroup(g *models.GroupConfig) error {
	if err := g.Dehydrate(); err != nil {
		return err
	}
	return p.db.Save(g).Error
}

// DeleteGroup tombstones the group rather than removing the row, per the
// data model's ownership rule: validation/usage rows survive for audit.
func (p *gormPersistence) DeleteGroup(id string) error {
	return p.db.Model(&models.GroupConfig{}).Where("id = ?", id).Update("is_deleted", true).Error
}

func (p *gormPersistence) GetProxyKeyByValue(value string) (*models.ProxyKey, error) {
	var pk models.ProxyKey
	if err := p.db.Where("key_value = ?", value).First(&pk).Error; err != nil {
		return nil, err
	}
	if err := pk.Hydrate(); err != nil {
		return nil, err
	}
	return &pk, nil
}

func (p *gormPersistence) ListProxyKeys() ([]*models.ProxyKey, error) {
	var rows []models.ProxyKey
	if err := p.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*models.ProxyKey, len(rows))
	for i := range rows {
		if err := rows[i].Hydrate(); err != nil {
			return nil, err
		}
		out[i] = &rows[i]
	}
	return out, nil
}

func (p *gormPersistence) CreateProxyKey(pk *models.ProxyKey) error {
	return p.db.Create(pk).Error
}

func (p *gormPersistence) UpdateProxyKey(pk *models.ProxyKey) error {
	return p.db.Save(pk).Error
}

func (p *gormPersistence) DeleteProxyKey(id uint) error {
	return p.db.Delete(&models.ProxyKey{}, id).Error
}

func (p *gormPersistence) IncrementProxyKeyUsage(id uint) error {
	now := time.Now()
	return p.db.Model(&models.ProxyKey{}).Where("id = ?", id).Updates(map[string]any{
		"usage_count":  gorm.Expr("usage_count + 1"),
		"last_used_at": now,
	}).Error
}

func (p *gormPersistence) ListKeyValidations(groupID string) ([]*models.KeyValidation, error) {
	var rows []models.KeyValidation
	if err := p.db.Where("group_id = ?", groupID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*models.KeyValidation, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

// DeleteOrphanKeyValidations removes KeyValidation rows for the group whose
// api_key_hash is no longer in keepHashes (i.e. the key was removed from
// the group's api_keys), per the KeyValidation invariant that orphan rows
// are purged by the background worker.
func (p *gormPersistence) DeleteOrphanKeyValidations(groupID string, keepHashes []string) (int64, error) {
	q := p.db.Where("group_id = ?", groupID)
	if len(keepHashes) > 0 {
		q = q.Where("api_key_hash NOT IN ?", keepHashes)
	}
	res := q.Delete(&models.KeyValidation{})
	return res.RowsAffected, res.Error
}

func (p *gormPersistence) ListKeyUsageStats(groupID string) ([]*models.KeyUsageStats, error) {
	var rows []models.KeyUsageStats
	if err := p.db.Where("group_id = ?", groupID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*models.KeyUsageStats, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

func (p *gormPersistence) CreateRequestLog(log *models.RequestLog) error {
	return p.db.Create(log).Error
}

func (p *gormPersistence) UpdateRequestLog(log *models.RequestLog) error {
	return p.db.Save(log).Error
}

func (p *gormPersistence) ListRequestLogs(filter RequestLogFilter) ([]*models.RequestLog, int64, error) {
	q := p.db.Model(&models.RequestLog{})
	if filter.GroupID != "" {
		q = q.Where("group_id = ?", filter.GroupID)
	}
	if filter.ProxyKeyID != 0 {
		q = q.Where("proxy_key_id = ?", filter.ProxyKeyID)
	}
	if filter.Model != "" {
		q = q.Where("model = ?", filter.Model)
	}
	if filter.IsSuccess != nil {
		q = q.Where("is_success = ?", *filter.IsSuccess)
	}
	if !filter.Since.IsZero() {
		q = q.Where("timestamp >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		q = q.Where("timestamp <= ?", filter.Until)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var rows []models.RequestLog
	err := q.Order("timestamp DESC").Limit(limit).Offset(filter.Offset).Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	out := make([]*models.RequestLog, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, total, nil
}

func (p *gormPersistence) DeleteRequestLogsBefore(cutoff time.Time) (int64, error) {
	res := p.db.Where("timestamp < ?", cutoff).Delete(&models.RequestLog{})
	return res.RowsAffected, res.Error
}

func (p *gormPersistence) CreateHealthCheckResult(r *models.HealthCheckResult) error {
	return p.db.Create(r).Error
}

func (p *gormPersistence) UpsertHealthCheckStats(s *models.HealthCheckStats) error {
	return p.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "group_id"}, {Name: "check_type"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_count", "success_count", "failure_count",
			"avg_response_time_ms", "consecutive_failures", "last_checked_at",
		}),
	}).Create(s).Error
}

func (p *gormPersistence) ListHealthCheckStats(groupID string) ([]*models.HealthCheckStats, error) {
	var rows []models.HealthCheckStats
	if err := p.db.Where("group_id = ?", groupID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*models.HealthCheckStats, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

func (p *gormPersistence) DeleteHealthCheckResultsBefore(cutoff time.Time) (int64, error) {
	res := p.db.Where("created_at < ?", cutoff).Delete(&models.HealthCheckResult{})
	return res.RowsAffected, res.Error
}

func (p *gormPersistence) ListAppliedMigrations() ([]*models.DbVersion, error) {
	var rows []models.DbVersion
	if err := p.db.Order("version").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*models.DbVersion, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}
