// Package persistence is the gateway's persistence port: typed CRUD and
// indexed queries over the eight stored entities, with a single gorm-backed
// implementation. The router, health checker, and background workers depend
// on this interface rather than on *gorm.DB directly; the key manager is the
// one exception, since it is itself the authoritative writer of
// KeyValidation and KeyUsageStats and reads/writes them on the hot request
// path (see internal/keymanager).
package persistence

import (
	"time"

	"orchestrationapi/internal/models"
)

// RequestLogFilter narrows ListRequestLogs. Zero-value fields are unfiltered.
type RequestLogFilter struct {
	GroupID    string
	ProxyKeyID uint
	Model      string
	IsSuccess  *bool
	Since      time.Time
	Until      time.Time
	Limit      int
	Offset     int
}

// Persistence is the gateway's storage boundary. All methods are safe for
// concurrent use.
type Persistence interface {
	// Ping verifies the underlying database connection is reachable, for the
	// /health endpoint's dependency check.
	Ping() error

	// Groups
	GetGroup(id string) (*models.GroupConfig, error)
	ListEnabledGroups() ([]*models.GroupConfig, error)
	ListGroups() ([]*models.GroupConfig, error)
	CreateGroup(g *models.GroupConfig) error
	UpdateGroup(g *models.GroupConfig) error
	DeleteGroup(id string) error

	// Proxy keys
	GetProxyKeyByValue(value string) (*models.ProxyKey, error)
	ListProxyKeys() ([]*models.ProxyKey, error)
	CreateProxyKey(pk *models.ProxyKey) error
	UpdateProxyKey(pk *models.ProxyKey) error
	DeleteProxyKey(id uint) error
	IncrementProxyKeyUsage(id uint) error

	// Key validation / usage (read paths used by health reconciliation and
	// admin surfaces; the key manager owns the hot-path writes itself)
	ListKeyValidations(groupID string) ([]*models.KeyValidation, error)
	DeleteOrphanKeyValidations(groupID string, keepHashes []string) (int64, error)
	ListKeyUsageStats(groupID string) ([]*models.KeyUsageStats, error)

	// Request logs
	CreateRequestLog(log *models.RequestLog) error
	UpdateRequestLog(log *models.RequestLog) error
	ListRequestLogs(filter RequestLogFilter) ([]*models.RequestLog, int64, error)
	DeleteRequestLogsBefore(cutoff time.Time) (int64, error)

	// Health checks
	CreateHealthCheckResult(r *models.HealthCheckResult) error
	UpsertHealthCheckStats(s *models.HealthCheckStats) error
	ListHealthCheckStats(groupID string) ([]*models.HealthCheckStats, error)
	DeleteHealthCheckResultsBefore(cutoff time.Time) (int64, error)

	// Migrations
	ListAppliedMigrations() ([]*models.DbVersion, error)
}
