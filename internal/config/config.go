// Package config loads and validates the gateway's runtime configuration
// from environment variables (optionally seeded from a local .env file),
// mirroring the dotted OrchestrationApi.* key tree from the specification
// flattened to upper-cased, underscore-joined env var names.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// ServerConfig is OrchestrationApi.Server.*.
type ServerConfig struct {
	Host                    string
	Port                    int
	ReadTimeout             int
	WriteTimeout            int
	IdleTimeout             int
	GracefulShutdownTimeout int
}

// DatabaseConfig is OrchestrationApi.Database.*.
type DatabaseConfig struct {
	Type             string // sqlite | mysql
	ConnectionString string
	TablePrefix      string
}

// AuthConfig is OrchestrationApi.Auth.* — out of core scope beyond the
// proxy-key validation the key manager performs; carried because the
// config tree is part of the ambient stack regardless.
type AuthConfig struct {
	JwtSecret      string
	Username       string
	Password       string
	SessionTimeout int
}

// GlobalConfig is OrchestrationApi.Global.*.
type GlobalConfig struct {
	ConnectionTimeout  int
	ResponseTimeout    int
	MaxProviderRetries int
}

// GeminiConfig is OrchestrationApi.Gemini.*.
type GeminiConfig struct {
	StreamingTimeout        int
	NonStreamingTimeout     int
	DataTimeoutSeconds      int
	MaxDataIntervalSeconds  int
}

// QueueConfig is OrchestrationApi.RequestLogging.Queue.*.
type QueueConfig struct {
	Enabled                  bool
	MaxCapacity              int
	BatchSize                int
	ProcessingIntervalMs     int
	MaxRetries               int
	RetryDelayMs             int
	FullStrategy             string // DropOldest | RejectNew | Block
	GracefulShutdownTimeoutMs int
}

// RequestLoggingConfig is OrchestrationApi.RequestLogging.*.
type RequestLoggingConfig struct {
	Enabled               bool
	EnableDetailedContent bool
	MaxContentLength      int
	ExcludeHealthChecks   bool
	RetentionDays         int
	Queue                 QueueConfig
}

// KeyHealthCheckConfig is OrchestrationApi.KeyHealthCheck.*.
type KeyHealthCheckConfig struct {
	Enabled         bool
	IntervalMinutes int
}

// LogConfig controls the process-wide logrus setup (ambient, not in §6).
type LogConfig struct {
	Level      string
	Format     string
	EnableFile bool
	FilePath   string
}

// ConfigManager is the read surface every other package depends on;
// mirrors the teacher's types.ConfigManager interface shape so that
// components can be unit-tested against a hand-written mock instead of a
// live environment.
type ConfigManager interface {
	GetEffectiveServerConfig() ServerConfig
	GetDatabaseConfig() DatabaseConfig
	GetAuthConfig() AuthConfig
	GetGlobalConfig() GlobalConfig
	GetGeminiConfig() GeminiConfig
	GetRequestLoggingConfig() RequestLoggingConfig
	GetKeyHealthCheckConfig() KeyHealthCheckConfig
	GetLogConfig() LogConfig
	GetRedisDSN() string
	Validate() error
	DisplayServerConfig()
	ReloadConfig() error
}

// Manager is the environment-backed ConfigManager implementation.
type Manager struct {
	mu  sync.RWMutex
	cfg snapshot
}

type snapshot struct {
	server      ServerConfig
	database    DatabaseConfig
	auth        AuthConfig
	global      GlobalConfig
	gemini      GeminiConfig
	logging     RequestLoggingConfig
	healthCheck KeyHealthCheckConfig
	log         LogConfig
	redisDSN    string
}

// NewManager loads .env (if present, silently ignored otherwise) and
// builds a Manager from the current environment.
func NewManager() (*Manager, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debugf("no .env file loaded: %v", err)
	}
	m := &Manager{}
	if err := m.ReloadConfig(); err != nil {
		return nil, err
	}
	return m, nil
}

// ReloadConfig re-reads the environment and replaces the in-memory snapshot
// atomically after validating it.
func (m *Manager) ReloadConfig() error {
	next := snapshot{
		server: ServerConfig{
			Host:                    getEnv("ORCH_SERVER_HOST", "0.0.0.0"),
			Port:                    getEnvInt("ORCH_SERVER_PORT", 3001),
			ReadTimeout:             getEnvInt("ORCH_SERVER_READ_TIMEOUT", 300),
			WriteTimeout:            getEnvInt("ORCH_SERVER_WRITE_TIMEOUT", 600),
			IdleTimeout:             getEnvInt("ORCH_SERVER_IDLE_TIMEOUT", 120),
			GracefulShutdownTimeout: getEnvInt("ORCH_SERVER_GRACEFUL_SHUTDOWN_TIMEOUT", 10),
		},
		database: DatabaseConfig{
			Type:             getEnv("ORCH_DATABASE_TYPE", "sqlite"),
			ConnectionString: getEnv("ORCH_DATABASE_CONNECTION_STRING", "./data/orchestration.db"),
			TablePrefix:      getEnv("ORCH_DATABASE_TABLE_PREFIX", "orch_"),
		},
		auth: AuthConfig{
			JwtSecret:      getEnv("ORCH_AUTH_JWT_SECRET", ""),
			Username:       getEnv("ORCH_AUTH_USERNAME", "admin"),
			Password:       getEnv("ORCH_AUTH_PASSWORD", ""),
			SessionTimeout: getEnvInt("ORCH_AUTH_SESSION_TIMEOUT", 3600),
		},
		global: GlobalConfig{
			ConnectionTimeout:  getEnvInt("ORCH_GLOBAL_CONNECTION_TIMEOUT", 30),
			ResponseTimeout:    getEnvInt("ORCH_GLOBAL_RESPONSE_TIMEOUT", 180),
			MaxProviderRetries: getEnvInt("ORCH_GLOBAL_MAX_PROVIDER_RETRIES", 3),
		},
		gemini: GeminiConfig{
			StreamingTimeout:       getEnvInt("ORCH_GEMINI_STREAMING_TIMEOUT", 300),
			NonStreamingTimeout:    getEnvInt("ORCH_GEMINI_NON_STREAMING_TIMEOUT", 180),
			DataTimeoutSeconds:     getEnvInt("ORCH_GEMINI_DATA_TIMEOUT_SECONDS", 30),
			MaxDataIntervalSeconds: getEnvInt("ORCH_GEMINI_MAX_DATA_INTERVAL_SECONDS", 120),
		},
		logging: RequestLoggingConfig{
			Enabled:               getEnvBool("ORCH_REQUESTLOGGING_ENABLED", true),
			EnableDetailedContent: getEnvBool("ORCH_REQUESTLOGGING_ENABLE_DETAILED_CONTENT", false),
			MaxContentLength:      getEnvInt("ORCH_REQUESTLOGGING_MAX_CONTENT_LENGTH", 10000),
			ExcludeHealthChecks:   getEnvBool("ORCH_REQUESTLOGGING_EXCLUDE_HEALTH_CHECKS", true),
			RetentionDays:         getEnvInt("ORCH_REQUESTLOGGING_RETENTION_DAYS", 30),
			Queue: QueueConfig{
				Enabled:                   getEnvBool("ORCH_REQUESTLOGGING_QUEUE_ENABLED", true),
				MaxCapacity:               getEnvInt("ORCH_REQUESTLOGGING_QUEUE_MAX_CAPACITY", 10000),
				BatchSize:                 getEnvInt("ORCH_REQUESTLOGGING_QUEUE_BATCH_SIZE", 100),
				ProcessingIntervalMs:      getEnvInt("ORCH_REQUESTLOGGING_QUEUE_PROCESSING_INTERVAL_MS", 1000),
				MaxRetries:                getEnvInt("ORCH_REQUESTLOGGING_QUEUE_MAX_RETRIES", 3),
				RetryDelayMs:              getEnvInt("ORCH_REQUESTLOGGING_QUEUE_RETRY_DELAY_MS", 500),
				FullStrategy:              getEnv("ORCH_REQUESTLOGGING_QUEUE_FULL_STRATEGY", "DropOldest"),
				GracefulShutdownTimeoutMs: getEnvInt("ORCH_REQUESTLOGGING_QUEUE_GRACEFUL_SHUTDOWN_TIMEOUT_MS", 5000),
			},
		},
		healthCheck: KeyHealthCheckConfig{
			Enabled:         getEnvBool("ORCH_KEYHEALTHCHECK_ENABLED", true),
			IntervalMinutes: getEnvInt("ORCH_KEYHEALTHCHECK_INTERVAL_MINUTES", 60),
		},
		log: LogConfig{
			Level:      getEnv("ORCH_LOG_LEVEL", "info"),
			Format:     getEnv("ORCH_LOG_FORMAT", "text"),
			EnableFile: getEnvBool("ORCH_LOG_ENABLE_FILE", false),
			FilePath:   getEnv("ORCH_LOG_FILE_PATH", "./data/logs/app.log"),
		},
		redisDSN: getEnv("ORCH_REDIS_DSN", ""),
	}

	if err := validate(next); err != nil {
		return err
	}

	m.mu.Lock()
	m.cfg = next
	m.mu.Unlock()
	return nil
}

func validate(s snapshot) error {
	if s.server.Port < 1 || s.server.Port > 65535 {
		return fmt.Errorf("invalid server config: port must be between 1 and 65535, got %d", s.server.Port)
	}
	if s.database.Type != "sqlite" && s.database.Type != "mysql" {
		return fmt.Errorf("invalid database config: type must be sqlite or mysql, got %q", s.database.Type)
	}
	if s.global.MaxProviderRetries < 1 {
		return fmt.Errorf("invalid global config: max provider retries cannot be less than 1")
	}
	strategy := s.logging.Queue.FullStrategy
	if strategy != "DropOldest" && strategy != "RejectNew" && strategy != "Block" {
		return fmt.Errorf("invalid request logging config: queue full strategy must be one of DropOldest, RejectNew, Block, got %q", strategy)
	}
	return nil
}

func (m *Manager) GetEffectiveServerConfig() ServerConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.server
}

func (m *Manager) GetDatabaseConfig() DatabaseConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.database
}

func (m *Manager) GetAuthConfig() AuthConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.auth
}

func (m *Manager) GetGlobalConfig() GlobalConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.global
}

func (m *Manager) GetGeminiConfig() GeminiConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.gemini
}

func (m *Manager) GetRequestLoggingConfig() RequestLoggingConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.logging
}

func (m *Manager) GetKeyHealthCheckConfig() KeyHealthCheckConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.healthCheck
}

func (m *Manager) GetLogConfig() LogConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.log
}

func (m *Manager) GetRedisDSN() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.redisDSN
}

func (m *Manager) Validate() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return validate(m.cfg)
}

func (m *Manager) DisplayServerConfig() {
	s := m.GetEffectiveServerConfig()
	d := m.GetDatabaseConfig()
	logrus.WithFields(logrus.Fields{
		"host":        s.Host,
		"port":        s.Port,
		"database":    d.Type,
		"tablePrefix": d.TablePrefix,
	}).Info("gateway configuration loaded")
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logrus.Warnf("invalid integer for %s=%q, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logrus.Warnf("invalid boolean for %s=%q, using default %t", key, v, def)
		return def
	}
	return b
}
