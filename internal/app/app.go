// Package app hand-wires the gateway's service graph and owns process
// lifecycle (Start/Stop). Replaces the teacher's go.uber.org/dig container:
// SPEC_FULL.md's graph is small and static enough that explicit
// construction is clearer than a reflection-based DI container, and dig
// never ends up wired to anything in the transformed scope (see DESIGN.md).
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"orchestrationapi/internal/config"
	"orchestrationapi/internal/db"
	"orchestrationapi/internal/db/migrations"
	"orchestrationapi/internal/dispatcher"
	"orchestrationapi/internal/health"
	"orchestrationapi/internal/keymanager"
	"orchestrationapi/internal/models"
	"orchestrationapi/internal/persistence"
	"orchestrationapi/internal/provider"
	"orchestrationapi/internal/requestlog"
	"orchestrationapi/internal/router"
	"orchestrationapi/internal/store"
	"orchestrationapi/internal/transport"
	"orchestrationapi/internal/workers"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// App holds every long-lived service and owns the HTTP server's lifecycle.
type App struct {
	configManager config.ConfigManager
	db            *gorm.DB
	storage       store.Store
	keys          *keymanager.KeyManager
	requestLog    *requestlog.Service
	keyHealth     *workers.KeyHealthWorker
	healthCheck   *workers.HealthCheckWorker
	retention     *workers.RetentionWorker
	engine        http.Handler
	httpServer    *http.Server
}

// New builds the full service graph: database, stores, key manager,
// router, dispatcher, request logger, background workers, and the gin
// ingress — in that dependency order. Grounded on the teacher's
// internal/app.NewApp/container.BuildContainer wiring order (db before
// stores before services before the HTTP engine), expressed as ordinary
// constructor calls instead of dig-resolved parameters.
func New(configManager config.ConfigManager) (*App, error) {
	gormDB, _, err := db.NewDB(configManager)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := gormDB.AutoMigrate(
		&models.GroupConfig{},
		&models.ProxyKey{},
		&models.KeyValidation{},
		&models.KeyUsageStats{},
		&models.RequestLog{},
		&models.HealthCheckResult{},
		&models.HealthCheckStats{},
		&models.DbVersion{},
	); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	if err := migrations.Migrate(gormDB); err != nil {
		return nil, fmt.Errorf("data migration: %w", err)
	}

	storage, err := store.NewStore(configManager)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	persist := persistence.New(gormDB)
	keys := keymanager.NewKeyManager(gormDB, storage)
	rt := router.New(persist, keys, storage)

	global := configManager.GetGlobalConfig()
	gemini := configManager.GetGeminiConfig()
	reqLogging := configManager.GetRequestLoggingConfig()
	healthCfg := configManager.GetKeyHealthCheckConfig()

	reqLog := requestlog.New(persist, reqLogging)

	d := dispatcher.New(rt, keys, reqLog, dispatcher.GlobalConfig{
		ConnectTimeoutSeconds:        global.ConnectionTimeout,
		UnaryResponseTimeoutSeconds:  global.ResponseTimeout,
		StreamResponseTimeoutSeconds: gemini.StreamingTimeout,
		MaxProviderRetries:           global.MaxProviderRetries,
	}, dispatcher.GeminiTimeouts{
		DataTimeoutSeconds:     gemini.DataTimeoutSeconds,
		MaxDataIntervalSeconds: gemini.MaxDataIntervalSeconds,
	})

	checker := health.NewChecker(persist)
	probeTimeouts := provider.Config{
		ConnectTimeout:       time.Duration(global.ConnectionTimeout) * time.Second,
		UnaryResponseTimeout: time.Duration(global.ResponseTimeout) * time.Second,
	}

	interval := time.Duration(healthCfg.IntervalMinutes) * time.Minute
	if !healthCfg.Enabled {
		interval = 0
	}

	engine := transport.NewRouter(d, keys, persist)

	return &App{
		configManager: configManager,
		db:            gormDB,
		storage:       storage,
		keys:          keys,
		requestLog:    reqLog,
		keyHealth:     workers.NewKeyHealthWorker(persist, keys, interval),
		healthCheck:   workers.NewHealthCheckWorker(persist, checker, probeTimeouts, interval),
		retention:     workers.NewRetentionWorker(persist, reqLogging.RetentionDays),
		engine:        engine,
	}, nil
}

// Start launches every background loop and the HTTP server. Non-blocking,
// matching the teacher's App.Start contract.
func (a *App) Start() error {
	a.requestLog.Run()
	a.keyHealth.Run()
	a.healthCheck.Run()
	a.retention.Run()

	serverCfg := a.configManager.GetEffectiveServerConfig()
	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", serverCfg.Host, serverCfg.Port),
		Handler:      a.engine,
		ReadTimeout:  time.Duration(serverCfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(serverCfg.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(serverCfg.IdleTimeout) * time.Second,
	}

	go func() {
		logrus.Infof("orchestration API gateway listening on %s", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server, then every background loop,
// bounded by the server's configured graceful-shutdown timeout — mirroring
// the teacher's App.Stop's HTTP-server-first-then-services ordering.
func (a *App) Stop(ctx context.Context) {
	serverCfg := a.configManager.GetEffectiveServerConfig()
	shutdownCtx, cancel := context.WithTimeout(ctx, time.Duration(serverCfg.GracefulShutdownTimeout)*time.Second)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			logrus.Warnf("HTTP server graceful shutdown failed, forcing close: %v", err)
			a.httpServer.Close()
		}
	}

	a.keyHealth.Stop()
	a.healthCheck.Stop()
	a.retention.Stop(shutdownCtx)
	a.requestLog.Stop(shutdownCtx)
	a.keys.Stop()

	if err := a.storage.Close(); err != nil {
		logrus.Warnf("failed to close store: %v", err)
	}
}
