package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"orchestrationapi/internal/config"
	"orchestrationapi/internal/utils"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens the configured database connection. For sqlite it also opens
// a second, read-only pool (see newSQLiteReadDB) so readers don't contend
// with the single writer connection under WAL.
func NewDB(configManager config.ConfigManager) (db *gorm.DB, readDB *gorm.DB, err error) {
	dbConfig := configManager.GetDatabaseConfig()
	if dbConfig.ConnectionString == "" {
		return nil, nil, fmt.Errorf("database connection string is not configured")
	}

	var gormLogger logger.Interface
	if configManager.GetLogConfig().Level == "debug" {
		gormLogger = logger.New(
			log.New(logrus.StandardLogger().Out, "\r\n", log.LstdFlags),
			logger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  logger.Info,
				IgnoreRecordNotFoundError: true,
				Colorful:                  true,
			},
		)
	}

	switch dbConfig.Type {
	case "mysql":
		db, err = openMySQL(dbConfig.ConnectionString, gormLogger)
		readDB = db
	case "sqlite":
		db, err = openSQLite(dbConfig.ConnectionString, gormLogger)
		if err == nil {
			readDB, err = newSQLiteReadDB(dbConfig.ConnectionString, gormLogger)
			if err != nil {
				logrus.WithError(err).Warn("failed to open sqlite read pool, reusing write connection for reads")
				readDB = db
				err = nil
			}
		}
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", dbConfig.Type)
	}
	if err != nil {
		return nil, nil, err
	}

	return db, readDB, nil
}

func openMySQL(dsn string, gormLogger logger.Interface) (*gorm.DB, error) {
	if !strings.Contains(dsn, "parseTime") {
		if strings.Contains(dsn, "?") {
			dsn += "&parseTime=true"
		} else {
			dsn += "?parseTime=true"
		}
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: gormLogger, PrepareStmt: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(50)
	sqlDB.SetMaxOpenConns(500)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := db.Exec("SET SESSION sql_mode='TRADITIONAL'").Error; err != nil {
		return nil, fmt.Errorf("failed to set sql_mode: %w", err)
	}
	if err := db.Exec("SET SESSION innodb_lock_wait_timeout=50").Error; err != nil {
		return nil, fmt.Errorf("failed to set innodb_lock_wait_timeout: %w", err)
	}

	return db, nil
}

func sqliteParams(extra string) string {
	cacheSize := utils.GetEnvOrDefault("SQLITE_CACHE_SIZE", "10000")
	tempStore := utils.GetEnvOrDefault("SQLITE_TEMP_STORE", "MEMORY")
	return fmt.Sprintf("_pragma=foreign_keys(1)&_busy_timeout=%s&_journal_mode=WAL&_synchronous=NORMAL&_cache_size=%s&_temp_store=%s",
		extra, cacheSize, tempStore)
}

func openSQLite(dsn string, gormLogger logger.Interface) (*gorm.DB, error) {
	if !strings.HasPrefix(dsn, "file:") {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	delimiter := "?"
	if strings.Contains(dsn, "?") {
		delimiter = "&"
	}
	params := sqliteParams("10000") + "&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn+delimiter+params), &gorm.Config{Logger: gormLogger, PrepareStmt: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	// A single connection avoids SQLITE_BUSY from concurrent writers; WAL
	// mode lets the separate read pool proceed without blocking on it.
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	applySQLitePragmas(sqlDB)

	return db, nil
}

// applySQLitePragmas sets PRAGMAs that aren't expressible in the DSN via a
// raw connection, so they don't show up in GORM's slow-query log.
func applySQLitePragmas(sqlDB *sql.DB) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		logrus.WithError(err).Warn("failed to acquire connection for sqlite PRAGMAs")
		return
	}
	defer conn.Close()

	mmapSize := utils.GetEnvOrDefault("SQLITE_MMAP_SIZE", "30000000000")
	pageSize := utils.GetEnvOrDefault("SQLITE_PAGE_SIZE", "4096")
	journalSizeLimit := utils.GetEnvOrDefault("SQLITE_JOURNAL_SIZE_LIMIT", "67108864")
	walAutocheckpoint := utils.GetEnvOrDefault("SQLITE_WAL_AUTOCHECKPOINT", "1000")

	pragmas := []string{
		fmt.Sprintf("PRAGMA mmap_size = %s", mmapSize),
		fmt.Sprintf("PRAGMA page_size = %s", pageSize),
		fmt.Sprintf("PRAGMA journal_size_limit = %s", journalSizeLimit),
		fmt.Sprintf("PRAGMA wal_autocheckpoint = %s", walAutocheckpoint),
	}
	for _, pragma := range pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			logrus.WithError(err).Warnf("failed to apply %s", pragma)
		}
	}
}

// newSQLiteReadDB opens a second sqlite connection pool for reads only, so
// concurrent readers don't queue behind the single writer connection.
func newSQLiteReadDB(dsn string, gormLogger logger.Interface) (*gorm.DB, error) {
	delimiter := "?"
	if strings.Contains(dsn, "?") {
		delimiter = "&"
	}
	params := sqliteParams("1000")
	readDB, err := gorm.Open(sqlite.Open(dsn+delimiter+params), &gorm.Config{Logger: gormLogger, PrepareStmt: false})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite read connection: %w", err)
	}

	sqlDB, err := readDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB for read connection: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Minute)

	logrus.Info("sqlite read-only connection pool created for concurrent reads")
	return readDB, nil
}
