// Package repo implements the data persistence layer for comments, backed by
// GORM. This file contains database bootstrapping helpers for SQLite (pure Go
// driver) and PostgreSQL. Schema changes are applied by Migrate (migrate.go),
// never by AutoMigrate, so that the foreign key and index set stay exactly as
// declared there.
package repo

import (
	"errors"
	stdlog "log"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-comments-backend/internal/config"
)

// Supported dialect names, as reported by gorm.Dialector.Name().
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// sqlitePragmas are applied through the DSN so that every pooled connection
// gets them (PRAGMA foreign_keys is per connection).
var sqlitePragmas = []string{
	"_pragma=foreign_keys(1)",
	"_pragma=busy_timeout(5000)",
	"_pragma=journal_mode(WAL)",
	"_pragma=synchronous(NORMAL)",
}

// Open connects to the configured backend, tunes the pool and optionally
// installs the OpenTelemetry plugin.
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case DialectSQLite:
		db, err = OpenSQLite(cfg.Path, gormConfig(cfg.LogQueries))
	case DialectPostgres:
		db, err = OpenPostgres(cfg.URL, gormConfig(cfg.LogQueries))
	default:
		return nil, errors.New("unsupported DB_DRIVER " + cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxOpenConns)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	if cfg.Tracing {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// OpenSQLite opens (or creates) a SQLite database. path may be a file path or
// a "file:" URI (e.g. "file:comments?mode=memory&cache=shared").
func OpenSQLite(path string, gcfg *gorm.Config) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if !strings.HasPrefix(path, "file:") && path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if _, err := os.Stat(dir); err != nil {
				return nil, err
			}
		}
	}
	if gcfg == nil {
		gcfg = gormConfig(false)
	}
	return gorm.Open(sqlite.Open(SQLiteDSN(path)), gcfg)
}

// OpenPostgres opens a PostgreSQL connection from a URL or keyword/value DSN.
func OpenPostgres(dsn string, gcfg *gorm.Config) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("DATABASE_URL must not be empty for postgres")
	}
	if gcfg == nil {
		gcfg = gormConfig(false)
	}
	return gorm.Open(postgres.Open(dsn), gcfg)
}

// SQLiteDSN appends the connection pragmas to path.
func SQLiteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(sqlitePragmas, "&")
}

// gormConfig routes GORM's logger through zerolog. SQL statements are logged
// only when logQueries is set (debug level); otherwise only errors and slow
// queries surface.
func gormConfig(logQueries bool) *gorm.Config {
	level := logger.Warn
	if logQueries {
		level = logger.Info
	}
	return &gorm.Config{
		TranslateError: true,
		Logger: logger.New(stdlog.New(log.Logger, "", 0), logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		}),
	}
}
