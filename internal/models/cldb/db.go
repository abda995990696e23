package cldb

import (
	"fmt"
	"strings"

	"littletrack/internal/gormzerologger"
	"littletrack/internal/models/clconfig"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open connects to the configured database. TranslateError is required:
// the visitor ledger relies on gorm.ErrDuplicatedKey.
func Open(cfg clconfig.DatabaseConfig, logLevel string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Db {
	case "sqlite":
		dialector = sqlite.Open(sqliteDSN(cfg.Path))
	case "mysql":
		dialector = mysql.Open(cfg.Dsn)
	case "postgres":
		dialector = postgres.Open(cfg.Dsn)
	default:
		return nil, fmt.Errorf("database type must be sqlite, mysql or postgres, got %q", cfg.Db)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormzerologger.New(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("database connection error: %w", err)
	}

	if cfg.Db == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

// Migrate creates or updates the given models' tables.
func Migrate(db *gorm.DB, models ...any) error {
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}

// sqliteDSN enables foreign keys, needed for the pageview cascade.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_busy_timeout=5000"
}
