package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options selects and tunes the database connection.
type Options struct {
	Driver          string // "postgres" or "sqlite"
	DSN             string
	LogLevel        logger.LogLevel
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// PostgresDSN builds a DSN from the DB_* variables when DATABASE_URL is unset.
func PostgresDSN() string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
	)
}

// Connect opens the configured database. TranslateError is always on so
// unique violations surface as gorm.ErrDuplicatedKey on every driver.
func Connect(opts Options) (*gorm.DB, error) {
	if opts.LogLevel == 0 {
		opts.LogLevel = logger.Warn
	}
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  opts.LogLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var dialector gorm.Dialector
	switch opts.Driver {
	case "sqlite":
		dialector = sqlite.Open(opts.DSN)
	case "postgres", "":
		dsn := opts.DSN
		if dsn == "" {
			dsn = PostgresDSN()
		}
		// Simple protocol keeps Supabase transaction-mode pooling happy.
		dialector = postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger,
		PrepareStmt:    false,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", opts.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if opts.Driver == "sqlite" {
		// SQLite has a single writer.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(orDefault(opts.MaxIdleConns, 10))
		sqlDB.SetMaxOpenConns(orDefault(opts.MaxOpenConns, 100))
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	} else {
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	return db, nil
}

// OpenSQLite opens a file-backed SQLite database with foreign keys and a busy
// timeout. Used by tests and local development.
func OpenSQLite(path string) (*gorm.DB, error) {
	return Connect(Options{
		Driver:   "sqlite",
		DSN:      path + "?_foreign_keys=on&_busy_timeout=5000",
		LogLevel: logger.Silent,
	})
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
