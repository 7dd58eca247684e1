// Package database provides GORM-backed database access for SQLite and
// PostgreSQL.
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// ErrUnsupportedDriver indicates the connection URL scheme is not supported.
var ErrUnsupportedDriver = errors.New("unsupported database driver")

// Database is a handle to an open database connection.
type Database interface {
	// Session returns a GORM session bound to the given context.
	Session(ctx context.Context) *gorm.DB
	// IsSQLite reports whether the underlying driver is SQLite.
	IsSQLite() bool
	// IsPostgres reports whether the underlying driver is PostgreSQL.
	IsPostgres() bool
	// ConfigurePool sets connection pool limits.
	ConfigurePool(maxOpen, maxIdle int, maxLifetime time.Duration) error
	// Close closes the underlying connection pool.
	Close() error
}

type gormDatabase struct {
	db       *gorm.DB
	postgres bool
}

// NewDatabase opens a database from a connection URL. Supported schemes are
// sqlite:// (path or :memory:) and postgres:// / postgresql://.
func NewDatabase(_ context.Context, url string) (Database, error) {
	dialector, err := parseDialector(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: slogGormLogger{},
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	d := &gormDatabase{db: db, postgres: dialector.Name() == "postgres"}
	if d.IsSQLite() {
		// SQLite serializes writers; a single connection avoids SQLITE_BUSY
		// and keeps :memory: databases visible to every session.
		if err := d.ConfigurePool(1, 1, 0); err != nil {
			_ = d.Close()
			return nil, err
		}
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}
	return d, nil
}

func parseDialector(url string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(url, "sqlite://"):
		path := strings.TrimPrefix(url, "sqlite://")
		path = strings.TrimPrefix(path, "/")
		if path == ":memory:" || path == "" {
			path = "file::memory:?cache=shared"
		}
		return sqlite.Open(path), nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return postgres.Open(url), nil
	default:
		return nil, ErrUnsupportedDriver
	}
}

func (d *gormDatabase) Session(ctx context.Context) *gorm.DB {
	return d.db.WithContext(ctx)
}

func (d *gormDatabase) IsSQLite() bool { return !d.postgres }

func (d *gormDatabase) IsPostgres() bool { return d.postgres }

func (d *gormDatabase) ConfigurePool(maxOpen, maxIdle int, maxLifetime time.Duration) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(maxLifetime)
	return nil
}

func (d *gormDatabase) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("access connection pool: %w", err)
	}
	return sqlDB.Close()
}
