// Package database opens the main GORM connection from a connection URI.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options tunes the connection pool and query logging.
type Options struct {
	Debug           bool // log every statement
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// DefaultOptions mirrors what a small single-node deployment needs.
func DefaultOptions() Options {
	return Options{
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		PingTimeout:     5 * time.Second,
	}
}

// Open parses uri, opens the database, configures the pool and verifies
// the connection with a ping. The returned error names the redacted URI.
func Open(uri string, opts Options) (*gorm.DB, error) {
	target, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	dialector, err := buildDialector(target)
	if err != nil {
		return nil, fmt.Errorf("database: build dialector: %w", err)
	}

	level := logger.Silent
	if opts.Debug {
		level = logger.Info
	}
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(level),
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", redact(uri), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: get sql.DB: %w", err)
	}

	maxOpen := opts.MaxOpenConns
	if target.InMemory() {
		// Every new connection would see its own empty database.
		maxOpen = 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	if target.InMemory() {
		sqlDB.SetConnMaxLifetime(0)
		sqlDB.SetConnMaxIdleTime(0)
		sqlDB.SetMaxIdleConns(1)
	}

	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("database: ping %s: %w", redact(uri), err)
	}

	slog.Debug("database connected", "driver", target.Driver, "uri", redact(uri))
	return db, nil
}

// Ping checks that db is reachable.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func buildDialector(t Target) (gorm.Dialector, error) {
	switch t.Driver {
	case DriverSQLite:
		return sqlite.Open(t.DSN), nil
	case DriverPostgres:
		return postgres.Open(t.DSN), nil
	case DriverMySQL:
		return mysql.Open(t.DSN), nil
	case DriverSQLServer:
		return sqlserver.Open(t.DSN), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedScheme, t.Driver)
	}
}
