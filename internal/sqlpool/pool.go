// Package sqlpool opens pooled database/sql handles for the catalog store and
// the warehouse.
package sqlpool

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DriverPgx is the database/sql name registered by pgx's stdlib package.
const DriverPgx = "pgx"

const defaultPingTimeout = 5 * time.Second

type Config struct {
	// Name labels errors, e.g. "store" or "warehouse".
	Name            string
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// Open opens and pings a handle. The pgx driver requires a DSN; other drivers
// may accept an empty one (DuckDB treats it as in-memory).
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	name := cfg.Name
	if name == "" {
		name = "database"
	}
	driver := cfg.Driver
	if driver == "" {
		driver = DriverPgx
	}
	if driver == DriverPgx && cfg.DSN == "" {
		return nil, fmt.Errorf("%s dsn is required", name)
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", name, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = defaultPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", name, err)
	}
	return db, nil
}
