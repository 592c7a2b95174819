// Package database opens and verifies the relational store connection.
package database

import (
	"context"
	"database/sql"
	"strings"
	"time"

	tserrors "github.com/tenantsync/engine/internal/errors"

	_ "github.com/lib/pq"
)

// Open establishes a PostgreSQL connection using the provided DSN and verifies
// connectivity with a ping. The returned *sql.DB must be closed by the caller.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, tserrors.Config("missing_dsn", "postgres DSN is required", nil)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, tserrors.TransientIO("open_postgres_failed", "failed opening postgres connection", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, tserrors.TransientIO("ping_postgres_failed", "failed pinging postgres", err)
	}
	return db, nil
}

// ConfigurePool applies connection pool limits to an opened *sql.DB.
func ConfigurePool(db *sql.DB, maxOpen, maxIdle, connMaxLifetimeSeconds int) {
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if connMaxLifetimeSeconds > 0 {
		db.SetConnMaxLifetime(time.Duration(connMaxLifetimeSeconds) * time.Second)
	}
}
