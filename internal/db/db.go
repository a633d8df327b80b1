// Package db stores decoded trace records in PostgreSQL.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// applicationName shows up in pg_stat_activity for psotrace connections.
const applicationName = "psotrace"

// DB holds the pgx pool shared by every capture of a run.
type DB struct {
	pool *pgxpool.Pool
}

// New opens a pool on dsn and pings it. maxConns <= 0 keeps the pgx default;
// psotrace sizes it to the number of captures flushing at once.
func New(ctx context.Context, dsn string, maxConns int32) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.ConnConfig.RuntimeParams["application_name"] = applicationName

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &DB{pool: pool}, nil
}

func (d *DB) Close() {
	d.pool.Close()
}

// Pool returns the pool for repositories.
func (d *DB) Pool() *pgxpool.Pool {
	return d.pool
}
