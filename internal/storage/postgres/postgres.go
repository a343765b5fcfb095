// Package postgres stores accounts in PostgreSQL using pgx v5.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/roomsync/internal/config"
)

// PingTimeout bounds a single reachability check made through Ping.
const PingTimeout = 3 * time.Second

// Pool owns the pgx connection pool shared by the account repository.
type Pool struct {
	pool *pgxpool.Pool
}

// NewPool connects to the database described by cfg and verifies it answers
// within PingTimeout.
//
// Precondition: cfg must pass config validation.
// Postcondition: Returns a reachable Pool or a non-nil error; no connections
// are left open on error.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool for %s: %w", poolCfg.ConnConfig.Host, err)
	}
	p := &Pool{pool: raw}
	if err := p.Ping(ctx); err != nil {
		raw.Close()
		return nil, err
	}
	return p, nil
}

// poolConfig applies the configured connection limits to the parsed DSN.
func poolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	return poolCfg, nil
}

// Health reports whether the database answers within timeout.
func (p *Pool) Health(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	return nil
}

// Ping is Health bounded by PingTimeout. It lets the pool act as an admin
// health dependency.
func (p *Pool) Ping(ctx context.Context) error {
	return p.Health(ctx, PingTimeout)
}

// Close releases every pooled connection.
func (p *Pool) Close() {
	p.pool.Close()
}

// DB exposes the pgx pool to repositories and test fixtures.
func (p *Pool) DB() *pgxpool.Pool {
	return p.pool
}
