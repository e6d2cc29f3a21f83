package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool limits sized for the API process. The outbox relay and renewal worker
// share this constructor but hold only a connection or two at a time.
const (
	poolMaxConns        = 20
	poolMinConns        = 2
	poolConnLifetime    = 30 * time.Minute
	poolConnIdleTime    = 5 * time.Minute
	poolHealthCheckTick = 30 * time.Second
)

// NewPostgresPool opens a pgx pool against cfg.DSN() and verifies
// connectivity before returning it.
func NewPostgresPool(ctx context.Context, cfg *Config) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	pc.MaxConns = poolMaxConns
	pc.MinConns = poolMinConns
	pc.MaxConnLifetime = poolConnLifetime
	pc.MaxConnIdleTime = poolConnIdleTime
	pc.HealthCheckPeriod = poolHealthCheckTick

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// HealthCheck pings the database with a short deadline. Used by the health
// endpoint so a wedged database cannot hang the probe.
func HealthCheck(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return pool.Ping(ctx)
}
