// Package db owns warehouse connectivity: pool construction and embedded
// schema migrations.
package db

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TripCarbon/trip-carbon-backend/config"
	"github.com/TripCarbon/trip-carbon-backend/logger"
)

// ConnectPool builds and verifies a pgx connection pool from configuration.
// Production connections require TLS 1.2+.
func ConnectPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	log := logger.GetLogger()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	if cfg.Database.MaxConnections > 0 {
		poolConfig.MaxConns = int32(cfg.Database.MaxConnections)
	}

	if cfg.IsProduction() {
		poolConfig.ConnConfig.TLSConfig = &tls.Config{
			ServerName: cfg.Database.Host,
			MinVersion: tls.VersionTLS12,
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Infow("Connected to database",
		"dsn", logger.MaskConnectionString(cfg.Database.URL()),
		"max_conns", poolConfig.MaxConns)

	return pool, nil
}
