package modkit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fernandezvara/dbkit"
)

// OpenPostgres connects to Postgres through dbkit, applies the pool settings
// and runs Migrations.
func OpenPostgres(ctx context.Context, url string, pool PoolConfig, logger *slog.Logger) (*dbkit.DBKit, error) {
	if url == "" {
		return nil, fmt.Errorf("database url is required")
	}
	kit, err := dbkit.New(dbkit.Config{URL: url})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := ConfigurePool(kit, pool, logger); err != nil {
		_ = kit.Close()
		return nil, err
	}

	result, err := kit.Migrate(ctx, Migrations())
	if err != nil {
		_ = kit.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	for _, migration := range result.Applied {
		logger.InfoContext(ctx, "applied migration", slog.String("id", migration.ID))
	}
	return kit, nil
}

// ConfigurePool updates the database connection pool settings.
func ConfigurePool(kit *dbkit.DBKit, config PoolConfig, logger *slog.Logger) error {
	bunDB := kit.Bun()
	if bunDB == nil {
		return fmt.Errorf("database instance not available")
	}

	bunDB.SetMaxOpenConns(config.MaxOpenConnections)
	bunDB.SetMaxIdleConns(config.MaxIdleConnections)
	bunDB.SetConnMaxLifetime(config.ConnectionMaxLifetime)
	bunDB.SetConnMaxIdleTime(config.ConnectionMaxIdleTime)

	logger.Debug("connection pool configured",
		slog.Int("max_open", config.MaxOpenConnections),
		slog.Int("max_idle", config.MaxIdleConnections),
		slog.Duration("max_lifetime", config.ConnectionMaxLifetime),
		slog.Duration("max_idle_time", config.ConnectionMaxIdleTime),
	)
	return nil
}
