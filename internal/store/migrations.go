package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// migration is a single versioned schema change. Migrations are embedded
// rather than loaded from disk so the binary is self-contained.
type migration struct {
	Version int
	Name    string
	SQL     string
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "create_trucks",
		SQL: `
			CREATE TABLE IF NOT EXISTS trucks (
				id BIGSERIAL PRIMARY KEY,
				name VARCHAR(100) NOT NULL,
				gps_device_id VARCHAR(100) NOT NULL UNIQUE,
				route_info TEXT NOT NULL DEFAULT ''
			);
		`,
	},
	{
		Version: 2,
		Name:    "create_residents",
		SQL: `
			CREATE TABLE IF NOT EXISTS residents (
				id UUID PRIMARY KEY,
				email VARCHAR(255) NOT NULL UNIQUE,
				phone VARCHAR(20) NOT NULL DEFAULT '',
				suburb VARCHAR(100) NOT NULL DEFAULT '',
				lat DOUBLE PRECISION,
				lng DOUBLE PRECISION
			);

			CREATE INDEX IF NOT EXISTS idx_residents_suburb ON residents (LOWER(suburb));
		`,
	},
	{
		Version: 3,
		Name:    "create_location_updates",
		SQL: `
			CREATE TABLE IF NOT EXISTS location_updates (
				id BIGSERIAL PRIMARY KEY,
				truck_id BIGINT NOT NULL REFERENCES trucks(id) ON DELETE CASCADE,
				latitude DOUBLE PRECISION NOT NULL,
				longitude DOUBLE PRECISION NOT NULL,
				timestamp TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_location_updates_truck_ts
			ON location_updates (truck_id, timestamp DESC);
		`,
	},
	{
		Version: 4,
		Name:    "create_schedules",
		SQL: `
			CREATE TABLE IF NOT EXISTS schedules (
				id BIGSERIAL PRIMARY KEY,
				truck_id BIGINT NOT NULL REFERENCES trucks(id) ON DELETE CASCADE,
				suburb VARCHAR(100) NOT NULL,
				route VARCHAR(100) NOT NULL,
				collection_date DATE NOT NULL
			);
		`,
	},
}

// migrate applies any pending schema migrations inside a transaction per
// migration, tracking applied versions in schema_migrations.
func (s *PostgresStore) migrate(ctx context.Context) error {
	const trackingTable = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`
	if _, err := s.pool.Exec(ctx, trackingTable); err != nil {
		return fmt.Errorf("failed to initialize schema_migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists bool
		err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, m.Version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration %d: %w", m.Version, err)
		}
		if exists {
			continue
		}

		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}

		s.logger.Info("Applied migration",
			zap.Int("version", m.Version),
			zap.String("name", m.Name))
	}

	return nil
}
