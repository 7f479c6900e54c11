package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Brandonkhumalo/refuse-tracker/internal/models"
)

// PostgresStore implements Store over a pgx connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore connects to the database, applies pending migrations and
// returns a ready store.
func NewPostgresStore(ctx context.Context, url string, maxConns int32, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	s := &PostgresStore{
		pool:   pool,
		logger: logger.With(zap.String("component", "postgres_store")),
	}

	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s.logger.Info("Connected to database", zap.Int32("max_conns", poolCfg.MaxConns))
	return s, nil
}

// Pool exposes the underlying pool for health probes.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// GetTruck returns the truck with the given id or ErrTruckNotFound.
func (s *PostgresStore) GetTruck(ctx context.Context, id int64) (models.Truck, error) {
	const query = `
		SELECT id, name, gps_device_id, route_info
		FROM trucks
		WHERE id = $1
	`

	var t models.Truck
	err := s.pool.QueryRow(ctx, query, id).Scan(&t.ID, &t.Name, &t.GPSDeviceID, &t.Route)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Truck{}, ErrTruckNotFound
	}
	if err != nil {
		return models.Truck{}, fmt.Errorf("failed to query truck %d: %w", id, err)
	}
	return t, nil
}

// GetResident returns the resident with the given id or ErrResidentNotFound.
func (s *PostgresStore) GetResident(ctx context.Context, id uuid.UUID) (models.Resident, error) {
	const query = `
		SELECT id, email, phone, suburb, lat, lng
		FROM residents
		WHERE id = $1
	`

	var r models.Resident
	err := s.pool.QueryRow(ctx, query, id).Scan(&r.ID, &r.Email, &r.Phone, &r.Suburb, &r.Lat, &r.Lng)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Resident{}, ErrResidentNotFound
	}
	if err != nil {
		return models.Resident{}, fmt.Errorf("failed to query resident %s: %w", id, err)
	}
	return r, nil
}

// ResidentsInRegion returns residents whose suburb contains the region text,
// case-insensitively.
func (s *PostgresStore) ResidentsInRegion(ctx context.Context, region string) ([]models.Resident, error) {
	const query = `
		SELECT id, email, phone, suburb, lat, lng
		FROM residents
		WHERE suburb ILIKE '%' || $1 || '%'
	`

	rows, err := s.pool.Query(ctx, query, region)
	if err != nil {
		return nil, fmt.Errorf("failed to query residents for region %q: %w", region, err)
	}
	defer rows.Close()

	var residents []models.Resident
	for rows.Next() {
		var r models.Resident
		if err := rows.Scan(&r.ID, &r.Email, &r.Phone, &r.Suburb, &r.Lat, &r.Lng); err != nil {
			return nil, fmt.Errorf("failed to scan resident: %w", err)
		}
		residents = append(residents, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating residents: %w", err)
	}
	return residents, nil
}

// InsertLocation appends a new track point and returns the stored record.
func (s *PostgresStore) InsertLocation(ctx context.Context, truckID int64, lat, lng float64, ts time.Time) (models.LocationRecord, error) {
	const query = `
		INSERT INTO location_updates (truck_id, latitude, longitude, timestamp)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	record := models.LocationRecord{
		TruckID:   truckID,
		Latitude:  lat,
		Longitude: lng,
		Timestamp: ts,
	}
	if err := s.pool.QueryRow(ctx, query, truckID, lat, lng, ts).Scan(&record.ID); err != nil {
		return models.LocationRecord{}, fmt.Errorf("failed to insert location for truck %d: %w", truckID, err)
	}
	return record, nil
}

// LatestLocation returns the most recently inserted record for the truck.
func (s *PostgresStore) LatestLocation(ctx context.Context, truckID int64) (models.LocationRecord, bool, error) {
	const query = `
		SELECT id, truck_id, latitude, longitude, timestamp
		FROM location_updates
		WHERE truck_id = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`

	var rec models.LocationRecord
	err := s.pool.QueryRow(ctx, query, truckID).Scan(&rec.ID, &rec.TruckID, &rec.Latitude, &rec.Longitude, &rec.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.LocationRecord{}, false, nil
	}
	if err != nil {
		return models.LocationRecord{}, false, fmt.Errorf("failed to query latest location for truck %d: %w", truckID, err)
	}
	return rec, true, nil
}

// SchedulesForTruck returns the truck's planned runs ordered by date.
func (s *PostgresStore) SchedulesForTruck(ctx context.Context, truckID int64) ([]models.Schedule, error) {
	const query = `
		SELECT id, truck_id, suburb, route, collection_date
		FROM schedules
		WHERE truck_id = $1
		ORDER BY collection_date
	`

	rows, err := s.pool.Query(ctx, query, truckID)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules for truck %d: %w", truckID, err)
	}
	defer rows.Close()

	var schedules []models.Schedule
	for rows.Next() {
		var sch models.Schedule
		if err := rows.Scan(&sch.ID, &sch.TruckID, &sch.Suburb, &sch.Route, &sch.CollectionDate); err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, sch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}
	return schedules, nil
}
