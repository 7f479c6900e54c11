// Package ingest validates and persists inbound location reports.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Brandonkhumalo/refuse-tracker/internal/models"
	"github.com/Brandonkhumalo/refuse-tracker/internal/store"
)

// ErrTruckNotFound mirrors the store sentinel so callers need not import the
// store package to classify ingestion failures.
var ErrTruckNotFound = store.ErrTruckNotFound

// Service records location reports against known trucks. Timestamps are
// always assigned here, never accepted from clients, so each truck's history
// has a single consistent ordering key.
type Service struct {
	trucks    store.TruckStore
	locations store.LocationStore
	logger    *zap.Logger
	now       func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the timestamp source; primarily used in tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewService creates the ingestion service.
func NewService(trucks store.TruckStore, locations store.LocationStore, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		trucks:    trucks,
		locations: locations,
		logger:    logger.With(zap.String("component", "ingest")),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordLocation verifies the truck exists, then persists an immutable record
// with a server-assigned UTC timestamp and returns it. An unknown truck id
// yields ErrTruckNotFound and no side effects.
func (s *Service) RecordLocation(ctx context.Context, truckID int64, lat, lng float64) (models.LocationRecord, error) {
	if _, err := s.trucks.GetTruck(ctx, truckID); err != nil {
		if errors.Is(err, store.ErrTruckNotFound) {
			return models.LocationRecord{}, ErrTruckNotFound
		}
		return models.LocationRecord{}, fmt.Errorf("failed to resolve truck %d: %w", truckID, err)
	}

	record, err := s.locations.InsertLocation(ctx, truckID, lat, lng, s.now().UTC())
	if err != nil {
		return models.LocationRecord{}, fmt.Errorf("failed to persist location for truck %d: %w", truckID, err)
	}

	s.logger.Debug("Recorded location",
		zap.Int64("truck_id", truckID),
		zap.Float64("lat", lat),
		zap.Float64("lng", lng),
		zap.Time("timestamp", record.Timestamp))

	return record, nil
}

// LatestLocation returns the most recently persisted record for the truck.
// The boolean is false when the truck has no history.
func (s *Service) LatestLocation(ctx context.Context, truckID int64) (models.LocationRecord, bool, error) {
	return s.locations.LatestLocation(ctx, truckID)
}
