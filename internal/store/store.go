// Package store provides persistence for trucks, residents and location
// history. The PostgresStore is the production implementation; MemoryStore is
// a drop-in double used by tests and local development.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Brandonkhumalo/refuse-tracker/internal/models"
)

var (
	// ErrTruckNotFound indicates a lookup referenced an unknown truck id.
	ErrTruckNotFound = errors.New("truck not found")
	// ErrResidentNotFound indicates a lookup referenced an unknown resident.
	ErrResidentNotFound = errors.New("resident not found")
)

// TruckStore resolves registered collection vehicles. Read-only.
type TruckStore interface {
	// GetTruck returns the truck with the given id or ErrTruckNotFound.
	GetTruck(ctx context.Context, id int64) (models.Truck, error)
}

// ResidentStore resolves alert subscribers. Read-only.
type ResidentStore interface {
	// GetResident returns the resident with the given id or ErrResidentNotFound.
	GetResident(ctx context.Context, id uuid.UUID) (models.Resident, error)
	// ResidentsInRegion returns residents whose suburb contains the given
	// region text, case-insensitively.
	ResidentsInRegion(ctx context.Context, region string) ([]models.Resident, error)
}

// LocationStore appends and queries truck track history. History is
// append-only: records are never updated or deleted through this interface.
type LocationStore interface {
	// InsertLocation persists a new record with the supplied server
	// timestamp and returns the stored record.
	InsertLocation(ctx context.Context, truckID int64, lat, lng float64, ts time.Time) (models.LocationRecord, error)
	// LatestLocation returns the most recently inserted record for the
	// truck. The boolean is false when the truck has no history yet.
	LatestLocation(ctx context.Context, truckID int64) (models.LocationRecord, bool, error)
}

// ScheduleStore resolves planned collection runs. Read-only reference data.
type ScheduleStore interface {
	// SchedulesForTruck returns the truck's planned runs ordered by date.
	SchedulesForTruck(ctx context.Context, truckID int64) ([]models.Schedule, error)
}

// Store aggregates every repository the tracking core depends on.
type Store interface {
	TruckStore
	ResidentStore
	LocationStore
	ScheduleStore
}
