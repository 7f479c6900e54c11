package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Brandonkhumalo/refuse-tracker/internal/models"
)

// MemoryStore is an in-memory Store used by tests and local development.
// All methods are safe for concurrent use.
type MemoryStore struct {
	mu        sync.RWMutex
	trucks    map[int64]models.Truck
	residents map[uuid.UUID]models.Resident
	locations []models.LocationRecord
	schedules []models.Schedule
	nextLocID int64
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trucks:    make(map[int64]models.Truck),
		residents: make(map[uuid.UUID]models.Resident),
		nextLocID: 1,
	}
}

// AddTruck seeds a truck. Intended for test setup.
func (s *MemoryStore) AddTruck(t models.Truck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trucks[t.ID] = t
}

// AddResident seeds a resident. Intended for test setup.
func (s *MemoryStore) AddResident(r models.Resident) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.residents[r.ID] = r
}

// AddSchedule seeds a schedule. Intended for test setup.
func (s *MemoryStore) AddSchedule(sch models.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules = append(s.schedules, sch)
}

// GetTruck returns the truck with the given id or ErrTruckNotFound.
func (s *MemoryStore) GetTruck(_ context.Context, id int64) (models.Truck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trucks[id]
	if !ok {
		return models.Truck{}, ErrTruckNotFound
	}
	return t, nil
}

// GetResident returns the resident with the given id or ErrResidentNotFound.
func (s *MemoryStore) GetResident(_ context.Context, id uuid.UUID) (models.Resident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.residents[id]
	if !ok {
		return models.Resident{}, ErrResidentNotFound
	}
	return r, nil
}

// ResidentsInRegion returns residents whose suburb contains the region text,
// case-insensitively. Matches the ILIKE containment used by PostgresStore.
func (s *MemoryStore) ResidentsInRegion(_ context.Context, region string) ([]models.Resident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(region)
	var out []models.Resident
	for _, r := range s.residents {
		if strings.Contains(strings.ToLower(r.Suburb), needle) {
			out = append(out, r)
		}
	}
	return out, nil
}

// InsertLocation appends a record and returns it with an assigned id.
func (s *MemoryStore) InsertLocation(_ context.Context, truckID int64, lat, lng float64, ts time.Time) (models.LocationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := models.LocationRecord{
		ID:        s.nextLocID,
		TruckID:   truckID,
		Latitude:  lat,
		Longitude: lng,
		Timestamp: ts,
	}
	s.nextLocID++
	s.locations = append(s.locations, rec)
	return rec, nil
}

// LatestLocation returns the most recent record for the truck.
func (s *MemoryStore) LatestLocation(_ context.Context, truckID int64) (models.LocationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest models.LocationRecord
	found := false
	for _, rec := range s.locations {
		if rec.TruckID != truckID {
			continue
		}
		if !found || rec.Timestamp.After(latest.Timestamp) ||
			(rec.Timestamp.Equal(latest.Timestamp) && rec.ID > latest.ID) {
			latest = rec
			found = true
		}
	}
	return latest, found, nil
}

// History returns every record for the truck in insertion order. Test helper.
func (s *MemoryStore) History(truckID int64) []models.LocationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.LocationRecord
	for _, rec := range s.locations {
		if rec.TruckID == truckID {
			out = append(out, rec)
		}
	}
	return out
}

// SchedulesForTruck returns the truck's planned runs ordered by date.
func (s *MemoryStore) SchedulesForTruck(_ context.Context, truckID int64) ([]models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Schedule
	for _, sch := range s.schedules {
		if sch.TruckID == truckID {
			out = append(out, sch)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CollectionDate.Before(out[j].CollectionDate)
	})
	return out, nil
}
