package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brandonkhumalo/refuse-tracker/internal/models"
	"github.com/Brandonkhumalo/refuse-tracker/internal/store"
)

func TestRecordLocation_PersistsCanonicalRecord(t *testing.T) {
	s := store.NewMemoryStore()
	s.AddTruck(models.Truck{ID: 1, Name: "Truck 1", Route: "Avondale"})

	fixed := time.Date(2026, 3, 1, 8, 30, 0, 0, time.FixedZone("CAT", 2*3600))
	svc := NewService(s, s, nil, WithClock(func() time.Time { return fixed }))

	rec, err := svc.RecordLocation(context.Background(), 1, -17.8252, 31.0335)
	require.NoError(t, err)

	assert.Equal(t, int64(1), rec.TruckID)
	assert.Equal(t, -17.8252, rec.Latitude)
	assert.Equal(t, 31.0335, rec.Longitude)
	assert.Equal(t, fixed.UTC(), rec.Timestamp, "timestamp is server-assigned and UTC")
}

func TestRecordLocation_UnknownTruck(t *testing.T) {
	s := store.NewMemoryStore()
	svc := NewService(s, s, nil)

	_, err := svc.RecordLocation(context.Background(), 42, -17.8, 31.0)
	assert.ErrorIs(t, err, ErrTruckNotFound)
	assert.Empty(t, s.History(42), "a rejected report leaves no record behind")
}

func TestRecordLocation_TimestampMonotonicPerTruck(t *testing.T) {
	s := store.NewMemoryStore()
	s.AddTruck(models.Truck{ID: 1})
	svc := NewService(s, s, nil)

	var prev time.Time
	for i := 0; i < 5; i++ {
		rec, err := svc.RecordLocation(context.Background(), 1, -17.8, 31.0)
		require.NoError(t, err)
		assert.False(t, rec.Timestamp.Before(prev))
		prev = rec.Timestamp
	}
}

func TestLatestLocation_ReflectsMostRecentRecord(t *testing.T) {
	s := store.NewMemoryStore()
	s.AddTruck(models.Truck{ID: 1})

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	step := 0
	svc := NewService(s, s, nil, WithClock(func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	}))

	_, ok, err := svc.LatestLocation(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.RecordLocation(context.Background(), 1, -17.80, 31.00)
	require.NoError(t, err)
	_, err = svc.RecordLocation(context.Background(), 1, -17.81, 31.01)
	require.NoError(t, err)

	latest, ok, err := svc.LatestLocation(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, -17.81, latest.Latitude)
}
