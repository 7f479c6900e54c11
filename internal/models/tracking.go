// Package models provides data structures for the refuse tracking core.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Truck represents a collection vehicle registered with the council fleet.
type Truck struct {
	ID          int64  `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`                     // Display name, e.g. "Truck 7 - Northern"
	GPSDeviceID string `json:"gps_device_id" db:"gps_device_id"`   // Physical tracker identifier
	Route       string `json:"route_info" db:"route_info"`         // Free-text region/route assignment
}

// Resident represents a subscriber that may receive proximity alerts.
// Lat/Lng are nil when the resident has not registered home coordinates.
type Resident struct {
	ID     uuid.UUID `json:"id" db:"id"`
	Email  string    `json:"email" db:"email"`
	Phone  string    `json:"phone" db:"phone"`
	Suburb string    `json:"suburb" db:"suburb"`
	Lat    *float64  `json:"lat" db:"lat"`
	Lng    *float64  `json:"lng" db:"lng"`
}

// HasCoordinates reports whether the resident registered a home position.
func (r Resident) HasCoordinates() bool {
	return r.Lat != nil && r.Lng != nil
}

// LocationRecord is one immutable point in a truck's track history.
// The timestamp is assigned server-side at persistence time, never by the
// reporting client.
type LocationRecord struct {
	ID        int64     `json:"id" db:"id"`
	TruckID   int64     `json:"truck_id" db:"truck_id"`
	Latitude  float64   `json:"latitude" db:"latitude"`
	Longitude float64   `json:"longitude" db:"longitude"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// Schedule is a read-only reference entity linking a truck to a planned
// collection run. The core never mutates schedules.
type Schedule struct {
	ID             int64     `json:"id" db:"id"`
	TruckID        int64     `json:"truck_id" db:"truck_id"`
	Suburb         string    `json:"suburb" db:"suburb"`
	Route          string    `json:"route" db:"route"`
	CollectionDate time.Time `json:"collection_date" db:"collection_date"`
}

// ProximityAlertJob is the unit of work handed to the alert dispatcher.
// Attempt counts deliveries so redelivery can be bounded; jobs are ephemeral
// and never persisted by this core.
type ProximityAlertJob struct {
	TruckID   int64   `json:"truck_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Attempt   int     `json:"attempt"`
}

// Role classifies a connected client.
type Role string

const (
	// RoleReporter is a truck-mounted client that sends location updates.
	RoleReporter Role = "vehicle-reporter"
	// RoleObserver is a resident or monitor receiving updates.
	RoleObserver Role = "observer"
	// RoleAnonymous is an unauthenticated observer allowed on the global
	// feed only.
	RoleAnonymous Role = "anonymous"
)

// Identity is the resolved principal for one connection. It is derived once
// during the websocket handshake and immutable for the connection's lifetime.
type Identity struct {
	Subject string `json:"subject"`
	Role    Role   `json:"role"`
	Region  string `json:"region,omitempty"` // Empty when no region affinity
}

// Anonymous returns the identity used for unauthenticated observers.
func Anonymous() Identity {
	return Identity{Role: RoleAnonymous}
}

// IsAnonymous reports whether the identity carries no authenticated subject.
func (i Identity) IsAnonymous() bool {
	return i.Role == RoleAnonymous || i.Subject == ""
}

// HasRegion reports whether the identity carries a region affinity.
func (i Identity) HasRegion() bool {
	return i.Region != ""
}
