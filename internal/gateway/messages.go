package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Brandonkhumalo/refuse-tracker/internal/models"
)

// Error frame codes surfaced to the originating connection.
const (
	CodeAuthRejected        = "auth_rejected"
	CodeMalformedMessage    = "malformed_message"
	CodeUnknownTruck        = "unknown_truck"
	CodeRegistryUnavailable = "registry_unavailable"
)

// TruckReport is the inbound location frame. Pointer fields distinguish a
// missing field from a zero value during validation.
type TruckReport struct {
	TruckID   *int64   `json:"truck_id"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// parseReport decodes and validates an inbound frame.
func parseReport(data []byte) (truckID int64, lat, lng float64, err error) {
	var report TruckReport
	if err := json.Unmarshal(data, &report); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid JSON: %w", err)
	}
	if report.TruckID == nil || report.Latitude == nil || report.Longitude == nil {
		return 0, 0, 0, fmt.Errorf("truck_id, latitude and longitude are required")
	}
	if *report.Latitude < -90 || *report.Latitude > 90 {
		return 0, 0, 0, fmt.Errorf("latitude %v out of range", *report.Latitude)
	}
	if *report.Longitude < -180 || *report.Longitude > 180 {
		return 0, 0, 0, fmt.Errorf("longitude %v out of range", *report.Longitude)
	}
	return *report.TruckID, *report.Latitude, *report.Longitude, nil
}

// TruckUpdate is the outbound broadcast frame. Catchup marks an update
// sourced from persisted history during the connect-time push rather than a
// live report.
type TruckUpdate struct {
	Type      string  `json:"type"`
	TruckID   int64   `json:"truck_id"`
	TruckName string  `json:"truck_name,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp string  `json:"timestamp"`
	Catchup   bool    `json:"catchup,omitempty"`
}

// newTruckUpdate builds the canonical broadcast frame for a stored record.
func newTruckUpdate(record models.LocationRecord, truckName string, catchup bool) TruckUpdate {
	return TruckUpdate{
		Type:      "truck_update",
		TruckID:   record.TruckID,
		TruckName: truckName,
		Latitude:  record.Latitude,
		Longitude: record.Longitude,
		Timestamp: record.Timestamp.UTC().Format(time.RFC3339),
		Catchup:   catchup,
	}
}

// marshalUpdate serializes the broadcast frame once so every topic and the
// telemetry mirror share the same bytes.
func marshalUpdate(update TruckUpdate) ([]byte, error) {
	return json.Marshal(update)
}

// ErrorFrame reports a recoverable protocol or ingestion error to the sender.
// The connection stays open except when the handshake itself is rejected.
type ErrorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newErrorFrame(code, message string) ErrorFrame {
	return ErrorFrame{Type: "error", Code: code, Message: message}
}
