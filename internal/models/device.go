package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/geotrack/geotrack-server/pkg/geo"
)

// DeviceStatus represents the operational status of a device
type DeviceStatus string

const (
	DeviceStatusOnline     DeviceStatus = "online"
	DeviceStatusOffline    DeviceStatus = "offline"
	DeviceStatusLostMode   DeviceStatus = "lost_mode"
	DeviceStatusLowBattery DeviceStatus = "low_battery"
	DeviceStatusError      DeviceStatus = "error"
)

// Valid reports whether the status is a known device status
func (s DeviceStatus) Valid() bool {
	switch s {
	case DeviceStatusOnline, DeviceStatusOffline, DeviceStatusLostMode,
		DeviceStatusLowBattery, DeviceStatusError:
		return true
	}
	return false
}

// Device represents a GPS tracked device
type Device struct {
	BaseModel

	// ExternalID is the stable hardware identifier devices report with
	ExternalID string `json:"externalId" db:"external_id"`

	Name       string `json:"name" db:"name"`
	DeviceType string `json:"deviceType" db:"device_type"`

	Status DeviceStatus `json:"status" db:"status"`

	// Config holds free-form operational parameters
	Config Variables `json:"config" db:"config"`

	LastSeenAt *time.Time `json:"lastSeenAt,omitempty" db:"last_seen_at"`

	OwnerID *uuid.UUID `json:"ownerId,omitempty" db:"owner_id"`
}

// DeviceLocation represents an immutable point-in-time location report
type DeviceLocation struct {
	ID       uuid.UUID `json:"id" db:"id"`
	DeviceID uuid.UUID `json:"deviceId" db:"device_id"`

	Latitude  geo.Coordinate `json:"latitude" db:"latitude"`
	Longitude geo.Coordinate `json:"longitude" db:"longitude"`

	Altitude   *float64 `json:"altitude,omitempty" db:"altitude"`
	Speed      *float64 `json:"speed,omitempty" db:"speed"`
	Heading    *float64 `json:"heading,omitempty" db:"heading"`
	Satellites *int     `json:"satellites,omitempty" db:"satellites"`

	BatteryLevel  *float64 `json:"batteryLevel,omitempty" db:"battery_level"`
	SignalQuality *int     `json:"signalQuality,omitempty" db:"signal_quality"`

	ReportedAt time.Time `json:"reportedAt" db:"reported_at"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}
