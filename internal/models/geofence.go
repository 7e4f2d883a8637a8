package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/geotrack/geotrack-server/pkg/geo"
)

// Geofence represents a circular geographic boundary owned by a device
type Geofence struct {
	BaseModel

	DeviceID uuid.UUID `json:"deviceId" db:"device_id"`
	Name     string    `json:"name" db:"name"`

	CenterLat geo.Coordinate `json:"centerLat" db:"center_lat"`
	CenterLon geo.Coordinate `json:"centerLon" db:"center_lon"`

	// Radius in meters
	Radius float64 `json:"radius" db:"radius"`

	AlertOnEnter bool `json:"alertOnEnter" db:"alert_on_enter"`
	AlertOnExit  bool `json:"alertOnExit" db:"alert_on_exit"`
	Active       bool `json:"active" db:"active"`
}

// Contains reports whether the point lies within the geofence boundary. A
// point exactly on the boundary counts as inside.
func (g *Geofence) Contains(lat, lon float64) bool {
	return geo.Distance(g.CenterLat.Float64(), g.CenterLon.Float64(), lat, lon) <= g.Radius
}

// AlertType represents a containment transition direction
type AlertType string

const (
	AlertTypeEnter AlertType = "enter"
	AlertTypeExit  AlertType = "exit"
)

// GeofenceAlert is an immutable record of a containment transition
type GeofenceAlert struct {
	ID         uuid.UUID `json:"id" db:"id"`
	DeviceID   uuid.UUID `json:"deviceId" db:"device_id"`
	GeofenceID uuid.UUID `json:"geofenceId" db:"geofence_id"`

	Type AlertType `json:"type" db:"type"`

	Latitude  geo.Coordinate `json:"latitude" db:"latitude"`
	Longitude geo.Coordinate `json:"longitude" db:"longitude"`

	Read      bool      `json:"read" db:"read"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// GeofenceState records the last-known containment of a device for one
// geofence. Diffing against it on each location report is what makes exit
// detection and enter de-duplication possible.
type GeofenceState struct {
	DeviceID   uuid.UUID `json:"deviceId" db:"device_id"`
	GeofenceID uuid.UUID `json:"geofenceId" db:"geofence_id"`

	Inside    bool      `json:"inside" db:"inside"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
