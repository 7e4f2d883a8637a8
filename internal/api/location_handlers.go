package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/geotrack/geotrack-server/internal/models"
	"github.com/geotrack/geotrack-server/internal/storage"
	"github.com/geotrack/geotrack-server/pkg/geo"
)

// HandleReportLocation ingests a location report from a device. Geofence
// evaluation runs after the write; its failures are logged, never surfaced,
// so a broken fence can not reject a valid location.
func (s *RESTServer) HandleReportLocation(w http.ResponseWriter, r *http.Request) {
	device := s.deviceFromParam(w, r)
	if device == nil {
		return
	}

	var req struct {
		Latitude  geo.Coordinate `json:"latitude" validate:"required,latitude"`
		Longitude geo.Coordinate `json:"longitude" validate:"required,longitude"`

		Altitude   *float64 `json:"altitude"`
		Speed      *float64 `json:"speed"`
		Heading    *float64 `json:"heading"`
		Satellites *int     `json:"satellites"`

		BatteryLevel  *float64 `json:"battery_level"`
		SignalQuality *int     `json:"signal_quality"`

		ReportedAt *time.Time `json:"reported_at"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	loc := &models.DeviceLocation{
		DeviceID:      device.ID,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		Altitude:      req.Altitude,
		Speed:         req.Speed,
		Heading:       req.Heading,
		Satellites:    req.Satellites,
		BatteryLevel:  req.BatteryLevel,
		SignalQuality: req.SignalQuality,
	}
	if req.ReportedAt != nil {
		loc.ReportedAt = *req.ReportedAt
	}

	if err := s.store.AddLocation(r.Context(), loc); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.tracker.Touch(r.Context(), device, req.BatteryLevel); err != nil {
		log.Warn().Err(err).Str("device", device.ExternalID).Msg("Failed to record device activity")
	}

	alerts, err := s.evaluator.Evaluate(r.Context(), device.ID, loc)
	if err != nil {
		log.Error().Err(err).Str("device", device.ExternalID).Msg("Geofence evaluation failed")
	}

	s.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"location": loc,
		"alerts":   len(alerts),
	})
}

// HandleListLocations lists location history for a device
func (s *RESTServer) HandleListLocations(w http.ResponseWriter, r *http.Request) {
	device := s.deviceFromParam(w, r)
	if device == nil {
		return
	}

	limit, offset := paginationParams(r)

	locations, total, err := s.store.ListLocations(r.Context(), device.ID, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"locations": locations,
		"total":     total,
	})
}

// HandleGetLatestLocation gets the most recent location of a device
func (s *RESTServer) HandleGetLatestLocation(w http.ResponseWriter, r *http.Request) {
	device := s.deviceFromParam(w, r)
	if device == nil {
		return
	}

	loc, err := s.store.GetLatestLocation(r.Context(), device.ID)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "no locations reported")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, loc)
}
