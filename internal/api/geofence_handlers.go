package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/geotrack/geotrack-server/internal/models"
	"github.com/geotrack/geotrack-server/internal/storage"
	"github.com/geotrack/geotrack-server/pkg/geo"
)

// HandleListGeofences lists geofences for a device
func (s *RESTServer) HandleListGeofences(w http.ResponseWriter, r *http.Request) {
	device := s.deviceFromParam(w, r)
	if device == nil {
		return
	}

	fences, err := s.store.ListGeofences(r.Context(), device.ID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"geofences": fences,
		"total":     len(fences),
	})
}

// HandleCreateGeofence creates a geofence for a device
func (s *RESTServer) HandleCreateGeofence(w http.ResponseWriter, r *http.Request) {
	device := s.deviceFromParam(w, r)
	if device == nil {
		return
	}

	var req struct {
		Name      string         `json:"name" validate:"required,max=100"`
		CenterLat geo.Coordinate `json:"center_lat" validate:"required,latitude"`
		CenterLon geo.Coordinate `json:"center_lon" validate:"required,longitude"`
		Radius    float64        `json:"radius" validate:"required,positive"`

		AlertOnEnter *bool `json:"alert_on_enter"`
		AlertOnExit  *bool `json:"alert_on_exit"`
		Active       *bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	fence := &models.Geofence{
		DeviceID:     device.ID,
		Name:         req.Name,
		CenterLat:    req.CenterLat,
		CenterLon:    req.CenterLon,
		Radius:       req.Radius,
		AlertOnEnter: true,
		AlertOnExit:  true,
		Active:       true,
	}
	if req.AlertOnEnter != nil {
		fence.AlertOnEnter = *req.AlertOnEnter
	}
	if req.AlertOnExit != nil {
		fence.AlertOnExit = *req.AlertOnExit
	}
	if req.Active != nil {
		fence.Active = *req.Active
	}

	if err := s.evaluator.CreateGeofence(r.Context(), fence); err != nil {
		if errors.Is(err, storage.ErrInvalidData) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusCreated, fence)
}

// HandleGetGeofence gets a geofence by id
func (s *RESTServer) HandleGetGeofence(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid geofence id")
		return
	}

	fence, err := s.store.GetGeofence(r.Context(), id)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "geofence not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, fence)
}

// HandleUpdateGeofence updates a geofence
func (s *RESTServer) HandleUpdateGeofence(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid geofence id")
		return
	}

	fence, err := s.store.GetGeofence(r.Context(), id)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "geofence not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var req struct {
		Name         *string         `json:"name"`
		CenterLat    *geo.Coordinate `json:"center_lat"`
		CenterLon    *geo.Coordinate `json:"center_lon"`
		Radius       *float64        `json:"radius"`
		AlertOnEnter *bool           `json:"alert_on_enter"`
		AlertOnExit  *bool           `json:"alert_on_exit"`
		Active       *bool           `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name != nil {
		fence.Name = *req.Name
	}
	if req.CenterLat != nil {
		fence.CenterLat = *req.CenterLat
	}
	if req.CenterLon != nil {
		fence.CenterLon = *req.CenterLon
	}
	if req.Radius != nil {
		fence.Radius = *req.Radius
	}
	if req.AlertOnEnter != nil {
		fence.AlertOnEnter = *req.AlertOnEnter
	}
	if req.AlertOnExit != nil {
		fence.AlertOnExit = *req.AlertOnExit
	}
	if req.Active != nil {
		fence.Active = *req.Active
	}

	if err := s.evaluator.UpdateGeofence(r.Context(), fence); err != nil {
		if errors.Is(err, storage.ErrInvalidData) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, fence)
}

// HandleDeleteGeofence deletes a geofence
func (s *RESTServer) HandleDeleteGeofence(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid geofence id")
		return
	}

	if err := s.evaluator.DeleteGeofence(r.Context(), id); err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "geofence not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ========== Alert handlers ==========

// HandleListAlerts lists geofence alerts for a device
func (s *RESTServer) HandleListAlerts(w http.ResponseWriter, r *http.Request) {
	device := s.deviceFromParam(w, r)
	if device == nil {
		return
	}

	limit, offset := paginationParams(r)

	alerts, total, err := s.store.ListGeofenceAlerts(r.Context(), device.ID, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"total":  total,
	})
}

// HandleCountUnreadAlerts returns the unread alert count for a device
func (s *RESTServer) HandleCountUnreadAlerts(w http.ResponseWriter, r *http.Request) {
	device := s.deviceFromParam(w, r)
	if device == nil {
		return
	}

	count, err := s.store.CountUnreadAlerts(r.Context(), device.ID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]int64{"unread": count})
}

// HandleMarkAlertRead marks an alert as read
func (s *RESTServer) HandleMarkAlertRead(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid alert id")
		return
	}

	if err := s.store.MarkAlertRead(r.Context(), id); err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "alert not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
