package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/geotrack/geotrack-server/internal/models"
	"github.com/geotrack/geotrack-server/internal/storage"
)

// deviceFromParam resolves the external_id URL parameter to a device. On
// failure it writes the error response and returns nil.
func (s *RESTServer) deviceFromParam(w http.ResponseWriter, r *http.Request) *models.Device {
	externalID := chi.URLParam(r, "external_id")
	if externalID == "" {
		s.respondError(w, http.StatusBadRequest, "missing device id")
		return nil
	}

	device, err := s.store.GetDeviceByExternalID(r.Context(), externalID)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "device not found")
			return nil
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return nil
	}

	return device
}

// HandleListDevices lists devices
func (s *RESTServer) HandleListDevices(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)

	devices, total, err := s.store.ListDevices(r.Context(), limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"devices": devices,
		"total":   total,
	})
}

// HandleCreateDevice creates a device
func (s *RESTServer) HandleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExternalID string           `json:"external_id" validate:"required,min=3,max=64"`
		Name       string           `json:"name" validate:"required,max=100"`
		DeviceType string           `json:"device_type"`
		Config     models.Variables `json:"config"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.DeviceType == "" {
		req.DeviceType = "gps_tracker"
	}

	device := &models.Device{
		ExternalID: req.ExternalID,
		Name:       req.Name,
		DeviceType: req.DeviceType,
		Status:     models.DeviceStatusOffline,
		Config:     req.Config,
	}

	if claims, ok := claimsFromContext(r.Context()); ok {
		device.OwnerID = &claims.UserID
	}

	if err := s.store.CreateDevice(r.Context(), device); err != nil {
		if err == storage.ErrDuplicateKey {
			s.respondError(w, http.StatusConflict, "device already exists")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusCreated, device)
}

// HandleGetDevice gets a device
func (s *RESTServer) HandleGetDevice(w http.ResponseWriter, r *http.Request) {
	device := s.deviceFromParam(w, r)
	if device == nil {
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"device": device,
		"online": s.tracker.IsOnline(r.Context(), device),
	})
}

// HandleUpdateDevice updates a device
func (s *RESTServer) HandleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	device := s.deviceFromParam(w, r)
	if device == nil {
		return
	}

	var req struct {
		Name   *string           `json:"name"`
		Status *string           `json:"status"`
		Config *models.Variables `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name != nil {
		device.Name = *req.Name
	}
	if req.Status != nil {
		status := models.DeviceStatus(*req.Status)
		if !status.Valid() {
			s.respondError(w, http.StatusBadRequest, "invalid device status")
			return
		}
		device.Status = status
	}
	if req.Config != nil {
		device.Config = *req.Config
	}

	if err := s.store.UpdateDevice(r.Context(), device); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, device)
}

// HandleDeleteDevice deletes a device
func (s *RESTServer) HandleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	device := s.deviceFromParam(w, r)
	if device == nil {
		return
	}

	if err := s.store.DeleteDevice(r.Context(), device.ID); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
