package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/geotrack/geotrack-server/internal/commands"
	"github.com/geotrack/geotrack-server/internal/models"
	"github.com/geotrack/geotrack-server/internal/storage"
)

// HandleHeartbeat processes a device heartbeat: records activity and hands
// back the merged pending work queue, marking everything returned as sent.
func (s *RESTServer) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	device := s.deviceFromParam(w, r)
	if device == nil {
		return
	}

	var req struct {
		BatteryLevel *float64 `json:"battery_level"`
	}
	// Heartbeats may carry an empty body.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.tracker.Touch(r.Context(), device, req.BatteryLevel); err != nil {
		log.Warn().Err(err).Str("device", device.ExternalID).Msg("Failed to record device activity")
	}

	pending, err := s.manager.ListPending(r.Context(), device.ID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.manager.MarkDelivered(r.Context(), pending); err != nil {
		log.Error().Err(err).Str("device", device.ExternalID).Msg("Failed to mark commands delivered")
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"commands": pending,
		"time":     time.Now().UTC(),
	})
}

// HandleDeviceAck processes a device-reported command outcome
func (s *RESTServer) HandleDeviceAck(w http.ResponseWriter, r *http.Request) {
	device := s.deviceFromParam(w, r)
	if device == nil {
		return
	}

	var req struct {
		CommandID string `json:"command_id" validate:"required"`
		Status    string `json:"status" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := uuid.Parse(req.CommandID)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid command id")
		return
	}

	s.acknowledge(w, r, id, models.CommandStatus(req.Status))
}

// HandleListPendingCommands returns the merged pending queue without
// marking anything delivered. Used by the management UI.
func (s *RESTServer) HandleListPendingCommands(w http.ResponseWriter, r *http.Request) {
	device := s.deviceFromParam(w, r)
	if device == nil {
		return
	}

	pending, err := s.manager.ListPending(r.Context(), device.ID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"commands": pending,
		"total":    len(pending),
	})
}

// HandleCreateCommand queues a command for a device
func (s *RESTServer) HandleCreateCommand(w http.ResponseWriter, r *http.Request) {
	device := s.deviceFromParam(w, r)
	if device == nil {
		return
	}

	var req struct {
		CommandType string           `json:"command_type" validate:"required"`
		CommandData models.Variables `json:"command_data"`
		TTL         *int             `json:"ttl_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var expiresAt *time.Time
	switch {
	case req.TTL != nil && *req.TTL > 0:
		t := time.Now().Add(time.Duration(*req.TTL) * time.Second)
		expiresAt = &t
	case s.config.Tracking.CommandTTL > 0:
		t := time.Now().Add(s.config.Tracking.CommandTTL)
		expiresAt = &t
	}

	cmd, err := s.manager.Create(r.Context(), device.ID, models.CommandType(req.CommandType), req.CommandData, expiresAt)
	if err != nil {
		var conflict *commands.ConflictError
		switch {
		case errors.As(err, &conflict):
			s.respondJSON(w, http.StatusConflict, map[string]interface{}{
				"error":       "command of this type already queued",
				"existing_id": conflict.ExistingID,
			})
		case errors.Is(err, storage.ErrInvalidData):
			s.respondError(w, http.StatusBadRequest, err.Error())
		default:
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	s.respondJSON(w, http.StatusCreated, cmd)
}

// HandleAcknowledgeCommand records an outcome for a command by id
func (s *RESTServer) HandleAcknowledgeCommand(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid command id")
		return
	}

	var req struct {
		Status string `json:"status" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.acknowledge(w, r, id, models.CommandStatus(req.Status))
}

func (s *RESTServer) acknowledge(w http.ResponseWriter, r *http.Request, id uuid.UUID, status models.CommandStatus) {
	if err := s.manager.Acknowledge(r.Context(), id, status); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			s.respondError(w, http.StatusNotFound, "command not found")
		case errors.Is(err, storage.ErrInvalidData):
			s.respondError(w, http.StatusBadRequest, err.Error())
		default:
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

// HandleCancelCommand cancels a queued command
func (s *RESTServer) HandleCancelCommand(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid command id")
		return
	}

	cmd, err := s.manager.Cancel(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "command not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, cmd)
}

// HandleGetPendingConfig returns the device's current pending configuration
func (s *RESTServer) HandleGetPendingConfig(w http.ResponseWriter, r *http.Request) {
	device := s.deviceFromParam(w, r)
	if device == nil {
		return
	}

	configs, err := s.store.ListPendingConfigurations(r.Context(), device.ID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(configs) == 0 {
		s.respondError(w, http.StatusNotFound, "no pending configuration")
		return
	}

	// Supersede semantics keep at most one pending configuration.
	s.respondJSON(w, http.StatusOK, configs[len(configs)-1])
}
