package geofence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/geotrack/geotrack-server/internal/commands"
	"github.com/geotrack/geotrack-server/internal/models"
	"github.com/geotrack/geotrack-server/internal/storage"
)

// AlertPublisher pushes a new alert to interested consumers (NATS,
// webhooks). Publishing is best-effort.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, alert *models.GeofenceAlert) error
}

// Evaluator checks device positions against active geofences and records
// containment transitions. It also owns the geofence CRUD so that device
// monitoring commands stay in step with the set of active fences.
type Evaluator struct {
	store     storage.Store
	manager   *commands.Manager
	publisher AlertPublisher
}

// NewEvaluator creates a geofence evaluator. publisher may be nil.
func NewEvaluator(store storage.Store, manager *commands.Manager, publisher AlertPublisher) *Evaluator {
	return &Evaluator{store: store, manager: manager, publisher: publisher}
}

// Evaluate diffs the reported position against every active geofence of the
// device. A transition from outside to inside raises an enter alert (when
// enabled), inside to outside an exit alert. Repeated readings on the same
// side raise nothing. The first reading ever seen for a fence counts as a
// transition from outside.
func (e *Evaluator) Evaluate(ctx context.Context, deviceID uuid.UUID, loc *models.DeviceLocation) ([]*models.GeofenceAlert, error) {
	fences, err := e.store.ListActiveGeofences(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list active geofences: %w", err)
	}

	lat := loc.Latitude.Float64()
	lon := loc.Longitude.Float64()

	var alerts []*models.GeofenceAlert
	for _, fence := range fences {
		inside := fence.Contains(lat, lon)

		wasInside := false
		prev, err := e.store.GetGeofenceState(ctx, deviceID, fence.ID)
		if err == nil {
			wasInside = prev.Inside
		} else if err != storage.ErrNotFound {
			return alerts, fmt.Errorf("get geofence state: %w", err)
		}

		if inside == wasInside && prev != nil {
			continue
		}
		if prev == nil && !inside {
			// First reading, already outside: record the state, no alert.
			if err := e.saveState(ctx, deviceID, fence.ID, inside); err != nil {
				return alerts, err
			}
			continue
		}

		if err := e.saveState(ctx, deviceID, fence.ID, inside); err != nil {
			return alerts, err
		}

		if inside && !fence.AlertOnEnter {
			continue
		}
		if !inside && !fence.AlertOnExit {
			continue
		}

		alert := &models.GeofenceAlert{
			DeviceID:   deviceID,
			GeofenceID: fence.ID,
			Type:       models.AlertTypeEnter,
			Latitude:   loc.Latitude,
			Longitude:  loc.Longitude,
		}
		if !inside {
			alert.Type = models.AlertTypeExit
		}
		if err := e.store.CreateGeofenceAlert(ctx, alert); err != nil {
			return alerts, fmt.Errorf("create geofence alert: %w", err)
		}
		alerts = append(alerts, alert)

		log.Info().
			Str("device_id", deviceID.String()).
			Str("geofence", fence.Name).
			Str("type", string(alert.Type)).
			Msg("Geofence transition")

		e.audit(ctx, deviceID, fmt.Sprintf("Device %s geofence %q", alert.Type, fence.Name),
			models.Variables{
				"geofenceId": fence.ID.String(),
				"alertType":  string(alert.Type),
			})

		if e.publisher != nil {
			if err := e.publisher.PublishAlert(ctx, alert); err != nil {
				log.Warn().Err(err).Msg("Failed to publish geofence alert")
			}
		}
	}

	return alerts, nil
}

func (e *Evaluator) saveState(ctx context.Context, deviceID, fenceID uuid.UUID, inside bool) error {
	state := &models.GeofenceState{
		DeviceID:   deviceID,
		GeofenceID: fenceID,
		Inside:     inside,
	}
	if err := e.store.SaveGeofenceState(ctx, state); err != nil {
		return fmt.Errorf("save geofence state: %w", err)
	}
	return nil
}

// CreateGeofence persists a new fence. Creating the first active fence for
// a device queues an enable_geofence_monitoring command; a Conflict from
// the command queue means monitoring is already being enabled and is fine.
func (e *Evaluator) CreateGeofence(ctx context.Context, fence *models.Geofence) error {
	if fence.Radius <= 0 {
		return fmt.Errorf("%w: geofence radius must be positive", storage.ErrInvalidData)
	}

	active, err := e.store.CountActiveGeofences(ctx, fence.DeviceID)
	if err != nil {
		return fmt.Errorf("count active geofences: %w", err)
	}

	if err := e.store.CreateGeofence(ctx, fence); err != nil {
		return fmt.Errorf("create geofence: %w", err)
	}

	if active == 0 && fence.Active {
		e.queueMonitoring(ctx, fence.DeviceID, models.CommandEnableGeofencing)
	}

	return nil
}

// UpdateGeofence saves changes to an existing fence and re-checks whether
// monitoring should be toggled for the device.
func (e *Evaluator) UpdateGeofence(ctx context.Context, fence *models.Geofence) error {
	if fence.Radius <= 0 {
		return fmt.Errorf("%w: geofence radius must be positive", storage.ErrInvalidData)
	}

	if err := e.store.UpdateGeofence(ctx, fence); err != nil {
		return err
	}

	active, err := e.store.CountActiveGeofences(ctx, fence.DeviceID)
	if err != nil {
		return fmt.Errorf("count active geofences: %w", err)
	}
	if active == 0 {
		e.queueMonitoring(ctx, fence.DeviceID, models.CommandDisableGeofencing)
	} else if active == 1 && fence.Active {
		e.queueMonitoring(ctx, fence.DeviceID, models.CommandEnableGeofencing)
	}

	return nil
}

// DeleteGeofence removes a fence and its containment state. Removing the
// last active fence queues a disable_geofence_monitoring command.
func (e *Evaluator) DeleteGeofence(ctx context.Context, id uuid.UUID) error {
	fence, err := e.store.GetGeofence(ctx, id)
	if err != nil {
		return err
	}

	if err := e.store.DeleteGeofence(ctx, id); err != nil {
		return err
	}

	active, err := e.store.CountActiveGeofences(ctx, fence.DeviceID)
	if err != nil {
		return fmt.Errorf("count active geofences: %w", err)
	}
	if active == 0 {
		e.queueMonitoring(ctx, fence.DeviceID, models.CommandDisableGeofencing)
	}

	return nil
}

// queueMonitoring queues a monitoring toggle for the device. A conflict
// means an identical toggle is already queued, which is the desired end
// state, so it is swallowed.
func (e *Evaluator) queueMonitoring(ctx context.Context, deviceID uuid.UUID, cmdType models.CommandType) {
	_, err := e.manager.Create(ctx, deviceID, cmdType, nil, nil)
	if err != nil {
		var conflict *commands.ConflictError
		if errors.As(err, &conflict) {
			return
		}
		log.Warn().Err(err).
			Str("device_id", deviceID.String()).
			Str("command", string(cmdType)).
			Msg("Failed to queue monitoring command")
	}
}

func (e *Evaluator) audit(ctx context.Context, deviceID uuid.UUID, message string, details models.Variables) {
	entry := &models.SystemLog{
		Level:    models.LogLevelInfo,
		Category: models.LogCategoryGeofence,
		Message:  message,
		DeviceID: &deviceID,
		Details:  details,
	}
	if err := e.store.CreateSystemLog(ctx, entry); err != nil {
		log.Warn().Err(err).Msg("Failed to write audit entry")
	}
}
