package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/geotrack/geotrack-server/internal/models"
)

// ========== Geofence Methods ==========

// CreateGeofence creates a new geofence
func (s *PostgresStore) CreateGeofence(ctx context.Context, fence *models.Geofence) error {
	if fence.ID == uuid.Nil {
		fence.ID = uuid.New()
	}

	now := time.Now()
	fence.CreatedAt = now
	fence.UpdatedAt = now

	query := `
        INSERT INTO geofences (
            id, created_at, updated_at, device_id, name, center_lat,
            center_lon, radius, alert_on_enter, alert_on_exit, active
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.getDB().ExecContext(ctx, query,
		fence.ID, fence.CreatedAt, fence.UpdatedAt, fence.DeviceID, fence.Name,
		fence.CenterLat, fence.CenterLon, fence.Radius, fence.AlertOnEnter,
		fence.AlertOnExit, fence.Active,
	)

	return err
}

const geofenceColumns = `id, created_at, updated_at, device_id, name, center_lat,
	center_lon, radius, alert_on_enter, alert_on_exit, active`

func scanGeofence(row interface{ Scan(...interface{}) error }) (*models.Geofence, error) {
	fence := &models.Geofence{}
	err := row.Scan(
		&fence.ID, &fence.CreatedAt, &fence.UpdatedAt, &fence.DeviceID,
		&fence.Name, &fence.CenterLat, &fence.CenterLon, &fence.Radius,
		&fence.AlertOnEnter, &fence.AlertOnExit, &fence.Active,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fence, nil
}

// GetGeofence gets a geofence by ID
func (s *PostgresStore) GetGeofence(ctx context.Context, id uuid.UUID) (*models.Geofence, error) {
	query := `SELECT ` + geofenceColumns + ` FROM geofences WHERE id = $1`
	return scanGeofence(s.getDB().QueryRowContext(ctx, query, id))
}

// UpdateGeofence updates a geofence
func (s *PostgresStore) UpdateGeofence(ctx context.Context, fence *models.Geofence) error {
	fence.UpdatedAt = time.Now()

	query := `
        UPDATE geofences SET
            updated_at = $2, name = $3, center_lat = $4, center_lon = $5,
            radius = $6, alert_on_enter = $7, alert_on_exit = $8, active = $9
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		fence.ID, fence.UpdatedAt, fence.Name, fence.CenterLat, fence.CenterLon,
		fence.Radius, fence.AlertOnEnter, fence.AlertOnExit, fence.Active,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteGeofence deletes a geofence and its containment state
func (s *PostgresStore) DeleteGeofence(ctx context.Context, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx, "DELETE FROM geofences WHERE id = $1", id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrNotFound
	}

	_, err = s.getDB().ExecContext(ctx,
		"DELETE FROM geofence_states WHERE geofence_id = $1", id)
	return err
}

func (s *PostgresStore) listGeofences(ctx context.Context, query string, args ...interface{}) ([]*models.Geofence, error) {
	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fences []*models.Geofence
	for rows.Next() {
		fence, err := scanGeofence(rows)
		if err != nil {
			return nil, err
		}
		fences = append(fences, fence)
	}

	return fences, nil
}

// ListGeofences lists all geofences for a device
func (s *PostgresStore) ListGeofences(ctx context.Context, deviceID uuid.UUID) ([]*models.Geofence, error) {
	query := `SELECT ` + geofenceColumns + `
        FROM geofences
        WHERE device_id = $1
        ORDER BY created_at ASC`
	return s.listGeofences(ctx, query, deviceID)
}

// ListActiveGeofences lists active geofences for a device
func (s *PostgresStore) ListActiveGeofences(ctx context.Context, deviceID uuid.UUID) ([]*models.Geofence, error) {
	query := `SELECT ` + geofenceColumns + `
        FROM geofences
        WHERE device_id = $1 AND active = true
        ORDER BY created_at ASC`
	return s.listGeofences(ctx, query, deviceID)
}

// CountActiveGeofences counts active geofences for a device
func (s *PostgresStore) CountActiveGeofences(ctx context.Context, deviceID uuid.UUID) (int64, error) {
	var count int64
	err := s.getDB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM geofences WHERE device_id = $1 AND active = true",
		deviceID,
	).Scan(&count)
	return count, err
}

// ========== Geofence State Methods ==========

// GetGeofenceState gets the last-known containment state for a device and geofence
func (s *PostgresStore) GetGeofenceState(ctx context.Context, deviceID, geofenceID uuid.UUID) (*models.GeofenceState, error) {
	query := `
        SELECT device_id, geofence_id, inside, updated_at
        FROM geofence_states
        WHERE device_id = $1 AND geofence_id = $2`

	state := &models.GeofenceState{}
	err := s.getDB().QueryRowContext(ctx, query, deviceID, geofenceID).Scan(
		&state.DeviceID, &state.GeofenceID, &state.Inside, &state.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return state, nil
}

// SaveGeofenceState upserts a containment state record
func (s *PostgresStore) SaveGeofenceState(ctx context.Context, state *models.GeofenceState) error {
	state.UpdatedAt = time.Now()

	query := `
        INSERT INTO geofence_states (device_id, geofence_id, inside, updated_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (device_id, geofence_id) DO UPDATE SET
            inside = EXCLUDED.inside,
            updated_at = EXCLUDED.updated_at`

	_, err := s.getDB().ExecContext(ctx, query,
		state.DeviceID, state.GeofenceID, state.Inside, state.UpdatedAt,
	)

	return err
}

// ========== Geofence Alert Methods ==========

// CreateGeofenceAlert creates a containment transition alert
func (s *PostgresStore) CreateGeofenceAlert(ctx context.Context, alert *models.GeofenceAlert) error {
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}

	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}

	query := `
        INSERT INTO geofence_alerts (
            id, device_id, geofence_id, type, latitude, longitude, read, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.getDB().ExecContext(ctx, query,
		alert.ID, alert.DeviceID, alert.GeofenceID, alert.Type,
		alert.Latitude, alert.Longitude, alert.Read, alert.CreatedAt,
	)

	return err
}

// ListGeofenceAlerts lists alerts for a device, newest first
func (s *PostgresStore) ListGeofenceAlerts(ctx context.Context, deviceID uuid.UUID, limit, offset int) ([]*models.GeofenceAlert, int64, error) {
	var count int64
	err := s.getDB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM geofence_alerts WHERE device_id = $1", deviceID,
	).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	query := `
        SELECT id, device_id, geofence_id, type, latitude, longitude, read, created_at
        FROM geofence_alerts
        WHERE device_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`

	rows, err := s.getDB().QueryContext(ctx, query, deviceID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var alerts []*models.GeofenceAlert
	for rows.Next() {
		alert := &models.GeofenceAlert{}
		err := rows.Scan(
			&alert.ID, &alert.DeviceID, &alert.GeofenceID, &alert.Type,
			&alert.Latitude, &alert.Longitude, &alert.Read, &alert.CreatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		alerts = append(alerts, alert)
	}

	return alerts, count, nil
}

// CountUnreadAlerts counts unread alerts for a device
func (s *PostgresStore) CountUnreadAlerts(ctx context.Context, deviceID uuid.UUID) (int64, error) {
	var count int64
	err := s.getDB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM geofence_alerts WHERE device_id = $1 AND read = false",
		deviceID,
	).Scan(&count)
	return count, err
}

// MarkAlertRead marks an alert as read
func (s *PostgresStore) MarkAlertRead(ctx context.Context, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx,
		"UPDATE geofence_alerts SET read = true WHERE id = $1", id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}
