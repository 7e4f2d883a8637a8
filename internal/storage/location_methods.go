package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/geotrack/geotrack-server/internal/models"
)

// ========== Location Methods ==========

// AddLocation appends a location report for a device
func (s *PostgresStore) AddLocation(ctx context.Context, loc *models.DeviceLocation) error {
	if loc.ID == uuid.Nil {
		loc.ID = uuid.New()
	}

	if loc.CreatedAt.IsZero() {
		loc.CreatedAt = time.Now()
	}
	if loc.ReportedAt.IsZero() {
		loc.ReportedAt = loc.CreatedAt
	}

	query := `
        INSERT INTO device_locations (
            id, device_id, latitude, longitude, altitude, speed, heading,
            satellites, battery_level, signal_quality, reported_at, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.getDB().ExecContext(ctx, query,
		loc.ID, loc.DeviceID, loc.Latitude, loc.Longitude, loc.Altitude,
		loc.Speed, loc.Heading, loc.Satellites, loc.BatteryLevel,
		loc.SignalQuality, loc.ReportedAt, loc.CreatedAt,
	)

	return err
}

const locationColumns = `id, device_id, latitude, longitude, altitude, speed, heading,
	satellites, battery_level, signal_quality, reported_at, created_at`

func scanLocation(row interface{ Scan(...interface{}) error }) (*models.DeviceLocation, error) {
	loc := &models.DeviceLocation{}
	err := row.Scan(
		&loc.ID, &loc.DeviceID, &loc.Latitude, &loc.Longitude, &loc.Altitude,
		&loc.Speed, &loc.Heading, &loc.Satellites, &loc.BatteryLevel,
		&loc.SignalQuality, &loc.ReportedAt, &loc.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return loc, nil
}

// GetLatestLocation gets the most recent location report for a device
func (s *PostgresStore) GetLatestLocation(ctx context.Context, deviceID uuid.UUID) (*models.DeviceLocation, error) {
	query := `SELECT ` + locationColumns + `
        FROM device_locations
        WHERE device_id = $1
        ORDER BY reported_at DESC
        LIMIT 1`

	return scanLocation(s.getDB().QueryRowContext(ctx, query, deviceID))
}

// ListLocations lists location history for a device, newest first
func (s *PostgresStore) ListLocations(ctx context.Context, deviceID uuid.UUID, limit, offset int) ([]*models.DeviceLocation, int64, error) {
	var count int64
	err := s.getDB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM device_locations WHERE device_id = $1", deviceID,
	).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + locationColumns + `
        FROM device_locations
        WHERE device_id = $1
        ORDER BY reported_at DESC
        LIMIT $2 OFFSET $3`

	rows, err := s.getDB().QueryContext(ctx, query, deviceID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var locations []*models.DeviceLocation
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, 0, err
		}
		locations = append(locations, loc)
	}

	return locations, count, nil
}
