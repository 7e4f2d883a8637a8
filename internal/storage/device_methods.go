package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/geotrack/geotrack-server/internal/models"
)

// ========== Device Methods ==========

// CreateDevice creates a new device
func (s *PostgresStore) CreateDevice(ctx context.Context, device *models.Device) error {
	if device.ID == uuid.Nil {
		device.ID = uuid.New()
	}

	now := time.Now()
	device.CreatedAt = now
	device.UpdatedAt = now

	if device.Status == "" {
		device.Status = models.DeviceStatusOffline
	}
	if device.Config == nil {
		device.Config = make(models.Variables)
	}

	query := `
        INSERT INTO devices (
            id, created_at, updated_at, external_id, name, device_type,
            status, config, last_seen_at, owner_id
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.getDB().ExecContext(ctx, query,
		device.ID, device.CreatedAt, device.UpdatedAt, device.ExternalID,
		device.Name, device.DeviceType, device.Status, device.Config,
		device.LastSeenAt, device.OwnerID,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

const deviceColumns = `id, created_at, updated_at, external_id, name, device_type,
	status, config, last_seen_at, owner_id`

func scanDevice(row interface{ Scan(...interface{}) error }) (*models.Device, error) {
	device := &models.Device{}
	err := row.Scan(
		&device.ID, &device.CreatedAt, &device.UpdatedAt, &device.ExternalID,
		&device.Name, &device.DeviceType, &device.Status, &device.Config,
		&device.LastSeenAt, &device.OwnerID,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return device, nil
}

// GetDevice gets a device by ID
func (s *PostgresStore) GetDevice(ctx context.Context, id uuid.UUID) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1`
	return scanDevice(s.getDB().QueryRowContext(ctx, query, id))
}

// GetDeviceByExternalID gets a device by its stable hardware identifier
func (s *PostgresStore) GetDeviceByExternalID(ctx context.Context, externalID string) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE external_id = $1`
	return scanDevice(s.getDB().QueryRowContext(ctx, query, externalID))
}

// UpdateDevice updates a device
func (s *PostgresStore) UpdateDevice(ctx context.Context, device *models.Device) error {
	device.UpdatedAt = time.Now()

	query := `
        UPDATE devices SET
            updated_at = $2, name = $3, device_type = $4, status = $5,
            config = $6, last_seen_at = $7, owner_id = $8
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		device.ID, device.UpdatedAt, device.Name, device.DeviceType,
		device.Status, device.Config, device.LastSeenAt, device.OwnerID,
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

// DeleteDevice deletes a device
func (s *PostgresStore) DeleteDevice(ctx context.Context, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx, "DELETE FROM devices WHERE id = $1", id)
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

// ListDevices lists devices
func (s *PostgresStore) ListDevices(ctx context.Context, limit, offset int) ([]*models.Device, int64, error) {
	var count int64
	err := s.getDB().QueryRowContext(ctx, "SELECT COUNT(*) FROM devices").Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + deviceColumns + `
        FROM devices
        ORDER BY created_at DESC
        LIMIT $1 OFFSET $2`

	rows, err := s.getDB().QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, 0, err
		}
		devices = append(devices, device)
	}

	return devices, count, nil
}

// ListDevicesLastSeenBefore lists devices whose last report predates the
// cutoff. Used by the offline sweep; never-seen devices are skipped.
func (s *PostgresStore) ListDevicesLastSeenBefore(ctx context.Context, cutoff time.Time) ([]*models.Device, error) {
	query := `SELECT ` + deviceColumns + `
        FROM devices
        WHERE last_seen_at IS NOT NULL AND last_seen_at < $1`

	rows, err := s.getDB().QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}

	return devices, nil
}
