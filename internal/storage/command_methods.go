package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/geotrack/geotrack-server/internal/models"
)

// ========== Command Methods ==========

// CreateCommand creates a new device command
func (s *PostgresStore) CreateCommand(ctx context.Context, cmd *models.DeviceCommand) error {
	if cmd.ID == uuid.Nil {
		cmd.ID = uuid.New()
	}

	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = time.Now()
	}
	if cmd.Status == "" {
		cmd.Status = models.CommandStatusPending
	}

	query := `
        INSERT INTO device_commands (
            id, device_id, command_type, command_data, status,
            created_at, sent_at, acked_at, completed_at, expires_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.getDB().ExecContext(ctx, query,
		cmd.ID, cmd.DeviceID, cmd.CommandType, cmd.CommandData, cmd.Status,
		cmd.CreatedAt, cmd.SentAt, cmd.AckedAt, cmd.CompletedAt, cmd.ExpiresAt,
	)

	return err
}

const commandColumns = `id, device_id, command_type, command_data, status,
	created_at, sent_at, acked_at, completed_at, expires_at`

func scanCommand(row interface{ Scan(...interface{}) error }) (*models.DeviceCommand, error) {
	cmd := &models.DeviceCommand{}
	err := row.Scan(
		&cmd.ID, &cmd.DeviceID, &cmd.CommandType, &cmd.CommandData, &cmd.Status,
		&cmd.CreatedAt, &cmd.SentAt, &cmd.AckedAt, &cmd.CompletedAt, &cmd.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return cmd, nil
}

// GetCommand gets a command by ID
func (s *PostgresStore) GetCommand(ctx context.Context, id uuid.UUID) (*models.DeviceCommand, error) {
	query := `SELECT ` + commandColumns + ` FROM device_commands WHERE id = $1`
	return scanCommand(s.getDB().QueryRowContext(ctx, query, id))
}

// ListPendingCommands lists pending commands for a device, oldest first
func (s *PostgresStore) ListPendingCommands(ctx context.Context, deviceID uuid.UUID) ([]*models.DeviceCommand, error) {
	query := `SELECT ` + commandColumns + `
        FROM device_commands
        WHERE device_id = $1 AND status = $2
        ORDER BY created_at ASC`

	rows, err := s.getDB().QueryContext(ctx, query, deviceID, models.CommandStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commands []*models.DeviceCommand
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		commands = append(commands, cmd)
	}

	return commands, nil
}

// ListOpenCommands lists non-terminal commands of a given type for a device
func (s *PostgresStore) ListOpenCommands(ctx context.Context, deviceID uuid.UUID, cmdType models.CommandType) ([]*models.DeviceCommand, error) {
	query := `SELECT ` + commandColumns + `
        FROM device_commands
        WHERE device_id = $1 AND command_type = $2
          AND status IN ($3, $4, $5)
        ORDER BY created_at ASC`

	rows, err := s.getDB().QueryContext(ctx, query, deviceID, cmdType,
		models.CommandStatusPending, models.CommandStatusSent, models.CommandStatusAcknowledged)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commands []*models.DeviceCommand
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		commands = append(commands, cmd)
	}

	return commands, nil
}

// UpdateCommandStatus updates a command's status, stamping the matching
// transition timestamp.
func (s *PostgresStore) UpdateCommandStatus(ctx context.Context, id uuid.UUID, status models.CommandStatus) error {
	now := time.Now()

	var query string
	switch status {
	case models.CommandStatusSent:
		query = `UPDATE device_commands SET status = $2, sent_at = $3 WHERE id = $1`
	case models.CommandStatusAcknowledged:
		query = `UPDATE device_commands SET status = $2, acked_at = $3 WHERE id = $1`
	default:
		query = `UPDATE device_commands SET status = $2, completed_at = $3 WHERE id = $1`
	}

	result, err := s.getDB().ExecContext(ctx, query, id, status, now)
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

// ExpirePendingCommands transitions overdue pending commands to expired
func (s *PostgresStore) ExpirePendingCommands(ctx context.Context, now time.Time) (int64, error) {
	query := `
        UPDATE device_commands SET status = $1, completed_at = $2
        WHERE status = $3 AND expires_at IS NOT NULL AND expires_at < $2`

	result, err := s.getDB().ExecContext(ctx, query,
		models.CommandStatusExpired, now, models.CommandStatusPending)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// ========== Configuration Methods ==========

// CreateConfiguration creates a pending device configuration
func (s *PostgresStore) CreateConfiguration(ctx context.Context, cfg *models.DeviceConfiguration) error {
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}

	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now()
	}
	if cfg.Status == "" {
		cfg.Status = models.ConfigStatusPending
	}

	query := `
        INSERT INTO device_configurations (
            id, device_id, config_data, status, created_at, applied_at
        ) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.getDB().ExecContext(ctx, query,
		cfg.ID, cfg.DeviceID, cfg.ConfigData, cfg.Status,
		cfg.CreatedAt, cfg.AppliedAt,
	)

	return err
}

const configColumns = `id, device_id, config_data, status, created_at, applied_at`

func scanConfiguration(row interface{ Scan(...interface{}) error }) (*models.DeviceConfiguration, error) {
	cfg := &models.DeviceConfiguration{}
	err := row.Scan(
		&cfg.ID, &cfg.DeviceID, &cfg.ConfigData, &cfg.Status,
		&cfg.CreatedAt, &cfg.AppliedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetConfiguration gets a configuration by ID
func (s *PostgresStore) GetConfiguration(ctx context.Context, id uuid.UUID) (*models.DeviceConfiguration, error) {
	query := `SELECT ` + configColumns + ` FROM device_configurations WHERE id = $1`
	return scanConfiguration(s.getDB().QueryRowContext(ctx, query, id))
}

// ListPendingConfigurations lists pending configurations for a device, oldest first
func (s *PostgresStore) ListPendingConfigurations(ctx context.Context, deviceID uuid.UUID) ([]*models.DeviceConfiguration, error) {
	query := `SELECT ` + configColumns + `
        FROM device_configurations
        WHERE device_id = $1 AND status = $2
        ORDER BY created_at ASC`

	rows, err := s.getDB().QueryContext(ctx, query, deviceID, models.ConfigStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*models.DeviceConfiguration
	for rows.Next() {
		cfg, err := scanConfiguration(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}

	return configs, nil
}

// UpdateConfigurationStatus updates a configuration's status
func (s *PostgresStore) UpdateConfigurationStatus(ctx context.Context, id uuid.UUID, status models.ConfigStatus) error {
	var (
		result sql.Result
		err    error
	)
	if status == models.ConfigStatusApplied {
		result, err = s.getDB().ExecContext(ctx,
			`UPDATE device_configurations SET status = $2, applied_at = $3 WHERE id = $1`,
			id, status, time.Now())
	} else {
		result, err = s.getDB().ExecContext(ctx,
			`UPDATE device_configurations SET status = $2 WHERE id = $1`,
			id, status)
	}
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
