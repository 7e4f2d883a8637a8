package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/geotrack/geotrack-server/internal/models"
	"github.com/geotrack/geotrack-server/internal/storage"
)

// ConflictError reports that an unfinished command of the same type already
// exists for the device. The existing command id lets callers offer
// cancel-and-retry.
type ConflictError struct {
	CommandType models.CommandType
	ExistingID  uuid.UUID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("command of type %s already queued (id %s)", e.CommandType, e.ExistingID)
}

// Manager maintains the queue of outstanding directives per device. Devices
// poll via heartbeat, so commands sit in the queue until delivered and are
// acknowledged asynchronously.
type Manager struct {
	store storage.Store
}

// NewManager creates a command lifecycle manager
func NewManager(store storage.Store) *Manager {
	return &Manager{store: store}
}

// Create queues a new command for a device. A Conflict is returned when an
// unfinished command of the same type already exists, except for
// update_config which supersedes earlier pending configurations instead.
// The dedup check and the writes run inside one store transaction so two
// concurrent creates cannot both pass the check.
func (m *Manager) Create(ctx context.Context, deviceID uuid.UUID, cmdType models.CommandType, payload models.Variables, expiresAt *time.Time) (*models.DeviceCommand, error) {
	if !cmdType.Valid() {
		return nil, fmt.Errorf("%w: unknown command type %q", storage.ErrInvalidData, cmdType)
	}

	tx, err := m.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}

	cmd, err := m.createInTx(ctx, tx, deviceID, cmdType, payload, expiresAt)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	m.audit(ctx, deviceID, models.LogCategoryCommand,
		fmt.Sprintf("Command %s queued", cmdType), models.Variables{
			"commandId":   cmd.ID.String(),
			"commandType": string(cmdType),
		})

	return cmd, nil
}

func (m *Manager) createInTx(ctx context.Context, tx storage.Store, deviceID uuid.UUID, cmdType models.CommandType, payload models.Variables, expiresAt *time.Time) (*models.DeviceCommand, error) {
	if cmdType == models.CommandUpdateConfig {
		return m.createConfigUpdate(ctx, tx, deviceID, payload, expiresAt)
	}

	open, err := tx.ListOpenCommands(ctx, deviceID, cmdType)
	if err != nil {
		return nil, fmt.Errorf("list open commands: %w", err)
	}
	if len(open) > 0 {
		return nil, &ConflictError{CommandType: cmdType, ExistingID: open[0].ID}
	}

	// The lost-mode toggles form a mutually exclusive pair: queueing one
	// side retracts a still-pending request for the other.
	if counterpart, ok := cmdType.Counterpart(); ok {
		opposite, err := tx.ListOpenCommands(ctx, deviceID, counterpart)
		if err != nil {
			return nil, fmt.Errorf("list counterpart commands: %w", err)
		}
		for _, prev := range opposite {
			if prev.Status != models.CommandStatusPending {
				continue
			}
			if err := tx.UpdateCommandStatus(ctx, prev.ID, models.CommandStatusCancelled); err != nil {
				return nil, fmt.Errorf("cancel counterpart command: %w", err)
			}
		}
	}

	cmd := &models.DeviceCommand{
		DeviceID:    deviceID,
		CommandType: cmdType,
		CommandData: payload,
		Status:      models.CommandStatusPending,
		ExpiresAt:   expiresAt,
	}
	if err := tx.CreateCommand(ctx, cmd); err != nil {
		return nil, fmt.Errorf("create command: %w", err)
	}

	return cmd, nil
}

// createConfigUpdate supersedes any pending configuration work and persists
// the payload twice: as an update_config command in the delivery queue and
// as a DeviceConfiguration row so the current pending config stays directly
// queryable.
func (m *Manager) createConfigUpdate(ctx context.Context, tx storage.Store, deviceID uuid.UUID, payload models.Variables, expiresAt *time.Time) (*models.DeviceCommand, error) {
	open, err := tx.ListOpenCommands(ctx, deviceID, models.CommandUpdateConfig)
	if err != nil {
		return nil, fmt.Errorf("list open config commands: %w", err)
	}
	for _, prev := range open {
		if prev.Status != models.CommandStatusPending {
			continue
		}
		if err := tx.UpdateCommandStatus(ctx, prev.ID, models.CommandStatusCancelled); err != nil {
			return nil, fmt.Errorf("cancel superseded command: %w", err)
		}
	}

	pending, err := tx.ListPendingConfigurations(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list pending configurations: %w", err)
	}
	for _, prev := range pending {
		if err := tx.UpdateConfigurationStatus(ctx, prev.ID, models.ConfigStatusFailed); err != nil {
			return nil, fmt.Errorf("supersede configuration: %w", err)
		}
	}

	cmd := &models.DeviceCommand{
		DeviceID:    deviceID,
		CommandType: models.CommandUpdateConfig,
		CommandData: payload,
		Status:      models.CommandStatusPending,
		ExpiresAt:   expiresAt,
	}
	if err := tx.CreateCommand(ctx, cmd); err != nil {
		return nil, fmt.Errorf("create config command: %w", err)
	}

	cfg := &models.DeviceConfiguration{
		DeviceID:   deviceID,
		ConfigData: payload,
		Status:     models.ConfigStatusPending,
	}
	if err := tx.CreateConfiguration(ctx, cfg); err != nil {
		return nil, fmt.Errorf("create configuration: %w", err)
	}

	return cmd, nil
}

// ListPending returns the merged device-visible work queue: pending commands
// plus pending configurations projected into the command shape, ordered by
// creation time. This is the payload a device receives on heartbeat.
func (m *Manager) ListPending(ctx context.Context, deviceID uuid.UUID) ([]*models.DeviceCommand, error) {
	commands, err := m.store.ListPendingCommands(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list pending commands: %w", err)
	}

	configs, err := m.store.ListPendingConfigurations(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list pending configurations: %w", err)
	}

	merged := make([]*models.DeviceCommand, 0, len(commands)+len(configs))
	merged = append(merged, commands...)
	for _, cfg := range configs {
		merged = append(merged, cfg.AsCommand())
	}

	// Stable merge: both inputs are already oldest-first.
	for i := 1; i < len(merged); i++ {
		for j := i; j > 0 && merged[j].CreatedAt.Before(merged[j-1].CreatedAt); j-- {
			merged[j], merged[j-1] = merged[j-1], merged[j]
		}
	}

	return merged, nil
}

// MarkDelivered transitions polled work items to sent. Items may live in
// either underlying table; the command table is tried first.
func (m *Manager) MarkDelivered(ctx context.Context, items []*models.DeviceCommand) error {
	for _, item := range items {
		err := m.store.UpdateCommandStatus(ctx, item.ID, models.CommandStatusSent)
		if err == storage.ErrNotFound {
			err = m.store.UpdateConfigurationStatus(ctx, item.ID, models.ConfigStatusSent)
		}
		if err != nil {
			return fmt.Errorf("mark delivered %s: %w", item.ID, err)
		}
	}
	return nil
}

// Acknowledge records a device-reported outcome for a work item. The id
// space spans commands and configurations: when no command row matches, the
// configuration table is tried with the status mapped into configuration
// terms (executed becomes applied).
func (m *Manager) Acknowledge(ctx context.Context, id uuid.UUID, newStatus models.CommandStatus) error {
	cmd, err := m.store.GetCommand(ctx, id)
	if err == nil {
		if !cmd.Status.CanTransition(newStatus) {
			return fmt.Errorf("%w: command %s cannot move from %s to %s",
				storage.ErrInvalidData, id, cmd.Status, newStatus)
		}
		return m.store.UpdateCommandStatus(ctx, id, newStatus)
	}
	if err != storage.ErrNotFound {
		return fmt.Errorf("get command: %w", err)
	}

	cfgStatus, ok := configStatusFor(newStatus)
	if !ok {
		return fmt.Errorf("%w: status %s has no configuration equivalent", storage.ErrInvalidData, newStatus)
	}

	if err := m.store.UpdateConfigurationStatus(ctx, id, cfgStatus); err != nil {
		return err
	}
	return nil
}

// configStatusFor maps a command status onto the configuration lifecycle
func configStatusFor(status models.CommandStatus) (models.ConfigStatus, bool) {
	switch status {
	case models.CommandStatusSent, models.CommandStatusAcknowledged:
		return models.ConfigStatusSent, true
	case models.CommandStatusExecuted:
		return models.ConfigStatusApplied, true
	case models.CommandStatusFailed:
		return models.ConfigStatusFailed, true
	}
	return "", false
}

// Cancel sets a command to cancelled. Cancelling an already-terminal
// command is a no-op success, so retried cancels stay idempotent.
func (m *Manager) Cancel(ctx context.Context, id uuid.UUID) (*models.DeviceCommand, error) {
	cmd, err := m.store.GetCommand(ctx, id)
	if err != nil {
		return nil, err
	}

	if cmd.Status.Terminal() {
		return cmd, nil
	}

	if err := m.store.UpdateCommandStatus(ctx, id, models.CommandStatusCancelled); err != nil {
		return nil, err
	}
	cmd.Status = models.CommandStatusCancelled

	m.audit(ctx, cmd.DeviceID, models.LogCategoryCommand,
		fmt.Sprintf("Command %s cancelled", cmd.CommandType), models.Variables{
			"commandId": cmd.ID.String(),
		})

	return cmd, nil
}

// Expire transitions overdue pending commands to expired. Run periodically
// by the cron scheduler.
func (m *Manager) Expire(ctx context.Context) (int64, error) {
	expired, err := m.store.ExpirePendingCommands(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("expire pending commands: %w", err)
	}

	if expired > 0 {
		log.Info().Int64("count", expired).Msg("Expired overdue commands")
	}

	return expired, nil
}

// audit writes a system log entry; failures are logged and dropped since an
// audit miss must not fail the operation that triggered it.
func (m *Manager) audit(ctx context.Context, deviceID uuid.UUID, category models.LogCategory, message string, details models.Variables) {
	entry := &models.SystemLog{
		Level:    models.LogLevelInfo,
		Category: category,
		Message:  message,
		DeviceID: &deviceID,
		Details:  details,
	}
	if err := m.store.CreateSystemLog(ctx, entry); err != nil {
		log.Warn().Err(err).Msg("Failed to write audit entry")
	}
}
