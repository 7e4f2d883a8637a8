package models

import (
	"time"

	"github.com/google/uuid"
)

// CommandType represents the kind of directive sent to a device
type CommandType string

const (
	CommandEnableLostMode     CommandType = "enable_lost_mode"
	CommandDisableLostMode    CommandType = "disable_lost_mode"
	CommandGetLocation        CommandType = "get_location"
	CommandUpdateConfig       CommandType = "update_config"
	CommandReboot             CommandType = "reboot"
	CommandEnableGeofencing   CommandType = "enable_geofence_monitoring"
	CommandDisableGeofencing  CommandType = "disable_geofence_monitoring"
)

// Valid reports whether the type is a known command type
func (t CommandType) Valid() bool {
	switch t {
	case CommandEnableLostMode, CommandDisableLostMode, CommandGetLocation,
		CommandUpdateConfig, CommandReboot, CommandEnableGeofencing,
		CommandDisableGeofencing:
		return true
	}
	return false
}

// Counterpart returns the other half of a mutually exclusive command pair.
// Only the lost-mode toggles form such a pair.
func (t CommandType) Counterpart() (CommandType, bool) {
	switch t {
	case CommandEnableLostMode:
		return CommandDisableLostMode, true
	case CommandDisableLostMode:
		return CommandEnableLostMode, true
	}
	return "", false
}

// CommandStatus represents the lifecycle state of a command
type CommandStatus string

const (
	CommandStatusPending      CommandStatus = "pending"
	CommandStatusSent         CommandStatus = "sent"
	CommandStatusAcknowledged CommandStatus = "acknowledged"
	CommandStatusExecuted     CommandStatus = "executed"
	CommandStatusFailed       CommandStatus = "failed"
	CommandStatusExpired      CommandStatus = "expired"
	CommandStatusCancelled    CommandStatus = "cancelled"
)

// commandTransitions lists the allowed one-directional transitions. No
// terminal state ever re-enters pending.
var commandTransitions = map[CommandStatus][]CommandStatus{
	CommandStatusPending:      {CommandStatusSent, CommandStatusCancelled, CommandStatusExpired},
	CommandStatusSent:         {CommandStatusAcknowledged, CommandStatusFailed, CommandStatusCancelled},
	CommandStatusAcknowledged: {CommandStatusExecuted, CommandStatusFailed},
}

// Terminal reports whether the status is a final state
func (s CommandStatus) Terminal() bool {
	switch s {
	case CommandStatusExecuted, CommandStatusFailed, CommandStatusExpired, CommandStatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is allowed
func (s CommandStatus) CanTransition(next CommandStatus) bool {
	for _, allowed := range commandTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// DeviceCommand represents a unit of work directed at a device. Commands are
// delivered opportunistically when the device polls via heartbeat.
type DeviceCommand struct {
	ID       uuid.UUID `json:"id" db:"id"`
	DeviceID uuid.UUID `json:"deviceId" db:"device_id"`

	CommandType CommandType `json:"commandType" db:"command_type"`
	CommandData Variables   `json:"commandData,omitempty" db:"command_data"`

	Status CommandStatus `json:"status" db:"status"`

	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	SentAt      *time.Time `json:"sentAt,omitempty" db:"sent_at"`
	AckedAt     *time.Time `json:"acknowledgedAt,omitempty" db:"acked_at"`
	CompletedAt *time.Time `json:"completedAt,omitempty" db:"completed_at"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty" db:"expires_at"`
}

// ConfigStatus represents the lifecycle state of a pending configuration
type ConfigStatus string

const (
	ConfigStatusPending ConfigStatus = "pending"
	ConfigStatusSent    ConfigStatus = "sent"
	ConfigStatusApplied ConfigStatus = "applied"
	ConfigStatusFailed  ConfigStatus = "failed"
)

// DeviceConfiguration represents a configuration payload queued for a device.
// Configurations are delivered through the command queue (projected as
// update_config commands) but retained separately so the current pending
// configuration can be queried directly.
type DeviceConfiguration struct {
	ID       uuid.UUID `json:"id" db:"id"`
	DeviceID uuid.UUID `json:"deviceId" db:"device_id"`

	ConfigData Variables    `json:"configData" db:"config_data"`
	Status     ConfigStatus `json:"status" db:"status"`

	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	AppliedAt *time.Time `json:"appliedAt,omitempty" db:"applied_at"`
}

// AsCommand projects a configuration into the command shape used by the
// device-visible pending work queue.
func (c *DeviceConfiguration) AsCommand() *DeviceCommand {
	return &DeviceCommand{
		ID:          c.ID,
		DeviceID:    c.DeviceID,
		CommandType: CommandUpdateConfig,
		CommandData: c.ConfigData,
		Status:      CommandStatusPending,
		CreatedAt:   c.CreatedAt,
	}
}
