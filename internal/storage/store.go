package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/geotrack/geotrack-server/internal/models"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidData  = errors.New("invalid data")
)

// Store defines the storage interface
type Store interface {
	// Transaction support
	BeginTx(ctx context.Context) (Store, error)
	Commit() error
	Rollback() error

	// User methods
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, int64, error)

	// Device methods
	CreateDevice(ctx context.Context, device *models.Device) error
	GetDevice(ctx context.Context, id uuid.UUID) (*models.Device, error)
	GetDeviceByExternalID(ctx context.Context, externalID string) (*models.Device, error)
	UpdateDevice(ctx context.Context, device *models.Device) error
	DeleteDevice(ctx context.Context, id uuid.UUID) error
	ListDevices(ctx context.Context, limit, offset int) ([]*models.Device, int64, error)
	ListDevicesLastSeenBefore(ctx context.Context, cutoff time.Time) ([]*models.Device, error)

	// Location methods
	AddLocation(ctx context.Context, loc *models.DeviceLocation) error
	GetLatestLocation(ctx context.Context, deviceID uuid.UUID) (*models.DeviceLocation, error)
	ListLocations(ctx context.Context, deviceID uuid.UUID, limit, offset int) ([]*models.DeviceLocation, int64, error)

	// Command methods
	CreateCommand(ctx context.Context, cmd *models.DeviceCommand) error
	GetCommand(ctx context.Context, id uuid.UUID) (*models.DeviceCommand, error)
	ListPendingCommands(ctx context.Context, deviceID uuid.UUID) ([]*models.DeviceCommand, error)
	ListOpenCommands(ctx context.Context, deviceID uuid.UUID, cmdType models.CommandType) ([]*models.DeviceCommand, error)
	UpdateCommandStatus(ctx context.Context, id uuid.UUID, status models.CommandStatus) error
	ExpirePendingCommands(ctx context.Context, now time.Time) (int64, error)

	// Configuration methods
	CreateConfiguration(ctx context.Context, cfg *models.DeviceConfiguration) error
	GetConfiguration(ctx context.Context, id uuid.UUID) (*models.DeviceConfiguration, error)
	ListPendingConfigurations(ctx context.Context, deviceID uuid.UUID) ([]*models.DeviceConfiguration, error)
	UpdateConfigurationStatus(ctx context.Context, id uuid.UUID, status models.ConfigStatus) error

	// Geofence methods
	CreateGeofence(ctx context.Context, fence *models.Geofence) error
	GetGeofence(ctx context.Context, id uuid.UUID) (*models.Geofence, error)
	UpdateGeofence(ctx context.Context, fence *models.Geofence) error
	DeleteGeofence(ctx context.Context, id uuid.UUID) error
	ListGeofences(ctx context.Context, deviceID uuid.UUID) ([]*models.Geofence, error)
	ListActiveGeofences(ctx context.Context, deviceID uuid.UUID) ([]*models.Geofence, error)
	CountActiveGeofences(ctx context.Context, deviceID uuid.UUID) (int64, error)

	// Geofence containment state
	GetGeofenceState(ctx context.Context, deviceID, geofenceID uuid.UUID) (*models.GeofenceState, error)
	SaveGeofenceState(ctx context.Context, state *models.GeofenceState) error

	// Geofence alert methods
	CreateGeofenceAlert(ctx context.Context, alert *models.GeofenceAlert) error
	ListGeofenceAlerts(ctx context.Context, deviceID uuid.UUID, limit, offset int) ([]*models.GeofenceAlert, int64, error)
	CountUnreadAlerts(ctx context.Context, deviceID uuid.UUID) (int64, error)
	MarkAlertRead(ctx context.Context, id uuid.UUID) error

	// System log methods
	CreateSystemLog(ctx context.Context, entry *models.SystemLog) error
	ListSystemLogs(ctx context.Context, filters SystemLogFilters, limit, offset int) ([]*models.SystemLog, int64, error)

	// Close the store
	Close() error
}

// SystemLogFilters represents filters for system logs
type SystemLogFilters struct {
	DeviceID  *uuid.UUID
	UserID    *uuid.UUID
	Level     *models.LogLevel
	Category  *models.LogCategory
	StartTime *time.Time
	EndTime   *time.Time
}
