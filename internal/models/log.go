package models

import (
	"time"

	"github.com/google/uuid"
)

// SystemLog represents an audit trail entry
type SystemLog struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	Level    LogLevel    `json:"level" db:"level"`
	Category LogCategory `json:"category" db:"category"`
	Message  string      `json:"message" db:"message"`

	DeviceID *uuid.UUID `json:"deviceId,omitempty" db:"device_id"`
	UserID   *uuid.UUID `json:"userId,omitempty" db:"user_id"`

	Details Variables `json:"details,omitempty" db:"details"`
}

// LogLevel represents log severity levels
type LogLevel string

const (
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARNING"
	LogLevelError   LogLevel = "ERROR"
)

// LogCategory represents log categories
type LogCategory string

const (
	LogCategoryCommand  LogCategory = "COMMAND"
	LogCategoryConfig   LogCategory = "CONFIG"
	LogCategoryGeofence LogCategory = "GEOFENCE"
	LogCategoryLocation LogCategory = "LOCATION"
	LogCategoryDevice   LogCategory = "DEVICE"
	LogCategoryAPI      LogCategory = "API"
	LogCategorySystem   LogCategory = "SYSTEM"
)
