package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/geotrack/geotrack-server/internal/models"
	"github.com/geotrack/geotrack-server/internal/storage"
)

const (
	// DefaultOfflineAfter is how long a device may stay silent before the
	// sweep marks it offline.
	DefaultOfflineAfter = 10 * time.Minute

	// DefaultLowBattery is the battery percentage at or below which a
	// device is flagged low_battery.
	DefaultLowBattery = 15.0
)

// Tracker maintains per-device liveness: last-seen stamps, the Redis
// presence key used for cheap online checks, and the status transitions
// that follow from activity (or its absence).
type Tracker struct {
	store storage.Store
	redis *redis.Client

	offlineAfter time.Duration
	lowBattery   float64
}

// NewTracker creates an activity tracker. rdb may be nil, in which case
// presence keys are skipped and liveness relies on last_seen_at alone.
func NewTracker(store storage.Store, rdb *redis.Client, offlineAfter time.Duration, lowBattery float64) *Tracker {
	if offlineAfter <= 0 {
		offlineAfter = DefaultOfflineAfter
	}
	if lowBattery <= 0 {
		lowBattery = DefaultLowBattery
	}
	return &Tracker{store: store, redis: rdb, offlineAfter: offlineAfter, lowBattery: lowBattery}
}

// Touch records activity from a device: stamps last_seen_at, refreshes the
// Redis presence key, and applies status transitions. A reported battery
// level at or below the threshold flags the device low_battery; a healthy
// report from an offline or low_battery device brings it back online.
// Lost mode is sticky and never changed by activity.
func (t *Tracker) Touch(ctx context.Context, device *models.Device, batteryLevel *float64) error {
	now := time.Now()
	device.LastSeenAt = &now

	switch {
	case device.Status == models.DeviceStatusLostMode:
		// keep
	case batteryLevel != nil && *batteryLevel <= t.lowBattery:
		if device.Status != models.DeviceStatusLowBattery {
			t.auditStatus(ctx, device, models.DeviceStatusLowBattery)
		}
		device.Status = models.DeviceStatusLowBattery
	case device.Status == models.DeviceStatusOffline,
		device.Status == models.DeviceStatusLowBattery && batteryLevel != nil:
		t.auditStatus(ctx, device, models.DeviceStatusOnline)
		device.Status = models.DeviceStatusOnline
	case device.Status == "":
		device.Status = models.DeviceStatusOnline
	}

	if err := t.store.UpdateDevice(ctx, device); err != nil {
		return fmt.Errorf("update device: %w", err)
	}

	if t.redis != nil {
		key := presenceKey(device.ExternalID)
		if err := t.redis.Set(ctx, key, now.Unix(), t.offlineAfter).Err(); err != nil {
			log.Warn().Err(err).Str("device", device.ExternalID).Msg("Failed to refresh presence key")
		}
	}

	return nil
}

// IsOnline reports presence from Redis when available, falling back to the
// stored last_seen_at stamp.
func (t *Tracker) IsOnline(ctx context.Context, device *models.Device) bool {
	if t.redis != nil {
		n, err := t.redis.Exists(ctx, presenceKey(device.ExternalID)).Result()
		if err == nil {
			return n > 0
		}
		log.Warn().Err(err).Msg("Presence lookup failed, falling back to last_seen_at")
	}

	if device.LastSeenAt == nil {
		return false
	}
	return time.Since(*device.LastSeenAt) < t.offlineAfter
}

// SweepOffline marks devices silent for longer than the offline window as
// offline. Lost-mode devices are left alone. Run periodically by the cron
// scheduler; returns how many devices were transitioned.
func (t *Tracker) SweepOffline(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-t.offlineAfter)
	stale, err := t.store.ListDevicesLastSeenBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale devices: %w", err)
	}

	swept := 0
	for _, device := range stale {
		if device.Status == models.DeviceStatusOffline || device.Status == models.DeviceStatusLostMode {
			continue
		}
		t.auditStatus(ctx, device, models.DeviceStatusOffline)
		device.Status = models.DeviceStatusOffline
		if err := t.store.UpdateDevice(ctx, device); err != nil {
			log.Warn().Err(err).Str("device", device.ExternalID).Msg("Failed to mark device offline")
			continue
		}
		swept++
	}

	if swept > 0 {
		log.Info().Int("count", swept).Msg("Marked silent devices offline")
	}
	return swept, nil
}

func (t *Tracker) auditStatus(ctx context.Context, device *models.Device, next models.DeviceStatus) {
	entry := &models.SystemLog{
		Level:    models.LogLevelInfo,
		Category: models.LogCategoryDevice,
		Message:  fmt.Sprintf("Device status %s -> %s", device.Status, next),
		DeviceID: &device.ID,
		Details: models.Variables{
			"from": string(device.Status),
			"to":   string(next),
		},
	}
	if err := t.store.CreateSystemLog(ctx, entry); err != nil {
		log.Warn().Err(err).Msg("Failed to write audit entry")
	}
}

func presenceKey(externalID string) string {
	return "presence:device:" + externalID
}
