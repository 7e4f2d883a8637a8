package activity

import (
	"context"
	"testing"
	"time"

	"github.com/geotrack/geotrack-server/internal/models"
	"github.com/geotrack/geotrack-server/internal/storage"
)

func newTestTracker(t *testing.T) (*Tracker, storage.Store, *models.Device) {
	t.Helper()
	store := storage.NewMemStore()
	t.Cleanup(func() { store.Close() })

	device := &models.Device{
		ExternalID: "TRK-010",
		Name:       "Activity tester",
		DeviceType: "gps_tracker",
		Status:     models.DeviceStatusOnline,
	}
	if err := store.CreateDevice(context.Background(), device); err != nil {
		t.Fatalf("create device: %v", err)
	}

	return NewTracker(store, nil, 10*time.Minute, 15), store, device
}

func TestTouchStampsLastSeen(t *testing.T) {
	tr, store, device := newTestTracker(t)
	ctx := context.Background()

	if err := tr.Touch(ctx, device, nil); err != nil {
		t.Fatalf("touch: %v", err)
	}

	got, err := store.GetDevice(ctx, device.ID)
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	if got.LastSeenAt == nil {
		t.Fatal("lastSeenAt not stamped")
	}
	if time.Since(*got.LastSeenAt) > time.Minute {
		t.Errorf("lastSeenAt stale: %v", got.LastSeenAt)
	}
}

func TestTouchLowBattery(t *testing.T) {
	tr, store, device := newTestTracker(t)
	ctx := context.Background()

	level := 10.0
	if err := tr.Touch(ctx, device, &level); err != nil {
		t.Fatalf("touch: %v", err)
	}

	got, _ := store.GetDevice(ctx, device.ID)
	if got.Status != models.DeviceStatusLowBattery {
		t.Errorf("status = %s, want low_battery", got.Status)
	}

	// A healthy report recovers the device.
	level = 80.0
	if err := tr.Touch(ctx, got, &level); err != nil {
		t.Fatalf("touch recovery: %v", err)
	}
	got, _ = store.GetDevice(ctx, device.ID)
	if got.Status != models.DeviceStatusOnline {
		t.Errorf("status after recovery = %s, want online", got.Status)
	}
}

func TestTouchBringsOfflineDeviceBack(t *testing.T) {
	tr, store, device := newTestTracker(t)
	ctx := context.Background()

	device.Status = models.DeviceStatusOffline
	if err := store.UpdateDevice(ctx, device); err != nil {
		t.Fatalf("update device: %v", err)
	}

	if err := tr.Touch(ctx, device, nil); err != nil {
		t.Fatalf("touch: %v", err)
	}
	got, _ := store.GetDevice(ctx, device.ID)
	if got.Status != models.DeviceStatusOnline {
		t.Errorf("status = %s, want online", got.Status)
	}
}

func TestTouchKeepsLostMode(t *testing.T) {
	tr, store, device := newTestTracker(t)
	ctx := context.Background()

	device.Status = models.DeviceStatusLostMode
	if err := store.UpdateDevice(ctx, device); err != nil {
		t.Fatalf("update device: %v", err)
	}

	level := 90.0
	if err := tr.Touch(ctx, device, &level); err != nil {
		t.Fatalf("touch: %v", err)
	}
	got, _ := store.GetDevice(ctx, device.ID)
	if got.Status != models.DeviceStatusLostMode {
		t.Errorf("lost mode cleared by activity, status = %s", got.Status)
	}
}

func TestSweepOffline(t *testing.T) {
	tr, store, device := newTestTracker(t)
	ctx := context.Background()

	old := time.Now().Add(-time.Hour)
	device.LastSeenAt = &old
	if err := store.UpdateDevice(ctx, device); err != nil {
		t.Fatalf("update device: %v", err)
	}

	swept, err := tr.SweepOffline(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Errorf("swept = %d, want 1", swept)
	}

	got, _ := store.GetDevice(ctx, device.ID)
	if got.Status != models.DeviceStatusOffline {
		t.Errorf("status = %s, want offline", got.Status)
	}

	// A second sweep finds nothing new.
	swept, err = tr.SweepOffline(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if swept != 0 {
		t.Errorf("second sweep = %d, want 0", swept)
	}
}

func TestIsOnlineFallsBackToLastSeen(t *testing.T) {
	tr, _, device := newTestTracker(t)
	ctx := context.Background()

	if tr.IsOnline(ctx, device) {
		t.Error("device with no lastSeenAt reported online")
	}

	now := time.Now()
	device.LastSeenAt = &now
	if !tr.IsOnline(ctx, device) {
		t.Error("recently seen device reported offline")
	}

	old := now.Add(-time.Hour)
	device.LastSeenAt = &old
	if tr.IsOnline(ctx, device) {
		t.Error("stale device reported online")
	}
}
