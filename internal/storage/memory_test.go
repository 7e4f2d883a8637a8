package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/geotrack/geotrack-server/internal/models"
)

func newStoreWithDevice(t *testing.T) (*MemStore, uuid.UUID) {
	t.Helper()
	store := NewMemStore()
	t.Cleanup(func() { store.Close() })

	device := &models.Device{
		ExternalID: "TRK-STORE",
		Name:       "Store tester",
		DeviceType: "gps_tracker",
		Status:     models.DeviceStatusOnline,
	}
	if err := store.CreateDevice(context.Background(), device); err != nil {
		t.Fatalf("create device: %v", err)
	}
	return store, device.ID
}

func TestDeviceExternalIDUnique(t *testing.T) {
	store, _ := newStoreWithDevice(t)

	dup := &models.Device{ExternalID: "TRK-STORE", Name: "dup", DeviceType: "gps_tracker"}
	if err := store.CreateDevice(context.Background(), dup); err != ErrDuplicateKey {
		t.Fatalf("duplicate external id err = %v, want ErrDuplicateKey", err)
	}
}

func TestGetDeviceByExternalID(t *testing.T) {
	store, deviceID := newStoreWithDevice(t)
	ctx := context.Background()

	got, err := store.GetDeviceByExternalID(ctx, "TRK-STORE")
	if err != nil {
		t.Fatalf("get by external id: %v", err)
	}
	if got.ID != deviceID {
		t.Errorf("got device %s, want %s", got.ID, deviceID)
	}

	if _, err := store.GetDeviceByExternalID(ctx, "TRK-NOPE"); err != ErrNotFound {
		t.Errorf("missing device err = %v, want ErrNotFound", err)
	}
}

func TestLocationOrdering(t *testing.T) {
	store, deviceID := newStoreWithDevice(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		loc := &models.DeviceLocation{
			DeviceID:   deviceID,
			Latitude:   "52.0",
			Longitude:  "13.0",
			ReportedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.AddLocation(ctx, loc); err != nil {
			t.Fatalf("add location %d: %v", i, err)
		}
	}

	latest, err := store.GetLatestLocation(ctx, deviceID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if !latest.ReportedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("latest reportedAt = %v, want most recent", latest.ReportedAt)
	}

	locs, total, err := store.ListLocations(ctx, deviceID, 2, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(locs) != 2 {
		t.Errorf("list = %d of %d, want 2 of 3", len(locs), total)
	}
	if locs[0].ReportedAt.Before(locs[1].ReportedAt) {
		t.Errorf("locations not newest-first")
	}
}

func TestUpdateCommandStatusUnknownID(t *testing.T) {
	store, _ := newStoreWithDevice(t)

	err := store.UpdateCommandStatus(context.Background(), uuid.New(), models.CommandStatusSent)
	if err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListOpenCommandsExcludesTerminal(t *testing.T) {
	store, deviceID := newStoreWithDevice(t)
	ctx := context.Background()

	mk := func(status models.CommandStatus) *models.DeviceCommand {
		cmd := &models.DeviceCommand{
			DeviceID:    deviceID,
			CommandType: models.CommandReboot,
			Status:      models.CommandStatusPending,
		}
		if err := store.CreateCommand(ctx, cmd); err != nil {
			t.Fatalf("create command: %v", err)
		}
		if status != models.CommandStatusPending {
			if err := store.UpdateCommandStatus(ctx, cmd.ID, status); err != nil {
				t.Fatalf("set status %s: %v", status, err)
			}
		}
		return cmd
	}

	mk(models.CommandStatusCancelled)
	mk(models.CommandStatusExpired)
	open := mk(models.CommandStatusSent)

	got, err := store.ListOpenCommands(ctx, deviceID, models.CommandReboot)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(got) != 1 || got[0].ID != open.ID {
		t.Fatalf("open commands = %d, want only the sent one", len(got))
	}
}

func TestGeofenceStateUpsert(t *testing.T) {
	store, deviceID := newStoreWithDevice(t)
	ctx := context.Background()

	fence := &models.Geofence{
		DeviceID:  deviceID,
		Name:      "zone",
		CenterLat: "52.0",
		CenterLon: "13.0",
		Radius:    100,
		Active:    true,
	}
	if err := store.CreateGeofence(ctx, fence); err != nil {
		t.Fatalf("create geofence: %v", err)
	}

	state := &models.GeofenceState{DeviceID: deviceID, GeofenceID: fence.ID, Inside: true}
	if err := store.SaveGeofenceState(ctx, state); err != nil {
		t.Fatalf("save state: %v", err)
	}

	state.Inside = false
	if err := store.SaveGeofenceState(ctx, state); err != nil {
		t.Fatalf("upsert state: %v", err)
	}

	got, err := store.GetGeofenceState(ctx, deviceID, fence.ID)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if got.Inside {
		t.Error("upsert did not overwrite inside flag")
	}
}

func TestSystemLogFilters(t *testing.T) {
	store, deviceID := newStoreWithDevice(t)
	ctx := context.Background()

	categories := []models.LogCategory{
		models.LogCategoryCommand,
		models.LogCategoryGeofence,
		models.LogCategoryCommand,
	}
	for _, cat := range categories {
		entry := &models.SystemLog{
			Level:    models.LogLevelInfo,
			Category: cat,
			Message:  "test entry",
			DeviceID: &deviceID,
		}
		if err := store.CreateSystemLog(ctx, entry); err != nil {
			t.Fatalf("create log: %v", err)
		}
	}

	cat := models.LogCategoryCommand
	logs, total, err := store.ListSystemLogs(ctx, SystemLogFilters{Category: &cat}, 10, 0)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if total != 2 || len(logs) != 2 {
		t.Errorf("filtered logs = %d of %d, want 2 of 2", len(logs), total)
	}
}

func TestTransactionRoundTrip(t *testing.T) {
	store, deviceID := newStoreWithDevice(t)
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	cmd := &models.DeviceCommand{
		DeviceID:    deviceID,
		CommandType: models.CommandReboot,
		Status:      models.CommandStatusPending,
	}
	if err := tx.CreateCommand(ctx, cmd); err != nil {
		t.Fatalf("create in tx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if _, err := store.GetCommand(ctx, cmd.ID); err != nil {
		t.Fatalf("committed command not visible: %v", err)
	}
}
