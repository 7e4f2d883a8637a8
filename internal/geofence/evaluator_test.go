package geofence

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/geotrack/geotrack-server/internal/commands"
	"github.com/geotrack/geotrack-server/internal/models"
	"github.com/geotrack/geotrack-server/internal/storage"
	"github.com/geotrack/geotrack-server/pkg/geo"
)

func newTestEvaluator(t *testing.T) (*Evaluator, storage.Store, uuid.UUID) {
	t.Helper()
	store := storage.NewMemStore()
	t.Cleanup(func() { store.Close() })

	device := &models.Device{
		ExternalID: "TRK-002",
		Name:       "Fence tester",
		DeviceType: "gps_tracker",
		Status:     models.DeviceStatusOnline,
	}
	if err := store.CreateDevice(context.Background(), device); err != nil {
		t.Fatalf("create device: %v", err)
	}

	return NewEvaluator(store, commands.NewManager(store), nil), store, device.ID
}

// addFence creates a 500m fence centered on the Brandenburg Gate
func addFence(t *testing.T, e *Evaluator, deviceID uuid.UUID, enter, exit bool) *models.Geofence {
	t.Helper()
	fence := &models.Geofence{
		DeviceID:     deviceID,
		Name:         "home",
		CenterLat:    "52.5163",
		CenterLon:    "13.3777",
		Radius:       500,
		AlertOnEnter: enter,
		AlertOnExit:  exit,
		Active:       true,
	}
	if err := e.CreateGeofence(context.Background(), fence); err != nil {
		t.Fatalf("create geofence: %v", err)
	}
	return fence
}

func location(lat, lon string) *models.DeviceLocation {
	return &models.DeviceLocation{
		Latitude:  geo.Coordinate(lat),
		Longitude: geo.Coordinate(lon),
	}
}

func TestEvaluateFirstReadingInsideRaisesEnter(t *testing.T) {
	e, _, deviceID := newTestEvaluator(t)
	fence := addFence(t, e, deviceID, true, true)
	ctx := context.Background()

	alerts, err := e.Evaluate(ctx, deviceID, location("52.5163", "13.3777"))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Type != models.AlertTypeEnter {
		t.Fatalf("alerts = %v, want one enter alert", alerts)
	}
	if alerts[0].GeofenceID != fence.ID {
		t.Errorf("alert references fence %s, want %s", alerts[0].GeofenceID, fence.ID)
	}
}

func TestEvaluateRepeatedInsideIsQuiet(t *testing.T) {
	e, _, deviceID := newTestEvaluator(t)
	addFence(t, e, deviceID, true, true)
	ctx := context.Background()

	if _, err := e.Evaluate(ctx, deviceID, location("52.5163", "13.3777")); err != nil {
		t.Fatalf("first evaluate: %v", err)
	}
	alerts, err := e.Evaluate(ctx, deviceID, location("52.5164", "13.3778"))
	if err != nil {
		t.Fatalf("second evaluate: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("repeated inside reading raised %d alerts, want 0", len(alerts))
	}
}

func TestEvaluateExitTransition(t *testing.T) {
	e, store, deviceID := newTestEvaluator(t)
	addFence(t, e, deviceID, true, true)
	ctx := context.Background()

	if _, err := e.Evaluate(ctx, deviceID, location("52.5163", "13.3777")); err != nil {
		t.Fatalf("inside evaluate: %v", err)
	}
	// ~1.4km north of the center, well outside the 500m radius
	alerts, err := e.Evaluate(ctx, deviceID, location("52.5290", "13.3777"))
	if err != nil {
		t.Fatalf("outside evaluate: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Type != models.AlertTypeExit {
		t.Fatalf("alerts = %v, want one exit alert", alerts)
	}

	stored, total, err := store.ListGeofenceAlerts(ctx, deviceID, 10, 0)
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if total != 2 || len(stored) != 2 {
		t.Errorf("stored alerts = %d, want enter plus exit", total)
	}
}

func TestEvaluateFirstReadingOutsideIsQuiet(t *testing.T) {
	e, _, deviceID := newTestEvaluator(t)
	addFence(t, e, deviceID, true, true)

	alerts, err := e.Evaluate(context.Background(), deviceID, location("48.8566", "2.3522"))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("first outside reading raised %d alerts, want 0", len(alerts))
	}
}

func TestEvaluateRespectsAlertFlags(t *testing.T) {
	e, _, deviceID := newTestEvaluator(t)
	addFence(t, e, deviceID, false, true)
	ctx := context.Background()

	alerts, err := e.Evaluate(ctx, deviceID, location("52.5163", "13.3777"))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("enter with alertOnEnter=false raised %d alerts", len(alerts))
	}

	// The state must still have been recorded so the following exit fires.
	alerts, err = e.Evaluate(ctx, deviceID, location("52.5290", "13.3777"))
	if err != nil {
		t.Fatalf("evaluate exit: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Type != models.AlertTypeExit {
		t.Fatalf("alerts = %v, want one exit alert", alerts)
	}
}

func TestCreateFirstFenceQueuesMonitoring(t *testing.T) {
	e, store, deviceID := newTestEvaluator(t)
	addFence(t, e, deviceID, true, true)

	open, err := store.ListOpenCommands(context.Background(), deviceID, models.CommandEnableGeofencing)
	if err != nil {
		t.Fatalf("list open commands: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("enable_geofence_monitoring commands = %d, want 1", len(open))
	}

	// A second fence must not queue another toggle.
	addFence(t, e, deviceID, true, true)
	open, _ = store.ListOpenCommands(context.Background(), deviceID, models.CommandEnableGeofencing)
	if len(open) != 1 {
		t.Errorf("second fence queued another toggle, commands = %d", len(open))
	}
}

func TestDeleteLastFenceQueuesDisable(t *testing.T) {
	e, store, deviceID := newTestEvaluator(t)
	fence := addFence(t, e, deviceID, true, true)
	ctx := context.Background()

	if err := e.DeleteGeofence(ctx, fence.ID); err != nil {
		t.Fatalf("delete geofence: %v", err)
	}

	open, err := store.ListOpenCommands(ctx, deviceID, models.CommandDisableGeofencing)
	if err != nil {
		t.Fatalf("list open commands: %v", err)
	}
	if len(open) != 1 {
		t.Errorf("disable_geofence_monitoring commands = %d, want 1", len(open))
	}
}

func TestDeleteFenceClearsState(t *testing.T) {
	e, store, deviceID := newTestEvaluator(t)
	fence := addFence(t, e, deviceID, true, true)
	ctx := context.Background()

	if _, err := e.Evaluate(ctx, deviceID, location("52.5163", "13.3777")); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if err := e.DeleteGeofence(ctx, fence.ID); err != nil {
		t.Fatalf("delete geofence: %v", err)
	}

	if _, err := store.GetGeofenceState(ctx, deviceID, fence.ID); err != storage.ErrNotFound {
		t.Errorf("state survived fence deletion, err = %v", err)
	}
}

func TestCreateGeofenceRejectsBadRadius(t *testing.T) {
	e, _, deviceID := newTestEvaluator(t)

	fence := &models.Geofence{
		DeviceID:  deviceID,
		Name:      "bad",
		CenterLat: "0",
		CenterLon: "0",
		Radius:    0,
		Active:    true,
	}
	if err := e.CreateGeofence(context.Background(), fence); err == nil {
		t.Fatal("zero radius accepted")
	}
}
