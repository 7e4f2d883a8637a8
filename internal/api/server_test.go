package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geotrack/geotrack-server/internal/activity"
	"github.com/geotrack/geotrack-server/internal/commands"
	"github.com/geotrack/geotrack-server/internal/config"
	"github.com/geotrack/geotrack-server/internal/geofence"
	"github.com/geotrack/geotrack-server/internal/models"
	"github.com/geotrack/geotrack-server/internal/storage"
)

type testEnv struct {
	server *RESTServer
	store  storage.Store
	token  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := storage.NewMemStore()
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{}
	cfg.Server.Name = "geotrack-server"
	cfg.Server.Version = "test"
	cfg.JWT.Secret = "test-secret"
	cfg.JWT.AccessTokenTTL = 15 * time.Minute
	cfg.JWT.RefreshTokenTTL = time.Hour
	cfg.Tracking.OfflineAfter = 10 * time.Minute
	cfg.Tracking.LowBatteryLevel = 15

	manager := commands.NewManager(store)
	evaluator := geofence.NewEvaluator(store, manager, nil)
	tracker := activity.NewTracker(store, nil, cfg.Tracking.OfflineAfter, cfg.Tracking.LowBatteryLevel)

	server := NewRESTServer(cfg, store, manager, evaluator, tracker)

	admin := &models.User{
		Email:    "admin@example.com",
		Username: "admin",
		IsAdmin:  true,
		IsActive: true,
		Settings: models.Variables{"password": "password123"},
	}
	if err := store.CreateUser(context.Background(), admin); err != nil {
		t.Fatalf("create admin: %v", err)
	}

	env := &testEnv{server: server, store: store}
	env.token = env.login(t, "admin@example.com", "password123")
	return env
}

func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/v1/auth/login", "",
		map[string]string{"email": email, "password": password})
	if resp.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", resp.Code, resp.Body.String())
	}
	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return body.AccessToken
}

func (e *testEnv) do(t *testing.T, method, path, token string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewBuffer(data)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createDevice(t *testing.T, externalID string) {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/v1/devices", e.token, map[string]interface{}{
		"external_id": externalID,
		"name":        "Test tracker",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create device: %d %s", resp.Code, resp.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("health = %d", resp.Code)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/v1/devices", "", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list devices = %d, want 401", resp.Code)
	}
}

func TestDeviceLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.createDevice(t, "TRK-100")

	resp := env.do(t, http.MethodGet, "/api/v1/devices/TRK-100", env.token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("get device = %d %s", resp.Code, resp.Body.String())
	}

	// Duplicate external id conflicts.
	resp = env.do(t, http.MethodPost, "/api/v1/devices", env.token, map[string]interface{}{
		"external_id": "TRK-100",
		"name":        "Imposter",
	})
	if resp.Code != http.StatusConflict {
		t.Errorf("duplicate device = %d, want 409", resp.Code)
	}

	resp = env.do(t, http.MethodDelete, "/api/v1/devices/TRK-100", env.token, nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("delete device = %d", resp.Code)
	}

	resp = env.do(t, http.MethodGet, "/api/v1/devices/TRK-100", env.token, nil)
	if resp.Code != http.StatusNotFound {
		t.Errorf("deleted device lookup = %d, want 404", resp.Code)
	}
}

func TestLocationReportAndHistory(t *testing.T) {
	env := newTestEnv(t)
	env.createDevice(t, "TRK-101")

	resp := env.do(t, http.MethodPost, "/api/v1/ingest/TRK-101/locations", "", map[string]interface{}{
		"latitude":      "52.5163",
		"longitude":     "13.3777",
		"battery_level": 85.0,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("report location = %d %s", resp.Code, resp.Body.String())
	}

	resp = env.do(t, http.MethodGet, "/api/v1/devices/TRK-101/locations/latest", env.token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("latest location = %d %s", resp.Code, resp.Body.String())
	}
	var loc models.DeviceLocation
	if err := json.Unmarshal(resp.Body.Bytes(), &loc); err != nil {
		t.Fatalf("decode location: %v", err)
	}
	if string(loc.Latitude) != "52.5163" {
		t.Errorf("latitude round-trip lost precision: %q", loc.Latitude)
	}

	// Out-of-range coordinates are rejected.
	resp = env.do(t, http.MethodPost, "/api/v1/ingest/TRK-101/locations", "", map[string]interface{}{
		"latitude":  "95.0",
		"longitude": "13.3777",
	})
	if resp.Code != http.StatusBadRequest {
		t.Errorf("bad latitude = %d, want 400", resp.Code)
	}
}

func TestLocationReportNumericCoordinates(t *testing.T) {
	env := newTestEnv(t)
	env.createDevice(t, "TRK-102")

	// Devices may send coordinates as JSON numbers.
	resp := env.do(t, http.MethodPost, "/api/v1/ingest/TRK-102/locations", "", map[string]interface{}{
		"latitude":  48.8566,
		"longitude": 2.3522,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("numeric coordinates = %d %s", resp.Code, resp.Body.String())
	}
}

func TestCommandQueueOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.createDevice(t, "TRK-103")

	resp := env.do(t, http.MethodPost, "/api/v1/devices/TRK-103/commands", env.token, map[string]interface{}{
		"command_type": "reboot",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create command = %d %s", resp.Code, resp.Body.String())
	}
	var cmd models.DeviceCommand
	if err := json.Unmarshal(resp.Body.Bytes(), &cmd); err != nil {
		t.Fatalf("decode command: %v", err)
	}

	// Duplicate queue attempt returns 409 with the existing id.
	resp = env.do(t, http.MethodPost, "/api/v1/devices/TRK-103/commands", env.token, map[string]interface{}{
		"command_type": "reboot",
	})
	if resp.Code != http.StatusConflict {
		t.Fatalf("duplicate command = %d, want 409", resp.Code)
	}
	var conflict struct {
		ExistingID string `json:"existing_id"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &conflict); err != nil {
		t.Fatalf("decode conflict: %v", err)
	}
	if conflict.ExistingID != cmd.ID.String() {
		t.Errorf("conflict existing_id = %s, want %s", conflict.ExistingID, cmd.ID)
	}

	// Heartbeat delivers and marks sent.
	resp = env.do(t, http.MethodPost, "/api/v1/ingest/TRK-103/heartbeat", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("heartbeat = %d %s", resp.Code, resp.Body.String())
	}
	var hb struct {
		Commands []models.DeviceCommand `json:"commands"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &hb); err != nil {
		t.Fatalf("decode heartbeat: %v", err)
	}
	if len(hb.Commands) != 1 {
		t.Fatalf("heartbeat delivered %d commands, want 1", len(hb.Commands))
	}

	// Device reports the outcome.
	resp = env.do(t, http.MethodPost, "/api/v1/ingest/TRK-103/ack", "", map[string]interface{}{
		"command_id": cmd.ID.String(),
		"status":     "acknowledged",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("ack = %d %s", resp.Code, resp.Body.String())
	}

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/commands/%s/ack", cmd.ID), env.token, map[string]interface{}{
		"status": "executed",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("execute ack = %d %s", resp.Code, resp.Body.String())
	}
}

func TestCancelCommandIdempotentOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.createDevice(t, "TRK-104")

	resp := env.do(t, http.MethodPost, "/api/v1/devices/TRK-104/commands", env.token, map[string]interface{}{
		"command_type": "get_location",
	})
	var cmd models.DeviceCommand
	if err := json.Unmarshal(resp.Body.Bytes(), &cmd); err != nil {
		t.Fatalf("decode command: %v", err)
	}

	for i := 0; i < 2; i++ {
		resp = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/commands/%s", cmd.ID), env.token, nil)
		if resp.Code != http.StatusOK {
			t.Fatalf("cancel attempt %d = %d %s", i+1, resp.Code, resp.Body.String())
		}
	}
}

func TestConfigUpdateOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.createDevice(t, "TRK-105")

	resp := env.do(t, http.MethodPost, "/api/v1/devices/TRK-105/commands", env.token, map[string]interface{}{
		"command_type": "update_config",
		"command_data": map[string]interface{}{"reportInterval": 60},
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create config command = %d %s", resp.Code, resp.Body.String())
	}

	// A second update supersedes instead of conflicting.
	resp = env.do(t, http.MethodPost, "/api/v1/devices/TRK-105/commands", env.token, map[string]interface{}{
		"command_type": "update_config",
		"command_data": map[string]interface{}{"reportInterval": 30},
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("superseding config command = %d %s", resp.Code, resp.Body.String())
	}

	resp = env.do(t, http.MethodGet, "/api/v1/devices/TRK-105/config", env.token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("get pending config = %d %s", resp.Code, resp.Body.String())
	}
	var cfg models.DeviceConfiguration
	if err := json.Unmarshal(resp.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("decode configuration: %v", err)
	}
	if v, ok := cfg.ConfigData["reportInterval"].(float64); !ok || v != 30 {
		t.Errorf("pending config payload = %v, want reportInterval 30", cfg.ConfigData)
	}
}

func TestGeofenceAlertsOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.createDevice(t, "TRK-106")

	resp := env.do(t, http.MethodPost, "/api/v1/devices/TRK-106/geofences", env.token, map[string]interface{}{
		"name":       "office",
		"center_lat": "52.5200",
		"center_lon": "13.4050",
		"radius":     300,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create geofence = %d %s", resp.Code, resp.Body.String())
	}

	// A report inside the fence raises an enter alert.
	resp = env.do(t, http.MethodPost, "/api/v1/ingest/TRK-106/locations", "", map[string]interface{}{
		"latitude":  "52.5200",
		"longitude": "13.4050",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("report = %d %s", resp.Code, resp.Body.String())
	}

	resp = env.do(t, http.MethodGet, "/api/v1/devices/TRK-106/alerts", env.token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("list alerts = %d %s", resp.Code, resp.Body.String())
	}
	var alerts struct {
		Alerts []models.GeofenceAlert `json:"alerts"`
		Total  int64                  `json:"total"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &alerts); err != nil {
		t.Fatalf("decode alerts: %v", err)
	}
	if alerts.Total != 1 || alerts.Alerts[0].Type != models.AlertTypeEnter {
		t.Fatalf("alerts = %+v, want one enter alert", alerts)
	}

	resp = env.do(t, http.MethodGet, "/api/v1/devices/TRK-106/alerts/unread-count", env.token, nil)
	var unread struct {
		Unread int64 `json:"unread"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &unread); err != nil {
		t.Fatalf("decode unread: %v", err)
	}
	if unread.Unread != 1 {
		t.Errorf("unread = %d, want 1", unread.Unread)
	}

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/alerts/%s/read", alerts.Alerts[0].ID), env.token, nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("mark read = %d", resp.Code)
	}
}

func TestTokenRefresh(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/auth/login", "",
		map[string]string{"email": "admin@example.com", "password": "password123"})
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	resp = env.do(t, http.MethodPost, "/api/v1/auth/refresh", "",
		map[string]string{"refresh_token": body.RefreshToken})
	if resp.Code != http.StatusOK {
		t.Fatalf("refresh = %d %s", resp.Code, resp.Body.String())
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/auth/login", "",
		map[string]string{"email": "admin@example.com", "password": "wrong"})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("bad password login = %d, want 401", resp.Code)
	}
}
