package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/geotrack/geotrack-server/internal/models"
	"github.com/geotrack/geotrack-server/pkg/crypto"
)

// MemStore is an in-memory Store used by tests and DSN-less development
// runs. Transactions are a no-op: every method is individually atomic
// under the store mutex.
type MemStore struct {
	mu sync.RWMutex

	users     map[uuid.UUID]*models.User
	devices   map[uuid.UUID]*models.Device
	locations []*models.DeviceLocation
	commands  map[uuid.UUID]*models.DeviceCommand
	configs   map[uuid.UUID]*models.DeviceConfiguration
	fences    map[uuid.UUID]*models.Geofence
	states    map[[2]uuid.UUID]*models.GeofenceState
	alerts    map[uuid.UUID]*models.GeofenceAlert
	logs      []*models.SystemLog
}

// NewMemStore creates an empty in-memory store
func NewMemStore() *MemStore {
	return &MemStore{
		users:    make(map[uuid.UUID]*models.User),
		devices:  make(map[uuid.UUID]*models.Device),
		commands: make(map[uuid.UUID]*models.DeviceCommand),
		configs:  make(map[uuid.UUID]*models.DeviceConfiguration),
		fences:   make(map[uuid.UUID]*models.Geofence),
		states:   make(map[[2]uuid.UUID]*models.GeofenceState),
		alerts:   make(map[uuid.UUID]*models.GeofenceAlert),
	}
}

// Close is a no-op
func (s *MemStore) Close() error { return nil }

// BeginTx returns the store itself; MemStore has no transaction isolation
func (s *MemStore) BeginTx(ctx context.Context) (Store, error) { return s, nil }

// Commit is a no-op
func (s *MemStore) Commit() error { return nil }

// Rollback is a no-op
func (s *MemStore) Rollback() error { return nil }

// ========== User Methods ==========

func (s *MemStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	for _, existing := range s.users {
		if existing.Email == user.Email {
			return ErrDuplicateKey
		}
	}

	if pwd, ok := user.Settings["password"].(string); ok && pwd != "" {
		hash, err := crypto.HashPassword(pwd)
		if err != nil {
			return err
		}
		user.PasswordHash = hash
		delete(user.Settings, "password")
	}

	copied := *user
	s.users[user.ID] = &copied
	return nil
}

func (s *MemStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *MemStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemStore) UpdateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return ErrNotFound
	}
	user.UpdatedAt = time.Now()
	copied := *user
	s.users[user.ID] = &copied
	return nil
}

func (s *MemStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *MemStore) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var users []*models.User
	for _, user := range s.users {
		copied := *user
		users = append(users, &copied)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.After(users[j].CreatedAt) })
	return paginate(users, limit, offset), int64(len(s.users)), nil
}

// ========== Device Methods ==========

func (s *MemStore) CreateDevice(ctx context.Context, device *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if device.ID == uuid.Nil {
		device.ID = uuid.New()
	}
	now := time.Now()
	device.CreatedAt = now
	device.UpdatedAt = now

	if device.Status == "" {
		device.Status = models.DeviceStatusOffline
	}
	if device.Config == nil {
		device.Config = make(models.Variables)
	}

	for _, existing := range s.devices {
		if existing.ExternalID == device.ExternalID {
			return ErrDuplicateKey
		}
	}

	copied := *device
	s.devices[device.ID] = &copied
	return nil
}

func (s *MemStore) GetDevice(ctx context.Context, id uuid.UUID) (*models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	device, ok := s.devices[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *device
	return &copied, nil
}

func (s *MemStore) GetDeviceByExternalID(ctx context.Context, externalID string) (*models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, device := range s.devices {
		if device.ExternalID == externalID {
			copied := *device
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemStore) UpdateDevice(ctx context.Context, device *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[device.ID]; !ok {
		return ErrNotFound
	}
	device.UpdatedAt = time.Now()
	copied := *device
	s.devices[device.ID] = &copied
	return nil
}

func (s *MemStore) DeleteDevice(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[id]; !ok {
		return ErrNotFound
	}
	delete(s.devices, id)
	return nil
}

func (s *MemStore) ListDevices(ctx context.Context, limit, offset int) ([]*models.Device, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var devices []*models.Device
	for _, device := range s.devices {
		copied := *device
		devices = append(devices, &copied)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].CreatedAt.After(devices[j].CreatedAt) })
	return paginate(devices, limit, offset), int64(len(s.devices)), nil
}

func (s *MemStore) ListDevicesLastSeenBefore(ctx context.Context, cutoff time.Time) ([]*models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var devices []*models.Device
	for _, device := range s.devices {
		if device.LastSeenAt != nil && device.LastSeenAt.Before(cutoff) {
			copied := *device
			devices = append(devices, &copied)
		}
	}
	return devices, nil
}

// ========== Location Methods ==========

func (s *MemStore) AddLocation(ctx context.Context, loc *models.DeviceLocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if loc.ID == uuid.Nil {
		loc.ID = uuid.New()
	}
	if loc.CreatedAt.IsZero() {
		loc.CreatedAt = time.Now()
	}
	if loc.ReportedAt.IsZero() {
		loc.ReportedAt = loc.CreatedAt
	}

	copied := *loc
	s.locations = append(s.locations, &copied)
	return nil
}

func (s *MemStore) GetLatestLocation(ctx context.Context, deviceID uuid.UUID) (*models.DeviceLocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.DeviceLocation
	for _, loc := range s.locations {
		if loc.DeviceID != deviceID {
			continue
		}
		if latest == nil || loc.ReportedAt.After(latest.ReportedAt) {
			latest = loc
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (s *MemStore) ListLocations(ctx context.Context, deviceID uuid.UUID, limit, offset int) ([]*models.DeviceLocation, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var locations []*models.DeviceLocation
	for _, loc := range s.locations {
		if loc.DeviceID == deviceID {
			copied := *loc
			locations = append(locations, &copied)
		}
	}
	sort.Slice(locations, func(i, j int) bool { return locations[i].ReportedAt.After(locations[j].ReportedAt) })
	total := int64(len(locations))
	return paginate(locations, limit, offset), total, nil
}

// ========== Command Methods ==========

func (s *MemStore) CreateCommand(ctx context.Context, cmd *models.DeviceCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cmd.ID == uuid.Nil {
		cmd.ID = uuid.New()
	}
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = time.Now()
	}
	if cmd.Status == "" {
		cmd.Status = models.CommandStatusPending
	}

	copied := *cmd
	s.commands[cmd.ID] = &copied
	return nil
}

func (s *MemStore) GetCommand(ctx context.Context, id uuid.UUID) (*models.DeviceCommand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cmd, ok := s.commands[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *cmd
	return &copied, nil
}

func (s *MemStore) ListPendingCommands(ctx context.Context, deviceID uuid.UUID) ([]*models.DeviceCommand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var commands []*models.DeviceCommand
	for _, cmd := range s.commands {
		if cmd.DeviceID == deviceID && cmd.Status == models.CommandStatusPending {
			copied := *cmd
			commands = append(commands, &copied)
		}
	}
	sort.Slice(commands, func(i, j int) bool { return commands[i].CreatedAt.Before(commands[j].CreatedAt) })
	return commands, nil
}

func (s *MemStore) ListOpenCommands(ctx context.Context, deviceID uuid.UUID, cmdType models.CommandType) ([]*models.DeviceCommand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var commands []*models.DeviceCommand
	for _, cmd := range s.commands {
		if cmd.DeviceID == deviceID && cmd.CommandType == cmdType && !cmd.Status.Terminal() {
			copied := *cmd
			commands = append(commands, &copied)
		}
	}
	sort.Slice(commands, func(i, j int) bool { return commands[i].CreatedAt.Before(commands[j].CreatedAt) })
	return commands, nil
}

func (s *MemStore) UpdateCommandStatus(ctx context.Context, id uuid.UUID, status models.CommandStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd, ok := s.commands[id]
	if !ok {
		return ErrNotFound
	}

	now := time.Now()
	cmd.Status = status
	switch status {
	case models.CommandStatusSent:
		cmd.SentAt = &now
	case models.CommandStatusAcknowledged:
		cmd.AckedAt = &now
	default:
		cmd.CompletedAt = &now
	}
	return nil
}

func (s *MemStore) ExpirePendingCommands(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired int64
	for _, cmd := range s.commands {
		if cmd.Status == models.CommandStatusPending && cmd.ExpiresAt != nil && cmd.ExpiresAt.Before(now) {
			cmd.Status = models.CommandStatusExpired
			stamp := now
			cmd.CompletedAt = &stamp
			expired++
		}
	}
	return expired, nil
}

// ========== Configuration Methods ==========

func (s *MemStore) CreateConfiguration(ctx context.Context, cfg *models.DeviceConfiguration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now()
	}
	if cfg.Status == "" {
		cfg.Status = models.ConfigStatusPending
	}

	copied := *cfg
	s.configs[cfg.ID] = &copied
	return nil
}

func (s *MemStore) GetConfiguration(ctx context.Context, id uuid.UUID) (*models.DeviceConfiguration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *cfg
	return &copied, nil
}

func (s *MemStore) ListPendingConfigurations(ctx context.Context, deviceID uuid.UUID) ([]*models.DeviceConfiguration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var configs []*models.DeviceConfiguration
	for _, cfg := range s.configs {
		if cfg.DeviceID == deviceID && cfg.Status == models.ConfigStatusPending {
			copied := *cfg
			configs = append(configs, &copied)
		}
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].CreatedAt.Before(configs[j].CreatedAt) })
	return configs, nil
}

func (s *MemStore) UpdateConfigurationStatus(ctx context.Context, id uuid.UUID, status models.ConfigStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configs[id]
	if !ok {
		return ErrNotFound
	}

	cfg.Status = status
	if status == models.ConfigStatusApplied {
		now := time.Now()
		cfg.AppliedAt = &now
	}
	return nil
}

// ========== Geofence Methods ==========

func (s *MemStore) CreateGeofence(ctx context.Context, fence *models.Geofence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fence.ID == uuid.Nil {
		fence.ID = uuid.New()
	}
	now := time.Now()
	fence.CreatedAt = now
	fence.UpdatedAt = now

	copied := *fence
	s.fences[fence.ID] = &copied
	return nil
}

func (s *MemStore) GetGeofence(ctx context.Context, id uuid.UUID) (*models.Geofence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fence, ok := s.fences[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *fence
	return &copied, nil
}

func (s *MemStore) UpdateGeofence(ctx context.Context, fence *models.Geofence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.fences[fence.ID]; !ok {
		return ErrNotFound
	}
	fence.UpdatedAt = time.Now()
	copied := *fence
	s.fences[fence.ID] = &copied
	return nil
}

func (s *MemStore) DeleteGeofence(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.fences[id]; !ok {
		return ErrNotFound
	}
	delete(s.fences, id)
	for key := range s.states {
		if key[1] == id {
			delete(s.states, key)
		}
	}
	return nil
}

func (s *MemStore) listGeofences(deviceID uuid.UUID, activeOnly bool) []*models.Geofence {
	var fences []*models.Geofence
	for _, fence := range s.fences {
		if fence.DeviceID != deviceID {
			continue
		}
		if activeOnly && !fence.Active {
			continue
		}
		copied := *fence
		fences = append(fences, &copied)
	}
	sort.Slice(fences, func(i, j int) bool { return fences[i].CreatedAt.Before(fences[j].CreatedAt) })
	return fences
}

func (s *MemStore) ListGeofences(ctx context.Context, deviceID uuid.UUID) ([]*models.Geofence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listGeofences(deviceID, false), nil
}

func (s *MemStore) ListActiveGeofences(ctx context.Context, deviceID uuid.UUID) ([]*models.Geofence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listGeofences(deviceID, true), nil
}

func (s *MemStore) CountActiveGeofences(ctx context.Context, deviceID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.listGeofences(deviceID, true))), nil
}

// ========== Geofence State Methods ==========

func (s *MemStore) GetGeofenceState(ctx context.Context, deviceID, geofenceID uuid.UUID) (*models.GeofenceState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[[2]uuid.UUID{deviceID, geofenceID}]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *state
	return &copied, nil
}

func (s *MemStore) SaveGeofenceState(ctx context.Context, state *models.GeofenceState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state.UpdatedAt = time.Now()
	copied := *state
	s.states[[2]uuid.UUID{state.DeviceID, state.GeofenceID}] = &copied
	return nil
}

// ========== Geofence Alert Methods ==========

func (s *MemStore) CreateGeofenceAlert(ctx context.Context, alert *models.GeofenceAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}

	copied := *alert
	s.alerts[alert.ID] = &copied
	return nil
}

func (s *MemStore) ListGeofenceAlerts(ctx context.Context, deviceID uuid.UUID, limit, offset int) ([]*models.GeofenceAlert, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var alerts []*models.GeofenceAlert
	for _, alert := range s.alerts {
		if alert.DeviceID == deviceID {
			copied := *alert
			alerts = append(alerts, &copied)
		}
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].CreatedAt.After(alerts[j].CreatedAt) })
	total := int64(len(alerts))
	return paginate(alerts, limit, offset), total, nil
}

func (s *MemStore) CountUnreadAlerts(ctx context.Context, deviceID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, alert := range s.alerts {
		if alert.DeviceID == deviceID && !alert.Read {
			count++
		}
	}
	return count, nil
}

func (s *MemStore) MarkAlertRead(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[id]
	if !ok {
		return ErrNotFound
	}
	alert.Read = true
	return nil
}

// ========== System Log Methods ==========

func (s *MemStore) CreateSystemLog(ctx context.Context, entry *models.SystemLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	copied := *entry
	s.logs = append(s.logs, &copied)
	return nil
}

func (s *MemStore) ListSystemLogs(ctx context.Context, filters SystemLogFilters, limit, offset int) ([]*models.SystemLog, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []*models.SystemLog
	for _, entry := range s.logs {
		if filters.DeviceID != nil && (entry.DeviceID == nil || *entry.DeviceID != *filters.DeviceID) {
			continue
		}
		if filters.UserID != nil && (entry.UserID == nil || *entry.UserID != *filters.UserID) {
			continue
		}
		if filters.Level != nil && entry.Level != *filters.Level {
			continue
		}
		if filters.Category != nil && entry.Category != *filters.Category {
			continue
		}
		if filters.StartTime != nil && entry.CreatedAt.Before(*filters.StartTime) {
			continue
		}
		if filters.EndTime != nil && entry.CreatedAt.After(*filters.EndTime) {
			continue
		}
		copied := *entry
		entries = append(entries, &copied)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })
	total := int64(len(entries))
	return paginate(entries, limit, offset), total, nil
}

// paginate applies limit/offset semantics to an already-sorted slice
func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
