package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/geotrack/geotrack-server/internal/activity"
	"github.com/geotrack/geotrack-server/internal/commands"
	"github.com/geotrack/geotrack-server/internal/geofence"
	"github.com/geotrack/geotrack-server/internal/models"
	"github.com/geotrack/geotrack-server/internal/storage"
	"github.com/geotrack/geotrack-server/pkg/geo"
)

// NATSSubscriber consumes device traffic from the message bus. It mirrors
// the HTTP ingest routes for deployments where trackers report through a
// broker instead of calling the API directly.
type NATSSubscriber struct {
	nc        *nats.Conn
	store     storage.Store
	manager   *commands.Manager
	evaluator *geofence.Evaluator
	tracker   *activity.Tracker
	subs      []*nats.Subscription
}

// NewNATSSubscriber creates a NATS subscriber
func NewNATSSubscriber(nc *nats.Conn, store storage.Store, manager *commands.Manager, evaluator *geofence.Evaluator, tracker *activity.Tracker) *NATSSubscriber {
	return &NATSSubscriber{
		nc:        nc,
		store:     store,
		manager:   manager,
		evaluator: evaluator,
		tracker:   tracker,
		subs:      make([]*nats.Subscription, 0),
	}
}

// Start starts subscriptions and blocks until the context is cancelled
func (s *NATSSubscriber) Start(ctx context.Context) error {
	sub1, err := s.nc.Subscribe("tracking.device.*.location", s.handleLocation)
	if err != nil {
		return fmt.Errorf("subscribe location: %w", err)
	}
	s.subs = append(s.subs, sub1)

	sub2, err := s.nc.Subscribe("tracking.device.*.heartbeat", s.handleHeartbeat)
	if err != nil {
		return fmt.Errorf("subscribe heartbeat: %w", err)
	}
	s.subs = append(s.subs, sub2)

	sub3, err := s.nc.Subscribe("tracking.device.*.ack", s.handleAck)
	if err != nil {
		return fmt.Errorf("subscribe ack: %w", err)
	}
	s.subs = append(s.subs, sub3)

	log.Info().
		Int("subscriptions", len(s.subs)).
		Msg("NATS subscriber started")

	<-ctx.Done()

	for _, sub := range s.subs {
		sub.Unsubscribe()
	}

	return ctx.Err()
}

// deviceFromSubject resolves tracking.device.<external_id>.<kind>
func (s *NATSSubscriber) deviceFromSubject(ctx context.Context, subject string) (*models.Device, error) {
	parts := strings.Split(subject, ".")
	if len(parts) != 4 || parts[0] != "tracking" || parts[1] != "device" || parts[2] == "" {
		return nil, fmt.Errorf("unexpected subject %q", subject)
	}

	return s.store.GetDeviceByExternalID(ctx, parts[2])
}

// handleLocation handles a location report from the bus
func (s *NATSSubscriber) handleLocation(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	device, err := s.deviceFromSubject(ctx, msg.Subject)
	if err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("Failed to resolve device")
		return
	}

	var report struct {
		Latitude     geo.Coordinate `json:"latitude"`
		Longitude    geo.Coordinate `json:"longitude"`
		Altitude     *float64       `json:"altitude"`
		Speed        *float64       `json:"speed"`
		BatteryLevel *float64       `json:"battery_level"`
		ReportedAt   *time.Time     `json:"reported_at"`
	}
	if err := json.Unmarshal(msg.Data, &report); err != nil {
		log.Error().Err(err).Msg("Failed to unmarshal location report")
		return
	}

	loc := &models.DeviceLocation{
		DeviceID:     device.ID,
		Latitude:     report.Latitude,
		Longitude:    report.Longitude,
		Altitude:     report.Altitude,
		Speed:        report.Speed,
		BatteryLevel: report.BatteryLevel,
	}
	if report.ReportedAt != nil {
		loc.ReportedAt = *report.ReportedAt
	}

	if err := s.store.AddLocation(ctx, loc); err != nil {
		log.Error().Err(err).Str("device", device.ExternalID).Msg("Failed to store location")
		return
	}

	if err := s.tracker.Touch(ctx, device, report.BatteryLevel); err != nil {
		log.Warn().Err(err).Str("device", device.ExternalID).Msg("Failed to record device activity")
	}

	if _, err := s.evaluator.Evaluate(ctx, device.ID, loc); err != nil {
		log.Error().Err(err).Str("device", device.ExternalID).Msg("Geofence evaluation failed")
	}
}

// handleHeartbeat delivers pending commands back on the reply subject
func (s *NATSSubscriber) handleHeartbeat(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	device, err := s.deviceFromSubject(ctx, msg.Subject)
	if err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("Failed to resolve device")
		return
	}

	var hb struct {
		BatteryLevel *float64 `json:"battery_level"`
	}
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &hb); err != nil {
			log.Error().Err(err).Msg("Failed to unmarshal heartbeat")
			return
		}
	}

	if err := s.tracker.Touch(ctx, device, hb.BatteryLevel); err != nil {
		log.Warn().Err(err).Str("device", device.ExternalID).Msg("Failed to record device activity")
	}

	pending, err := s.manager.ListPending(ctx, device.ID)
	if err != nil {
		log.Error().Err(err).Str("device", device.ExternalID).Msg("Failed to list pending commands")
		return
	}

	if msg.Reply != "" {
		payload, err := json.Marshal(map[string]interface{}{"commands": pending})
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal pending commands")
			return
		}
		if err := msg.Respond(payload); err != nil {
			log.Error().Err(err).Msg("Failed to respond to heartbeat")
			return
		}
		if err := s.manager.MarkDelivered(ctx, pending); err != nil {
			log.Error().Err(err).Str("device", device.ExternalID).Msg("Failed to mark commands delivered")
		}
	}
}

// handleAck records a device-reported command outcome
func (s *NATSSubscriber) handleAck(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.deviceFromSubject(ctx, msg.Subject); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("Failed to resolve device")
		return
	}

	var ack struct {
		CommandID string `json:"command_id"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(msg.Data, &ack); err != nil {
		log.Error().Err(err).Msg("Failed to unmarshal ack")
		return
	}

	id, err := uuid.Parse(ack.CommandID)
	if err != nil {
		log.Error().Str("command_id", ack.CommandID).Msg("Invalid command id in ack")
		return
	}

	if err := s.manager.Acknowledge(ctx, id, models.CommandStatus(ack.Status)); err != nil {
		log.Error().Err(err).Str("command_id", ack.CommandID).Msg("Failed to process ack")
	}
}
